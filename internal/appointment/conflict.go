package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SlotChecker answers whether a therapist's slot is already held.
type SlotChecker struct {
	repo Repository
}

func NewSlotChecker(repo Repository) *SlotChecker {
	return &SlotChecker{repo: repo}
}

// HasConflict reports whether another live appointment occupies
// (therapistID, date, at). exclude is ignored when uuid.Nil; pass the
// appointment's own id when rescheduling it.
func (c *SlotChecker) HasConflict(ctx context.Context, therapistID uuid.UUID, date time.Time, at TimeOfDay, exclude uuid.UUID) (bool, error) {
	existing, err := c.repo.FindAtSlot(ctx, therapistID, date, at)
	if err != nil {
		return false, fmt.Errorf("find appointments at slot: %w", err)
	}

	for i := range existing {
		a := &existing[i]
		if exclude != uuid.Nil && a.ID == exclude {
			continue
		}
		if a.HoldsSlot() {
			return true, nil
		}
	}
	return false, nil
}
