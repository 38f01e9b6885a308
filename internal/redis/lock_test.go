package redisclient

import (
	"testing"

	"github.com/google/uuid"
)

func TestSlotKey_DistinctPerSlot(t *testing.T) {
	therapist := uuid.New()

	a := SlotKey(therapist, "2026-10-20", "10:00")
	b := SlotKey(therapist, "2026-10-20", "10:30")
	c := SlotKey(uuid.New(), "2026-10-20", "10:00")

	if a == b || a == c {
		t.Fatalf("expected distinct keys, got %q %q %q", a, b, c)
	}
	if a != SlotKey(therapist, "2026-10-20", "10:00") {
		t.Fatalf("expected stable key for the same slot")
	}
}

func TestChargeKey_Prefix(t *testing.T) {
	id := uuid.New()
	if got := ChargeKey(id); got != "charge:"+id.String() {
		t.Fatalf("unexpected charge key %q", got)
	}
}
