// Package directory resolves therapist and patient identities to the
// display profiles the scheduling core needs (name, email, phone).
package directory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTherapistNotFound = errors.New("therapist not found")
	ErrPatientNotFound   = errors.New("patient not found")
)

// DefaultSearchLimit caps patient search results.
const DefaultSearchLimit = 50

type Profile struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasEmail reports whether notifications can be addressed to this person.
func (p *Profile) HasEmail() bool {
	return p != nil && p.Email != ""
}

type Entry struct {
	ID    uuid.UUID
	Name  string
	Email string
}

// Directory is the read side of the user store.
type Directory interface {
	Therapist(ctx context.Context, id uuid.UUID) (*Profile, error)
	Patient(ctx context.Context, id uuid.UUID) (*Profile, error)
	// SearchPatients matches name or email case-insensitively. An empty term
	// yields an empty result, never the whole table.
	SearchPatients(ctx context.Context, term string, limit int) ([]Entry, error)
}
