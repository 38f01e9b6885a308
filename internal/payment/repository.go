package payment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/physio-appointments/internal/appointment"
)

// Repository persists payments. Writes that touch the appointment as well
// commit both rows or neither.
type Repository interface {
	// CreateCharge inserts p and moves the appointment's therapist status to
	// `to`. A second payment for the same appointment fails with
	// ErrAlreadyExists; a vanished appointment with
	// appointment.ErrAppointmentNotFound.
	CreateCharge(ctx context.Context, p *Payment, to appointment.TherapistStatus) (*Payment, error)

	// ConfirmPending fills the authorization of a pending card payment owned
	// by patientID and marks the appointment charged. Anything else yields
	// ErrNotAvailable. Only one of several concurrent callers can succeed.
	ConfirmPending(ctx context.Context, id, patientID uuid.UUID, auth Authorization) (*Payment, error)

	GetPaymentByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetPaymentByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*Payment, error)
	ListPaymentsByPatient(ctx context.Context, patientID uuid.UUID, pendingOnly bool) ([]Payment, error)

	// Reminder worker
	FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]Payment, error)
	MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error

	InsertEvent(ctx context.Context, ev appointment.EventLog) error
}
