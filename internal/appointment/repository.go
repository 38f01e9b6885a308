package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// For conflict checks: every appointment of the therapist at that date and time.
	FindAtSlot(ctx context.Context, therapistID uuid.UUID, date time.Time, at TimeOfDay) ([]Appointment, error)

	// Creation and updates. Writes that would leave two live appointments in
	// one slot fail with ErrSlotConflict.
	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	UpdateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error)
	UpdateTherapistStatus(ctx context.Context, id uuid.UUID, to TherapistStatus) (*Appointment, error)
	// UpdatePatientStatus refuses rows whose therapist status freezes the
	// patient view, returning ErrCancelledByTherapist or ErrAlreadyCharged.
	UpdatePatientStatus(ctx context.Context, id uuid.UUID, to PatientStatus) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) (bool, error)

	// Reads. Range bounds are inclusive dates.
	ListByTherapistRange(ctx context.Context, therapistID uuid.UUID, from, to time.Time) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
