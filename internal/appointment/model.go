package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/physio-appointments/internal/directory"
)

// Status is the legacy unified status. It is written for compatibility and
// never consulted by lifecycle rules.
type Status string

const (
	StatusPending              Status = "pending"
	StatusConfirmed            Status = "confirmed"
	StatusCharged              Status = "charged"
	StatusCancelledByTherapist Status = "cancelled_by_therapist"
	StatusCancelledByPatient   Status = "cancelled_by_patient"
)

// TherapistStatus is the provider's view of the appointment.
type TherapistStatus string

const (
	TherapistPending           TherapistStatus = "pending"
	TherapistConfirmed         TherapistStatus = "confirmed_by_therapist"
	TherapistPendingCollection TherapistStatus = "pending_collection"
	TherapistCharged           TherapistStatus = "charged"
	TherapistCancelled         TherapistStatus = "cancelled_by_therapist"
)

// PatientStatus is the client's view of the appointment.
type PatientStatus string

const (
	PatientPending   PatientStatus = "pending"
	PatientConfirmed PatientStatus = "confirmed_by_patient"
	PatientCancelled PatientStatus = "cancelled_by_patient"
)

type Type string

const (
	TypeInitialEvaluation Type = "initial_evaluation"
	TypeFollowUp          Type = "follow_up"
	TypeMonthlyCheck      Type = "monthly_check"
	TypeRehabilitation    Type = "rehabilitation"
	TypeManualTherapy     Type = "manual_therapy"
	TypeElectrotherapy    Type = "electrotherapy"
)

// TimeOfDay is minutes after midnight.
type TimeOfDay int

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

const DateLayout = "2006-01-02"

type Appointment struct {
	ID              uuid.UUID
	TherapistID     uuid.UUID
	PatientID       uuid.UUID
	Date            time.Time // midnight UTC, date part only
	Time            TimeOfDay
	Description     string
	Type            Type
	Status          Status
	TherapistStatus TherapistStatus
	PatientStatus   PatientStatus
	CreatedAt       time.Time
	UpdatedAt       *time.Time
}

// StartsAt combines date and time of day as a wall clock instant in loc.
func (a *Appointment) StartsAt(loc *time.Location) time.Time {
	return combine(a.Date, a.Time, loc)
}

// HoldsSlot reports whether the appointment still occupies its slot.
// Cancellation by either party releases it.
func (a *Appointment) HoldsSlot() bool {
	return a.TherapistStatus != TherapistCancelled && a.PatientStatus != PatientCancelled
}

// PatientStatusGuard is the only rule on the patient-side machine: once the
// therapist has cancelled or charged, the patient view is frozen.
func (a *Appointment) PatientStatusGuard() error {
	switch a.TherapistStatus {
	case TherapistCancelled:
		return ErrCancelledByTherapist
	case TherapistCharged:
		return ErrAlreadyCharged
	}
	return nil
}

// Involves reports whether id is the therapist or the patient of a.
func (a *Appointment) Involves(id uuid.UUID) bool {
	return a.TherapistID == id || a.PatientID == id
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type AppointmentDetail struct {
	Appointment
	Therapist *directory.Profile
	Patient   *directory.Profile
}

func combine(date time.Time, at TimeOfDay, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), int(at)/60, int(at)%60, 0, 0, loc)
}
