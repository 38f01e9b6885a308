package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/hackgods/physio-appointments/internal/tokens"
)

var typeTokens = map[string]Type{
	"initialevaluation": TypeInitialEvaluation,
	"evaluacioninicial": TypeInitialEvaluation,
	"evaluacion":        TypeInitialEvaluation,
	"followup":          TypeFollowUp,
	"seguimiento":       TypeFollowUp,
	"monthlycheck":      TypeMonthlyCheck,
	"revisionmensual":   TypeMonthlyCheck,
	"chequeomensual":    TypeMonthlyCheck,
	"rehabilitation":    TypeRehabilitation,
	"rehabilitacion":    TypeRehabilitation,
	"manualtherapy":     TypeManualTherapy,
	"terapiamanual":     TypeManualTherapy,
	"electrotherapy":    TypeElectrotherapy,
	"electroterapia":    TypeElectrotherapy,
}

var statusTokens = map[string]Status{
	"pending":               StatusPending,
	"pendiente":             StatusPending,
	"confirmed":             StatusConfirmed,
	"confirmada":            StatusConfirmed,
	"charged":               StatusCharged,
	"cobrada":               StatusCharged,
	"cancelledbytherapist":  StatusCancelledByTherapist,
	"canceladaterapeuta":    StatusCancelledByTherapist,
	"canceladaporterapeuta": StatusCancelledByTherapist,
	"cancelledbypatient":    StatusCancelledByPatient,
	"canceladapaciente":     StatusCancelledByPatient,
	"canceladaporpaciente":  StatusCancelledByPatient,
}

var therapistStatusTokens = map[string]TherapistStatus{
	"pending":                TherapistPending,
	"pendiente":              TherapistPending,
	"confirmedbytherapist":   TherapistConfirmed,
	"confirmadaterapeuta":    TherapistConfirmed,
	"confirmadaporterapeuta": TherapistConfirmed,
	"pendingcollection":      TherapistPendingCollection,
	"pendientecobro":         TherapistPendingCollection,
	"pendientedecobro":       TherapistPendingCollection,
	"charged":                TherapistCharged,
	"cobrada":                TherapistCharged,
	"cancelledbytherapist":   TherapistCancelled,
	"canceladaterapeuta":     TherapistCancelled,
	"canceladaporterapeuta":  TherapistCancelled,
}

var patientStatusTokens = map[string]PatientStatus{
	"pending":               PatientPending,
	"pendiente":             PatientPending,
	"confirmedbypatient":    PatientConfirmed,
	"confirmadapaciente":    PatientConfirmed,
	"confirmadaporpaciente": PatientConfirmed,
	"cancelledbypatient":    PatientCancelled,
	"canceladapaciente":     PatientCancelled,
	"canceladaporpaciente":  PatientCancelled,
}

// ParseDate parses YYYY-MM-DD into midnight UTC.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return d, nil
}

// ParseTimeOfDay parses HH:mm with minute precision.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, raw)
	}
	return TimeOfDay(t.Hour()*60 + t.Minute()), nil
}

func ParseType(raw string) (Type, error) {
	v, ok := tokens.Lookup(raw, typeTokens)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidType, raw)
	}
	return v, nil
}

func ParseStatus(raw string) (Status, error) {
	v, ok := tokens.Lookup(raw, statusTokens)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return v, nil
}

func ParseTherapistStatus(raw string) (TherapistStatus, error) {
	v, ok := tokens.Lookup(raw, therapistStatusTokens)
	if !ok {
		return "", fmt.Errorf("%w: therapist status %q", ErrInvalidStatus, raw)
	}
	return v, nil
}

func ParsePatientStatus(raw string) (PatientStatus, error) {
	v, ok := tokens.Lookup(raw, patientStatusTokens)
	if !ok {
		return "", fmt.Errorf("%w: patient status %q", ErrInvalidStatus, raw)
	}
	return v, nil
}
