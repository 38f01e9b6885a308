package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrInvalidDate         = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidTime         = errors.New("invalid time, expected HH:mm")
	ErrInvalidRange        = errors.New("invalid date range, start is after end")
	ErrInvalidType         = errors.New("invalid appointment type")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrTooSoon             = errors.New("appointment must be in the future beyond the minimum lead time")
	ErrSlotConflict        = errors.New("slot already taken")
	ErrSlotBusy            = errors.New("slot is currently being booked, please retry")

	ErrPermissionDenied     = errors.New("cannot change patient status")
	ErrCancelledByTherapist = fmt.Errorf("%w: cancelled by therapist", ErrPermissionDenied)
	ErrAlreadyCharged       = fmt.Errorf("%w: appointment already charged", ErrPermissionDenied)
)
