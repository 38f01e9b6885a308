package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/physio-appointments/internal/config"
	"github.com/hackgods/physio-appointments/internal/directory"
	redisclient "github.com/hackgods/physio-appointments/internal/redis"
)

const (
	EventAppointmentCreated                = "APPOINTMENT_CREATED"
	EventAppointmentRescheduled            = "APPOINTMENT_RESCHEDULED"
	EventAppointmentStatusChanged          = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentTherapistStatusChanged = "APPOINTMENT_THERAPIST_STATUS_CHANGED"
	EventAppointmentPatientStatusChanged   = "APPOINTMENT_PATIENT_STATUS_CHANGED"
	EventAppointmentDeleted                = "APPOINTMENT_DELETED"
)

type CreateInput struct {
	PatientID   uuid.UUID
	Date        string // YYYY-MM-DD
	Time        string // HH:mm
	Description string
	Type        string
}

type RescheduleInput struct {
	PatientID   uuid.UUID
	Date        string
	Time        string
	Description string
	Type        string
	// Status optionally overrides the legacy unified status.
	Status *string
}

type Service struct {
	repo    Repository
	dir     directory.Directory
	locker  redisclient.Locker
	checker *SlotChecker
	cfg     config.Config
	log     zerolog.Logger
	now     func() time.Time
	loc     *time.Location
}

func NewService(repo Repository, dir directory.Directory, locker redisclient.Locker, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		dir:     dir,
		locker:  locker,
		checker: NewSlotChecker(repo),
		cfg:     cfg,
		log:     log.With().Str("component", "appointment").Logger(),
		now:     time.Now,
		loc:     time.Local,
	}
}

// SetClock replaces the wall clock used for the lead time rule.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// SetLocation sets the zone in which naive date and time are interpreted.
func (s *Service) SetLocation(loc *time.Location) {
	s.loc = loc
}

// slot is a validated (date, time) pair.
type slot struct {
	date time.Time
	at   TimeOfDay
}

func (s *Service) parseSlot(rawDate, rawTime string) (slot, error) {
	date, err := ParseDate(rawDate)
	if err != nil {
		return slot{}, err
	}
	at, err := ParseTimeOfDay(rawTime)
	if err != nil {
		return slot{}, err
	}

	earliest := s.now().Add(s.cfg.MinLeadTime)
	if !combine(date, at, s.loc).After(earliest) {
		return slot{}, fmt.Errorf("%w: %s %s", ErrTooSoon, date.Format(DateLayout), at)
	}
	return slot{date: date, at: at}, nil
}

func (s *Service) resolvePatient(ctx context.Context, id uuid.UUID) error {
	if _, err := s.dir.Patient(ctx, id); err != nil {
		if errors.Is(err, directory.ErrPatientNotFound) {
			return err
		}
		return fmt.Errorf("load patient: %w", err)
	}
	return nil
}

// withSlotLock runs fn while holding the distributed lock for the slot.
func (s *Service) withSlotLock(ctx context.Context, therapistID uuid.UUID, sl slot, fn func(ctx context.Context) error) error {
	key := redisclient.SlotKey(therapistID, sl.date.Format(DateLayout), sl.at.String())
	err := s.locker.WithLock(ctx, key, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSlotBusy
	}
	return err
}

// CreateAppointment books a new appointment for the therapist. The conflict
// check and the insert run under the slot lock; the live slot index catches
// anything that slips past it.
func (s *Service) CreateAppointment(ctx context.Context, therapistID uuid.UUID, in CreateInput) (*Appointment, error) {
	if _, err := s.dir.Therapist(ctx, therapistID); err != nil {
		if errors.Is(err, directory.ErrTherapistNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load therapist: %w", err)
	}
	if err := s.resolvePatient(ctx, in.PatientID); err != nil {
		return nil, err
	}

	sl, err := s.parseSlot(in.Date, in.Time)
	if err != nil {
		return nil, err
	}
	typ, err := ParseType(in.Type)
	if err != nil {
		return nil, err
	}

	var created *Appointment

	err = s.withSlotLock(ctx, therapistID, sl, func(lockCtx context.Context) error {
		taken, err := s.checker.HasConflict(lockCtx, therapistID, sl.date, sl.at, uuid.Nil)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotConflict
		}

		appt, err := s.repo.CreateAppointment(lockCtx, &Appointment{
			ID:              uuid.New(),
			TherapistID:     therapistID,
			PatientID:       in.PatientID,
			Date:            sl.date,
			Time:            sl.at,
			Description:     strings.TrimSpace(in.Description),
			Type:            typ,
			Status:          StatusPending,
			TherapistStatus: TherapistPending,
			PatientStatus:   PatientPending,
		})
		if err != nil {
			if errors.Is(err, ErrSlotConflict) {
				return err
			}
			return fmt.Errorf("create appointment: %w", err)
		}
		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"therapist_id": therapistID.String(),
		"patient_id":   in.PatientID.String(),
		"date":         created.Date.Format(DateLayout),
		"time":         created.Time.String(),
		"type":         created.Type,
	})

	return created, nil
}

// loadOwned returns the appointment if it belongs to the given therapist or
// patient. Foreign appointments are reported as not found.
func (s *Service) loadOwned(ctx context.Context, id uuid.UUID, owner func(*Appointment) uuid.UUID, actorID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if owner(appt) != actorID {
		return nil, ErrAppointmentNotFound
	}
	return appt, nil
}

func therapistOf(a *Appointment) uuid.UUID { return a.TherapistID }
func patientOf(a *Appointment) uuid.UUID   { return a.PatientID }

// RescheduleAppointment overwrites schedule and details. The conflict check
// only runs when the slot actually moves, and never counts the appointment
// against itself.
func (s *Service) RescheduleAppointment(ctx context.Context, therapistID, id uuid.UUID, in RescheduleInput) (*Appointment, error) {
	appt, err := s.loadOwned(ctx, id, therapistOf, therapistID)
	if err != nil {
		return nil, err
	}
	if err := s.resolvePatient(ctx, in.PatientID); err != nil {
		return nil, err
	}

	sl, err := s.parseSlot(in.Date, in.Time)
	if err != nil {
		return nil, err
	}
	typ, err := ParseType(in.Type)
	if err != nil {
		return nil, err
	}

	next := *appt
	next.PatientID = in.PatientID
	next.Date = sl.date
	next.Time = sl.at
	next.Description = strings.TrimSpace(in.Description)
	next.Type = typ
	if in.Status != nil {
		st, err := ParseStatus(*in.Status)
		if err != nil {
			return nil, err
		}
		next.Status = st
	}

	var updated *Appointment
	write := func(ctx context.Context) error {
		u, err := s.repo.UpdateAppointment(ctx, &next)
		if err != nil {
			if errors.Is(err, ErrSlotConflict) || errors.Is(err, ErrAppointmentNotFound) {
				return err
			}
			return fmt.Errorf("update appointment: %w", err)
		}
		updated = u
		return nil
	}

	moved := !sl.date.Equal(appt.Date) || sl.at != appt.Time
	if moved {
		err = s.withSlotLock(ctx, appt.TherapistID, sl, func(lockCtx context.Context) error {
			taken, err := s.checker.HasConflict(lockCtx, appt.TherapistID, sl.date, sl.at, appt.ID)
			if err != nil {
				return err
			}
			if taken {
				return ErrSlotConflict
			}
			return write(lockCtx)
		})
	} else {
		err = write(ctx)
	}
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, updated.ID, EventAppointmentRescheduled, map[string]any{
		"from_date": appt.Date.Format(DateLayout),
		"from_time": appt.Time.String(),
		"to_date":   updated.Date.Format(DateLayout),
		"to_time":   updated.Time.String(),
		"moved":     moved,
	})

	return updated, nil
}

// ChangeStatus writes the legacy unified status.
func (s *Service) ChangeStatus(ctx context.Context, therapistID, id uuid.UUID, raw string) (*Appointment, error) {
	if _, err := s.loadOwned(ctx, id, therapistOf, therapistID); err != nil {
		return nil, err
	}
	to, err := ParseStatus(raw)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateStatus(ctx, id, to)
	if err != nil {
		return nil, wrapUpdate(err, "update status")
	}

	s.logEvent(ctx, id, EventAppointmentStatusChanged, map[string]any{"status": to})
	return updated, nil
}

// ChangeTherapistStatus accepts any therapist-side value, including repeats.
func (s *Service) ChangeTherapistStatus(ctx context.Context, therapistID, id uuid.UUID, raw string) (*Appointment, error) {
	appt, err := s.loadOwned(ctx, id, therapistOf, therapistID)
	if err != nil {
		return nil, err
	}
	to, err := ParseTherapistStatus(raw)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateTherapistStatus(ctx, id, to)
	if err != nil {
		return nil, wrapUpdate(err, "update therapist status")
	}

	s.logEvent(ctx, id, EventAppointmentTherapistStatusChanged, map[string]any{
		"from": appt.TherapistStatus,
		"to":   to,
	})
	return updated, nil
}

// ChangePatientStatus is refused once the therapist has cancelled or charged.
func (s *Service) ChangePatientStatus(ctx context.Context, patientID, id uuid.UUID, raw string) (*Appointment, error) {
	appt, err := s.loadOwned(ctx, id, patientOf, patientID)
	if err != nil {
		return nil, err
	}
	to, err := ParsePatientStatus(raw)
	if err != nil {
		return nil, err
	}
	if err := appt.PatientStatusGuard(); err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdatePatientStatus(ctx, id, to)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return nil, err
		}
		return nil, wrapUpdate(err, "update patient status")
	}

	s.logEvent(ctx, id, EventAppointmentPatientStatusChanged, map[string]any{
		"from": appt.PatientStatus,
		"to":   to,
	})
	return updated, nil
}

func wrapUpdate(err error, op string) error {
	if errors.Is(err, ErrAppointmentNotFound) || errors.Is(err, ErrSlotConflict) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

// DeleteAppointment removes the row outright. Payments are left untouched.
func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) (bool, error) {
	deleted, err := s.repo.DeleteAppointment(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete appointment: %w", err)
	}
	if deleted {
		s.logEvent(ctx, id, EventAppointmentDeleted, map[string]any{})
	}
	return deleted, nil
}

// GetAppointment retrieves a single appointment by ID
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// GetAppointmentDetail hydrates the appointment with both profiles. A profile
// that no longer resolves is left nil.
func (s *Service) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &AppointmentDetail{Appointment: *appt}

	therapist, err := s.dir.Therapist(ctx, appt.TherapistID)
	switch {
	case err == nil:
		detail.Therapist = therapist
	case !errors.Is(err, directory.ErrTherapistNotFound):
		return nil, fmt.Errorf("load therapist: %w", err)
	}

	patient, err := s.dir.Patient(ctx, appt.PatientID)
	switch {
	case err == nil:
		detail.Patient = patient
	case !errors.Is(err, directory.ErrPatientNotFound):
		return nil, fmt.Errorf("load patient: %w", err)
	}

	return detail, nil
}

// ListTherapistDay lists the therapist's appointments on one date.
func (s *Service) ListTherapistDay(ctx context.Context, therapistID uuid.UUID, rawDate string) ([]Appointment, error) {
	return s.ListTherapistRange(ctx, therapistID, rawDate, rawDate)
}

// ListTherapistRange lists appointments between two inclusive dates.
func (s *Service) ListTherapistRange(ctx context.Context, therapistID uuid.UUID, rawFrom, rawTo string) ([]Appointment, error) {
	from, err := ParseDate(rawFrom)
	if err != nil {
		return nil, err
	}
	to, err := ParseDate(rawTo)
	if err != nil {
		return nil, err
	}
	if from.After(to) {
		return nil, ErrInvalidRange
	}

	list, err := s.repo.ListByTherapistRange(ctx, therapistID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list appointments by therapist: %w", err)
	}
	return list, nil
}

// ListPatientAppointments retrieves appointments for a specific patient
func (s *Service) ListPatientAppointments(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	list, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return list, nil
}

// SearchPatients returns nothing for an empty term instead of every patient.
func (s *Service) SearchPatients(ctx context.Context, term string) ([]directory.Entry, error) {
	if strings.TrimSpace(term) == "" {
		return []directory.Entry{}, nil
	}
	entries, err := s.dir.SearchPatients(ctx, term, directory.DefaultSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	return entries, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}
