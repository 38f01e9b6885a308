package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/physio-appointments/internal/appointment"
)

func sameSlot(a, b *appointment.Appointment) bool {
	return a.TherapistID == b.TherapistID && a.Date.Equal(b.Date) && a.Time == b.Time
}

// slotTakenLocked mirrors the live slot index: no two live appointments may
// share a therapist, date and time.
func (s *Store) slotTakenLocked(a *appointment.Appointment) bool {
	if !a.HoldsSlot() {
		return false
	}
	for id, other := range s.appointments {
		if id == a.ID {
			continue
		}
		if sameSlot(a, &other) && other.HoldsSlot() {
			return true
		}
	}
	return false
}

func (s *Store) GetAppointmentByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

func (s *Store) FindAtSlot(_ context.Context, therapistID uuid.UUID, date time.Time, at appointment.TimeOfDay) ([]appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := []appointment.Appointment{}
	for _, a := range s.appointments {
		if a.TherapistID == therapistID && a.Date.Equal(date) && a.Time == at {
			result = append(result, a)
		}
	}
	return result, nil
}

func (s *Store) CreateAppointment(_ context.Context, a *appointment.Appointment) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := *a
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	if s.slotTakenLocked(&created) {
		return nil, appointment.ErrSlotConflict
	}
	created.CreatedAt = s.now()
	created.UpdatedAt = nil

	s.appointments[created.ID] = created
	return &created, nil
}

// mutate applies fn to a copy of the stored row and keeps it only if the
// slot rule still holds.
func (s *Store) mutate(id uuid.UUID, fn func(a *appointment.Appointment) error) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	next := current
	if err := fn(&next); err != nil {
		return nil, err
	}
	if s.slotTakenLocked(&next) {
		return nil, appointment.ErrSlotConflict
	}

	now := s.now()
	next.UpdatedAt = &now
	s.appointments[id] = next
	return &next, nil
}

func (s *Store) UpdateAppointment(_ context.Context, a *appointment.Appointment) (*appointment.Appointment, error) {
	return s.mutate(a.ID, func(next *appointment.Appointment) error {
		next.PatientID = a.PatientID
		next.Date = a.Date
		next.Time = a.Time
		next.Description = a.Description
		next.Type = a.Type
		next.Status = a.Status
		return nil
	})
}

func (s *Store) UpdateStatus(_ context.Context, id uuid.UUID, to appointment.Status) (*appointment.Appointment, error) {
	return s.mutate(id, func(next *appointment.Appointment) error {
		next.Status = to
		return nil
	})
}

func (s *Store) UpdateTherapistStatus(_ context.Context, id uuid.UUID, to appointment.TherapistStatus) (*appointment.Appointment, error) {
	return s.mutate(id, func(next *appointment.Appointment) error {
		next.TherapistStatus = to
		return nil
	})
}

func (s *Store) UpdatePatientStatus(_ context.Context, id uuid.UUID, to appointment.PatientStatus) (*appointment.Appointment, error) {
	return s.mutate(id, func(next *appointment.Appointment) error {
		if err := next.PatientStatusGuard(); err != nil {
			return err
		}
		next.PatientStatus = to
		return nil
	})
}

func (s *Store) DeleteAppointment(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.appointments[id]; !ok {
		return false, nil
	}
	delete(s.appointments, id)
	return true, nil
}

func (s *Store) ListByTherapistRange(_ context.Context, therapistID uuid.UUID, from, to time.Time) ([]appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := []appointment.Appointment{}
	for _, a := range s.appointments {
		if a.TherapistID != therapistID || a.Date.Before(from) || a.Date.After(to) {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].Time < result[j].Time
	})
	return result, nil
}

func (s *Store) ListByPatient(_ context.Context, patientID uuid.UUID) ([]appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := []appointment.Appointment{}
	for _, a := range s.appointments {
		if a.PatientID == patientID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.After(result[j].Date)
		}
		return result[i].Time > result[j].Time
	})
	return result, nil
}
