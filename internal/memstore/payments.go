package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/physio-appointments/internal/appointment"
	"github.com/hackgods/physio-appointments/internal/payment"
)

func (s *Store) CreateCharge(_ context.Context, p *payment.Payment, to appointment.TherapistStatus) (*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, ok := s.appointments[p.AppointmentID]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	for _, existing := range s.payments {
		if existing.AppointmentID == p.AppointmentID {
			return nil, payment.ErrAlreadyExists
		}
	}
	if appt.TherapistStatus == appointment.TherapistCancelled {
		return nil, payment.ErrNotAvailable
	}

	created := *p
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	now := s.now()
	created.CreatedAt = now
	s.payments[created.ID] = created

	appt.TherapistStatus = to
	appt.UpdatedAt = &now
	s.appointments[appt.ID] = appt

	return &created, nil
}

func (s *Store) ConfirmPending(_ context.Context, id, patientID uuid.UUID, auth payment.Authorization) (*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[id]
	if !ok || p.PatientID != patientID || !p.IsPendingPayment {
		return nil, payment.ErrNotAvailable
	}
	appt, apptExists := s.appointments[p.AppointmentID]
	if apptExists && appt.TherapistStatus == appointment.TherapistCancelled {
		return nil, payment.ErrNotAvailable
	}

	paidAt := auth.PaidAt
	p.CardLast4 = auth.CardLast4
	p.CardHolder = auth.CardHolder
	p.AuthorizationRef = auth.AuthorizationRef
	p.IsPendingPayment = false
	p.PaidAt = &paidAt
	s.payments[id] = p

	if apptExists {
		now := s.now()
		appt.TherapistStatus = appointment.TherapistCharged
		appt.UpdatedAt = &now
		s.appointments[appt.ID] = appt
	}

	return &p, nil
}

func (s *Store) GetPaymentByID(_ context.Context, id uuid.UUID) (*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	return &p, nil
}

func (s *Store) GetPaymentByAppointmentID(_ context.Context, appointmentID uuid.UUID) (*payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.AppointmentID == appointmentID {
			return &p, nil
		}
	}
	return nil, payment.ErrPaymentNotFound
}

func (s *Store) ListPaymentsByPatient(_ context.Context, patientID uuid.UUID, pendingOnly bool) ([]payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := []payment.Payment{}
	for _, p := range s.payments {
		if p.PatientID != patientID || (pendingOnly && !p.IsPendingPayment) {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) FindStalePending(_ context.Context, cutoff time.Time, limit int) ([]payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := []payment.Payment{}
	for _, p := range s.payments {
		if !p.IsPendingPayment || !p.CreatedAt.Before(cutoff) {
			continue
		}
		if p.RemindedAt != nil && !p.RemindedAt.Before(cutoff) {
			continue
		}
		if appt, ok := s.appointments[p.AppointmentID]; ok && appt.TherapistStatus == appointment.TherapistCancelled {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) MarkReminded(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return payment.ErrPaymentNotFound
	}
	p.RemindedAt = &at
	s.payments[id] = p
	return nil
}
