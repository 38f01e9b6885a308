package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/hackgods/physio-appointments/internal/appointment"
	"github.com/hackgods/physio-appointments/internal/config"
	"github.com/hackgods/physio-appointments/internal/directory"
	"github.com/hackgods/physio-appointments/internal/notify"
	redisclient "github.com/hackgods/physio-appointments/internal/redis"
)

const (
	EventPaymentCharged   = "PAYMENT_CHARGED"
	EventPaymentConfirmed = "PAYMENT_CONFIRMED"
	EventPaymentReminded  = "PAYMENT_REMINDED"
)

// reminderBatch caps how many payments one reminder run touches.
const reminderBatch = 100

const defaultNotifyTimeout = 10 * time.Second

// Appointments is the slice of the appointment lifecycle a charge reads.
type Appointments interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}

type ChargeInput struct {
	AppointmentID uuid.UUID
	Amount        decimal.Decimal
	Method        string
	CashTendered  *decimal.Decimal
	CashChange    *decimal.Decimal
	Note          string
}

type ConfirmInput struct {
	MaskedCardNumber string
	CardHolder       string
	AuthorizationRef string
}

type Service struct {
	repo         Repository
	appointments Appointments
	dir          directory.Directory
	locker       redisclient.Locker
	mailer       notify.Dispatcher
	cfg          config.Config
	log          zerolog.Logger
	now          func() time.Time
}

func NewService(repo Repository, appointments Appointments, dir directory.Directory, locker redisclient.Locker, mailer notify.Dispatcher, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		appointments: appointments,
		dir:          dir,
		locker:       locker,
		mailer:       mailer,
		cfg:          cfg,
		log:          log.With().Str("component", "payment").Logger(),
		now:          time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Charge records the payment for an appointment of therapistID and moves the
// therapist-side status in the same write. Cash settles immediately, card
// waits for the patient to confirm. A missing, foreign or cancelled
// appointment yields ErrNotAvailable.
func (s *Service) Charge(ctx context.Context, therapistID uuid.UUID, in ChargeInput) (*Payment, error) {
	method, err := ParseMethod(in.Method)
	if err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}

	appt, err := s.appointments.GetAppointment(ctx, in.AppointmentID)
	if err != nil {
		if errors.Is(err, appointment.ErrAppointmentNotFound) {
			return nil, ErrNotAvailable
		}
		return nil, err
	}
	if appt.TherapistID != therapistID || appt.TherapistStatus == appointment.TherapistCancelled {
		return nil, ErrNotAvailable
	}

	p := &Payment{
		ID:                     uuid.New(),
		AppointmentID:          appt.ID,
		TherapistID:            appt.TherapistID,
		PatientID:              appt.PatientID,
		Amount:                 in.Amount.Round(2),
		Method:                 method,
		Note:                   strings.TrimSpace(in.Note),
		AppointmentDate:        appt.Date,
		AppointmentTime:        appt.Time,
		AppointmentDescription: appt.Description,
	}

	next := appointment.TherapistPendingCollection
	if method == MethodCash {
		tendered, change, err := cashSettlement(p.Amount, in.CashTendered, in.CashChange)
		if err != nil {
			return nil, err
		}
		paidAt := s.now()
		p.CashTendered = decimal.NewNullDecimal(tendered)
		p.CashChange = decimal.NewNullDecimal(change)
		p.PaidAt = &paidAt
		next = appointment.TherapistCharged
	} else {
		p.IsPendingPayment = true
	}

	var created *Payment

	err = s.locker.WithLock(ctx, redisclient.ChargeKey(appt.ID), func(lockCtx context.Context) error {
		existing, err := s.repo.GetPaymentByAppointmentID(lockCtx, appt.ID)
		switch {
		case err == nil && existing != nil:
			return ErrAlreadyExists
		case err != nil && !errors.Is(err, ErrPaymentNotFound):
			return fmt.Errorf("load existing payment: %w", err)
		}

		created, err = s.repo.CreateCharge(lockCtx, p, next)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrNotAvailable):
			return err
		case errors.Is(err, appointment.ErrAppointmentNotFound):
			return ErrNotAvailable
		default:
			return fmt.Errorf("create charge: %w", err)
		}
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return nil, ErrChargeBusy
	}
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, created, EventPaymentCharged, map[string]any{
		"method":           created.Method,
		"amount":           created.Amount.StringFixed(2),
		"therapist_status": next,
	})

	kind := notify.KindPaymentRequested
	if method == MethodCash {
		kind = notify.KindPaymentReceipt
	}
	s.notifyPatient(ctx, kind, created)

	return created, nil
}

// cashSettlement fills in the tendered amount and change the therapist
// omitted. Change, when given, must match tendered minus amount.
func cashSettlement(amount decimal.Decimal, tendered, change *decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	paid := amount
	if tendered != nil {
		paid = tendered.Round(2)
	}
	if paid.LessThan(amount) {
		return decimal.Zero, decimal.Zero, ErrInsufficientCash
	}

	due := paid.Sub(amount)
	if change != nil && !change.Round(2).Equal(due) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: change %s does not match %s", ErrInvalidAmount, change.StringFixed(2), due.StringFixed(2))
	}
	return paid, due, nil
}

// Confirm authorises a pending card payment on behalf of its patient. Only
// the first of any number of racing confirmations succeeds; the rest, like
// every other mismatch, yield ErrNotAvailable. A payment whose appointment
// the therapist cancelled stays pending and cannot be confirmed.
func (s *Service) Confirm(ctx context.Context, patientID, paymentID uuid.UUID, in ConfirmInput) (*Payment, error) {
	last4, err := lastFour(in.MaskedCardNumber)
	if err != nil {
		return nil, err
	}
	holder := strings.TrimSpace(in.CardHolder)
	ref := strings.TrimSpace(in.AuthorizationRef)
	if holder == "" || ref == "" {
		return nil, fmt.Errorf("%w: card holder and authorization reference are required", ErrInvalidCard)
	}

	confirmed, err := s.repo.ConfirmPending(ctx, paymentID, patientID, Authorization{
		CardLast4:        last4,
		CardHolder:       holder,
		AuthorizationRef: ref,
		PaidAt:           s.now(),
	})
	if err != nil {
		if errors.Is(err, ErrNotAvailable) {
			return nil, err
		}
		return nil, fmt.Errorf("confirm payment: %w", err)
	}

	s.logEvent(ctx, confirmed, EventPaymentConfirmed, map[string]any{
		"card_last4": confirmed.CardLast4,
	})

	s.notifyPatient(ctx, notify.KindPaymentReceipt, confirmed)
	s.notifyTherapist(ctx, confirmed)

	return confirmed, nil
}

func lastFour(masked string) (string, error) {
	digits := make([]rune, 0, len(masked))
	for _, r := range masked {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
		}
	}
	if len(digits) < 4 {
		return "", fmt.Errorf("%w: card number needs at least four visible digits", ErrInvalidCard)
	}
	return string(digits[len(digits)-4:]), nil
}

// GetForTherapist returns a payment only to the therapist who charged it.
func (s *Service) GetForTherapist(ctx context.Context, therapistID, id uuid.UUID) (*Payment, error) {
	p, err := s.repo.GetPaymentByID(ctx, id)
	return ownedBy(p, err, therapistID)
}

func (s *Service) GetByAppointmentForTherapist(ctx context.Context, therapistID, appointmentID uuid.UUID) (*Payment, error) {
	p, err := s.repo.GetPaymentByAppointmentID(ctx, appointmentID)
	return ownedBy(p, err, therapistID)
}

func ownedBy(p *Payment, err error, therapistID uuid.UUID) (*Payment, error) {
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if p.TherapistID != therapistID {
		return nil, ErrPaymentNotFound
	}
	return p, nil
}

func (s *Service) ListPendingForPatient(ctx context.Context, patientID uuid.UUID) ([]Payment, error) {
	list, err := s.repo.ListPaymentsByPatient(ctx, patientID, true)
	if err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	return list, nil
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID) ([]Payment, error) {
	list, err := s.repo.ListPaymentsByPatient(ctx, patientID, false)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return list, nil
}

// RemindPending mails patients whose card payment has been waiting longer
// than ReminderAfter, at most once per ReminderAfter window. It returns how
// many reminders went out.
func (s *Service) RemindPending(ctx context.Context) (int, error) {
	now := s.now()
	cutoff := now.Add(-s.cfg.ReminderAfter)

	stale, err := s.repo.FindStalePending(ctx, cutoff, reminderBatch)
	if err != nil {
		return 0, fmt.Errorf("find stale payments: %w", err)
	}

	sent := 0
	for i := range stale {
		p := &stale[i]
		if !s.notifyPatient(ctx, notify.KindPaymentReminder, p) {
			continue
		}
		if err := s.repo.MarkReminded(ctx, p.ID, now); err != nil {
			s.log.Error().Err(err).Str("payment_id", p.ID.String()).Msg("failed to mark payment reminded")
			continue
		}
		sent++
		s.logEvent(ctx, p, EventPaymentReminded, map[string]any{})
	}

	return sent, nil
}

func (s *Service) mailData(ctx context.Context, p *Payment) notify.PaymentData {
	data := notify.PaymentData{
		PaymentID:        p.ID.String(),
		Amount:           p.Amount.StringFixed(2),
		Method:           string(p.Method),
		CardLast4:        p.CardLast4,
		AuthorizationRef: p.AuthorizationRef,
		Date:             p.AppointmentDate.Format(appointment.DateLayout),
		Time:             p.AppointmentTime.String(),
		Description:      p.AppointmentDescription,
	}
	if p.CashTendered.Valid {
		data.CashTendered = p.CashTendered.Decimal.StringFixed(2)
		data.CashChange = p.CashChange.Decimal.StringFixed(2)
	}
	if t, err := s.dir.Therapist(ctx, p.TherapistID); err == nil {
		data.TherapistName = t.Name
	}
	if pt, err := s.dir.Patient(ctx, p.PatientID); err == nil {
		data.PatientName = pt.Name
	}
	return data
}

// notifyPatient reports whether a message was handed to the dispatcher
// successfully. Failures are logged only.
func (s *Service) notifyPatient(ctx context.Context, kind notify.Kind, p *Payment) bool {
	patient, err := s.dir.Patient(ctx, p.PatientID)
	switch {
	case errors.Is(err, directory.ErrPatientNotFound):
		s.log.Debug().Str("payment_id", p.ID.String()).Msg("patient not in directory, skipping notification")
		return false
	case err != nil:
		s.log.Warn().Err(err).Str("payment_id", p.ID.String()).Msg("failed to load patient for notification")
		return false
	case !patient.HasEmail():
		s.log.Debug().Str("payment_id", p.ID.String()).Msg("patient has no email, skipping notification")
		return false
	}

	data := s.mailData(ctx, p)
	data.RecipientName = patient.Name
	return s.send(ctx, kind, patient.Email, p, data)
}

func (s *Service) notifyTherapist(ctx context.Context, p *Payment) bool {
	therapist, err := s.dir.Therapist(ctx, p.TherapistID)
	if err != nil && !errors.Is(err, directory.ErrTherapistNotFound) {
		s.log.Warn().Err(err).Str("payment_id", p.ID.String()).Msg("failed to load therapist for notification")
		return false
	}
	if err != nil || !therapist.HasEmail() {
		return false
	}

	data := s.mailData(ctx, p)
	data.RecipientName = therapist.Name
	return s.send(ctx, notify.KindPaymentConfirmed, therapist.Email, p, data)
}

func (s *Service) send(ctx context.Context, kind notify.Kind, to string, p *Payment, data notify.PaymentData) bool {
	msg, err := notify.Render(kind, to, data)
	if err != nil {
		s.log.Warn().Err(err).Str("kind", string(kind)).Msg("failed to render notification")
		return false
	}

	timeout := s.cfg.NotifyTimeout
	if timeout <= 0 {
		timeout = defaultNotifyTimeout
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := s.mailer.Send(sendCtx, msg); err != nil {
		s.log.Warn().Err(err).
			Str("kind", string(kind)).
			Str("payment_id", p.ID.String()).
			Msg("failed to send notification")
		return false
	}
	return true
}

func (s *Service) logEvent(ctx context.Context, p *Payment, eventType string, payload map[string]any) {
	payload["payment_id"] = p.ID.String()
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := p.AppointmentID

	ev := appointment.EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).
			Str("event", eventType).
			Str("payment_id", p.ID.String()).
			Msg("failed to insert event log")
	}
}
