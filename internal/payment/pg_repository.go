package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/hackgods/physio-appointments/internal/appointment"
)

const appointmentUniqueConstraint = "payments_appointment_id_key"

// Numeric columns travel as text so decimal values round-trip exactly.
const paymentColumns = `id, appointment_id, therapist_id, patient_id, amount::text, method,
	cash_tendered::text, cash_change::text, card_last4, card_holder, authorization_ref,
	is_pending_payment, note, appointment_date, appointment_time, appointment_description,
	created_at, paid_at, reminded_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	var amount string
	var tendered, change *string
	var date pgtype.Date
	var at pgtype.Time

	err := row.Scan(
		&p.ID,
		&p.AppointmentID,
		&p.TherapistID,
		&p.PatientID,
		&amount,
		&p.Method,
		&tendered,
		&change,
		&p.CardLast4,
		&p.CardHolder,
		&p.AuthorizationRef,
		&p.IsPendingPayment,
		&p.Note,
		&date,
		&at,
		&p.AppointmentDescription,
		&p.CreatedAt,
		&p.PaidAt,
		&p.RemindedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == appointmentUniqueConstraint {
			return nil, ErrAlreadyExists
		}
		return nil, err
	}

	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if p.CashTendered, err = nullDecimal(tendered); err != nil {
		return nil, err
	}
	if p.CashChange, err = nullDecimal(change); err != nil {
		return nil, err
	}
	p.AppointmentDate = appointment.FromPgDate(date)
	p.AppointmentTime = appointment.FromPgTime(at)

	return &p, nil
}

func nullDecimal(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parse numeric %q: %w", *s, err)
	}
	return decimal.NewNullDecimal(d), nil
}

func decimalArg(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func collectPayments(rows pgx.Rows) ([]Payment, error) {
	defer rows.Close()

	result := []Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) CreateCharge(ctx context.Context, p *Payment, to appointment.TherapistStatus) (*Payment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin charge tx: %w", err)
	}
	defer tx.Rollback(ctx)

	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO payments (id, appointment_id, therapist_id, patient_id, amount, method,
			cash_tendered, cash_change, is_pending_payment, note,
			appointment_date, appointment_time, appointment_description, created_at, paid_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7::numeric, $8::numeric, $9, $10, $11, $12, $13, now(), $14)
		RETURNING `+paymentColumns,
		id, p.AppointmentID, p.TherapistID, p.PatientID, p.Amount.String(), p.Method,
		decimalArg(p.CashTendered), decimalArg(p.CashChange), p.IsPendingPayment, p.Note,
		appointment.PgDate(p.AppointmentDate), appointment.PgTime(p.AppointmentTime), p.AppointmentDescription,
		p.PaidAt)

	created, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("insert payment: %w", err)
	}

	moved, err := markCharged(ctx, tx, p.AppointmentID, to)
	if err != nil {
		return nil, err
	}
	if !moved {
		exists, err := appointmentExists(ctx, tx, p.AppointmentID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrNotAvailable
		}
		return nil, appointment.ErrAppointmentNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit charge tx: %w", err)
	}

	return created, nil
}

func (r *PgRepository) ConfirmPending(ctx context.Context, id, patientID uuid.UUID, auth Authorization) (*Payment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin confirm tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// The row lock serialises racing confirmations; losers re-check the
	// predicate after the winner commits and match nothing.
	row := tx.QueryRow(ctx, `
		UPDATE payments
		SET card_last4 = $3,
		    card_holder = $4,
		    authorization_ref = $5,
		    is_pending_payment = false,
		    paid_at = $6
		WHERE id = $1
		  AND patient_id = $2
		  AND is_pending_payment
		RETURNING `+paymentColumns,
		id, patientID, auth.CardLast4, auth.CardHolder, auth.AuthorizationRef, auth.PaidAt)

	confirmed, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return nil, ErrNotAvailable
		}
		return nil, fmt.Errorf("confirm payment: %w", err)
	}

	// A deleted appointment still lets the payment settle; a therapist
	// cancellation does not, and the rollback keeps the payment pending.
	moved, err := markCharged(ctx, tx, confirmed.AppointmentID, appointment.TherapistCharged)
	if err != nil {
		return nil, err
	}
	if !moved {
		exists, err := appointmentExists(ctx, tx, confirmed.AppointmentID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrNotAvailable
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit confirm tx: %w", err)
	}

	return confirmed, nil
}

// markCharged moves the therapist-side status unless the therapist has
// cancelled. Reviving a cancelled appointment could collide with a newer
// booking of the freed slot.
func markCharged(ctx context.Context, tx pgx.Tx, appointmentID uuid.UUID, to appointment.TherapistStatus) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET therapist_status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND therapist_status <> $3
	`, appointmentID, to, appointment.TherapistCancelled)
	if err != nil {
		return false, fmt.Errorf("update therapist status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func appointmentExists(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check appointment: %w", err)
	}
	return exists, nil
}

func (r *PgRepository) GetPaymentByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE id = $1
	`, id)
	return scanPayment(row)
}

func (r *PgRepository) GetPaymentByAppointmentID(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE appointment_id = $1
	`, appointmentID)
	return scanPayment(row)
}

func (r *PgRepository) ListPaymentsByPatient(ctx context.Context, patientID uuid.UUID, pendingOnly bool) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE patient_id = $1
		  AND (NOT $2 OR is_pending_payment)
		ORDER BY created_at DESC
	`, patientID, pendingOnly)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

func (r *PgRepository) FindStalePending(ctx context.Context, cutoff time.Time, limit int) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE is_pending_payment
		  AND created_at < $1
		  AND (reminded_at IS NULL OR reminded_at < $1)
		  AND NOT EXISTS (
		      SELECT 1 FROM appointments a
		      WHERE a.id = payments.appointment_id
		        AND a.therapist_status = $3
		  )
		ORDER BY created_at
		LIMIT $2
	`, cutoff, limit, appointment.TherapistCancelled)
	if err != nil {
		return nil, err
	}
	return collectPayments(rows)
}

func (r *PgRepository) MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE payments SET reminded_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("mark reminded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev appointment.EventLog) error {
	return appointment.InsertEvent(ctx, r.pool, ev)
}
