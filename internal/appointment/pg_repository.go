package appointment

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
)

// LiveSlotConstraint is the partial unique index guarding one live booking per slot.
const LiveSlotConstraint = "ux_appointments_live_slot"

const appointmentColumns = `id, therapist_id, patient_id, appointment_date, appointment_time, description,
	appointment_type, status, therapist_status, patient_status, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

// PgDate converts a date-only value for a DATE column.
func PgDate(d time.Time) pgtype.Date {
	return pgtype.Date{Time: time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), Valid: true}
}

// FromPgDate returns midnight UTC of the stored date.
func FromPgDate(d pgtype.Date) time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// PgTime converts a time of day for a TIME column.
func PgTime(t TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: int64(t) * int64(time.Minute/time.Microsecond), Valid: true}
}

// FromPgTime truncates a TIME value to minute precision.
func FromPgTime(t pgtype.Time) TimeOfDay {
	return TimeOfDay(t.Microseconds / int64(time.Minute/time.Microsecond))
}

// IsLiveSlotViolation reports whether err came from the live slot index.
func IsLiveSlotViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == LiveSlotConstraint
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var date pgtype.Date
	var at pgtype.Time
	var updatedAt *time.Time

	err := row.Scan(
		&a.ID,
		&a.TherapistID,
		&a.PatientID,
		&date,
		&at,
		&a.Description,
		&a.Type,
		&a.Status,
		&a.TherapistStatus,
		&a.PatientStatus,
		&a.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		if IsLiveSlotViolation(err) {
			return nil, ErrSlotConflict
		}
		return nil, err
	}

	a.Date = FromPgDate(date)
	a.Time = FromPgTime(at)
	a.UpdatedAt = updatedAt
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	result := []Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// Interface methods

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) FindAtSlot(ctx context.Context, therapistID uuid.UUID, date time.Time, at TimeOfDay) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE therapist_id = $1
		  AND appointment_date = $2
		  AND appointment_time = $3
	`, therapistID, PgDate(date), PgTime(at))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, therapist_id, patient_id, appointment_date, appointment_time, description,
			appointment_type, status, therapist_status, patient_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), NULL)
		RETURNING `+appointmentColumns,
		id, a.TherapistID, a.PatientID, PgDate(a.Date), PgTime(a.Time), a.Description,
		a.Type, a.Status, a.TherapistStatus, a.PatientStatus)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET patient_id = $2,
		    appointment_date = $3,
		    appointment_time = $4,
		    description = $5,
		    appointment_type = $6,
		    status = $7,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		a.ID, a.PatientID, PgDate(a.Date), PgTime(a.Time), a.Description, a.Type, a.Status)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns, id, to)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateTherapistStatus(ctx context.Context, id uuid.UUID, to TherapistStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET therapist_status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns, id, to)

	return scanAppointment(row)
}

func (r *PgRepository) UpdatePatientStatus(ctx context.Context, id uuid.UUID, to PatientStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET patient_status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND therapist_status NOT IN ($3, $4)
		RETURNING `+appointmentColumns, id, to, TherapistCancelled, TherapistCharged)

	updated, err := scanAppointment(row)
	if !errors.Is(err, ErrAppointmentNotFound) {
		return updated, err
	}

	// Either the row is gone or the guard filtered it out.
	current, getErr := r.GetAppointmentByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if guardErr := current.PatientStatusGuard(); guardErr != nil {
		return nil, guardErr
	}
	return nil, fmt.Errorf("update patient status of %s: row changed concurrently", id)
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgRepository) ListByTherapistRange(ctx context.Context, therapistID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE therapist_id = $1
		  AND appointment_date BETWEEN $2 AND $3
		ORDER BY appointment_date, appointment_time
	`, therapistID, PgDate(from), PgDate(to))
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY appointment_date DESC, appointment_time DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	return InsertEvent(ctx, r.pool, ev)
}

// Execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// InsertEvent writes one event_logs row using pool or an open transaction.
func InsertEvent(ctx context.Context, db Execer, ev EventLog) error {
	_, err := db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
