//go:build integration

package appointment_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/physio-appointments/internal/appointment"
	"github.com/hackgods/physio-appointments/internal/db"
)

// Run with: TEST_POSTGRES_DSN=postgres://... go test -tags integration ./internal/appointment/

func openPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return pool
}

func insertPerson(t *testing.T, pool *pgxpool.Pool, table string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO `+table+` (id, name, email) VALUES ($1, $2, $3)`, id, gofakeit.Name(), gofakeit.Email())
	if err != nil {
		t.Fatalf("insert %s: %v", table, err)
	}
	return id
}

func pgAppointment(therapistID, patientID uuid.UUID) *appointment.Appointment {
	return &appointment.Appointment{
		ID:              uuid.New(),
		TherapistID:     therapistID,
		PatientID:       patientID,
		Date:            time.Date(2030, 2, 1, 0, 0, 0, 0, time.UTC),
		Time:            appointment.TimeOfDay(9*60 + 30),
		Type:            appointment.TypeRehabilitation,
		Status:          appointment.StatusPending,
		TherapistStatus: appointment.TherapistPending,
		PatientStatus:   appointment.PatientPending,
	}
}

func TestPg_LiveSlotIndex(t *testing.T) {
	pool := openPool(t)
	repo := appointment.NewPgRepository(pool)
	ctx := context.Background()
	therapist := insertPerson(t, pool, "therapists")
	patient := insertPerson(t, pool, "patients")

	first, err := repo.CreateAppointment(ctx, pgAppointment(therapist, patient))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.Time.String() != "09:30" || !first.Date.Equal(time.Date(2030, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("date/time changed on the way through: %s %s", first.Date, first.Time)
	}

	if _, err := repo.CreateAppointment(ctx, pgAppointment(therapist, patient)); !errors.Is(err, appointment.ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}

	if _, err := repo.UpdatePatientStatus(ctx, first.ID, appointment.PatientCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := repo.CreateAppointment(ctx, pgAppointment(therapist, patient)); err != nil {
		t.Fatalf("create after cancel: %v", err)
	}

	// Reviving the cancelled row would double book.
	if _, err := repo.UpdatePatientStatus(ctx, first.ID, appointment.PatientPending); !errors.Is(err, appointment.ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict on revive, got %v", err)
	}
}

func TestPg_PatientStatusFrozenByTherapist(t *testing.T) {
	pool := openPool(t)
	repo := appointment.NewPgRepository(pool)
	ctx := context.Background()
	therapist := insertPerson(t, pool, "therapists")
	patient := insertPerson(t, pool, "patients")

	tests := []struct {
		name string
		to   appointment.TherapistStatus
		want error
	}{
		{"cancelled", appointment.TherapistCancelled, appointment.ErrCancelledByTherapist},
		{"charged", appointment.TherapistCharged, appointment.ErrAlreadyCharged},
		{"confirmed", appointment.TherapistConfirmed, nil},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := pgAppointment(therapist, patient)
			a.Time = appointment.TimeOfDay(8*60 + 60*i)
			created, err := repo.CreateAppointment(ctx, a)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if _, err := repo.UpdateTherapistStatus(ctx, created.ID, tt.to); err != nil {
				t.Fatalf("therapist status: %v", err)
			}

			updated, err := repo.UpdatePatientStatus(ctx, created.ID, appointment.PatientConfirmed)
			if tt.want != nil {
				if !errors.Is(err, tt.want) || !errors.Is(err, appointment.ErrPermissionDenied) {
					t.Fatalf("expected %v, got %v", tt.want, err)
				}
				return
			}
			if err != nil || updated.PatientStatus != appointment.PatientConfirmed {
				t.Fatalf("expected confirmed_by_patient, got %+v (%v)", updated, err)
			}
		})
	}

	if _, err := repo.UpdatePatientStatus(ctx, uuid.New(), appointment.PatientConfirmed); !errors.Is(err, appointment.ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
}
