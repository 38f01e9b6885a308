package appointment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/physio-appointments/internal/appointment"
	"github.com/hackgods/physio-appointments/internal/config"
	"github.com/hackgods/physio-appointments/internal/directory"
	"github.com/hackgods/physio-appointments/internal/memstore"
)

var fixedNow = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store     *memstore.Store
	svc       *appointment.Service
	therapist uuid.UUID
	patient   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memstore.New()
	store.SetClock(func() time.Time { return fixedNow })

	f := &fixture{store: store, therapist: uuid.New(), patient: uuid.New()}
	store.AddTherapist(directory.Profile{ID: f.therapist, Name: gofakeit.Name(), Email: gofakeit.Email()})
	store.AddPatient(directory.Profile{ID: f.patient, Name: gofakeit.Name(), Email: gofakeit.Email()})

	cfg := config.Config{MinLeadTime: 30 * time.Minute}
	f.svc = appointment.NewService(store, store, store, cfg, zerolog.Nop())
	f.svc.SetClock(func() time.Time { return fixedNow })
	f.svc.SetLocation(time.UTC)

	return f
}

func (f *fixture) addPatient() uuid.UUID {
	id := uuid.New()
	f.store.AddPatient(directory.Profile{ID: id, Name: gofakeit.Name()})
	return id
}

func (f *fixture) create(t *testing.T, date, clock string) *appointment.Appointment {
	t.Helper()
	appt, err := f.svc.CreateAppointment(context.Background(), f.therapist, appointment.CreateInput{
		PatientID: f.patient,
		Date:      date,
		Time:      clock,
		Type:      "Seguimiento",
	})
	if err != nil {
		t.Fatalf("create appointment: %v", err)
	}
	return appt
}

func TestCreateAppointment_StartsPending(t *testing.T) {
	f := newFixture(t)

	appt := f.create(t, "2026-10-17", "10:00")

	if appt.Type != appointment.TypeFollowUp {
		t.Fatalf("expected follow_up, got %s", appt.Type)
	}
	if appt.Status != appointment.StatusPending ||
		appt.TherapistStatus != appointment.TherapistPending ||
		appt.PatientStatus != appointment.PatientPending {
		t.Fatalf("expected all statuses pending, got %s/%s/%s", appt.Status, appt.TherapistStatus, appt.PatientStatus)
	}
	if appt.UpdatedAt != nil {
		t.Fatalf("expected nil updated_at on a fresh appointment")
	}

	events := f.store.Events()
	if len(events) != 1 || events[0].EventType != appointment.EventAppointmentCreated {
		t.Fatalf("expected one APPOINTMENT_CREATED event, got %+v", events)
	}
}

func TestCreateAppointment_SecondBookingConflicts(t *testing.T) {
	f := newFixture(t)
	f.create(t, "2026-10-17", "10:00")

	_, err := f.svc.CreateAppointment(context.Background(), f.therapist, appointment.CreateInput{
		PatientID: f.addPatient(),
		Date:      "2026-10-17",
		Time:      "10:00",
		Type:      "follow_up",
	})
	if !errors.Is(err, appointment.ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}
}

func TestCreateAppointment_CancelledSlotIsReleased(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.create(t, "2026-10-17", "10:00")

	if _, err := f.svc.ChangeTherapistStatus(ctx, f.therapist, first.ID, "cancelled_by_therapist"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	second := f.create(t, "2026-10-17", "10:00")
	if second.ID == first.ID {
		t.Fatalf("expected a new appointment")
	}

	// Reviving the cancelled one would double-book the slot.
	_, err := f.svc.ChangeTherapistStatus(ctx, f.therapist, first.ID, "confirmed_by_therapist")
	if !errors.Is(err, appointment.ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict on revive, got %v", err)
	}
}

func TestCreateAppointment_LeadTimeBoundary(t *testing.T) {
	tests := []struct {
		name    string
		date    string
		clock   string
		wantErr error
	}{
		{"in the past", "2026-10-15", "10:00", appointment.ErrTooSoon},
		{"now", "2026-10-16", "09:00", appointment.ErrTooSoon},
		{"exactly thirty minutes", "2026-10-16", "09:30", appointment.ErrTooSoon},
		{"thirty one minutes", "2026-10-16", "09:31", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.CreateAppointment(context.Background(), f.therapist, appointment.CreateInput{
				PatientID: f.patient,
				Date:      tt.date,
				Time:      tt.clock,
				Type:      "rehabilitacion",
			})
			if tt.wantErr == nil && err != nil {
				t.Fatalf("expected success, got %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCreateAppointment_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name      string
		therapist uuid.UUID
		in        appointment.CreateInput
		wantErr   error
	}{
		{"unknown therapist", uuid.New(), appointment.CreateInput{PatientID: f.patient, Date: "2026-10-17", Time: "10:00", Type: "follow_up"}, directory.ErrTherapistNotFound},
		{"unknown patient", f.therapist, appointment.CreateInput{PatientID: uuid.New(), Date: "2026-10-17", Time: "10:00", Type: "follow_up"}, directory.ErrPatientNotFound},
		{"bad date", f.therapist, appointment.CreateInput{PatientID: f.patient, Date: "17/10/2026", Time: "10:00", Type: "follow_up"}, appointment.ErrInvalidDate},
		{"bad time", f.therapist, appointment.CreateInput{PatientID: f.patient, Date: "2026-10-17", Time: "25:00", Type: "follow_up"}, appointment.ErrInvalidTime},
		{"bad type", f.therapist, appointment.CreateInput{PatientID: f.patient, Date: "2026-10-17", Time: "10:00", Type: "massage"}, appointment.ErrInvalidType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appt, err := f.svc.CreateAppointment(context.Background(), tt.therapist, tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if appt != nil {
				t.Fatalf("expected no appointment on failure")
			}
		})
	}
}

func TestCreateAppointment_ConcurrentBookingsOneWins(t *testing.T) {
	f := newFixture(t)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		patient := f.addPatient()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateAppointment(context.Background(), f.therapist, appointment.CreateInput{
				PatientID: patient,
				Date:      "2026-10-18",
				Time:      "11:15",
				Type:      "manual_therapy",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	success := 0
	for err := range errs {
		switch {
		case err == nil:
			success++
		case errors.Is(err, appointment.ErrSlotConflict), errors.Is(err, appointment.ErrSlotBusy):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one booking, got %d", success)
	}
}

func TestRescheduleAppointment_SameSlotDoesNotConflictWithItself(t *testing.T) {
	f := newFixture(t)
	appt := f.create(t, "2026-10-17", "10:00")

	updated, err := f.svc.RescheduleAppointment(context.Background(), f.therapist, appt.ID, appointment.RescheduleInput{
		PatientID:   f.patient,
		Date:        "2026-10-17",
		Time:        "10:00",
		Description: "  bring MRI  ",
		Type:        "monthly_check",
	})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if updated.Description != "bring MRI" || updated.Type != appointment.TypeMonthlyCheck {
		t.Fatalf("details not applied: %+v", updated)
	}
	if updated.UpdatedAt == nil {
		t.Fatalf("expected updated_at to be stamped")
	}
}

func TestRescheduleAppointment_IntoTakenSlot(t *testing.T) {
	f := newFixture(t)
	f.create(t, "2026-10-17", "10:00")
	other := f.create(t, "2026-10-17", "11:00")

	_, err := f.svc.RescheduleAppointment(context.Background(), f.therapist, other.ID, appointment.RescheduleInput{
		PatientID: f.patient,
		Date:      "2026-10-17",
		Time:      "10:00",
		Type:      "follow_up",
	})
	if !errors.Is(err, appointment.ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}
}

func TestRescheduleAppointment_StatusOverride(t *testing.T) {
	f := newFixture(t)
	appt := f.create(t, "2026-10-17", "10:00")
	ctx := context.Background()

	bad := "postponed"
	_, err := f.svc.RescheduleAppointment(ctx, f.therapist, appt.ID, appointment.RescheduleInput{
		PatientID: f.patient, Date: "2026-10-18", Time: "10:00", Type: "follow_up", Status: &bad,
	})
	if !errors.Is(err, appointment.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}

	good := "Confirmada"
	updated, err := f.svc.RescheduleAppointment(ctx, f.therapist, appt.ID, appointment.RescheduleInput{
		PatientID: f.patient, Date: "2026-10-18", Time: "10:00", Type: "follow_up", Status: &good,
	})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if updated.Status != appointment.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", updated.Status)
	}
	if updated.Date.Format(appointment.DateLayout) != "2026-10-18" {
		t.Fatalf("date not moved: %s", updated.Date)
	}
}

func TestRescheduleAppointment_ForeignTherapist(t *testing.T) {
	f := newFixture(t)
	appt := f.create(t, "2026-10-17", "10:00")

	_, err := f.svc.RescheduleAppointment(context.Background(), uuid.New(), appt.ID, appointment.RescheduleInput{
		PatientID: f.patient, Date: "2026-10-18", Time: "10:00", Type: "follow_up",
	})
	if !errors.Is(err, appointment.ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
}

func TestChangeTherapistStatus_AcceptsRepeats(t *testing.T) {
	f := newFixture(t)
	appt := f.create(t, "2026-10-17", "10:00")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		updated, err := f.svc.ChangeTherapistStatus(ctx, f.therapist, appt.ID, "ConfirmadaPorTerapeuta")
		if err != nil {
			t.Fatalf("confirm #%d: %v", i+1, err)
		}
		if updated.TherapistStatus != appointment.TherapistConfirmed {
			t.Fatalf("expected confirmed_by_therapist, got %s", updated.TherapistStatus)
		}
	}

	if _, err := f.svc.ChangeTherapistStatus(ctx, f.therapist, appt.ID, "done"); !errors.Is(err, appointment.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestChangePatientStatus_FrozenByTherapist(t *testing.T) {
	frozen := []struct {
		therapistStatus string
		wantErr         error
	}{
		{"cancelled_by_therapist", appointment.ErrCancelledByTherapist},
		{"charged", appointment.ErrAlreadyCharged},
	}
	targets := []string{"pending", "confirmed_by_patient", "cancelled_by_patient"}

	for _, fz := range frozen {
		for _, target := range targets {
			t.Run(fz.therapistStatus+"/"+target, func(t *testing.T) {
				f := newFixture(t)
				ctx := context.Background()
				appt := f.create(t, "2026-10-17", "10:00")

				if _, err := f.svc.ChangeTherapistStatus(ctx, f.therapist, appt.ID, fz.therapistStatus); err != nil {
					t.Fatalf("set therapist status: %v", err)
				}

				_, err := f.svc.ChangePatientStatus(ctx, f.patient, appt.ID, target)
				if !errors.Is(err, appointment.ErrPermissionDenied) || !errors.Is(err, fz.wantErr) {
					t.Fatalf("expected %v, got %v", fz.wantErr, err)
				}

				current, err := f.svc.GetAppointment(ctx, appt.ID)
				if err != nil {
					t.Fatalf("get: %v", err)
				}
				if current.PatientStatus != appointment.PatientPending {
					t.Fatalf("patient status changed to %s", current.PatientStatus)
				}
			})
		}
	}
}

func TestChangePatientStatus_OwnPatientOnly(t *testing.T) {
	f := newFixture(t)
	appt := f.create(t, "2026-10-17", "10:00")
	ctx := context.Background()

	if _, err := f.svc.ChangePatientStatus(ctx, f.addPatient(), appt.ID, "confirmed_by_patient"); !errors.Is(err, appointment.ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}

	updated, err := f.svc.ChangePatientStatus(ctx, f.patient, appt.ID, "confirmada por paciente")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if updated.PatientStatus != appointment.PatientConfirmed {
		t.Fatalf("expected confirmed_by_patient, got %s", updated.PatientStatus)
	}
}

func TestDeleteAppointment(t *testing.T) {
	f := newFixture(t)
	appt := f.create(t, "2026-10-17", "10:00")
	ctx := context.Background()

	deleted, err := f.svc.DeleteAppointment(ctx, appt.ID)
	if err != nil || !deleted {
		t.Fatalf("expected deletion, got %v %v", deleted, err)
	}
	deleted, err = f.svc.DeleteAppointment(ctx, appt.ID)
	if err != nil || deleted {
		t.Fatalf("expected false on second delete, got %v %v", deleted, err)
	}
	if _, err := f.svc.GetAppointment(ctx, appt.ID); !errors.Is(err, appointment.ErrAppointmentNotFound) {
		t.Fatalf("expected ErrAppointmentNotFound, got %v", err)
	}
}

func TestListTherapistRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "2026-10-19", "09:00")
	f.create(t, "2026-10-17", "12:00")
	f.create(t, "2026-10-17", "08:00")
	f.create(t, "2026-10-21", "08:00")

	list, err := f.svc.ListTherapistRange(ctx, f.therapist, "2026-10-17", "2026-10-19")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 appointments, got %d", len(list))
	}
	if list[0].Time.String() != "08:00" || list[2].Date.Format(appointment.DateLayout) != "2026-10-19" {
		t.Fatalf("unexpected order: %+v", list)
	}

	day, err := f.svc.ListTherapistDay(ctx, f.therapist, "2026-10-17")
	if err != nil || len(day) != 2 {
		t.Fatalf("expected 2 on the day, got %d (%v)", len(day), err)
	}

	if _, err := f.svc.ListTherapistRange(ctx, f.therapist, "2026-10-20", "2026-10-17"); !errors.Is(err, appointment.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestGetAppointmentDetail(t *testing.T) {
	f := newFixture(t)
	appt := f.create(t, "2026-10-17", "10:00")

	detail, err := f.svc.GetAppointmentDetail(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("detail: %v", err)
	}
	if detail.Therapist == nil || detail.Therapist.ID != f.therapist {
		t.Fatalf("therapist not hydrated")
	}
	if detail.Patient == nil || detail.Patient.ID != f.patient {
		t.Fatalf("patient not hydrated")
	}
}

func TestSearchPatients_EmptyTermReturnsNothing(t *testing.T) {
	f := newFixture(t)
	f.store.AddPatient(directory.Profile{ID: uuid.New(), Name: "María López", Email: "maria@example.com"})

	for _, term := range []string{"", "   "} {
		got, err := f.svc.SearchPatients(context.Background(), term)
		if err != nil {
			t.Fatalf("search %q: %v", term, err)
		}
		if got == nil || len(got) != 0 {
			t.Fatalf("expected an empty non-nil result for %q, got %v", term, got)
		}
	}

	got, err := f.svc.SearchPatients(context.Background(), "MARIA@")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].Name != "María López" {
		t.Fatalf("expected one match, got %+v", got)
	}
}
