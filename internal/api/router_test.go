package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/physio-appointments/internal/appointment"
	"github.com/hackgods/physio-appointments/internal/config"
	"github.com/hackgods/physio-appointments/internal/directory"
	"github.com/hackgods/physio-appointments/internal/memstore"
	"github.com/hackgods/physio-appointments/internal/notify"
	"github.com/hackgods/physio-appointments/internal/payment"
)

type testServer struct {
	handler   http.Handler
	auth      *Authenticator
	therapist Actor
	patient   Actor
	admin     Actor
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	now := func() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC) }
	store := memstore.New()
	store.SetClock(now)

	ts := &testServer{
		auth:      NewAuthenticator("test-secret"),
		therapist: Actor{ID: uuid.New(), Role: RoleTherapist},
		patient:   Actor{ID: uuid.New(), Role: RolePatient},
		admin:     Actor{ID: uuid.New(), Role: RoleAdmin},
	}
	store.AddTherapist(directory.Profile{ID: ts.therapist.ID, Name: gofakeit.Name(), Email: gofakeit.Email()})
	store.AddPatient(directory.Profile{ID: ts.patient.ID, Name: "Ana Torres", Email: gofakeit.Email()})

	cfg := config.Config{MinLeadTime: 30 * time.Minute, NotifyTimeout: time.Second}
	appointments := appointment.NewService(store, store, store, cfg, zerolog.Nop())
	appointments.SetClock(now)
	appointments.SetLocation(time.UTC)

	payments := payment.NewService(store, appointments, store, store, notify.NewLogDispatcher(zerolog.Nop()), cfg, zerolog.Nop())
	payments.SetClock(now)

	ts.handler = NewRouter(RouterConfig{
		Appointments: appointments,
		Payments:     payments,
		Auth:         ts.auth,
		Logger:       zerolog.Nop(),
		Env:          "test",
		Version:      "test",
	})
	return ts
}

func (ts *testServer) do(t *testing.T, actor *Actor, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		token, err := ts.auth.Issue(*actor, time.Hour)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func (ts *testServer) book(t *testing.T, clock string) AppointmentResponse {
	t.Helper()
	rec := ts.do(t, &ts.therapist, http.MethodPost, "/therapist/appointments", CreateAppointmentRequest{
		PatientID: ts.patient.ID.String(),
		Date:      "2026-10-17",
		Time:      clock,
		Type:      "Seguimiento",
	})
	expectStatus(t, rec, http.StatusCreated)
	return decode[AppointmentResponse](t, rec)
}

func TestHealth_MemoryModeReportsDisabled(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, nil, http.MethodGet, "/health/ready", nil)
	expectStatus(t, rec, http.StatusOK)

	resp := decode[ReadinessResponse](t, rec)
	if resp.Status != "ok" || resp.Dependencies["postgres"] != "disabled" || resp.Dependencies["redis"] != "disabled" {
		t.Fatalf("unexpected readiness %+v", resp)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected a request id header")
	}
}

func TestAuth_RejectsMissingAndForeignRole(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, nil, http.MethodGet, "/patient/appointments", nil)
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = ts.do(t, &ts.patient, http.MethodPost, "/therapist/appointments", CreateAppointmentRequest{})
	expectStatus(t, rec, http.StatusForbidden)

	other := NewAuthenticator("another-secret")
	token, err := other.Issue(ts.patient, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/patient/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusUnauthorized)
}

func TestAuthenticator_ParseRoundTrip(t *testing.T) {
	auth := NewAuthenticator("secret")
	actor := Actor{ID: uuid.New(), Role: RoleTherapist}

	token, err := auth.Issue(actor, time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	got, err := auth.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != actor {
		t.Fatalf("expected %+v, got %+v", actor, got)
	}

	expired, _ := auth.Issue(actor, -time.Minute)
	if _, err := auth.Parse(expired); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestCreateAppointment_ErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	ts.book(t, "10:00")

	tests := []struct {
		name     string
		req      CreateAppointmentRequest
		wantCode int
		wantErr  string
	}{
		{"conflict", CreateAppointmentRequest{PatientID: ts.patient.ID.String(), Date: "2026-10-17", Time: "10:00", Type: "follow_up"}, http.StatusConflict, "slot_conflict"},
		{"too soon", CreateAppointmentRequest{PatientID: ts.patient.ID.String(), Date: "2026-10-16", Time: "09:30", Type: "follow_up"}, http.StatusUnprocessableEntity, "too_soon"},
		{"bad date", CreateAppointmentRequest{PatientID: ts.patient.ID.String(), Date: "tomorrow", Time: "10:00", Type: "follow_up"}, http.StatusBadRequest, "invalid_format"},
		{"bad type", CreateAppointmentRequest{PatientID: ts.patient.ID.String(), Date: "2026-10-17", Time: "11:00", Type: "yoga"}, http.StatusBadRequest, "invalid_value"},
		{"unknown patient", CreateAppointmentRequest{PatientID: uuid.NewString(), Date: "2026-10-17", Time: "11:00", Type: "follow_up"}, http.StatusNotFound, "not_found"},
		{"malformed patient", CreateAppointmentRequest{PatientID: "nope", Date: "2026-10-17", Time: "11:00", Type: "follow_up"}, http.StatusBadRequest, "invalid_patient_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, &ts.therapist, http.MethodPost, "/therapist/appointments", tt.req)
			expectStatus(t, rec, tt.wantCode)
			if got := decode[ErrorResponse](t, rec); got.Error != tt.wantErr {
				t.Fatalf("expected error %q, got %q", tt.wantErr, got.Error)
			}
		})
	}
}

func TestCashChargeFreezesPatientStatus(t *testing.T) {
	ts := newTestServer(t)
	appt := ts.book(t, "10:00")

	rec := ts.do(t, &ts.therapist, http.MethodPost, "/therapist/payments", map[string]any{
		"appointment_id": appt.ID.String(),
		"amount":         500,
		"method":         "Efectivo",
		"cash_tendered":  500,
		"cash_change":    0,
	})
	expectStatus(t, rec, http.StatusCreated)
	p := decode[PaymentResponse](t, rec)
	if p.IsPendingPayment || p.Amount != "500.00" || p.CashChange == nil || *p.CashChange != "0.00" {
		t.Fatalf("unexpected payment %+v", p)
	}

	rec = ts.do(t, &ts.patient, http.MethodPatch, "/patient/appointments/"+appt.ID.String()+"/status", StatusRequest{Status: "cancelled_by_patient"})
	expectStatus(t, rec, http.StatusForbidden)
	if got := decode[ErrorResponse](t, rec); got.Error != "permission_denied" {
		t.Fatalf("expected permission_denied, got %q", got.Error)
	}

	rec = ts.do(t, &ts.therapist, http.MethodPost, "/therapist/payments", map[string]any{
		"appointment_id": appt.ID.String(),
		"amount":         "500",
		"method":         "cash",
	})
	expectStatus(t, rec, http.StatusConflict)
}

func TestCardChargeAndConfirm(t *testing.T) {
	ts := newTestServer(t)
	appt := ts.book(t, "10:00")

	rec := ts.do(t, &ts.therapist, http.MethodPost, "/therapist/payments", map[string]any{
		"appointment_id": appt.ID.String(),
		"amount":         "500.00",
		"method":         "Tarjeta",
	})
	expectStatus(t, rec, http.StatusCreated)
	p := decode[PaymentResponse](t, rec)
	if !p.IsPendingPayment {
		t.Fatalf("expected pending card payment")
	}

	rec = ts.do(t, &ts.patient, http.MethodGet, "/patient/payments?pending=true", nil)
	expectStatus(t, rec, http.StatusOK)
	if list := decode[[]PaymentResponse](t, rec); len(list) != 1 {
		t.Fatalf("expected one pending payment, got %d", len(list))
	}

	confirm := ConfirmPaymentRequest{CardNumber: "**** 4242", CardHolder: "Ana Torres", AuthorizationRef: "321"}
	rec = ts.do(t, &ts.patient, http.MethodPost, "/patient/payments/"+p.ID.String()+"/confirm", confirm)
	expectStatus(t, rec, http.StatusOK)
	confirmed := decode[PaymentResponse](t, rec)
	if confirmed.IsPendingPayment || confirmed.CardLast4 != "4242" {
		t.Fatalf("unexpected confirmation %+v", confirmed)
	}

	rec = ts.do(t, &ts.patient, http.MethodPost, "/patient/payments/"+p.ID.String()+"/confirm", confirm)
	expectStatus(t, rec, http.StatusNotFound)
	if got := decode[ErrorResponse](t, rec); got.Error != "not_available" {
		t.Fatalf("expected not_available, got %q", got.Error)
	}

	rec = ts.do(t, &ts.therapist, http.MethodGet, "/appointments/"+appt.ID.String(), nil)
	expectStatus(t, rec, http.StatusOK)
	detail := decode[AppointmentDetailResponse](t, rec)
	if detail.TherapistStatus != string(appointment.TherapistCharged) || detail.Patient == nil || detail.Patient.Name != "Ana Torres" {
		t.Fatalf("unexpected detail %+v", detail)
	}
}

func TestGetAppointment_HiddenFromStrangers(t *testing.T) {
	ts := newTestServer(t)
	appt := ts.book(t, "10:00")

	stranger := Actor{ID: uuid.New(), Role: RolePatient}
	rec := ts.do(t, &stranger, http.MethodGet, "/appointments/"+appt.ID.String(), nil)
	expectStatus(t, rec, http.StatusNotFound)

	rec = ts.do(t, &ts.admin, http.MethodGet, "/appointments/"+appt.ID.String(), nil)
	expectStatus(t, rec, http.StatusOK)
}

func TestListAndSearch(t *testing.T) {
	ts := newTestServer(t)
	ts.book(t, "10:00")
	ts.book(t, "11:00")

	rec := ts.do(t, &ts.therapist, http.MethodGet, "/therapist/appointments?date=2026-10-17", nil)
	expectStatus(t, rec, http.StatusOK)
	if list := decode[[]AppointmentResponse](t, rec); len(list) != 2 || list[0].Time != "10:00" {
		t.Fatalf("unexpected list %+v", list)
	}

	rec = ts.do(t, &ts.therapist, http.MethodGet, "/therapist/appointments", nil)
	expectStatus(t, rec, http.StatusBadRequest)

	rec = ts.do(t, &ts.therapist, http.MethodGet, "/therapist/patients/search?q=", nil)
	expectStatus(t, rec, http.StatusOK)
	if rec.Body.String() != "[]\n" {
		t.Fatalf("expected empty array, got %q", rec.Body.String())
	}

	rec = ts.do(t, &ts.therapist, http.MethodGet, "/therapist/patients/search?q=torres", nil)
	expectStatus(t, rec, http.StatusOK)
	if list := decode[[]PatientEntryResponse](t, rec); len(list) != 1 {
		t.Fatalf("expected one match, got %+v", list)
	}
}

func TestAdminDelete(t *testing.T) {
	ts := newTestServer(t)
	appt := ts.book(t, "10:00")
	path := "/admin/appointments/" + appt.ID.String()

	expectStatus(t, ts.do(t, &ts.therapist, http.MethodDelete, path, nil), http.StatusForbidden)
	expectStatus(t, ts.do(t, &ts.admin, http.MethodDelete, path, nil), http.StatusNoContent)
	expectStatus(t, ts.do(t, &ts.admin, http.MethodDelete, path, nil), http.StatusNotFound)
}
