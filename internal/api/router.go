package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/physio-appointments/internal/appointment"
	"github.com/hackgods/physio-appointments/internal/directory"
	"github.com/hackgods/physio-appointments/internal/payment"
)

type AppointmentService interface {
	CreateAppointment(ctx context.Context, therapistID uuid.UUID, in appointment.CreateInput) (*appointment.Appointment, error)
	RescheduleAppointment(ctx context.Context, therapistID, id uuid.UUID, in appointment.RescheduleInput) (*appointment.Appointment, error)
	ChangeStatus(ctx context.Context, therapistID, id uuid.UUID, raw string) (*appointment.Appointment, error)
	ChangeTherapistStatus(ctx context.Context, therapistID, id uuid.UUID, raw string) (*appointment.Appointment, error)
	ChangePatientStatus(ctx context.Context, patientID, id uuid.UUID, raw string) (*appointment.Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) (bool, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*appointment.AppointmentDetail, error)
	ListTherapistDay(ctx context.Context, therapistID uuid.UUID, date string) ([]appointment.Appointment, error)
	ListTherapistRange(ctx context.Context, therapistID uuid.UUID, from, to string) ([]appointment.Appointment, error)
	ListPatientAppointments(ctx context.Context, patientID uuid.UUID) ([]appointment.Appointment, error)
	SearchPatients(ctx context.Context, term string) ([]directory.Entry, error)
}

type PaymentService interface {
	Charge(ctx context.Context, therapistID uuid.UUID, in payment.ChargeInput) (*payment.Payment, error)
	Confirm(ctx context.Context, patientID, paymentID uuid.UUID, in payment.ConfirmInput) (*payment.Payment, error)
	GetForTherapist(ctx context.Context, therapistID, id uuid.UUID) (*payment.Payment, error)
	GetByAppointmentForTherapist(ctx context.Context, therapistID, appointmentID uuid.UUID) (*payment.Payment, error)
	ListPendingForPatient(ctx context.Context, patientID uuid.UUID) ([]payment.Payment, error)
	ListForPatient(ctx context.Context, patientID uuid.UUID) ([]payment.Payment, error)
}

type RouterConfig struct {
	Appointments AppointmentService
	Payments     PaymentService
	Auth         *Authenticator
	Logger       zerolog.Logger
	PgPool       *pgxpool.Pool // nil in memory mode
	Redis        *redis.Client // nil in memory mode
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.Middleware)

		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))

		r.Route("/therapist", func(r chi.Router) {
			r.Use(RequireRole(RoleTherapist))

			r.Post("/appointments", createAppointmentHandler(cfg.Appointments))
			r.Get("/appointments", listTherapistAppointmentsHandler(cfg.Appointments))
			r.Put("/appointments/{id}", rescheduleAppointmentHandler(cfg.Appointments))
			r.Patch("/appointments/{id}/status", changeStatusHandler(cfg.Appointments))
			r.Patch("/appointments/{id}/therapist-status", changeTherapistStatusHandler(cfg.Appointments))
			r.Get("/appointments/{id}/payment", getAppointmentPaymentHandler(cfg.Payments))
			r.Get("/patients/search", searchPatientsHandler(cfg.Appointments))

			r.Post("/payments", chargeHandler(cfg.Payments))
			r.Get("/payments/{id}", getPaymentHandler(cfg.Payments))
		})

		r.Route("/patient", func(r chi.Router) {
			r.Use(RequireRole(RolePatient))

			r.Get("/appointments", listPatientAppointmentsHandler(cfg.Appointments))
			r.Patch("/appointments/{id}/status", changePatientStatusHandler(cfg.Appointments))

			r.Get("/payments", listPatientPaymentsHandler(cfg.Payments))
			r.Post("/payments/{id}/confirm", confirmPaymentHandler(cfg.Payments))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireRole(RoleAdmin))

			r.Delete("/appointments/{id}", deleteAppointmentHandler(cfg.Appointments))
		})
	})

	return r
}
