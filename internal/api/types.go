package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/physio-appointments/internal/appointment"
	"github.com/hackgods/physio-appointments/internal/directory"
	"github.com/hackgods/physio-appointments/internal/payment"
)

type CreateAppointmentRequest struct {
	PatientID   string `json:"patient_id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

type RescheduleAppointmentRequest struct {
	PatientID   string  `json:"patient_id"`
	Date        string  `json:"date"`
	Time        string  `json:"time"`
	Description string  `json:"description"`
	Type        string  `json:"type"`
	Status      *string `json:"status,omitempty"`
}

type StatusRequest struct {
	Status string `json:"status"`
}

type ChargeRequest struct {
	AppointmentID string           `json:"appointment_id"`
	Amount        decimal.Decimal  `json:"amount"`
	Method        string           `json:"method"`
	CashTendered  *decimal.Decimal `json:"cash_tendered,omitempty"`
	CashChange    *decimal.Decimal `json:"cash_change,omitempty"`
	Note          string           `json:"note,omitempty"`
}

type ConfirmPaymentRequest struct {
	CardNumber       string `json:"card_number"`
	CardHolder       string `json:"card_holder"`
	AuthorizationRef string `json:"authorization_ref"`
}

type AppointmentResponse struct {
	ID              uuid.UUID  `json:"id"`
	TherapistID     uuid.UUID  `json:"therapist_id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	Date            string     `json:"date"`
	Time            string     `json:"time"`
	Description     string     `json:"description"`
	Type            string     `json:"type"`
	Status          string     `json:"status"`
	TherapistStatus string     `json:"therapist_status"`
	PatientStatus   string     `json:"patient_status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at"`
}

type ProfileResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email,omitempty"`
	Phone string    `json:"phone,omitempty"`
}

type AppointmentDetailResponse struct {
	AppointmentResponse
	Therapist *ProfileResponse `json:"therapist,omitempty"`
	Patient   *ProfileResponse `json:"patient,omitempty"`
}

type PatientEntryResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email,omitempty"`
}

type PaymentResponse struct {
	ID                     uuid.UUID  `json:"id"`
	AppointmentID          uuid.UUID  `json:"appointment_id"`
	TherapistID            uuid.UUID  `json:"therapist_id"`
	PatientID              uuid.UUID  `json:"patient_id"`
	Amount                 string     `json:"amount"`
	Method                 string     `json:"method"`
	CashTendered           *string    `json:"cash_tendered,omitempty"`
	CashChange             *string    `json:"cash_change,omitempty"`
	CardLast4              string     `json:"card_last4,omitempty"`
	CardHolder             string     `json:"card_holder,omitempty"`
	AuthorizationRef       string     `json:"authorization_ref,omitempty"`
	IsPendingPayment       bool       `json:"is_pending_payment"`
	Note                   string     `json:"note,omitempty"`
	AppointmentDate        string     `json:"appointment_date"`
	AppointmentTime        string     `json:"appointment_time"`
	AppointmentDescription string     `json:"appointment_description,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	PaidAt                 *time.Time `json:"paid_at,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		TherapistID:     a.TherapistID,
		PatientID:       a.PatientID,
		Date:            a.Date.Format(appointment.DateLayout),
		Time:            a.Time.String(),
		Description:     a.Description,
		Type:            string(a.Type),
		Status:          string(a.Status),
		TherapistStatus: string(a.TherapistStatus),
		PatientStatus:   string(a.PatientStatus),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

func toAppointmentList(list []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for i := range list {
		out = append(out, toAppointmentResponse(&list[i]))
	}
	return out
}

func toProfileResponse(p *directory.Profile) *ProfileResponse {
	if p == nil {
		return nil
	}
	return &ProfileResponse{ID: p.ID, Name: p.Name, Email: p.Email, Phone: p.Phone}
}

func toPaymentResponse(p *payment.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:                     p.ID,
		AppointmentID:          p.AppointmentID,
		TherapistID:            p.TherapistID,
		PatientID:              p.PatientID,
		Amount:                 p.Amount.StringFixed(2),
		Method:                 string(p.Method),
		CardLast4:              p.CardLast4,
		CardHolder:             p.CardHolder,
		AuthorizationRef:       p.AuthorizationRef,
		IsPendingPayment:       p.IsPendingPayment,
		Note:                   p.Note,
		AppointmentDate:        p.AppointmentDate.Format(appointment.DateLayout),
		AppointmentTime:        p.AppointmentTime.String(),
		AppointmentDescription: p.AppointmentDescription,
		CreatedAt:              p.CreatedAt,
		PaidAt:                 p.PaidAt,
	}
	if p.CashTendered.Valid {
		s := p.CashTendered.Decimal.StringFixed(2)
		resp.CashTendered = &s
	}
	if p.CashChange.Valid {
		s := p.CashChange.Decimal.StringFixed(2)
		resp.CashChange = &s
	}
	return resp
}

func toPaymentList(list []payment.Payment) []PaymentResponse {
	out := make([]PaymentResponse, 0, len(list))
	for i := range list {
		out = append(out, toPaymentResponse(&list[i]))
	}
	return out
}
