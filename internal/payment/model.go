package payment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/physio-appointments/internal/appointment"
	"github.com/hackgods/physio-appointments/internal/tokens"
)

type Method string

const (
	MethodCash Method = "cash"
	MethodCard Method = "card"
)

var methodTokens = map[string]Method{
	"cash":             MethodCash,
	"efectivo":         MethodCash,
	"card":             MethodCard,
	"creditcard":       MethodCard,
	"tarjeta":          MethodCard,
	"tarjetacredito":   MethodCard,
	"tarjetadecredito": MethodCard,
}

func ParseMethod(raw string) (Method, error) {
	m, ok := tokens.Lookup(raw, methodTokens)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidMethod, raw)
	}
	return m, nil
}

type Payment struct {
	ID            uuid.UUID
	AppointmentID uuid.UUID
	TherapistID   uuid.UUID
	PatientID     uuid.UUID

	Amount       decimal.Decimal
	Method       Method
	CashTendered decimal.NullDecimal
	CashChange   decimal.NullDecimal

	// Card authorization, empty until confirmed.
	CardLast4        string
	CardHolder       string
	AuthorizationRef string

	IsPendingPayment bool
	Note             string

	// Snapshot of the appointment at charge time.
	AppointmentDate        time.Time
	AppointmentTime        appointment.TimeOfDay
	AppointmentDescription string

	CreatedAt  time.Time
	PaidAt     *time.Time
	RemindedAt *time.Time
}

// Authorization carries the fields written once by Confirm.
type Authorization struct {
	CardLast4        string
	CardHolder       string
	AuthorizationRef string
	PaidAt           time.Time
}

// Settled reports whether the payment invariant holds for a non-pending row.
func (p *Payment) Settled() bool {
	if p.IsPendingPayment {
		return false
	}
	return p.Method == MethodCash || (p.CardLast4 != "" && p.AuthorizationRef != "")
}
