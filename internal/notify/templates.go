package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

type Kind string

const (
	KindPaymentRequested Kind = "payment_requested"
	KindPaymentReceipt   Kind = "payment_receipt"
	KindPaymentConfirmed Kind = "payment_confirmed"
	KindPaymentReminder  Kind = "payment_reminder"
)

// PaymentData fills every payment template.
type PaymentData struct {
	RecipientName    string
	PatientName      string
	TherapistName    string
	PaymentID        string
	Amount           string
	Method           string
	CashTendered     string
	CashChange       string
	CardLast4        string
	AuthorizationRef string
	Date             string
	Time             string
	Description      string
}

type mailTemplate struct {
	subject string
	body    *template.Template
}

const layout = `<!DOCTYPE html><html><body style="font-family:sans-serif">{{template "content" .}}</body></html>`

func mustTemplate(name, content string) *template.Template {
	t := template.Must(template.New(name).Parse(layout))
	template.Must(t.New("content").Parse(content))
	return t
}

var templates = map[Kind]mailTemplate{
	KindPaymentRequested: {
		subject: "Payment requested for your appointment on %s",
		body: mustTemplate("requested", `
<p>Hello {{.RecipientName}},</p>
<p>{{.TherapistName}} has requested a card payment of <strong>{{.Amount}}</strong>
for your appointment on {{.Date}} at {{.Time}}.</p>
{{if .Description}}<p>{{.Description}}</p>{{end}}
<p>Please confirm the payment from your patient portal. Reference: {{.PaymentID}}</p>`),
	},
	KindPaymentReminder: {
		subject: "Reminder: payment pending for your appointment on %s",
		body: mustTemplate("reminder", `
<p>Hello {{.RecipientName}},</p>
<p>The card payment of <strong>{{.Amount}}</strong> for your appointment on {{.Date}} at {{.Time}}
is still awaiting your confirmation.</p>
<p>Reference: {{.PaymentID}}</p>`),
	},
	KindPaymentReceipt: {
		subject: "Payment receipt for your appointment on %s",
		body: mustTemplate("receipt", `
<p>Hello {{.RecipientName}},</p>
<p>We received your payment of <strong>{{.Amount}}</strong> ({{.Method}}) for the appointment
on {{.Date}} at {{.Time}} with {{.TherapistName}}.</p>
{{if .CashTendered}}<p>Amount tendered: {{.CashTendered}}. Change: {{.CashChange}}.</p>{{end}}
{{if .CardLast4}}<p>Card ending in {{.CardLast4}}, authorization {{.AuthorizationRef}}.</p>{{end}}
<p>Reference: {{.PaymentID}}</p>`),
	},
	KindPaymentConfirmed: {
		subject: "Payment confirmed by %s",
		body: mustTemplate("confirmed", `
<p>Hello {{.RecipientName}},</p>
<p>{{.PatientName}} confirmed the card payment of <strong>{{.Amount}}</strong>
for the appointment on {{.Date}} at {{.Time}}.</p>
<p>Card ending in {{.CardLast4}}, authorization {{.AuthorizationRef}}. Reference: {{.PaymentID}}</p>`),
	},
}

// Render builds the message for kind addressed to `to`.
func Render(kind Kind, to string, data PaymentData) (Message, error) {
	t, ok := templates[kind]
	if !ok {
		return Message{}, fmt.Errorf("unknown template %q", kind)
	}

	subjectArg := data.Date
	if kind == KindPaymentConfirmed {
		subjectArg = data.PatientName
	}

	var buf bytes.Buffer
	if err := t.body.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", kind, err)
	}

	return Message{
		To:      to,
		Subject: fmt.Sprintf(t.subject, subjectArg),
		HTML:    buf.String(),
	}, nil
}
