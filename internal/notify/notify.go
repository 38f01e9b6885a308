// Package notify delivers best-effort email. Callers log failures and move on;
// nothing here is part of a transaction.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

var ErrNoRecipient = errors.New("notification has no recipient")

type Message struct {
	To      string
	Subject string
	HTML    string
}

// Dispatcher sends one message.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPDispatcher struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPDispatcher(host string, port int, user, password, from string) *SMTPDispatcher {
	return &SMTPDispatcher{
		dialer: gomail.NewDialer(host, port, user, password),
		from:   from,
	}
}

func (d *SMTPDispatcher) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}

	m := gomail.NewMessage()
	m.SetHeader("From", d.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	// gomail has no context support; the dial keeps running in the
	// background if ctx expires first.
	done := make(chan error, 1)
	go func() {
		done <- d.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send mail to %s: %w", msg.To, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send mail to %s: %w", msg.To, ctx.Err())
	}
}

// LogDispatcher only logs. Used when SMTP is not configured.
type LogDispatcher struct {
	log zerolog.Logger
}

func NewLogDispatcher(log zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Send(_ context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	d.log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("body_bytes", len(msg.HTML)).
		Msg("email not sent, smtp disabled")
	return nil
}
