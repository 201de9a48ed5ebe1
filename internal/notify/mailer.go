// Package notify delivers outbound email: a Mailer transport interface
// plus an async pipeline (queue, workers, rate limit, retry) in front of it.
// Delivery is best-effort by design; nothing in this package ever fails a
// job that has already been persisted.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"lexflow/pkg/logx"
)

// Message is one outbound email.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Mailer sends a single message synchronously.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig configures the SMTP transport. Host left empty disables it.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer delivers through a plain SMTP relay.
type SMTPMailer struct {
	cfg SMTPConfig
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.Host) == "" || cfg.Port <= 0 {
		return nil, fmt.Errorf("smtp host and port are required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	return &SMTPMailer{cfg: cfg}, nil
}

func (m *SMTPMailer) Send(_ context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("no recipients")
	}
	for _, to := range msg.To {
		if !strings.Contains(to, "@") {
			return fmt.Errorf("invalid recipient address %q", to)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	if err := smtp.SendMail(addr, auth, m.cfg.From, msg.To, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send to %s: %w", strings.Join(msg.To, ","), err)
	}
	return nil
}

// LogMailer writes messages to the log instead of the wire. Default when no
// SMTP relay is configured.
type LogMailer struct {
	Log logx.Logger
}

func (m LogMailer) Send(_ context.Context, msg Message) error {
	m.Log.Info("email (log only)",
		logx.String("to", strings.Join(msg.To, ",")),
		logx.String("subject", msg.Subject),
		logx.Int("body_len", len(msg.Body)))
	return nil
}
