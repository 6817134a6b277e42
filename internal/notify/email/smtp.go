// Package email sends notification mail over SMTP.
package email

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"attribute-change-control/backend/internal/notify"
)

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer renders notify templates and sends them as plain-text mail.
type SMTPMailer struct {
	Addr string
	From string
	Auth smtp.Auth
	send SendFunc
	now  func() time.Time
}

// NewSMTPMailer returns a mailer for addr (host:port). PLAIN auth is used when username is set.
func NewSMTPMailer(addr, username, password, from string) *SMTPMailer {
	m := &SMTPMailer{Addr: addr, From: from, send: smtp.SendMail, now: time.Now}
	if username != "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		m.Auth = smtp.PlainAuth("", username, password, host)
	}
	return m
}

// Send implements notify.Notifier.
func (m *SMTPMailer) Send(ctx context.Context, recipient, templateID string, data map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.Addr == "" || m.From == "" {
		return fmt.Errorf("email: %w: smtp not configured", notify.ErrUnavailable)
	}
	if recipient == "" || strings.ContainsAny(recipient, "\r\n") {
		return fmt.Errorf("email: invalid recipient")
	}
	subject, body, err := notify.Render(templateID, data)
	if err != nil {
		return fmt.Errorf("email: %w", err)
	}
	msg := buildMessage(m.From, recipient, subject, body, m.now())
	if err := m.send(m.Addr, m.Auth, m.From, []string{recipient}, msg); err != nil {
		return fmt.Errorf("email: %w: %v", notify.ErrUnavailable, err)
	}
	return nil
}

func buildMessage(from, to, subject, body string, at time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	fmt.Fprintf(&b, "Date: %s\r\n", at.UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
