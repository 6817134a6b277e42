// Package notify delivers confirmation links, one-time codes, and outcome notices to subjects.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

// Template IDs understood by every channel.
const (
	TemplateConfirmLink    = "confirm_link"
	TemplateOTPCode        = "otp_code"
	TemplateRequestOutcome = "request_outcome"
)

var (
	// ErrUnavailable is returned when no channel is configured for a template.
	ErrUnavailable = errors.New("notification channel unavailable")
	// ErrUnknownTemplate is returned for template IDs this package does not render.
	ErrUnknownTemplate = errors.New("unknown notification template")
)

// Notifier sends one rendered message. Implementations must not log codes or links.
type Notifier interface {
	Send(ctx context.Context, recipient, templateID string, data map[string]string) error
}

// Router dispatches links and outcomes to Email and codes to SMS. Capture, when set, receives a
// copy of every message first (dev outbox); its failures are logged only.
type Router struct {
	Email   Notifier
	SMS     Notifier
	Capture Notifier
}

func (r *Router) Send(ctx context.Context, recipient, templateID string, data map[string]string) error {
	var ch Notifier
	switch templateID {
	case TemplateConfirmLink, TemplateRequestOutcome:
		ch = r.Email
	case TemplateOTPCode:
		ch = r.SMS
	default:
		return fmt.Errorf("%w: %s", ErrUnknownTemplate, templateID)
	}
	if r.Capture != nil {
		if err := r.Capture.Send(ctx, recipient, templateID, data); err != nil {
			log.Printf("notify: capture %s failed: %v", templateID, err)
		}
	}
	if ch == nil {
		return fmt.Errorf("%w: %s", ErrUnavailable, templateID)
	}
	return ch.Send(ctx, recipient, templateID, data)
}

// Render produces the subject line and plain-text body for templateID.
func Render(templateID string, data map[string]string) (subject, body string, err error) {
	switch templateID {
	case TemplateConfirmLink:
		return "Confirm your profile change",
			fmt.Sprintf("A change of your %s to %q was requested.\n\nConfirm: %s\nCancel: %s\n\nThe link expires at %s.\n",
				orDefault(data["attribute"], "profile"), data["requested_value"],
				data["confirm_url"], data["reject_url"], data["expires_at"]), nil
	case TemplateOTPCode:
		return "Your verification code",
			fmt.Sprintf("Your verification code is %s. It expires in %s minutes.", data["code"], orDefault(data["expiry_minutes"], "15")), nil
	case TemplateRequestOutcome:
		return "Your profile change request",
			fmt.Sprintf("Your request to change your profile to %q was %s.\n", data["requested_value"], strings.ToLower(data["outcome"])), nil
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnknownTemplate, templateID)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
