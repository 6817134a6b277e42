package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type recordingNotifier struct {
	templates []string
	err       error
}

func (r *recordingNotifier) Send(_ context.Context, _, templateID string, _ map[string]string) error {
	r.templates = append(r.templates, templateID)
	return r.err
}

func TestRouter_Dispatch(t *testing.T) {
	email, sms := &recordingNotifier{}, &recordingNotifier{}
	r := &Router{Email: email, SMS: sms}
	ctx := context.Background()
	for _, tmpl := range []string{TemplateConfirmLink, TemplateOTPCode, TemplateRequestOutcome} {
		if err := r.Send(ctx, "x", tmpl, nil); err != nil {
			t.Fatalf("Send(%s): %v", tmpl, err)
		}
	}
	if len(email.templates) != 2 || email.templates[0] != TemplateConfirmLink || email.templates[1] != TemplateRequestOutcome {
		t.Errorf("email got %v", email.templates)
	}
	if len(sms.templates) != 1 || sms.templates[0] != TemplateOTPCode {
		t.Errorf("sms got %v", sms.templates)
	}
}

func TestRouter_Unavailable(t *testing.T) {
	capture := &recordingNotifier{}
	r := &Router{Capture: capture}
	err := r.Send(context.Background(), "x", TemplateConfirmLink, nil)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
	if len(capture.templates) != 1 {
		t.Error("capture should still receive the message")
	}
}

func TestRouter_CaptureFailureIgnored(t *testing.T) {
	email := &recordingNotifier{}
	r := &Router{Email: email, Capture: &recordingNotifier{err: errors.New("full")}}
	if err := r.Send(context.Background(), "x", TemplateConfirmLink, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(email.templates) != 1 {
		t.Error("email not sent")
	}
}

func TestRouter_UnknownTemplate(t *testing.T) {
	r := &Router{Email: &recordingNotifier{}}
	if err := r.Send(context.Background(), "x", "newsletter", nil); !errors.Is(err, ErrUnknownTemplate) {
		t.Errorf("err = %v, want ErrUnknownTemplate", err)
	}
}

func TestRender(t *testing.T) {
	_, body, err := Render(TemplateConfirmLink, map[string]string{
		"requested_value": "female", "confirm_url": "https://x/confirm?token=t&action=confirm",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(body, "https://x/confirm?token=t&action=confirm") || !strings.Contains(body, `"female"`) {
		t.Errorf("body = %q", body)
	}
	_, body, _ = Render(TemplateOTPCode, map[string]string{"code": "123456"})
	if !strings.Contains(body, "123456") || !strings.Contains(body, "15 minutes") {
		t.Errorf("otp body = %q", body)
	}
	_, body, _ = Render(TemplateRequestOutcome, map[string]string{"requested_value": "female", "outcome": "APPROVED"})
	if !strings.Contains(body, "approved") {
		t.Errorf("outcome body = %q", body)
	}
	if _, _, err := Render("nope", nil); !errors.Is(err, ErrUnknownTemplate) {
		t.Errorf("Render unknown err = %v", err)
	}
}
