package sms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"attribute-change-control/backend/internal/notify"
)

func TestNewSMSLocalClient_Defaults(t *testing.T) {
	client := NewSMSLocalClient("api-key", "", "")
	if client.BaseURL != "https://www.smslocal.com/dev/bulkV2" {
		t.Errorf("BaseURL = %q, want default", client.BaseURL)
	}
	if client.HTTPClient == nil || client.HTTPClient.Timeout != defaultTimeout {
		t.Fatalf("HTTPClient = %+v", client.HTTPClient)
	}
	if c := NewSMSLocalClient("k", "https://custom.sms.local/api", "ACC"); c.BaseURL != "https://custom.sms.local/api" || c.Sender != "ACC" {
		t.Errorf("custom client = %+v", c)
	}
}

func TestSend_OTPCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if r.Header.Get("Authorization") != "test-api-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Decode body: %v", err)
		}
		if body["route"] != "otp" || body["numbers"] != "15551234567" || body["variables"] != "042917" {
			t.Errorf("body = %v", body)
		}
		if body["sender_id"] != "ACC" {
			t.Errorf("sender_id = %v", body["sender_id"])
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"success"}`))
	}))
	defer server.Close()

	client := NewSMSLocalClient("test-api-key", server.URL, "ACC")
	err := client.Send(context.Background(), "+1 (555) 123-4567", notify.TemplateOTPCode, map[string]string{"code": "042917"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
}

func TestSend_WrongTemplate(t *testing.T) {
	client := NewSMSLocalClient("k", "", "")
	err := client.Send(context.Background(), "123", notify.TemplateConfirmLink, nil)
	if !errors.Is(err, notify.ErrUnknownTemplate) {
		t.Errorf("err = %v, want ErrUnknownTemplate", err)
	}
}

func TestSendOTP_MissingAPIKey(t *testing.T) {
	err := NewSMSLocalClient("", "", "").SendOTP(context.Background(), "1234567890", "123456")
	if err == nil || !strings.Contains(err.Error(), "API key not configured") {
		t.Errorf("err = %v", err)
	}
}

func TestSendOTP_NoDigits(t *testing.T) {
	if err := NewSMSLocalClient("k", "", "").SendOTP(context.Background(), "n/a", "123456"); err == nil {
		t.Error("expected error for phone without digits")
	}
}

func TestSendOTP_Non200Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid request"}`))
	}))
	defer server.Close()

	err := NewSMSLocalClient("k", server.URL, "").SendOTP(context.Background(), "1234567890", "123456")
	if err == nil || !strings.Contains(err.Error(), "status=400") {
		t.Errorf("err = %v, want status=400", err)
	}
}

func TestSendOTP_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewSMSLocalClient("k", server.URL, "").SendOTP(ctx, "1234567890", "123456"); err == nil {
		t.Error("expected error for cancelled context")
	}
}
