package config

import (
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8080")
	}
	if cfg.MaxChanges != 2 {
		t.Errorf("MaxChanges = %d, want 2", cfg.MaxChanges)
	}
	if cfg.AttributeName != "gender" {
		t.Errorf("AttributeName = %q, want gender", cfg.AttributeName)
	}
	if cfg.CooldownWindow() != 4380*time.Hour {
		t.Errorf("CooldownWindow = %v, want 4380h", cfg.CooldownWindow())
	}
	if cfg.OTPLength != 6 || cfg.OTPMaxAttempts != 5 || cfg.OTPMaxResends != 3 {
		t.Errorf("OTP defaults = %d/%d/%d, want 6/5/3", cfg.OTPLength, cfg.OTPMaxAttempts, cfg.OTPMaxResends)
	}
	if cfg.OTPExpiry() != 15*time.Minute {
		t.Errorf("OTPExpiry = %v, want 15m", cfg.OTPExpiry())
	}
	if cfg.RejectionCooldownPolicy != RejectionCooldownOTPExhausted {
		t.Errorf("RejectionCooldownPolicy = %q, want %q", cfg.RejectionCooldownPolicy, RejectionCooldownOTPExhausted)
	}
	if cfg.SMSLocalBaseURL != "https://app.smslocal.in/api/smsapi" {
		t.Errorf("SMSLocalBaseURL = %q, want default", cfg.SMSLocalBaseURL)
	}
	if cfg.OTPReturnToClient {
		t.Error("OTPReturnToClient should default to false")
	}
	if cfg.KafkaGroupID != "acc-event-shipper" {
		t.Errorf("KafkaGroupID = %q, want acc-event-shipper", cfg.KafkaGroupID)
	}
	if cfg.IsProduction() {
		t.Error("IsProduction should be false by default")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("MAX_CHANGES", "3")
	os.Setenv("ALLOWED_VALUES", " Male, FEMALE ,,other ")
	os.Setenv("REQUIRE_PHONE_FOR_OTP", "true")
	os.Setenv("ATTRIBUTE_NAME", "pronouns")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if cfg.MaxChanges != 3 {
		t.Errorf("MaxChanges = %d, want 3", cfg.MaxChanges)
	}
	want := []string{"male", "female", "other"}
	if got := cfg.AllowedValues(); !reflect.DeepEqual(got, want) {
		t.Errorf("AllowedValues = %v, want %v", got, want)
	}
	if !cfg.RequirePhoneForOTP {
		t.Error("RequirePhoneForOTP should be true")
	}
	if cfg.AttributeName != "pronouns" {
		t.Errorf("AttributeName = %q, want pronouns", cfg.AttributeName)
	}
}

func TestLoad_Validation(t *testing.T) {
	testCases := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"max changes zero", map[string]string{"MAX_CHANGES": "0"}, "MAX_CHANGES"},
		{"single allowed value", map[string]string{"ALLOWED_VALUES": "male"}, "ALLOWED_VALUES"},
		{"blank attribute name", map[string]string{"ATTRIBUTE_NAME": "  "}, "ATTRIBUTE_NAME"},
		{"otp too short", map[string]string{"OTP_LENGTH": "3"}, "OTP_LENGTH"},
		{"otp too long", map[string]string{"OTP_LENGTH": "11"}, "OTP_LENGTH"},
		{"negative resends", map[string]string{"OTP_MAX_RESENDS": "-1"}, "OTP_MAX_RESENDS"},
		{"hash cost too low", map[string]string{"OTP_HASH_COST": "3"}, "OTP_HASH_COST"},
		{"unknown cooldown policy", map[string]string{"REJECTION_COOLDOWN_POLICY": "sometimes"}, "REJECTION_COOLDOWN_POLICY"},
		{"production without database", map[string]string{"APP_ENV": "production"}, "DATABASE_URL"},
		{"production attempts above limit", map[string]string{
			"APP_ENV": "production", "DATABASE_URL": "postgres://x", "OTP_MAX_ATTEMPTS": "10",
		}, "OTP_MAX_ATTEMPTS"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tc.env {
				os.Setenv(k, v)
			}
			cfg, err := Load()
			if err == nil {
				t.Fatal("Load should return error")
			}
			if cfg != nil {
				t.Error("Load should return nil config on error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %q, want mention of %s", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestLoad_OTPReturnToClientProduction(t *testing.T) {
	os.Clearenv()
	os.Setenv("OTP_RETURN_TO_CLIENT", "true")
	os.Setenv("APP_ENV", "production")
	os.Setenv("DATABASE_URL", "postgres://x")

	cfg, err := Load()
	if err == nil {
		t.Fatal("Load should return error when OTP_RETURN_TO_CLIENT=true and APP_ENV=production")
	}
	if cfg != nil {
		t.Error("Load should return nil config on error")
	}
	if err.Error() != "config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production" {
		t.Errorf("error = %q, want production message", err.Error())
	}
}

func TestLoad_OTPReturnToClientDevelopment(t *testing.T) {
	os.Clearenv()
	os.Setenv("OTP_RETURN_TO_CLIENT", "true")
	os.Setenv("APP_ENV", "development")
	os.Setenv("OTP_MAX_ATTEMPTS", "10")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.OTPReturnToClient {
		t.Error("OTPReturnToClient should be true")
	}
	if cfg.OTPMaxAttempts != 10 {
		t.Errorf("OTPMaxAttempts = %d, want 10 outside production", cfg.OTPMaxAttempts)
	}
}

func TestDurations(t *testing.T) {
	testCases := []struct {
		name string
		env  string
		raw  string
		get  func(*Config) time.Duration
		want time.Duration
	}{
		{"token ttl valid", "TOKEN_TTL", "30m", (*Config).TokenTTL, 30 * time.Minute},
		{"token ttl invalid", "TOKEN_TTL", "invalid", (*Config).TokenTTL, 24 * time.Hour},
		{"token ttl zero", "TOKEN_TTL", "0", (*Config).TokenTTL, 24 * time.Hour},
		{"token ttl negative", "TOKEN_TTL", "-5m", (*Config).TokenTTL, 24 * time.Hour},
		{"cooldown valid", "COOLDOWN_WINDOW", "720h", (*Config).CooldownWindow, 720 * time.Hour},
		{"rejection cooldown invalid", "REJECTION_COOLDOWN", "soon", (*Config).RejectionCooldown, 24 * time.Hour},
		{"alert sla valid", "ALERT_REVIEW_SLA", "48h", (*Config).AlertReviewSLA, 48 * time.Hour},
		{"sweep interval negative", "SWEEP_INTERVAL", "-1h", (*Config).SweepInterval, time.Minute},
		{"submit window valid", "SUBMIT_RATE_WINDOW", "10m", (*Config).SubmitRateWindow, 10 * time.Minute},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			os.Setenv(tc.env, tc.raw)
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got := tc.get(cfg); got != tc.want {
				t.Errorf("%s = %v, want %v", tc.env, got, tc.want)
			}
		})
	}
}

func TestEventsKafkaBrokersList(t *testing.T) {
	var nilCfg *Config
	if nilCfg.EventsKafkaBrokersList() != nil {
		t.Error("nil config should return nil brokers")
	}
	cfg := &Config{EventsKafkaBrokers: "kafka-1:9092, kafka-2:9092,"}
	want := []string{"kafka-1:9092", "kafka-2:9092"}
	if got := cfg.EventsKafkaBrokersList(); !reflect.DeepEqual(got, want) {
		t.Errorf("EventsKafkaBrokersList = %v, want %v", got, want)
	}
}
