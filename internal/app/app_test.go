package app

import (
	"context"
	"testing"
	"time"

	"attribute-change-control/backend/internal/config"
	"attribute-change-control/backend/internal/store/memory"
	"attribute-change-control/backend/internal/workflow"
)

func TestSeed_Idempotent(t *testing.T) {
	st := memory.New()
	subjects := DemoSubjects(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	n, err := Seed(context.Background(), st, subjects)
	if err != nil || n != len(subjects) {
		t.Fatalf("first seed = %d, %v", n, err)
	}
	n, err = Seed(context.Background(), st, subjects)
	if err != nil || n != 0 {
		t.Fatalf("second seed = %d, %v", n, err)
	}
	s, err := st.Reader().Subjects.GetByID(context.Background(), "demo-subject-phone")
	if err != nil || s == nil || !s.HasVerifiablePhone() {
		t.Errorf("phone subject = %+v, %v", s, err)
	}
}

func devConfig() *config.Config {
	return &config.Config{
		HTTPAddr:                ":0",
		PublicBaseURL:           "http://localhost:8080",
		TokenIssuer:             "acc-gate",
		TokenAudience:           "acc-confirm",
		MaxChanges:              2,
		AllowedValuesRaw:        "male,female,non_binary",
		OTPLength:               6,
		OTPExpiryMinutes:        15,
		OTPMaxAttempts:          5,
		OTPMaxResends:           3,
		OTPHashCost:             4,
		RejectionCooldownPolicy: config.RejectionCooldownOTPExhausted,
		SubmitRateLimit:         5,
		SweepBatchSize:          100,
		OTPReturnToClient:       true,
		ServiceName:             "acc-test",
	}
}

func TestBuild_InMemoryDev(t *testing.T) {
	a, err := Build(context.Background(), devConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer func() { _ = a.Close(context.Background()) }()
	if a.DB != nil {
		t.Error("no database expected without DATABASE_URL")
	}
	if a.Outbox == nil {
		t.Fatal("dev outbox expected with OTP_RETURN_TO_CLIENT")
	}

	res, err := a.Workflow.Submit(context.Background(), workflow.SubmitInput{SubjectID: "demo-subject-email", RequestedValue: "male"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if msgs, ok := a.Outbox.Get(context.Background(), "demo-subject-email"); !ok || msgs[0].TemplateID != "confirm_link" {
		t.Errorf("outbox = %+v", msgs)
	}
	if _, err := a.Workflow.Confirm(context.Background(), res.Token, "confirm"); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if err := a.Policy.HealthCheck(context.Background()); err != nil {
		t.Errorf("policy health: %v", err)
	}
}

func TestBuild_ProductionNeedsKeys(t *testing.T) {
	cfg := devConfig()
	cfg.OTPReturnToClient = false
	cfg.Env = "production"
	if _, err := Build(context.Background(), cfg); err == nil {
		t.Fatal("expected an error without token keys in production")
	}
}
