package domain

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusOTPPending, true},
		{StatusPending, StatusAdminReview, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusExpired, true},
		{StatusPending, StatusApproved, false},
		{StatusOTPPending, StatusAdminReview, true},
		{StatusOTPPending, StatusRejected, true},
		{StatusOTPPending, StatusExpired, true},
		{StatusOTPPending, StatusPending, false},
		{StatusAdminReview, StatusApproved, true},
		{StatusAdminReview, StatusRejected, true},
		{StatusAdminReview, StatusExpired, false},
		{StatusApproved, StatusRejected, false},
		{StatusRejected, StatusPending, false},
		{StatusExpired, StatusPending, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminalStatusesHaveNoEdges(t *testing.T) {
	all := []Status{StatusPending, StatusOTPPending, StatusAdminReview, StatusApproved, StatusRejected, StatusExpired}
	for _, from := range all {
		if !IsTerminal(from) {
			continue
		}
		if IsActive(from) {
			t.Errorf("%s is both terminal and active", from)
		}
		for _, to := range all {
			if CanTransition(from, to) {
				t.Errorf("terminal %s has edge to %s", from, to)
			}
		}
	}
}

func TestTransition(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := &ChangeRequest{Status: StatusPending, TokenHash: "h"}

	if err := r.Transition(StatusOTPPending, "", now); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if r.TokenHash != "h" {
		t.Error("token hash cleared on non-terminal transition")
	}
	if err := r.Transition(StatusRejected, ReasonOTPAttemptsExceeded, now); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if r.OutcomeReason != ReasonOTPAttemptsExceeded {
		t.Errorf("OutcomeReason = %q", r.OutcomeReason)
	}
	if r.TokenHash != "" {
		t.Error("token hash not cleared on terminal transition")
	}
	err := r.Transition(StatusApproved, "", now)
	if !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Transition from terminal err = %v, want ErrIllegalTransition", err)
	}
	if r.Status != StatusRejected {
		t.Errorf("Status = %s after illegal transition", r.Status)
	}
}

func TestTokenExpired(t *testing.T) {
	exp := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	r := &ChangeRequest{TokenExpiresAt: exp}
	if r.TokenExpired(exp) {
		t.Error("expired at exact expiry instant")
	}
	if !r.TokenExpired(exp.Add(time.Second)) {
		t.Error("not expired after expiry")
	}
}
