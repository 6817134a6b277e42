package eligibility

import (
	"errors"
	"testing"
	"time"
)

var policy = Policy{MaxChanges: 2, Cooldown: 180 * 24 * time.Hour}

func TestPolicy_Check(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-24 * time.Hour)
	old := now.Add(-200 * 24 * time.Hour)
	boundary := now.Add(-policy.Cooldown)

	testCases := []struct {
		name       string
		ledger     Ledger
		eligible   bool
		reason     Reason
		wantNextAt bool
	}{
		{"fresh subject", Ledger{}, true, "", false},
		{"one change long ago", Ledger{ChangeCount: 1, LastChangeAt: &old}, true, "", false},
		{"cooldown exactly elapsed", Ledger{ChangeCount: 1, LastChangeAt: &boundary}, true, "", false},
		{"within cooldown", Ledger{ChangeCount: 1, LastChangeAt: &recent}, false, ReasonCooldown, true},
		{"cap reached", Ledger{ChangeCount: 2, LastChangeAt: &old}, false, ReasonCapReached, false},
		{"cap reached within cooldown", Ledger{ChangeCount: 2, LastChangeAt: &recent}, false, ReasonCapReached, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			d := policy.Check(tc.ledger, now)
			if d.Eligible != tc.eligible {
				t.Errorf("Eligible = %v, want %v", d.Eligible, tc.eligible)
			}
			if d.Reason != tc.reason {
				t.Errorf("Reason = %q, want %q", d.Reason, tc.reason)
			}
			if (d.NextAllowedAt != nil) != tc.wantNextAt {
				t.Errorf("NextAllowedAt = %v, want set=%v", d.NextAllowedAt, tc.wantNextAt)
			}
		})
	}
}

func TestPolicy_Check_NextAllowedAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	last := now.Add(-time.Hour)
	d := policy.Check(Ledger{ChangeCount: 1, LastChangeAt: &last}, now)
	want := last.Add(policy.Cooldown)
	if d.NextAllowedAt == nil || !d.NextAllowedAt.Equal(want) {
		t.Errorf("NextAllowedAt = %v, want %v", d.NextAllowedAt, want)
	}
}

func TestPolicy_Apply(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l, err := policy.Apply(Ledger{}, now)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if l.ChangeCount != 1 {
		t.Errorf("ChangeCount = %d, want 1", l.ChangeCount)
	}
	if l.LastChangeAt == nil || !l.LastChangeAt.Equal(now) {
		t.Errorf("LastChangeAt = %v, want %v", l.LastChangeAt, now)
	}

	full := Ledger{ChangeCount: 2}
	got, err := policy.Apply(full, now)
	if !errors.Is(err, ErrCapReached) {
		t.Fatalf("Apply at cap: err = %v, want ErrCapReached", err)
	}
	if got.ChangeCount != 2 || got.LastChangeAt != nil {
		t.Errorf("Apply at cap should return ledger unchanged, got %+v", got)
	}
}

func TestRejectionCooldown_Check(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rejectedAt := now.Add(-time.Hour)
	window := 24 * time.Hour

	testCases := []struct {
		name         string
		policy       RejectionPolicy
		otpExhausted bool
		rejectedAt   time.Time
		eligible     bool
	}{
		{"none ignores otp exhaustion", RejectionCooldownNone, true, rejectedAt, true},
		{"otp_exhausted blocks exhaustion", RejectionCooldownOTPExhausted, true, rejectedAt, false},
		{"otp_exhausted ignores admin rejection", RejectionCooldownOTPExhausted, false, rejectedAt, true},
		{"all blocks admin rejection", RejectionCooldownAll, false, rejectedAt, false},
		{"all after window", RejectionCooldownAll, false, now.Add(-window), true},
		{"unknown policy", RejectionPolicy("bogus"), true, rejectedAt, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rc := RejectionCooldown{Policy: tc.policy, Window: window}
			d := rc.Check(tc.rejectedAt, tc.otpExhausted, now)
			if d.Eligible != tc.eligible {
				t.Errorf("Eligible = %v, want %v", d.Eligible, tc.eligible)
			}
			if !d.Eligible {
				if d.Reason != ReasonRejectionCooldown {
					t.Errorf("Reason = %q, want %q", d.Reason, ReasonRejectionCooldown)
				}
				if d.NextAllowedAt == nil || !d.NextAllowedAt.Equal(tc.rejectedAt.Add(window)) {
					t.Errorf("NextAllowedAt = %v, want %v", d.NextAllowedAt, tc.rejectedAt.Add(window))
				}
			}
		})
	}
}
