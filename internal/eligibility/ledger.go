// Package eligibility holds the rules that gate new change requests: the lifetime cap,
// the cooldown after an approved change, and the optional cooldown after a rejection.
package eligibility

import (
	"errors"
	"time"
)

// ErrCapReached is returned by Apply when the ledger is already at MaxChanges.
var ErrCapReached = errors.New("lifetime change cap reached")

// Ledger is the per-subject counter pair. It is written only when a request is approved.
type Ledger struct {
	ChangeCount  int
	LastChangeAt *time.Time
}

// Reason explains why a subject is not eligible.
type Reason string

const (
	ReasonCapReached        Reason = "lifetime_cap_reached"
	ReasonCooldown          Reason = "cooldown_active"
	ReasonRejectionCooldown Reason = "rejection_cooldown_active"
)

// Decision is the outcome of an eligibility check. NextAllowedAt is set when waiting helps.
type Decision struct {
	Eligible      bool
	Reason        Reason
	NextAllowedAt *time.Time
}

// Policy is the cap/cooldown pair from configuration.
type Policy struct {
	MaxChanges int
	Cooldown   time.Duration
}

// Check evaluates the cap first, then the cooldown since the last approved change.
func (p Policy) Check(l Ledger, now time.Time) Decision {
	if l.ChangeCount >= p.MaxChanges {
		return Decision{Reason: ReasonCapReached}
	}
	if l.LastChangeAt != nil {
		next := l.LastChangeAt.Add(p.Cooldown)
		if now.Before(next) {
			return Decision{Reason: ReasonCooldown, NextAllowedAt: &next}
		}
	}
	return Decision{Eligible: true}
}

// Apply returns the ledger after one approved change at now. It refuses to go past MaxChanges.
func (p Policy) Apply(l Ledger, now time.Time) (Ledger, error) {
	if l.ChangeCount >= p.MaxChanges {
		return l, ErrCapReached
	}
	at := now
	return Ledger{ChangeCount: l.ChangeCount + 1, LastChangeAt: &at}, nil
}

// RejectionPolicy selects which rejections start a rejection cooldown.
type RejectionPolicy string

const (
	RejectionCooldownNone         RejectionPolicy = "none"
	RejectionCooldownOTPExhausted RejectionPolicy = "otp_exhausted"
	RejectionCooldownAll          RejectionPolicy = "all"
)

// RejectionCooldown blocks new submissions for Window after a qualifying rejection.
// It reads request history only and never touches the Ledger.
type RejectionCooldown struct {
	Policy RejectionPolicy
	Window time.Duration
}

// Check evaluates the latest rejection. otpExhausted reports whether it was caused by running
// out of OTP attempts.
func (r RejectionCooldown) Check(rejectedAt time.Time, otpExhausted bool, now time.Time) Decision {
	switch r.Policy {
	case RejectionCooldownAll:
	case RejectionCooldownOTPExhausted:
		if !otpExhausted {
			return Decision{Eligible: true}
		}
	default:
		return Decision{Eligible: true}
	}
	next := rejectedAt.Add(r.Window)
	if now.Before(next) {
		return Decision{Reason: ReasonRejectionCooldown, NextAllowedAt: &next}
	}
	return Decision{Eligible: true}
}
