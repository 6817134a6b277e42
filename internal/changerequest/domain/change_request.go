package domain

import (
	"errors"
	"fmt"
	"time"
)

// Outcome reasons recorded when a request reaches a terminal status.
const (
	ReasonUserCancelled       = "user_cancelled"
	ReasonOTPAttemptsExceeded = "otp_attempts_exceeded"
	ReasonAdminRejected       = "admin_rejected"
	ReasonAdminApproved       = "admin_approved"
	ReasonTokenExpired        = "token_expired"
	ReasonOTPExpired          = "otp_expired"
)

// ErrIllegalTransition is returned by Transition for edges the state machine does not allow.
var ErrIllegalTransition = errors.New("illegal change request transition")

// RequestContext is the origin of the submission.
type RequestContext struct {
	IP        string
	UserAgent string
}

// ChangeRequest is one attempt to change a subject's protected attribute.
type ChangeRequest struct {
	ID              string
	SubjectID       string
	CurrentValue    string
	RequestedValue  string
	Status          Status
	TokenHash       string // SHA-256 of the bearer token; cleared once the request is finalized
	TokenExpiresAt  time.Time
	EmailVerifiedAt *time.Time
	Reason          string
	OutcomeReason   string
	Context         RequestContext
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Transition moves the request to the given status, recording outcome on terminal edges.
func (r *ChangeRequest) Transition(to Status, outcome string, at time.Time) error {
	if !CanTransition(r.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, r.Status, to)
	}
	r.Status = to
	r.UpdatedAt = at
	if IsTerminal(to) {
		r.OutcomeReason = outcome
		r.TokenHash = ""
	}
	return nil
}

// TokenExpired reports whether the confirmation link is no longer usable at now.
func (r *ChangeRequest) TokenExpired(now time.Time) bool {
	return now.After(r.TokenExpiresAt)
}
