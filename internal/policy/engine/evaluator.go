package engine

import (
	"context"

	alertdomain "attribute-change-control/backend/internal/alert/domain"
)

// EscalationInput describes a change request at the moment it is escalated to a reviewer.
type EscalationInput struct {
	SubjectID          string
	SubjectChangeCount int
	HasVerifiablePhone bool
	CurrentValue       string
	RequestedValue     string
	OTPVerified        bool
}

// EscalationResult is the routing decision for the admin alert.
type EscalationResult struct {
	Category string
	Priority alertdomain.Priority
}

// Evaluator decides how an escalated change request is categorized and prioritized.
type Evaluator interface {
	// EvaluateEscalation never blocks escalation: on failure it returns a usable default result
	// together with the error.
	EvaluateEscalation(ctx context.Context, in EscalationInput) (EscalationResult, error)
}
