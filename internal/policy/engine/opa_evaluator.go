package engine

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	alertdomain "attribute-change-control/backend/internal/alert/domain"
)

const policyQuery = "data.acc.escalation"

// Default Rego policy: skipping the possession factor is the riskiest path; repeat changers come next.
const defaultRegoPolicy = `package acc.escalation

default category := "protected_attribute_change"
default priority := "normal"

priority := "high" if {
	not input.request.otp_verified
}

priority := "medium" if {
	input.request.otp_verified
	input.subject.change_count > 0
}
`

// OPAEvaluator evaluates escalation policy using OPA Rego.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy (the default policy when empty) and returns an evaluator.
// Custom policies must declare package acc.escalation and define category and priority.
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if policy == "" {
		policy = defaultRegoPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"escalation.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile escalation policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(policyQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare escalation policy: %w", err)
	}
	return &OPAEvaluator{query: q}, nil
}

// LoadPolicyFile reads a Rego policy from path. An empty path returns "" so the default policy is used.
func LoadPolicyFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read escalation policy: %w", err)
	}
	return string(b), nil
}

// HealthCheck evaluates the compiled policy against a minimal input. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.evaluate(ctx, buildInput(EscalationInput{}))
	return err
}

// EvaluateEscalation evaluates the escalation policy for in.
func (e *OPAEvaluator) EvaluateEscalation(ctx context.Context, in EscalationInput) (EscalationResult, error) {
	res, err := e.evaluate(ctx, buildInput(in))
	if err != nil {
		log.Printf("policy: escalation evaluation failed for subject %s: %v, using defaults", in.SubjectID, err)
		return DefaultResult(in), err
	}
	return res, nil
}

// DefaultResult is the decision used when the policy cannot be evaluated.
func DefaultResult(in EscalationInput) EscalationResult {
	p := alertdomain.PriorityNormal
	if !in.OTPVerified {
		p = alertdomain.PriorityHigh
	}
	return EscalationResult{Category: alertdomain.CategoryProtectedAttributeChange, Priority: p}
}

func buildInput(in EscalationInput) map[string]interface{} {
	return map[string]interface{}{
		"subject": map[string]interface{}{
			"id":                   in.SubjectID,
			"change_count":         in.SubjectChangeCount,
			"has_verifiable_phone": in.HasVerifiablePhone,
		},
		"request": map[string]interface{}{
			"current_value":   in.CurrentValue,
			"requested_value": in.RequestedValue,
			"otp_verified":    in.OTPVerified,
		},
	}
}

func (e *OPAEvaluator) evaluate(ctx context.Context, input map[string]interface{}) (EscalationResult, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return EscalationResult{}, fmt.Errorf("eval escalation policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return EscalationResult{}, fmt.Errorf("policy query returned no result")
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return EscalationResult{}, fmt.Errorf("policy query returned %T, want object", rs[0].Expressions[0].Value)
	}
	category, _ := doc["category"].(string)
	priority, _ := doc["priority"].(string)
	if category == "" {
		return EscalationResult{}, fmt.Errorf("policy did not define category")
	}
	switch p := alertdomain.Priority(priority); p {
	case alertdomain.PriorityNormal, alertdomain.PriorityMedium, alertdomain.PriorityHigh:
		return EscalationResult{Category: category, Priority: p}, nil
	default:
		return EscalationResult{}, fmt.Errorf("policy returned unknown priority %q", priority)
	}
}
