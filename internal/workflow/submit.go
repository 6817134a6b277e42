package workflow

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"attribute-change-control/backend/internal/audit"
	crdomain "attribute-change-control/backend/internal/changerequest/domain"
	"attribute-change-control/backend/internal/eligibility"
	"attribute-change-control/backend/internal/notify"
	"attribute-change-control/backend/internal/security"
	"attribute-change-control/backend/internal/store"
	"attribute-change-control/backend/internal/telemetry"
)

// SubmitInput is a subject's request to change the protected attribute.
type SubmitInput struct {
	SubjectID      string
	RequestedValue string
	Reason         string
	Context        crdomain.RequestContext
}

// SubmitResult carries the bearer token of the confirmation link. The token is never stored.
type SubmitResult struct {
	RequestID string
	Token     string
	ExpiresAt time.Time
}

// Submit creates a PENDING request and sends the confirmation link. The submission fails as a whole
// when the link cannot be handed to the notification channel.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (res *SubmitResult, err error) {
	ctx, finish := s.startSpan(ctx, "Submit", attribute.String("acc.subject_id", in.SubjectID))
	defer func() { finish(err) }()

	in.SubjectID = strings.TrimSpace(in.SubjectID)
	in.RequestedValue = normalizeValue(in.RequestedValue)
	in.Reason = strings.TrimSpace(in.Reason)
	if in.SubjectID == "" {
		return nil, validation("subject id is required")
	}
	if !s.allowed[in.RequestedValue] {
		return nil, validation(fmt.Sprintf("requested value %q is not allowed", in.RequestedValue))
	}
	if utf8.RuneCountInString(in.Reason) > maxReasonLength {
		return nil, validation(fmt.Sprintf("reason must be at most %d characters", maxReasonLength))
	}
	if err := s.checkSubmitRate(ctx, in); err != nil {
		return nil, err
	}

	rec := s.newRecorder(ctx)
	err = s.store.RunInTx(ctx, func(r store.Repos) error {
		rec.reset()
		out, err := s.submitTx(ctx, r, rec, in)
		res = out
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, rec)
	return res, nil
}

func (s *Service) submitTx(ctx context.Context, r store.Repos, rec *recorder, in SubmitInput) (*SubmitResult, error) {
	now := rec.now
	subj, err := r.Subjects.GetByIDForUpdate(ctx, in.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("load subject: %w", err)
	}
	if subj == nil {
		return nil, newError(CodeSubjectNotFound, "subject not found")
	}
	if normalizeValue(subj.Attribute) == in.RequestedValue {
		return nil, validation("requested value equals the current value")
	}

	active, err := r.Requests.GetActiveBySubjectForUpdate(ctx, subj.ID)
	if err != nil {
		return nil, fmt.Errorf("load active request: %w", err)
	}
	if active != nil {
		// A PENDING request whose link already lapsed is expired here instead of waiting for the sweeper.
		if active.Status != crdomain.StatusPending || !active.TokenExpired(now) {
			return nil, newError(CodeAlreadyPending, "a change request is already in progress")
		}
		if err := s.expireTx(ctx, r, rec, active, crdomain.ReasonTokenExpired); err != nil {
			return nil, err
		}
	}

	if d := s.cfg.Eligibility.Check(subj.Ledger(), now); !d.Eligible {
		return nil, notEligible(eligibilityMessage(d.Reason), d.NextAllowedAt)
	}
	last, err := r.Requests.LatestTerminalBySubject(ctx, subj.ID)
	if err != nil {
		return nil, fmt.Errorf("load latest request: %w", err)
	}
	if last != nil && last.Status == crdomain.StatusRejected && last.OutcomeReason != crdomain.ReasonUserCancelled {
		d := s.cfg.RejectionCooldown.Check(last.UpdatedAt, last.OutcomeReason == crdomain.ReasonOTPAttemptsExceeded, now)
		if !d.Eligible {
			return nil, notEligible(eligibilityMessage(d.Reason), d.NextAllowedAt)
		}
	}

	req := &crdomain.ChangeRequest{
		ID:             uuid.New().String(),
		SubjectID:      subj.ID,
		CurrentValue:   subj.Attribute,
		RequestedValue: in.RequestedValue,
		Status:         crdomain.StatusPending,
		Reason:         in.Reason,
		Context:        in.Context,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	token, expiresAt, err := s.tokens.Issue(security.ChangeToken{
		RequestID:      req.ID,
		SubjectID:      subj.ID,
		CurrentValue:   req.CurrentValue,
		RequestedValue: req.RequestedValue,
		OriginIP:       in.Context.IP,
		UserAgent:      in.Context.UserAgent,
	}, now)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	req.TokenHash = security.HashToken(token)
	req.TokenExpiresAt = expiresAt
	if err := r.Requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if err := rec.audit(ctx, r, subj.ID, subj.ID, audit.ActionSubmitted, audit.ResourceChangeRequest, map[string]string{
		"request_id":      req.ID,
		"requested_value": req.RequestedValue,
	}); err != nil {
		return nil, fmt.Errorf("audit submit: %w", err)
	}

	if err := s.notifier.Send(ctx, subj.Email, notify.TemplateConfirmLink, map[string]string{
		"subject_id":      subj.ID,
		"attribute":       s.cfg.AttributeName,
		"requested_value": req.RequestedValue,
		"confirm_url":     s.confirmURL(token, "confirm"),
		"reject_url":      s.confirmURL(token, "reject"),
		"expires_at":      expiresAt.Format(time.RFC3339),
	}); err != nil {
		return nil, &Error{Code: CodeNotificationUnavailable, Message: "confirmation link could not be sent", Err: err}
	}

	rec.event(telemetry.Event{
		EventType: telemetry.EventRequestSubmitted,
		RequestID: req.ID,
		SubjectID: subj.ID,
		ToStatus:  string(crdomain.StatusPending),
	})
	return &SubmitResult{RequestID: req.ID, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *Service) checkSubmitRate(ctx context.Context, in SubmitInput) error {
	if s.limiter == nil || s.cfg.SubmitRateLimit <= 0 {
		return nil
	}
	keys := []string{"submit:subject:" + in.SubjectID}
	if in.Context.IP != "" {
		keys = append(keys, "submit:ip:"+in.Context.IP)
	}
	for _, key := range keys {
		d := s.limiter.Allow(ctx, key, s.cfg.SubmitRateLimit)
		if !d.Allowed {
			reset := d.ResetAt
			return &Error{Code: CodeRateLimited, Message: "too many change requests", NextEligibleAt: &reset}
		}
	}
	return nil
}

func (s *Service) confirmURL(token, action string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("action", action)
	return strings.TrimSuffix(s.cfg.PublicBaseURL, "/") + "/v1/change-requests/confirm?" + q.Encode()
}

func eligibilityMessage(r eligibility.Reason) string {
	switch r {
	case eligibility.ReasonCapReached:
		return "lifetime change limit reached"
	case eligibility.ReasonCooldown:
		return "cooldown after the last change is still running"
	case eligibility.ReasonRejectionCooldown:
		return "cooldown after a rejected request is still running"
	default:
		return "not eligible"
	}
}

// GetRequest returns a request by ID.
func (s *Service) GetRequest(ctx context.Context, requestID string) (*crdomain.ChangeRequest, error) {
	if strings.TrimSpace(requestID) == "" {
		return nil, validation("request id is required")
	}
	req, err := s.store.Reader().Requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	if req == nil {
		return nil, newError(CodeRequestNotFound, "change request not found")
	}
	return req, nil
}
