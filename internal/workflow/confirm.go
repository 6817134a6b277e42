package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	alertdomain "attribute-change-control/backend/internal/alert/domain"
	"attribute-change-control/backend/internal/audit"
	crdomain "attribute-change-control/backend/internal/changerequest/domain"
	"attribute-change-control/backend/internal/notify"
	"attribute-change-control/backend/internal/otp"
	otpdomain "attribute-change-control/backend/internal/otp/domain"
	"attribute-change-control/backend/internal/policy/engine"
	"attribute-change-control/backend/internal/security"
	"attribute-change-control/backend/internal/store"
	subjectdomain "attribute-change-control/backend/internal/subject/domain"
	"attribute-change-control/backend/internal/telemetry"
)

// Confirmation link actions.
const (
	ActionConfirm = "confirm"
	ActionReject  = "reject"
)

// Outcome is the state a request reached after an operation.
type Outcome struct {
	RequestID string
	Status    crdomain.Status
	// AlertID is set when the operation escalated the request to admin review.
	AlertID string
}

// Confirm consumes the confirmation link. reject cancels the request; confirm marks the email
// verified and opens an OTP challenge, or escalates straight to review when the subject has no
// verifiable phone.
func (s *Service) Confirm(ctx context.Context, token, action string) (out *Outcome, err error) {
	ctx, finish := s.startSpan(ctx, "Confirm")
	defer func() { finish(err) }()

	action = strings.ToLower(strings.TrimSpace(action))
	if action == "" {
		action = ActionConfirm
	}
	if action != ActionConfirm && action != ActionReject {
		return nil, validation("action must be confirm or reject")
	}
	claims, err := s.tokens.Validate(strings.TrimSpace(token), s.now())
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, newError(CodeTokenExpired, "confirmation link expired")
		}
		return nil, newError(CodeTokenInvalid, "confirmation link is not valid")
	}

	rec := s.newRecorder(ctx)
	err = s.store.RunInTx(ctx, func(r store.Repos) error {
		rec.reset()
		o, err := s.confirmTx(ctx, r, rec, token, claims, action)
		out = o
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, rec)
	return out, nil
}

func (s *Service) confirmTx(ctx context.Context, r store.Repos, rec *recorder, token string, claims *security.ChangeToken, action string) (*Outcome, error) {
	now := rec.now
	req, err := r.Requests.GetByTokenHashForUpdate(ctx, security.HashToken(token))
	if err != nil {
		return nil, fmt.Errorf("load request by token: %w", err)
	}
	if req == nil {
		// Finalized requests drop their token hash; the signed request ID still identifies them.
		prior, err := r.Requests.GetByIDForUpdate(ctx, claims.RequestID)
		if err != nil {
			return nil, fmt.Errorf("load request: %w", err)
		}
		if prior == nil || prior.SubjectID != claims.SubjectID {
			return nil, newError(CodeTokenInvalid, "confirmation link does not match a request")
		}
		if prior.Status == crdomain.StatusExpired {
			return nil, newError(CodeTokenExpired, "change request expired")
		}
		return nil, newError(CodeAlreadyVerified, "change request was already "+strings.ToLower(string(prior.Status)))
	}
	if req.ID != claims.RequestID || req.SubjectID != claims.SubjectID {
		return nil, newError(CodeTokenInvalid, "confirmation link does not match a request")
	}
	if req.Status != crdomain.StatusPending {
		return nil, newError(CodeAlreadyVerified, "change request was already confirmed")
	}
	if req.TokenExpired(now) {
		return nil, newError(CodeTokenExpired, "confirmation link expired")
	}

	subj, err := r.Subjects.GetByID(ctx, req.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("load subject: %w", err)
	}
	if subj == nil {
		return nil, newError(CodeSubjectNotFound, "subject not found")
	}

	if action == ActionReject {
		if err := s.finishTx(ctx, r, rec, req, subj, crdomain.StatusRejected, crdomain.ReasonUserCancelled, subj.ID, audit.ActionCancelled); err != nil {
			return nil, err
		}
		return &Outcome{RequestID: req.ID, Status: req.Status}, nil
	}

	verifiedAt := now
	req.EmailVerifiedAt = &verifiedAt
	if err := rec.audit(ctx, r, subj.ID, subj.ID, audit.ActionConfirmed, audit.ResourceChangeRequest, map[string]string{"request_id": req.ID}); err != nil {
		return nil, fmt.Errorf("audit confirm: %w", err)
	}

	if subj.HasVerifiablePhone() {
		if err := s.openChallengeTx(ctx, r, rec, req, subj); err != nil {
			return nil, err
		}
		return &Outcome{RequestID: req.ID, Status: req.Status}, nil
	}
	if s.cfg.RequirePhoneForOTP {
		return nil, notEligible("a verified phone number is required to confirm this change", nil)
	}
	alert, err := s.escalateTx(ctx, r, rec, req, subj, false)
	if err != nil {
		return nil, err
	}
	return &Outcome{RequestID: req.ID, Status: req.Status, AlertID: alert.ID}, nil
}

// openChallengeTx creates the request's OTP challenge and moves it to OTP_PENDING. The code is
// sent after commit.
func (s *Service) openChallengeTx(ctx context.Context, r store.Repos, rec *recorder, req *crdomain.ChangeRequest, subj *subjectdomain.Subject) error {
	now := rec.now
	code, hash, err := s.newCode()
	if err != nil {
		return err
	}
	ch := &otpdomain.Challenge{
		ID:          uuid.New().String(),
		RequestID:   req.ID,
		CodeHash:    hash,
		ExpiresAt:   now.Add(s.cfg.OTPExpiry),
		MaxAttempts: s.cfg.OTPMaxAttempts,
		CreatedAt:   now,
	}
	if err := r.Challenges.Create(ctx, ch); err != nil {
		return fmt.Errorf("create challenge: %w", err)
	}
	if err := s.transitionTx(ctx, r, rec, req, crdomain.StatusOTPPending, ""); err != nil {
		return err
	}
	if err := rec.audit(ctx, r, subj.ID, audit.SystemActor, audit.ActionOTPIssued, audit.ResourceChangeRequest, map[string]string{"request_id": req.ID}); err != nil {
		return fmt.Errorf("audit otp issue: %w", err)
	}
	rec.notify(subj.Phone, notify.TemplateOTPCode, s.codeData(subj, code))
	return nil
}

func (s *Service) newCode() (code, hash string, err error) {
	code, err = otp.GenerateCode(s.cfg.OTPLength)
	if err != nil {
		return "", "", fmt.Errorf("generate otp: %w", err)
	}
	hash, err = s.hasher.Hash(code)
	if err != nil {
		return "", "", fmt.Errorf("hash otp: %w", err)
	}
	return code, hash, nil
}

func (s *Service) codeData(subj *subjectdomain.Subject, code string) map[string]string {
	return map[string]string{
		"subject_id":     subj.ID,
		"code":           code,
		"expiry_minutes": strconv.Itoa(int(s.cfg.OTPExpiry.Minutes())),
	}
}

// escalateTx raises the admin alert for req and moves it to ADMIN_REVIEW.
func (s *Service) escalateTx(ctx context.Context, r store.Repos, rec *recorder, req *crdomain.ChangeRequest, subj *subjectdomain.Subject, otpVerified bool) (*alertdomain.Alert, error) {
	now := rec.now
	in := engine.EscalationInput{
		SubjectID:          subj.ID,
		SubjectChangeCount: subj.ChangeCount,
		HasVerifiablePhone: subj.HasVerifiablePhone(),
		CurrentValue:       req.CurrentValue,
		RequestedValue:     req.RequestedValue,
		OTPVerified:        otpVerified,
	}
	route := engine.DefaultResult(in)
	if s.escalation != nil {
		if res, err := s.escalation.EvaluateEscalation(ctx, in); err == nil && res.Category != "" {
			route = res
		}
	}
	alert := &alertdomain.Alert{
		ID:        uuid.New().String(),
		SubjectID: subj.ID,
		RequestID: req.ID,
		Category:  route.Category,
		Priority:  route.Priority,
		Status:    alertdomain.StatusPending,
		ExpiresAt: now.Add(s.cfg.AlertReviewSLA),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.Alerts.Create(ctx, alert); err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	if err := s.transitionTx(ctx, r, rec, req, crdomain.StatusAdminReview, ""); err != nil {
		return nil, err
	}
	if err := rec.audit(ctx, r, subj.ID, audit.SystemActor, audit.ActionEscalated, audit.ResourceAlert, map[string]string{
		"request_id":   req.ID,
		"alert_id":     alert.ID,
		"priority":     string(alert.Priority),
		"otp_verified": strconv.FormatBool(otpVerified),
	}); err != nil {
		return nil, fmt.Errorf("audit escalation: %w", err)
	}
	rec.event(telemetry.Event{
		EventType: telemetry.EventAlertCreated,
		RequestID: req.ID,
		SubjectID: subj.ID,
		AlertID:   alert.ID,
	})
	return alert, nil
}

// transitionTx applies one state machine edge to req and persists it.
func (s *Service) transitionTx(ctx context.Context, r store.Repos, rec *recorder, req *crdomain.ChangeRequest, to crdomain.Status, outcome string) error {
	from := req.Status
	if err := req.Transition(to, outcome, rec.now); err != nil {
		return err
	}
	if err := r.Requests.Update(ctx, req); err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	rec.event(telemetry.Event{
		EventType:  telemetry.EventRequestTransition,
		RequestID:  req.ID,
		SubjectID:  req.SubjectID,
		FromStatus: string(from),
		ToStatus:   string(to),
		Reason:     outcome,
	})
	return nil
}

// finishTx moves req to a terminal status, drops its challenge, audits the outcome and queues the
// outcome notice for the subject.
func (s *Service) finishTx(ctx context.Context, r store.Repos, rec *recorder, req *crdomain.ChangeRequest, subj *subjectdomain.Subject, to crdomain.Status, outcome, actorID, action string) error {
	if err := s.transitionTx(ctx, r, rec, req, to, outcome); err != nil {
		return err
	}
	if err := r.Challenges.DeleteByRequestID(ctx, req.ID); err != nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	if err := rec.audit(ctx, r, req.SubjectID, actorID, action, audit.ResourceChangeRequest, map[string]string{
		"request_id": req.ID,
		"reason":     outcome,
	}); err != nil {
		return fmt.Errorf("audit %s: %w", action, err)
	}
	if subj != nil {
		rec.notify(subj.Email, notify.TemplateRequestOutcome, map[string]string{
			"subject_id":      subj.ID,
			"requested_value": req.RequestedValue,
			"outcome":         string(to),
		})
	}
	return nil
}
