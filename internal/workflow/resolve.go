package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	alertdomain "attribute-change-control/backend/internal/alert/domain"
	alertrepo "attribute-change-control/backend/internal/alert/repository"
	"attribute-change-control/backend/internal/audit"
	auditdomain "attribute-change-control/backend/internal/audit/domain"
	crdomain "attribute-change-control/backend/internal/changerequest/domain"
	"attribute-change-control/backend/internal/eligibility"
	"attribute-change-control/backend/internal/store"
	"attribute-change-control/backend/internal/telemetry"
)

// Reviewer decisions.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// ResolveInput is a reviewer's decision on an alert.
type ResolveInput struct {
	AlertID    string
	ReviewerID string
	Decision   string
	Notes      string
}

// Resolution is the state of the alert and its request after Resolve.
type Resolution struct {
	AlertID       string
	AlertStatus   alertdomain.Status
	RequestID     string
	RequestStatus crdomain.Status
}

// Resolve applies the reviewer's decision. Approval commits the attribute and the ledger in the same
// transaction that closes the alert, so a repeated call finds the alert closed and changes nothing.
func (s *Service) Resolve(ctx context.Context, in ResolveInput) (res *Resolution, err error) {
	ctx, finish := s.startSpan(ctx, "Resolve",
		attribute.String("acc.alert_id", in.AlertID),
		attribute.String("acc.decision", in.Decision))
	defer func() { finish(err) }()

	in.AlertID = strings.TrimSpace(in.AlertID)
	in.ReviewerID = strings.TrimSpace(in.ReviewerID)
	in.Decision = strings.ToLower(strings.TrimSpace(in.Decision))
	in.Notes = strings.TrimSpace(in.Notes)
	if in.AlertID == "" || in.ReviewerID == "" {
		return nil, validation("alert id and reviewer id are required")
	}
	if in.Decision != DecisionApprove && in.Decision != DecisionReject {
		return nil, validation("decision must be approve or reject")
	}
	if utf8.RuneCountInString(in.Notes) > maxNotesLength {
		return nil, validation(fmt.Sprintf("notes must be at most %d characters", maxNotesLength))
	}

	rec := s.newRecorder(ctx)
	err = s.store.RunInTx(ctx, func(r store.Repos) error {
		rec.reset()
		out, err := s.resolveTx(ctx, r, rec, in)
		res = out
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, rec)
	return res, nil
}

func (s *Service) resolveTx(ctx context.Context, r store.Repos, rec *recorder, in ResolveInput) (*Resolution, error) {
	now := rec.now
	approved := in.Decision == DecisionApprove
	alert, err := r.Alerts.GetByIDForUpdate(ctx, in.AlertID)
	if err != nil {
		return nil, fmt.Errorf("load alert: %w", err)
	}
	if alert == nil {
		return nil, newError(CodeAlertNotFound, "alert not found")
	}
	if !alert.IsOpen() {
		return nil, newError(CodeAlertAlreadyResolved, "alert was already "+string(alert.Status))
	}

	// Subject before request, the same order submit takes them.
	subj, err := r.Subjects.GetByIDForUpdate(ctx, alert.SubjectID)
	if err != nil {
		return nil, fmt.Errorf("load subject: %w", err)
	}
	if subj == nil {
		return nil, newError(CodeSubjectNotFound, "subject not found")
	}
	var req *crdomain.ChangeRequest
	if alert.RequestID != "" {
		req, err = r.Requests.GetByIDForUpdate(ctx, alert.RequestID)
		if err != nil {
			return nil, fmt.Errorf("load request: %w", err)
		}
		if req == nil || req.Status != crdomain.StatusAdminReview {
			return nil, fmt.Errorf("alert %s is linked to request %s outside admin review", alert.ID, alert.RequestID)
		}
	}

	if err := alert.Resolve(in.ReviewerID, approved, in.Notes, now); err != nil {
		return nil, fmt.Errorf("resolve alert: %w", err)
	}
	if err := r.Alerts.Update(ctx, alert); err != nil {
		return nil, fmt.Errorf("update alert: %w", err)
	}
	rec.event(telemetry.Event{
		EventType: telemetry.EventAlertResolved,
		RequestID: alert.RequestID,
		SubjectID: alert.SubjectID,
		AlertID:   alert.ID,
		ToStatus:  string(alert.Status),
	})
	res := &Resolution{AlertID: alert.ID, AlertStatus: alert.Status}
	if req == nil {
		action := audit.ActionRejected
		if approved {
			action = audit.ActionApproved
		}
		if err := rec.audit(ctx, r, subj.ID, in.ReviewerID, action, audit.ResourceAlert, map[string]string{
			"alert_id": alert.ID,
			"decision": in.Decision,
		}); err != nil {
			return nil, fmt.Errorf("audit resolve: %w", err)
		}
		return res, nil
	}

	if approved {
		ledger, err := s.cfg.Eligibility.Apply(subj.Ledger(), now)
		if errors.Is(err, eligibility.ErrCapReached) {
			return nil, notEligible(eligibilityMessage(eligibility.ReasonCapReached), nil)
		}
		if err != nil {
			return nil, err
		}
		if err := r.Subjects.CommitAttributeChange(ctx, subj.ID, req.RequestedValue, ledger, now); err != nil {
			return nil, fmt.Errorf("commit attribute change: %w", err)
		}
		if err := s.finishTx(ctx, r, rec, req, subj, crdomain.StatusApproved, crdomain.ReasonAdminApproved, in.ReviewerID, audit.ActionApproved); err != nil {
			return nil, err
		}
	} else {
		if err := s.finishTx(ctx, r, rec, req, subj, crdomain.StatusRejected, crdomain.ReasonAdminRejected, in.ReviewerID, audit.ActionRejected); err != nil {
			return nil, err
		}
	}
	res.RequestID = req.ID
	res.RequestStatus = req.Status
	return res, nil
}

// ClaimAlert assigns an open alert to reviewerID and moves it to in_review. Claiming an alert the
// reviewer already holds is a no-op.
func (s *Service) ClaimAlert(ctx context.Context, alertID, reviewerID string) (alert *alertdomain.Alert, err error) {
	ctx, finish := s.startSpan(ctx, "ClaimAlert", attribute.String("acc.alert_id", alertID))
	defer func() { finish(err) }()

	alertID = strings.TrimSpace(alertID)
	reviewerID = strings.TrimSpace(reviewerID)
	if alertID == "" || reviewerID == "" {
		return nil, validation("alert id and reviewer id are required")
	}
	rec := s.newRecorder(ctx)
	err = s.store.RunInTx(ctx, func(r store.Repos) error {
		rec.reset()
		a, err := r.Alerts.GetByIDForUpdate(ctx, alertID)
		if err != nil {
			return fmt.Errorf("load alert: %w", err)
		}
		if a == nil {
			return newError(CodeAlertNotFound, "alert not found")
		}
		if a.Status == alertdomain.StatusInReview && a.ReviewerID == reviewerID {
			alert = a
			return nil
		}
		switch err := a.Claim(reviewerID, rec.now); {
		case errors.Is(err, alertdomain.ErrNotOpen):
			return newError(CodeAlertAlreadyResolved, "alert was already "+string(a.Status))
		case errors.Is(err, alertdomain.ErrIllegalTransition):
			return newError(CodeAlertAlreadyClaimed, "alert is being reviewed by another reviewer")
		case err != nil:
			return validation(err.Error())
		}
		if err := r.Alerts.Update(ctx, a); err != nil {
			return fmt.Errorf("update alert: %w", err)
		}
		if err := rec.audit(ctx, r, a.SubjectID, reviewerID, audit.ActionAlertClaim, audit.ResourceAlert, map[string]string{"alert_id": a.ID}); err != nil {
			return fmt.Errorf("audit claim: %w", err)
		}
		rec.event(telemetry.Event{
			EventType: telemetry.EventAlertClaimed,
			RequestID: a.RequestID,
			SubjectID: a.SubjectID,
			AlertID:   a.ID,
			ToStatus:  string(a.Status),
		})
		alert = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, rec)
	return alert, nil
}

// AlertFilter selects alerts for the review queue.
type AlertFilter struct {
	Status    string
	SubjectID string
	Limit     int
	Offset    int
}

// ListAlerts returns alerts oldest first.
func (s *Service) ListAlerts(ctx context.Context, f AlertFilter) ([]*alertdomain.Alert, error) {
	status := alertdomain.Status(strings.ToLower(strings.TrimSpace(f.Status)))
	switch status {
	case "", alertdomain.StatusPending, alertdomain.StatusInReview, alertdomain.StatusResolved,
		alertdomain.StatusRejected, alertdomain.StatusFlagged:
	default:
		return nil, validation(fmt.Sprintf("unknown alert status %q", f.Status))
	}
	if f.Limit < 0 || f.Offset < 0 {
		return nil, validation("limit and offset must not be negative")
	}
	alerts, err := s.store.Reader().Alerts.List(ctx, alertrepo.Filter{
		Status:    status,
		SubjectID: strings.TrimSpace(f.SubjectID),
		Limit:     f.Limit,
		Offset:    f.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return alerts, nil
}

// AuditTrail returns the subject's audit rows, newest first.
func (s *Service) AuditTrail(ctx context.Context, subjectID string, limit, offset int) ([]*auditdomain.AuditLog, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, validation("subject id is required")
	}
	if limit <= 0 || limit > alertrepo.DefaultListLimit {
		limit = alertrepo.DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	logs, err := s.store.Reader().Audit.ListBySubject(ctx, subjectID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return logs, nil
}
