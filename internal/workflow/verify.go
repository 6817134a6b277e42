package workflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"attribute-change-control/backend/internal/audit"
	crdomain "attribute-change-control/backend/internal/changerequest/domain"
	"attribute-change-control/backend/internal/notify"
	"attribute-change-control/backend/internal/otp"
	otpdomain "attribute-change-control/backend/internal/otp/domain"
	"attribute-change-control/backend/internal/store"
	"attribute-change-control/backend/internal/telemetry"
)

// VerifyCode checks code against the subject's live OTP challenge. A wrong code consumes an attempt
// and returns OTP_MISMATCH; the attempt that exhausts the budget rejects the request and returns
// OTP_ATTEMPTS_EXCEEDED. Both failures are committed before they are returned. A correct code
// consumes the challenge and escalates the request to admin review.
func (s *Service) VerifyCode(ctx context.Context, subjectID, code string) (out *Outcome, err error) {
	ctx, finish := s.startSpan(ctx, "VerifyCode", attribute.String("acc.subject_id", subjectID))
	defer func() { finish(err) }()

	subjectID = strings.TrimSpace(subjectID)
	code = strings.TrimSpace(code)
	if subjectID == "" {
		return nil, validation("subject id is required")
	}
	if !otp.WellFormed(code, s.cfg.OTPLength) {
		return nil, validation(fmt.Sprintf("code must be %d digits", s.cfg.OTPLength))
	}

	rec := s.newRecorder(ctx)
	var failure *Error
	err = s.store.RunInTx(ctx, func(r store.Repos) error {
		rec.reset()
		failure = nil
		o, f, err := s.verifyTx(ctx, r, rec, subjectID, code)
		out, failure = o, f
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, rec)
	if failure != nil {
		return nil, failure
	}
	return out, nil
}

// liveChallengeTx loads the subject's OTP_PENDING request and its challenge under row locks.
func liveChallengeTx(ctx context.Context, r store.Repos, subjectID string) (*crdomain.ChangeRequest, *otpdomain.Challenge, error) {
	req, err := r.Requests.GetActiveBySubjectForUpdate(ctx, subjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("load active request: %w", err)
	}
	if req == nil || req.Status != crdomain.StatusOTPPending {
		return nil, nil, newError(CodeRequestNotFound, "no change request is waiting for a code")
	}
	ch, err := r.Challenges.GetByRequestIDForUpdate(ctx, req.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("load challenge: %w", err)
	}
	if ch == nil {
		return nil, nil, newError(CodeRequestNotFound, "no code was issued for this change request")
	}
	return req, ch, nil
}

// verifyTx returns a non-nil failure for outcomes that must still commit.
func (s *Service) verifyTx(ctx context.Context, r store.Repos, rec *recorder, subjectID, code string) (*Outcome, *Error, error) {
	req, ch, err := liveChallengeTx(ctx, r, subjectID)
	if err != nil {
		return nil, nil, err
	}
	if ch.Expired(rec.now) {
		return nil, nil, newError(CodeOTPExpired, "code expired; request a new one")
	}
	ok, err := s.hasher.Matches(ch.CodeHash, code)
	if err != nil {
		return nil, nil, fmt.Errorf("compare otp: %w", err)
	}
	subj, err := r.Subjects.GetByID(ctx, subjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("load subject: %w", err)
	}
	if subj == nil {
		return nil, nil, newError(CodeSubjectNotFound, "subject not found")
	}

	if !ok {
		exhausted := ch.RecordFailure()
		if err := rec.audit(ctx, r, subjectID, subjectID, audit.ActionOTPFailed, audit.ResourceChangeRequest, map[string]string{
			"request_id": req.ID,
			"attempts":   strconv.Itoa(ch.Attempts),
		}); err != nil {
			return nil, nil, fmt.Errorf("audit otp failure: %w", err)
		}
		failed := telemetry.Event{EventType: telemetry.EventOTPFailed, RequestID: req.ID, SubjectID: subjectID}
		if exhausted {
			failed.Reason = crdomain.ReasonOTPAttemptsExceeded
		}
		rec.event(failed)
		if exhausted {
			if err := s.finishTx(ctx, r, rec, req, subj, crdomain.StatusRejected, crdomain.ReasonOTPAttemptsExceeded, audit.SystemActor, audit.ActionRejected); err != nil {
				return nil, nil, err
			}
			return nil, newError(CodeOTPAttemptsExceeded, "too many wrong codes; the change request was rejected"), nil
		}
		if err := r.Challenges.Update(ctx, ch); err != nil {
			return nil, nil, fmt.Errorf("update challenge: %w", err)
		}
		remaining := ch.Remaining()
		return nil, &Error{Code: CodeOTPMismatch, Message: "wrong code", RemainingAttempts: &remaining}, nil
	}

	if err := r.Challenges.DeleteByRequestID(ctx, req.ID); err != nil {
		return nil, nil, fmt.Errorf("delete challenge: %w", err)
	}
	if err := rec.audit(ctx, r, subjectID, subjectID, audit.ActionOTPVerified, audit.ResourceChangeRequest, map[string]string{"request_id": req.ID}); err != nil {
		return nil, nil, fmt.Errorf("audit otp verify: %w", err)
	}
	alert, err := s.escalateTx(ctx, r, rec, req, subj, true)
	if err != nil {
		return nil, nil, err
	}
	return &Outcome{RequestID: req.ID, Status: req.Status, AlertID: alert.ID}, nil, nil
}

// ResendCode replaces the live challenge's code and restarts its expiry. Attempts already used are
// kept. The new code is sent inside the transaction so a delivery failure does not consume a resend.
func (s *Service) ResendCode(ctx context.Context, subjectID string) (err error) {
	ctx, finish := s.startSpan(ctx, "ResendCode", attribute.String("acc.subject_id", subjectID))
	defer func() { finish(err) }()

	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return validation("subject id is required")
	}
	rec := s.newRecorder(ctx)
	err = s.store.RunInTx(ctx, func(r store.Repos) error {
		rec.reset()
		req, ch, err := liveChallengeTx(ctx, r, subjectID)
		if err != nil {
			return err
		}
		if ch.Resends >= s.cfg.OTPMaxResends {
			return newError(CodeRateLimited, "no more codes can be sent for this change request")
		}
		subj, err := r.Subjects.GetByID(ctx, subjectID)
		if err != nil {
			return fmt.Errorf("load subject: %w", err)
		}
		if subj == nil || !subj.HasVerifiablePhone() {
			return newError(CodeSubjectNotFound, "subject has no verified phone")
		}
		code, hash, err := s.newCode()
		if err != nil {
			return err
		}
		ch.CodeHash = hash
		ch.ExpiresAt = rec.now.Add(s.cfg.OTPExpiry)
		ch.Resends++
		if err := r.Challenges.Update(ctx, ch); err != nil {
			return fmt.Errorf("update challenge: %w", err)
		}
		if err := rec.audit(ctx, r, subjectID, subjectID, audit.ActionOTPResent, audit.ResourceChangeRequest, map[string]string{
			"request_id": req.ID,
			"resends":    strconv.Itoa(ch.Resends),
		}); err != nil {
			return fmt.Errorf("audit otp resend: %w", err)
		}
		if err := s.notifier.Send(ctx, subj.Phone, notify.TemplateOTPCode, s.codeData(subj, code)); err != nil {
			return &Error{Code: CodeNotificationUnavailable, Message: "code could not be sent", Err: err}
		}
		rec.event(telemetry.Event{EventType: telemetry.EventOTPResent, RequestID: req.ID, SubjectID: subjectID})
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(ctx, rec)
	return nil
}
