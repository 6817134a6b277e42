package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	alertdomain "attribute-change-control/backend/internal/alert/domain"
	"attribute-change-control/backend/internal/audit"
	crdomain "attribute-change-control/backend/internal/changerequest/domain"
	"attribute-change-control/backend/internal/store"
	"attribute-change-control/backend/internal/telemetry"
)

// maxSweepBatches bounds the batches of one kind handled in a single Sweep.
const maxSweepBatches = 20

// SweepResult counts what one Sweep changed.
type SweepResult struct {
	ExpiredPending int
	ExpiredOTP     int
	FlaggedAlerts  int
}

// Sweep expires PENDING requests whose link lapsed and OTP_PENDING requests whose code lapsed, and
// flags pending alerts past their review deadline. Each batch is its own transaction, and rows
// locked by a concurrent operation are skipped until the next run.
func (s *Service) Sweep(ctx context.Context) (res SweepResult, err error) {
	ctx, finish := s.startSpan(ctx, "Sweep")
	defer func() { finish(err) }()

	if res.ExpiredPending, err = s.sweepRequests(ctx, crdomain.ReasonTokenExpired); err != nil {
		return res, err
	}
	if res.ExpiredOTP, err = s.sweepRequests(ctx, crdomain.ReasonOTPExpired); err != nil {
		return res, err
	}
	if res.FlaggedAlerts, err = s.sweepAlerts(ctx); err != nil {
		return res, err
	}
	s.metrics.Swept(ctx, "request", res.ExpiredPending+res.ExpiredOTP)
	s.metrics.Swept(ctx, "alert", res.FlaggedAlerts)
	return res, nil
}

func (s *Service) sweepRequests(ctx context.Context, reason string) (int, error) {
	total := 0
	for i := 0; i < maxSweepBatches; i++ {
		rec := s.newRecorder(ctx)
		n := 0
		err := s.store.RunInTx(ctx, func(r store.Repos) error {
			rec.reset()
			n = 0
			var (
				batch []*crdomain.ChangeRequest
				err   error
			)
			if reason == crdomain.ReasonTokenExpired {
				batch, err = r.Requests.ListExpiredPending(ctx, rec.now, s.cfg.SweepBatchSize)
			} else {
				batch, err = r.Requests.ListExpiredOTPPending(ctx, rec.now, s.cfg.SweepBatchSize)
			}
			if err != nil {
				return fmt.Errorf("list expired requests: %w", err)
			}
			for _, req := range batch {
				if err := s.expireTx(ctx, r, rec, req, reason); err != nil {
					return err
				}
			}
			n = len(batch)
			return nil
		})
		if err != nil {
			return total, err
		}
		s.publish(ctx, rec)
		total += n
		if n < s.cfg.SweepBatchSize {
			break
		}
	}
	return total, nil
}

// expireTx moves req to EXPIRED on behalf of the system.
func (s *Service) expireTx(ctx context.Context, r store.Repos, rec *recorder, req *crdomain.ChangeRequest, reason string) error {
	subj, err := r.Subjects.GetByID(ctx, req.SubjectID)
	if err != nil {
		return fmt.Errorf("load subject: %w", err)
	}
	return s.finishTx(ctx, r, rec, req, subj, crdomain.StatusExpired, reason, audit.SystemActor, audit.ActionExpired)
}

func (s *Service) sweepAlerts(ctx context.Context) (int, error) {
	total := 0
	for i := 0; i < maxSweepBatches; i++ {
		rec := s.newRecorder(ctx)
		n := 0
		err := s.store.RunInTx(ctx, func(r store.Repos) error {
			rec.reset()
			n = 0
			batch, err := r.Alerts.ListOverdue(ctx, rec.now, s.cfg.SweepBatchSize)
			if err != nil {
				return fmt.Errorf("list overdue alerts: %w", err)
			}
			for _, a := range batch {
				if err := a.Flag(rec.now); err != nil {
					if errors.Is(err, alertdomain.ErrNotOpen) || errors.Is(err, alertdomain.ErrIllegalTransition) {
						continue
					}
					return err
				}
				if err := r.Alerts.Update(ctx, a); err != nil {
					return fmt.Errorf("update alert: %w", err)
				}
				if err := rec.audit(ctx, r, a.SubjectID, audit.SystemActor, audit.ActionAlertFlag, audit.ResourceAlert, map[string]string{"alert_id": a.ID}); err != nil {
					return fmt.Errorf("audit flag: %w", err)
				}
				rec.event(telemetry.Event{
					EventType: telemetry.EventAlertFlagged,
					RequestID: a.RequestID,
					SubjectID: a.SubjectID,
					AlertID:   a.ID,
					ToStatus:  string(a.Status),
				})
			}
			n = len(batch)
			return nil
		})
		if err != nil {
			return total, err
		}
		s.publish(ctx, rec)
		total += n
		if n < s.cfg.SweepBatchSize {
			break
		}
	}
	return total, nil
}

// Sweeper runs Sweep on a fixed interval until its context is cancelled.
type Sweeper struct {
	Service  *Service
	Interval time.Duration
}

// Run sweeps once immediately, then every Interval. Sweep errors are logged and retried next tick.
func (sw *Sweeper) Run(ctx context.Context) error {
	interval := sw.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		sw.runOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (sw *Sweeper) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	res, err := sw.Service.Sweep(ctx)
	if err != nil {
		log.Printf("sweeper: sweep failed: %v", err)
		return
	}
	if res.ExpiredPending+res.ExpiredOTP+res.FlaggedAlerts > 0 {
		log.Printf("sweeper: expired %d pending, %d otp; flagged %d alerts", res.ExpiredPending, res.ExpiredOTP, res.FlaggedAlerts)
	}
}
