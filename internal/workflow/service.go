// Package workflow drives a protected-attribute change request from submission through email
// confirmation, the OTP challenge and admin review to a terminal status. Every operation runs in
// one store transaction; notifications and telemetry happen after commit unless noted.
package workflow

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"attribute-change-control/backend/internal/audit"
	"attribute-change-control/backend/internal/config"
	"attribute-change-control/backend/internal/eligibility"
	"attribute-change-control/backend/internal/notify"
	"attribute-change-control/backend/internal/policy/engine"
	"attribute-change-control/backend/internal/ratelimit"
	"attribute-change-control/backend/internal/security"
	"attribute-change-control/backend/internal/store"
	"attribute-change-control/backend/internal/telemetry"
)

const (
	maxReasonLength = 500
	maxNotesLength  = 2000
)

// Config is the behavior of the pipeline. It is built once from the application config.
type Config struct {
	Eligibility       eligibility.Policy
	RejectionCooldown eligibility.RejectionCooldown
	AllowedValues     []string
	// AttributeName is shown in notifications, e.g. "gender".
	AttributeName string

	OTPLength          int
	OTPExpiry          time.Duration
	OTPMaxAttempts     int
	OTPMaxResends      int
	RequirePhoneForOTP bool

	AlertReviewSLA time.Duration
	PublicBaseURL  string

	SubmitRateLimit int
	SweepBatchSize  int
}

// ConfigFrom converts the loaded application config.
func ConfigFrom(c *config.Config) Config {
	return Config{
		Eligibility: eligibility.Policy{
			MaxChanges: c.MaxChanges,
			Cooldown:   c.CooldownWindow(),
		},
		RejectionCooldown: eligibility.RejectionCooldown{
			Policy: eligibility.RejectionPolicy(c.RejectionCooldownPolicy),
			Window: c.RejectionCooldown(),
		},
		AllowedValues:      c.AllowedValues(),
		AttributeName:      strings.TrimSpace(c.AttributeName),
		OTPLength:          c.OTPLength,
		OTPExpiry:          c.OTPExpiry(),
		OTPMaxAttempts:     c.OTPMaxAttempts,
		OTPMaxResends:      c.OTPMaxResends,
		RequirePhoneForOTP: c.RequirePhoneForOTP,
		AlertReviewSLA:     c.AlertReviewSLA(),
		PublicBaseURL:      c.PublicBaseURL,
		SubmitRateLimit:    c.SubmitRateLimit,
		SweepBatchSize:     c.SweepBatchSize,
	}
}

// Deps are the collaborators of the Service. Limiter, Escalation, Events and Metrics are optional.
type Deps struct {
	Store      store.UnitOfWork
	Tokens     *security.ChangeTokenProvider
	Hasher     *security.Hasher
	Notifier   notify.Notifier
	Escalation engine.Evaluator
	Limiter    ratelimit.Limiter
	Events     telemetry.EventEmitter
	Metrics    *telemetry.Metrics
	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

// Service implements submit, confirm, verifyCode, resend, claim, resolve and sweep.
type Service struct {
	cfg        Config
	store      store.UnitOfWork
	tokens     *security.ChangeTokenProvider
	hasher     *security.Hasher
	notifier   notify.Notifier
	escalation engine.Evaluator
	limiter    ratelimit.Limiter
	events     telemetry.EventEmitter
	metrics    *telemetry.Metrics
	now        func() time.Time
	tracer     trace.Tracer
	allowed    map[string]bool
}

// New returns a Service. Store, Tokens, Hasher and Notifier are required.
func New(cfg Config, d Deps) (*Service, error) {
	if d.Store == nil || d.Tokens == nil || d.Hasher == nil || d.Notifier == nil {
		return nil, errors.New("workflow: store, tokens, hasher and notifier are required")
	}
	if cfg.Eligibility.MaxChanges < 1 || cfg.OTPMaxAttempts < 1 || cfg.OTPExpiry <= 0 {
		return nil, errors.New("workflow: invalid eligibility or OTP configuration")
	}
	if cfg.SweepBatchSize <= 0 {
		cfg.SweepBatchSize = 100
	}
	if cfg.AttributeName == "" {
		cfg.AttributeName = "profile"
	}
	now := d.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	allowed := make(map[string]bool, len(cfg.AllowedValues))
	for _, v := range cfg.AllowedValues {
		allowed[normalizeValue(v)] = true
	}
	return &Service{
		cfg:        cfg,
		store:      d.Store,
		tokens:     d.Tokens,
		hasher:     d.Hasher,
		notifier:   d.Notifier,
		escalation: d.Escalation,
		limiter:    d.Limiter,
		events:     d.Events,
		metrics:    d.Metrics,
		now:        now,
		tracer:     otel.Tracer("attribute-change-control/workflow"),
		allowed:    allowed,
	}, nil
}

func normalizeValue(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// startSpan opens a span for op. finish records err on the span and ends it.
func (s *Service) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(err error)) {
	ctx, span := s.tracer.Start(ctx, "workflow."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.SetAttributes(attribute.String("acc.error_code", string(CodeOf(err))))
			if CodeOf(err) == CodePersistence {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
		}
		span.End()
	}
}

// recorder collects the audit rows, events and deferred notifications of one transaction.
type recorder struct {
	now     time.Time
	origin  audit.Origin
	events  []*telemetry.Event
	notices []notice
}

type notice struct {
	recipient string
	template  string
	data      map[string]string
}

func (s *Service) newRecorder(ctx context.Context) *recorder {
	return &recorder{now: s.now(), origin: audit.OriginFrom(ctx)}
}

// audit writes an audit row through the transaction's repository.
func (rec *recorder) audit(ctx context.Context, r store.Repos, subjectID, actorID, action, resource string, meta map[string]string) error {
	if rec.origin.Client != "" {
		if meta == nil {
			meta = map[string]string{}
		}
		meta["client"] = rec.origin.Client
	}
	return r.Audit.Create(ctx, audit.NewEntry(subjectID, actorID, action, resource, rec.origin.IP, meta, rec.now))
}

func (rec *recorder) event(e telemetry.Event) {
	e.CreatedAt = rec.now
	rec.events = append(rec.events, &e)
}

func (rec *recorder) notify(recipient, template string, data map[string]string) {
	if recipient == "" {
		return
	}
	rec.notices = append(rec.notices, notice{recipient: recipient, template: template, data: data})
}

// reset drops everything collected by a transaction attempt that rolled back.
func (rec *recorder) reset() {
	rec.events = nil
	rec.notices = nil
}

// publish runs after commit: events and metrics first, then best-effort notifications.
func (s *Service) publish(ctx context.Context, rec *recorder) {
	for _, e := range rec.events {
		switch e.EventType {
		case telemetry.EventRequestSubmitted, telemetry.EventRequestTransition:
			s.metrics.Transition(ctx, e.FromStatus, e.ToStatus)
		case telemetry.EventOTPFailed:
			s.metrics.OTPFailure(ctx, e.Reason != "")
		}
		telemetry.EmitAsync(s.events, ctx, e)
	}
	for _, n := range rec.notices {
		if err := s.notifier.Send(ctx, n.recipient, n.template, n.data); err != nil {
			log.Printf("workflow: %s notification failed: %v", n.template, err)
		}
	}
}
