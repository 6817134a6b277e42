package audit

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"attribute-change-control/backend/internal/audit/domain"
	auditrepo "attribute-change-control/backend/internal/audit/repository"
)

// SystemActor is the actor_id for transitions made by the sweeper.
const SystemActor = "_system"

// Actions recorded for the change pipeline.
const (
	ActionSubmitted   = "change_request_submitted"
	ActionCancelled   = "change_request_cancelled"
	ActionConfirmed   = "change_request_confirmed"
	ActionOTPIssued   = "otp_issued"
	ActionOTPResent   = "otp_resent"
	ActionOTPFailed   = "otp_failed"
	ActionOTPVerified = "otp_verified"
	ActionEscalated   = "change_request_escalated"
	ActionApproved    = "change_request_approved"
	ActionRejected    = "change_request_rejected"
	ActionExpired     = "change_request_expired"
	ActionAlertClaim  = "alert_claimed"
	ActionAlertFlag   = "alert_flagged"
)

// Resources recorded for the change pipeline.
const (
	ResourceChangeRequest = "change_request"
	ResourceAlert         = "alert"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource outside any transaction.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, subjectID, actorID, action, resource string, metadata map[string]string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, subjectID, actorID, action, resource string, metadata map[string]string) {
	if l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	entry := NewEntry(subjectID, actorID, action, resource, ip, metadata, time.Now().UTC())
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
	}
}

// NewEntry builds an audit row. Used directly by callers that write the row inside their own transaction.
func NewEntry(subjectID, actorID, action, resource, ip string, metadata map[string]string, at time.Time) *domain.AuditLog {
	if actorID == "" {
		actorID = SystemActor
	}
	if ip == "" {
		ip = "unknown"
	}
	return &domain.AuditLog{
		ID:        uuid.New().String(),
		SubjectID: subjectID,
		ActorID:   actorID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  encodeMetadata(metadata),
		CreatedAt: at,
	}
}

func encodeMetadata(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}
