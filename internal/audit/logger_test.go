package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"attribute-change-control/backend/internal/audit/domain"
)

// mockAuditRepo implements audit repository interface for tests.
type mockAuditRepo struct {
	entries   []*domain.AuditLog
	createErr error
}

func (m *mockAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) ListBySubject(ctx context.Context, subjectID string, limit, offset int) ([]*domain.AuditLog, error) {
	return m.entries, nil
}

func TestLogger_LogEvent_Success(t *testing.T) {
	repo := &mockAuditRepo{}
	ipExtractor := func(ctx context.Context) string {
		return "192.168.1.1"
	}
	logger := NewLogger(repo, ipExtractor)

	logger.LogEvent(context.Background(), "subj-1", "rev-1", ActionAlertClaim, ResourceAlert, map[string]string{"alert_id": "a1"})

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.SubjectID != "subj-1" {
		t.Errorf("subject_id = %q, want %q", entry.SubjectID, "subj-1")
	}
	if entry.ActorID != "rev-1" {
		t.Errorf("actor_id = %q, want %q", entry.ActorID, "rev-1")
	}
	if entry.Action != ActionAlertClaim || entry.Resource != ResourceAlert {
		t.Errorf("action/resource = %q/%q", entry.Action, entry.Resource)
	}
	if entry.IP != "192.168.1.1" {
		t.Errorf("ip = %q, want %q", entry.IP, "192.168.1.1")
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(entry.Metadata), &meta); err != nil {
		t.Fatalf("metadata not JSON: %v", err)
	}
	if meta["alert_id"] != "a1" {
		t.Errorf("metadata = %v", meta)
	}
	if entry.ID == "" {
		t.Error("entry ID should be set")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("entry CreatedAt should be set")
	}
}

func TestLogger_LogEvent_NoExtractor(t *testing.T) {
	repo := &mockAuditRepo{}
	NewLogger(repo, nil).LogEvent(context.Background(), "subj-1", "", ActionExpired, ResourceChangeRequest, nil)

	if len(repo.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(repo.entries))
	}
	e := repo.entries[0]
	if e.IP != "unknown" {
		t.Errorf("ip = %q, want unknown", e.IP)
	}
	if e.ActorID != SystemActor {
		t.Errorf("actor_id = %q, want %q", e.ActorID, SystemActor)
	}
	if e.Metadata != "" {
		t.Errorf("metadata = %q, want empty", e.Metadata)
	}
}

func TestLogger_LogEvent_RepoErrorIsSwallowed(t *testing.T) {
	repo := &mockAuditRepo{createErr: errors.New("db down")}
	NewLogger(repo, nil).LogEvent(context.Background(), "s", "a", "x", "y", nil)
	if len(repo.entries) != 0 {
		t.Errorf("entries = %d, want 0", len(repo.entries))
	}
}

func TestLogger_NilRepo(t *testing.T) {
	var l Logger
	l.LogEvent(context.Background(), "s", "a", "x", "y", nil)
}

func TestNewEntry(t *testing.T) {
	at := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	e := NewEntry("s", "r", ActionApproved, ResourceChangeRequest, "", map[string]string{"k": "v"}, at)
	if !e.CreatedAt.Equal(at) {
		t.Errorf("CreatedAt = %v", e.CreatedAt)
	}
	if e.Metadata != `{"k":"v"}` {
		t.Errorf("Metadata = %q", e.Metadata)
	}
	if e.IP != "unknown" {
		t.Errorf("IP = %q", e.IP)
	}
}

func TestOrigin(t *testing.T) {
	if got := OriginFrom(context.Background()); got != (Origin{}) {
		t.Errorf("OriginFrom(empty) = %+v", got)
	}
	ctx := WithOrigin(context.Background(), Origin{IP: "203.0.113.9", Client: "Firefox 128 on Linux"})
	if OriginIP(ctx) != "203.0.113.9" {
		t.Errorf("OriginIP = %q", OriginIP(ctx))
	}
	if OriginFrom(ctx).Client != "Firefox 128 on Linux" {
		t.Errorf("Client = %q", OriginFrom(ctx).Client)
	}
}
