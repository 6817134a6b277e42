package domain

import (
	"errors"
	"testing"
	"time"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newPending() *Alert {
	return &Alert{ID: "a1", Status: StatusPending, Priority: PriorityNormal, ExpiresAt: t0.Add(72 * time.Hour)}
}

func TestAlert_ResolveApprove(t *testing.T) {
	a := newPending()
	if err := a.Resolve("rev-1", true, "ok", t0); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if a.Status != StatusResolved || a.ReviewerID != "rev-1" || a.Notes != "ok" {
		t.Errorf("alert = %+v", a)
	}
	if a.ReviewedAt == nil || !a.ReviewedAt.Equal(t0) {
		t.Errorf("ReviewedAt = %v, want %v", a.ReviewedAt, t0)
	}
	if err := a.Resolve("rev-2", false, "", t0); !errors.Is(err, ErrNotOpen) {
		t.Errorf("second Resolve err = %v, want ErrNotOpen", err)
	}
}

func TestAlert_ResolveReject(t *testing.T) {
	a := newPending()
	if err := a.Resolve("rev-1", false, "no", t0); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if a.Status != StatusRejected {
		t.Errorf("Status = %s, want rejected", a.Status)
	}
}

func TestAlert_ReviewedAtSetOnce(t *testing.T) {
	a := newPending()
	if err := a.Claim("rev-1", t0); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	later := t0.Add(time.Hour)
	if err := a.Resolve("rev-1", true, "", later); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !a.ReviewedAt.Equal(t0) {
		t.Errorf("ReviewedAt = %v, want first review time %v", a.ReviewedAt, t0)
	}
}

func TestAlert_NeverReturnsToPending(t *testing.T) {
	for _, s := range []Status{StatusInReview, StatusResolved, StatusRejected, StatusFlagged} {
		if transitions[s][StatusPending] {
			t.Errorf("%s has edge back to pending", s)
		}
	}
}

func TestAlert_FlagThenResolve(t *testing.T) {
	a := newPending()
	if !a.Overdue(t0.Add(73 * time.Hour)) {
		t.Fatal("expected overdue")
	}
	if err := a.Flag(t0.Add(73 * time.Hour)); err != nil {
		t.Fatalf("Flag: %v", err)
	}
	if a.Status != StatusFlagged || a.Priority != PriorityHigh {
		t.Errorf("alert = %+v", a)
	}
	flaggedAt := t0.Add(73 * time.Hour)
	if a.ReviewedAt == nil || !a.ReviewedAt.Equal(flaggedAt) {
		t.Errorf("ReviewedAt = %v, want flag time %v", a.ReviewedAt, flaggedAt)
	}
	if err := a.Flag(t0); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("re-Flag err = %v, want ErrIllegalTransition", err)
	}
	if err := a.Resolve("rev-1", true, "", t0.Add(74*time.Hour)); err != nil {
		t.Fatalf("Resolve flagged: %v", err)
	}
	if a.ReviewedAt == nil || !a.ReviewedAt.Equal(flaggedAt) {
		t.Errorf("ReviewedAt = %v, resolve must keep the flag time %v", a.ReviewedAt, flaggedAt)
	}
}

func TestAlert_ClaimRequiresReviewer(t *testing.T) {
	a := newPending()
	if err := a.Claim("", t0); !errors.Is(err, ErrReviewerIDRequired) {
		t.Errorf("Claim err = %v", err)
	}
	if err := a.Claim("rev-1", t0); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := a.Claim("rev-1", t0); err != nil {
		t.Errorf("repeat Claim by same reviewer: %v", err)
	}
	if err := a.Claim("rev-2", t0); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Claim by other reviewer err = %v, want ErrIllegalTransition", err)
	}
}
