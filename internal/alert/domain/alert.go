package domain

import (
	"errors"
	"fmt"
	"time"
)

// Status of an admin alert. Once an alert leaves pending it never returns.
type Status string

const (
	StatusPending  Status = "pending"
	StatusInReview Status = "in_review"
	StatusResolved Status = "resolved"
	StatusRejected Status = "rejected"
	StatusFlagged  Status = "flagged"
)

// Priority orders the review queue.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// CategoryProtectedAttributeChange is the category of alerts raised by the change pipeline.
const CategoryProtectedAttributeChange = "protected_attribute_change"

var (
	ErrNotOpen            = errors.New("alert is not open")
	ErrIllegalTransition  = errors.New("illegal alert transition")
	ErrReviewerIDRequired = errors.New("reviewer id is required")
)

var transitions = map[Status]map[Status]bool{
	StatusPending:  {StatusInReview: true, StatusResolved: true, StatusRejected: true, StatusFlagged: true},
	StatusFlagged:  {StatusInReview: true, StatusResolved: true, StatusRejected: true},
	StatusInReview: {StatusResolved: true, StatusRejected: true},
}

// Alert is an escalation that needs a human decision.
type Alert struct {
	ID         string
	SubjectID  string
	RequestID  string // empty when the alert is not tied to a change request
	Category   string
	Priority   Priority
	Status     Status
	ReviewerID string
	ReviewedAt *time.Time
	Notes      string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsOpen reports whether the alert still awaits a decision.
func (a *Alert) IsOpen() bool {
	switch a.Status {
	case StatusPending, StatusInReview, StatusFlagged:
		return true
	default:
		return false
	}
}

// Overdue reports whether a pending alert has passed its review deadline.
func (a *Alert) Overdue(now time.Time) bool {
	return a.Status == StatusPending && now.After(a.ExpiresAt)
}

// Claim assigns the alert to a reviewer.
func (a *Alert) Claim(reviewerID string, now time.Time) error {
	if reviewerID == "" {
		return ErrReviewerIDRequired
	}
	if a.Status == StatusInReview && a.ReviewerID == reviewerID {
		return nil
	}
	if err := a.move(StatusInReview, now); err != nil {
		return err
	}
	a.ReviewerID = reviewerID
	a.markReviewed(now)
	return nil
}

// Resolve closes the alert with the reviewer's decision.
func (a *Alert) Resolve(reviewerID string, approved bool, notes string, now time.Time) error {
	if reviewerID == "" {
		return ErrReviewerIDRequired
	}
	to := StatusRejected
	if approved {
		to = StatusResolved
	}
	if err := a.move(to, now); err != nil {
		return err
	}
	a.ReviewerID = reviewerID
	a.Notes = notes
	a.markReviewed(now)
	return nil
}

// Flag raises an overdue alert for priority handling. Leaving pending stamps ReviewedAt like a claim does.
func (a *Alert) Flag(now time.Time) error {
	if err := a.move(StatusFlagged, now); err != nil {
		return err
	}
	a.Priority = PriorityHigh
	a.markReviewed(now)
	return nil
}

func (a *Alert) move(to Status, now time.Time) error {
	if !a.IsOpen() {
		return ErrNotOpen
	}
	if !transitions[a.Status][to] {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, a.Status, to)
	}
	a.Status = to
	a.UpdatedAt = now
	return nil
}

// markReviewed sets ReviewedAt on the first reviewer action only.
func (a *Alert) markReviewed(now time.Time) {
	if a.ReviewedAt == nil {
		t := now
		a.ReviewedAt = &t
	}
}
