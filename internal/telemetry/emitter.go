// Package telemetry carries workflow events (status transitions, OTP failures, sweeps) to the
// configured sinks. Emission is best-effort; a failed emit never affects a committed transition.
package telemetry

import (
	"context"
	"errors"
	"time"
)

// Event types.
const (
	EventRequestSubmitted  = "request.submitted"
	EventRequestTransition = "request.transition"
	EventOTPFailed         = "otp.failed"
	EventOTPResent         = "otp.resent"
	EventAlertCreated      = "alert.created"
	EventAlertClaimed      = "alert.claimed"
	EventAlertResolved     = "alert.resolved"
	EventAlertFlagged      = "alert.flagged"
)

// Event is one workflow occurrence. Serialized as JSON on the Kafka topic.
type Event struct {
	EventType  string    `json:"event_type"`
	RequestID  string    `json:"request_id,omitempty"`
	SubjectID  string    `json:"subject_id,omitempty"`
	AlertID    string    `json:"alert_id,omitempty"`
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// EventEmitter emits workflow events (e.g. to OTel Logs or Kafka). Callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}

// Multi fans an event out to every non-nil emitter and joins their errors.
type Multi []EventEmitter

func (m Multi) Emit(ctx context.Context, event *Event) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
