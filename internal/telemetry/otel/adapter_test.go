package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"attribute-change-control/backend/internal/telemetry"
)

type recordCapture struct {
	recs []otellog.Record
}

func (r *recordCapture) Emit(_ context.Context, rec otellog.Record) {
	r.recs = append(r.recs, rec)
}

func attrs(rec otellog.Record) map[string]string {
	out := map[string]string{}
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		out[kv.Key] = kv.Value.AsString()
		return true
	})
	return out
}

func TestNewEventEmitter_NilProvider(t *testing.T) {
	em := NewEventEmitter(nil)
	if err := em.Emit(context.Background(), &telemetry.Event{EventType: "x"}); err != nil {
		t.Errorf("noop Emit: %v", err)
	}
}

func TestNewEventEmitter_SDKProvider(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	em := NewEventEmitter(provider)
	if err := em.Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(nil): %v", err)
	}
	if err := em.Emit(context.Background(), &telemetry.Event{EventType: telemetry.EventAlertCreated}); err != nil {
		t.Errorf("Emit: %v", err)
	}
}

func TestEmit_Mapping(t *testing.T) {
	sink := &recordCapture{}
	em := NewEventEmitterWithLogger(sink)
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	err := em.Emit(context.Background(), &telemetry.Event{
		EventType:  telemetry.EventRequestTransition,
		RequestID:  "r1",
		SubjectID:  "s1",
		FromStatus: "OTP_PENDING",
		ToStatus:   "ADMIN_REVIEW",
		CreatedAt:  at,
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(sink.recs) != 1 {
		t.Fatalf("records = %d", len(sink.recs))
	}
	rec := sink.recs[0]
	if !rec.Timestamp().Equal(at) {
		t.Errorf("timestamp = %v", rec.Timestamp())
	}
	if rec.Body().AsString() != telemetry.EventRequestTransition {
		t.Errorf("body = %q", rec.Body().AsString())
	}
	got := attrs(rec)
	want := map[string]string{
		"event_type":  telemetry.EventRequestTransition,
		"request_id":  "r1",
		"subject_id":  "s1",
		"from_status": "OTP_PENDING",
		"to_status":   "ADMIN_REVIEW",
	}
	if len(got) != len(want) {
		t.Errorf("attributes = %v", got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %q, want %q", k, got[k], v)
		}
	}
}

func TestEmit_ZeroTimestamp(t *testing.T) {
	sink := &recordCapture{}
	em := NewEventEmitterWithLogger(sink)
	before := time.Now().UTC()
	_ = em.Emit(context.Background(), &telemetry.Event{EventType: telemetry.EventOTPFailed})
	if sink.recs[0].Timestamp().Before(before) {
		t.Errorf("timestamp %v should default to now", sink.recs[0].Timestamp())
	}
}
