package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics are the workflow counters exported through the OTel MeterProvider.
type Metrics struct {
	transitions metric.Int64Counter
	otpFailures metric.Int64Counter
	swept       metric.Int64Counter
}

// NewMetrics creates the counters on meter. A nil meter yields no-op counters.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("acc")
	}
	transitions, err := meter.Int64Counter("acc.requests.transitions",
		metric.WithDescription("Change request status transitions"))
	if err != nil {
		return nil, err
	}
	otpFailures, err := meter.Int64Counter("acc.otp.failures",
		metric.WithDescription("Wrong OTP submissions"))
	if err != nil {
		return nil, err
	}
	swept, err := meter.Int64Counter("acc.sweeper.swept",
		metric.WithDescription("Records expired or flagged by the sweeper"))
	if err != nil {
		return nil, err
	}
	return &Metrics{transitions: transitions, otpFailures: otpFailures, swept: swept}, nil
}

func (m *Metrics) Transition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

func (m *Metrics) OTPFailure(ctx context.Context, exhausted bool) {
	if m == nil {
		return
	}
	m.otpFailures.Add(ctx, 1, metric.WithAttributes(attribute.Bool("exhausted", exhausted)))
}

// Swept records n records handled by the sweeper; kind is "request" or "alert".
func (m *Metrics) Swept(ctx context.Context, kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.swept.Add(ctx, int64(n), metric.WithAttributes(attribute.String("kind", kind)))
}
