// Package metrics holds the Prometheus collectors for rate limiting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions      *prometheus.CounterVec
	RedisFallbacks prometheus.Counter
}

// New registers the collectors on reg. Pass a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "acc_ratelimit_decisions_total",
			Help: "Rate limit decisions by scope and outcome",
		}, []string{"scope", "outcome"}),
		RedisFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "acc_ratelimit_redis_fallbacks_total",
			Help: "Decisions served by the in-memory limiter because Redis was unavailable",
		}),
	}
}

func (m *Metrics) ObserveDecision(scope string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	m.Decisions.WithLabelValues(scope, outcome).Inc()
}

func (m *Metrics) IncrementRedisFallback() {
	if m == nil {
		return
	}
	m.RedisFallbacks.Inc()
}
