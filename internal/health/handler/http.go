// Package handler serves the readiness probe.
package handler

import (
	"context"
	"log"
	"net/http"
	"time"

	"attribute-change-control/backend/internal/server/httpx"
)

// checkTimeout bounds each dependency check.
const checkTimeout = 2 * time.Second

// Pinger checks database connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the escalation policy compiles and evaluates.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Handler serves GET /healthz.
type Handler struct {
	pinger Pinger
	policy PolicyChecker
}

// New returns a Handler. Either dependency may be nil; its check is then skipped.
func New(pinger Pinger, policy PolicyChecker) *Handler {
	return &Handler{pinger: pinger, policy: policy}
}

type response struct {
	Status   string `json:"status"`
	Database string `json:"database,omitempty"`
	Policy   string `json:"policy,omitempty"`
}

// ServeHTTP reports 200 when every configured dependency is healthy, else 503.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := response{Status: "ok"}
	if h.pinger != nil {
		resp.Database = h.check(r.Context(), "database", h.pinger.PingContext)
	}
	if h.policy != nil {
		resp.Policy = h.check(r.Context(), "policy", h.policy.HealthCheck)
	}
	status := http.StatusOK
	if resp.Database == "down" || resp.Policy == "down" {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, status, resp)
}

func (h *Handler) check(ctx context.Context, name string, fn func(context.Context) error) string {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Printf("health: %s check failed: %v", name, err)
		return "down"
	}
	return "up"
}
