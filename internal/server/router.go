// Package server assembles the HTTP surface: chi routes, middleware, and instrumentation.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	alerthandler "attribute-change-control/backend/internal/alert/handler"
	"attribute-change-control/backend/internal/audit"
	crhandler "attribute-change-control/backend/internal/changerequest/handler"
	"attribute-change-control/backend/internal/devotp"
	devotphandler "attribute-change-control/backend/internal/devotp/handler"
	healthhandler "attribute-change-control/backend/internal/health/handler"
	"attribute-change-control/backend/internal/server/httpx"
	"attribute-change-control/backend/internal/server/middleware"
	"attribute-change-control/backend/internal/workflow"
)

// Deps holds the collaborators of the HTTP surface.
type Deps struct {
	// Workflow drives every /v1 route. Required.
	Workflow *workflow.Service
	// AuditLogger records reviewer reads. If nil, reads are not audited.
	AuditLogger audit.AuditLogger
	// HealthPinger is used by /healthz (e.g. *sql.DB). If nil, the database check is skipped.
	HealthPinger healthhandler.Pinger
	// HealthPolicyChecker is used by /healthz (e.g. the OPA evaluator). If nil, the policy check is skipped.
	HealthPolicyChecker healthhandler.PolicyChecker
	// Metrics is served on /metrics. If nil, the route is not registered.
	Metrics prometheus.Gatherer
	// DevOutbox serves /dev/outbox/{subjectID} and exposes submit tokens. Set only outside production.
	DevOutbox devotp.Store
	// ServiceName names the otelhttp spans.
	ServiceName string
}

// NewRouter returns the instrumented HTTP handler.
//
// Route → handler mapping:
//   - /v1/change-requests/...  → internal/changerequest/handler
//   - /v1/admin/...            → internal/alert/handler
//   - /healthz                 → internal/health/handler
//   - /dev/outbox/{subjectID}  → internal/devotp/handler
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(httpx.SecurityHeaders)
	r.Use(middleware.Origin)
	r.Use(middleware.Identity)

	r.Method(http.MethodGet, "/healthz", healthhandler.New(d.HealthPinger, d.HealthPolicyChecker))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Metrics, promhttp.HandlerOpts{}))
	}

	crhandler.New(d.Workflow, d.DevOutbox != nil).Register(r)
	var readAudit func(http.Handler) http.Handler
	if d.AuditLogger != nil {
		readAudit = middleware.AdminReadAudit(d.AuditLogger)
	}
	alerthandler.New(d.Workflow, readAudit).Register(r)
	if d.DevOutbox != nil {
		devotphandler.New(d.DevOutbox).Register(r)
	}

	name := d.ServiceName
	if name == "" {
		name = "attribute-change-control"
	}
	return otelhttp.NewHandler(r, name)
}
