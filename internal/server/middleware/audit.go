package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"attribute-change-control/backend/internal/audit"
)

// AdminReadAudit records an audit row for each successful admin read (queue listing, audit trail).
// Mutations are audited by the workflow inside their own transaction and are skipped here.
// Best-effort: the row is written after the response.
func AdminReadAudit(logger audit.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			if logger == nil || r.Method != http.MethodGet || ww.Status() >= http.StatusBadRequest {
				return
			}
			pattern := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				pattern = rc.RoutePattern()
			}
			ar := audit.ParseRoute(r.Method, pattern)
			reviewerID, _ := GetReviewerID(r.Context())
			subjectID := chi.URLParam(r, "subjectID")
			if subjectID == "" {
				subjectID = r.URL.Query().Get("subject_id")
			}
			meta := map[string]string{"path": r.URL.Path}
			if c := audit.OriginFrom(r.Context()).Client; c != "" {
				meta["client"] = c
			}
			logger.LogEvent(r.Context(), subjectID, reviewerID, ar.Action, ar.Resource, meta)
		})
	}
}
