// Package handler exposes the reviewer queue over HTTP.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	alertdomain "attribute-change-control/backend/internal/alert/domain"
	auditdomain "attribute-change-control/backend/internal/audit/domain"
	"attribute-change-control/backend/internal/server/httpx"
	"attribute-change-control/backend/internal/server/middleware"
	"attribute-change-control/backend/internal/workflow"
)

// Service is the part of the workflow reviewers drive.
type Service interface {
	ListAlerts(ctx context.Context, f workflow.AlertFilter) ([]*alertdomain.Alert, error)
	ClaimAlert(ctx context.Context, alertID, reviewerID string) (*alertdomain.Alert, error)
	Resolve(ctx context.Context, in workflow.ResolveInput) (*workflow.Resolution, error)
	AuditTrail(ctx context.Context, subjectID string, limit, offset int) ([]*auditdomain.AuditLog, error)
}

// Handler serves /v1/admin.
type Handler struct {
	svc Service
	// readAudit wraps read routes; nil means reads are not audited.
	readAudit func(http.Handler) http.Handler
}

// New returns a Handler. readAudit, when set, records reviewer reads.
func New(svc Service, readAudit func(http.Handler) http.Handler) *Handler {
	return &Handler{svc: svc, readAudit: readAudit}
}

// Register mounts the admin routes on r. All of them need a reviewer identity.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireReviewer)
		r.Post("/v1/admin/alerts/{id}/claim", h.handleClaim)
		r.Post("/v1/admin/alerts/{id}/resolve", h.handleResolve)
		r.Group(func(r chi.Router) {
			if h.readAudit != nil {
				r.Use(h.readAudit)
			}
			r.Get("/v1/admin/alerts", h.handleList)
			r.Get("/v1/admin/subjects/{subjectID}/audit", h.handleAuditTrail)
		})
	})
}

// AlertView is the JSON shape of an alert.
type AlertView struct {
	ID         string     `json:"id"`
	SubjectID  string     `json:"subject_id"`
	RequestID  string     `json:"request_id,omitempty"`
	Category   string     `json:"category"`
	Priority   string     `json:"priority"`
	Status     string     `json:"status"`
	ReviewerID string     `json:"reviewer_id,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

func toView(a *alertdomain.Alert) AlertView {
	return AlertView{
		ID:         a.ID,
		SubjectID:  a.SubjectID,
		RequestID:  a.RequestID,
		Category:   a.Category,
		Priority:   string(a.Priority),
		Status:     string(a.Status),
		ReviewerID: a.ReviewerID,
		ReviewedAt: a.ReviewedAt,
		Notes:      a.Notes,
		ExpiresAt:  a.ExpiresAt,
		CreatedAt:  a.CreatedAt,
	}
}

type auditView struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actor_id"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	IP        string    `json:"ip"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type resolveRequest struct {
	Decision string `json:"decision"`
	Notes    string `json:"notes"`
}

type resolutionResponse struct {
	AlertID       string `json:"alert_id"`
	AlertStatus   string `json:"alert_status"`
	RequestID     string `json:"request_id,omitempty"`
	RequestStatus string `json:"request_status,omitempty"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok1 := intParam(q.Get("limit"))
	offset, ok2 := intParam(q.Get("offset"))
	if !ok1 || !ok2 {
		httpx.Error(w, http.StatusBadRequest, workflow.CodeValidation, "limit and offset must be integers")
		return
	}
	alerts, err := h.svc.ListAlerts(r.Context(), workflow.AlertFilter{
		Status:    q.Get("status"),
		SubjectID: q.Get("subject_id"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	out := make([]AlertView, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toView(a))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"alerts": out})
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	reviewerID, _ := middleware.GetReviewerID(r.Context())
	a, err := h.svc.ClaimAlert(r.Context(), chi.URLParam(r, "id"), reviewerID)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toView(a))
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reviewerID, _ := middleware.GetReviewerID(ctx)
	var req resolveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, workflow.CodeValidation, "invalid request body")
		return
	}
	res, err := h.svc.Resolve(ctx, workflow.ResolveInput{
		AlertID:    chi.URLParam(r, "id"),
		ReviewerID: reviewerID,
		Decision:   req.Decision,
		Notes:      req.Notes,
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resolutionResponse{
		AlertID:       res.AlertID,
		AlertStatus:   string(res.AlertStatus),
		RequestID:     res.RequestID,
		RequestStatus: string(res.RequestStatus),
	})
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, ok1 := intParam(q.Get("limit"))
	offset, ok2 := intParam(q.Get("offset"))
	if !ok1 || !ok2 {
		httpx.Error(w, http.StatusBadRequest, workflow.CodeValidation, "limit and offset must be integers")
		return
	}
	logs, err := h.svc.AuditTrail(r.Context(), chi.URLParam(r, "subjectID"), limit, offset)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	out := make([]auditView, 0, len(logs))
	for _, l := range logs {
		out = append(out, auditView{
			ID:        l.ID,
			ActorID:   l.ActorID,
			Action:    l.Action,
			Resource:  l.Resource,
			IP:        l.IP,
			Metadata:  l.Metadata,
			CreatedAt: l.CreatedAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"entries": out})
}

// intParam parses an optional non-negative query integer; empty means zero.
func intParam(s string) (int, bool) {
	if s == "" {
		return 0, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
