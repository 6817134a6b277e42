// Package handler exposes the subject-facing change request routes over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"attribute-change-control/backend/internal/audit"
	crdomain "attribute-change-control/backend/internal/changerequest/domain"
	"attribute-change-control/backend/internal/server/httpx"
	"attribute-change-control/backend/internal/server/middleware"
	"attribute-change-control/backend/internal/workflow"
)

// Service is the part of the workflow these routes drive.
type Service interface {
	Submit(ctx context.Context, in workflow.SubmitInput) (*workflow.SubmitResult, error)
	Confirm(ctx context.Context, token, action string) (*workflow.Outcome, error)
	VerifyCode(ctx context.Context, subjectID, code string) (*workflow.Outcome, error)
	ResendCode(ctx context.Context, subjectID string) error
	GetRequest(ctx context.Context, requestID string) (*crdomain.ChangeRequest, error)
}

// Handler serves /v1/change-requests.
type Handler struct {
	svc Service
	// exposeToken returns the bearer token in the submit response. Dev capture only; in production
	// the token reaches the subject through the confirmation link alone.
	exposeToken bool
}

// New returns a Handler for svc.
func New(svc Service, exposeToken bool) *Handler {
	return &Handler{svc: svc, exposeToken: exposeToken}
}

// Register mounts the routes on r. The confirmation link is public; everything else needs a subject.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/change-requests/confirm", h.handleConfirm)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSubject)
		r.Post("/v1/change-requests", h.handleSubmit)
		r.Post("/v1/change-requests/otp", h.handleVerifyCode)
		r.Post("/v1/change-requests/otp/resend", h.handleResendCode)
		r.Get("/v1/change-requests/{id}", h.handleGet)
	})
}

type submitRequest struct {
	RequestedValue string `json:"requested_value"`
	Reason         string `json:"reason"`
}

type submitResponse struct {
	RequestID string    `json:"request_id"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

type outcomeResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	AlertID   string `json:"alert_id,omitempty"`
}

type verifyRequest struct {
	Code string `json:"code"`
}

// RequestView is the JSON shape of a change request. The token hash is never exposed.
type RequestView struct {
	ID              string     `json:"id"`
	SubjectID       string     `json:"subject_id"`
	CurrentValue    string     `json:"current_value"`
	RequestedValue  string     `json:"requested_value"`
	Status          string     `json:"status"`
	TokenExpiresAt  time.Time  `json:"token_expires_at"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	Reason          string     `json:"reason,omitempty"`
	OutcomeReason   string     `json:"outcome_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toView(r *crdomain.ChangeRequest) RequestView {
	return RequestView{
		ID:              r.ID,
		SubjectID:       r.SubjectID,
		CurrentValue:    r.CurrentValue,
		RequestedValue:  r.RequestedValue,
		Status:          string(r.Status),
		TokenExpiresAt:  r.TokenExpiresAt,
		EmailVerifiedAt: r.EmailVerifiedAt,
		Reason:          r.Reason,
		OutcomeReason:   r.OutcomeReason,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func toOutcome(o *workflow.Outcome) outcomeResponse {
	return outcomeResponse{RequestID: o.RequestID, Status: string(o.Status), AlertID: o.AlertID}
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, _ := middleware.GetSubjectID(ctx)
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, workflow.CodeValidation, "invalid request body")
		return
	}
	origin := audit.OriginFrom(ctx)
	res, err := h.svc.Submit(ctx, workflow.SubmitInput{
		SubjectID:      subjectID,
		RequestedValue: req.RequestedValue,
		Reason:         req.Reason,
		Context:        crdomain.RequestContext{IP: origin.IP, UserAgent: origin.UserAgent},
	})
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	out := submitResponse{RequestID: res.RequestID, ExpiresAt: res.ExpiresAt}
	if h.exposeToken {
		out.Token = res.Token
	}
	httpx.WriteJSON(w, http.StatusCreated, out)
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	out, err := h.svc.Confirm(r.Context(), q.Get("token"), q.Get("action"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toOutcome(out))
}

func (h *Handler) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, _ := middleware.GetSubjectID(ctx)
	var req verifyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, workflow.CodeValidation, "invalid request body")
		return
	}
	out, err := h.svc.VerifyCode(ctx, subjectID, req.Code)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toOutcome(out))
}

func (h *Handler) handleResendCode(w http.ResponseWriter, r *http.Request) {
	subjectID, _ := middleware.GetSubjectID(r.Context())
	if err := h.svc.ResendCode(r.Context(), subjectID); err != nil {
		httpx.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleGet returns the request only to its own subject; other callers see REQUEST_NOT_FOUND.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID, _ := middleware.GetSubjectID(ctx)
	req, err := h.svc.GetRequest(ctx, chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	if req.SubjectID != subjectID {
		httpx.WriteError(w, workflow.ErrRequestNotFound)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toView(req))
}
