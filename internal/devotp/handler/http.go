// Package handler serves the dev outbox. Registered only outside production.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"attribute-change-control/backend/internal/devotp"
	"attribute-change-control/backend/internal/server/httpx"
	"attribute-change-control/backend/internal/workflow"
)

// Handler serves GET /dev/outbox/{subjectID}.
type Handler struct {
	store devotp.Store
}

// New returns a Handler reading from store.
func New(store devotp.Store) *Handler {
	return &Handler{store: store}
}

// Register mounts the outbox route on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/dev/outbox/{subjectID}", h.handleOutbox)
}

func (h *Handler) handleOutbox(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "subjectID")
	msgs, ok := h.store.Get(r.Context(), subjectID)
	if !ok {
		httpx.Error(w, http.StatusNotFound, workflow.CodeSubjectNotFound, "no captured messages")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{"subject_id": subjectID, "messages": msgs})
}
