// Package httpx holds the JSON and error-mapping helpers shared by the HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"attribute-change-control/backend/internal/workflow"
)

// maxBodyBytes bounds request bodies read by DecodeJSON.
const maxBodyBytes = 64 << 10

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code              string     `json:"code"`
	Message           string     `json:"message"`
	NextEligibleAt    *time.Time `json:"next_eligible_at,omitempty"`
	RemainingAttempts *int       `json:"remaining_attempts,omitempty"`
}

var statusByCode = map[workflow.Code]int{
	workflow.CodeValidation:              http.StatusBadRequest,
	workflow.CodeNotEligible:             http.StatusForbidden,
	workflow.CodeAlreadyPending:          http.StatusConflict,
	workflow.CodeTokenInvalid:            http.StatusBadRequest,
	workflow.CodeTokenExpired:            http.StatusGone,
	workflow.CodeAlreadyVerified:         http.StatusConflict,
	workflow.CodeOTPExpired:              http.StatusGone,
	workflow.CodeOTPMismatch:             http.StatusUnprocessableEntity,
	workflow.CodeOTPAttemptsExceeded:     http.StatusLocked,
	workflow.CodeAlertNotFound:           http.StatusNotFound,
	workflow.CodeAlertAlreadyResolved:    http.StatusConflict,
	workflow.CodeAlertAlreadyClaimed:     http.StatusConflict,
	workflow.CodeSubjectNotFound:         http.StatusNotFound,
	workflow.CodeRequestNotFound:         http.StatusNotFound,
	workflow.CodeRateLimited:             http.StatusTooManyRequests,
	workflow.CodeNotificationUnavailable: http.StatusServiceUnavailable,
	workflow.CodePersistence:             http.StatusInternalServerError,
}

// StatusFor maps a workflow error code to its HTTP status.
func StatusFor(code workflow.Code) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("httpx: encode response: %v", err)
	}
}

// WriteError maps err to a status and writes the error body. Non-workflow errors are logged and
// reported as PERSISTENCE_ERROR without their text.
func WriteError(w http.ResponseWriter, err error) {
	we := workflow.AsError(err)
	if we == nil {
		log.Printf("httpx: internal error: %v", err)
		WriteJSON(w, http.StatusInternalServerError, ErrorBody{
			Code:    string(workflow.CodePersistence),
			Message: "internal error",
		})
		return
	}
	msg := we.Message
	if we.Code == workflow.CodePersistence {
		log.Printf("httpx: persistence error: %v", err)
		msg = "internal error"
	}
	if msg == "" {
		msg = string(we.Code)
	}
	WriteJSON(w, StatusFor(we.Code), ErrorBody{
		Code:              string(we.Code),
		Message:           msg,
		NextEligibleAt:    we.NextEligibleAt,
		RemainingAttempts: we.RemainingAttempts,
	})
}

// Error writes a VALIDATION_ERROR style body with an explicit status, for failures caught before
// the workflow runs (missing identity, bad JSON).
func Error(w http.ResponseWriter, status int, code workflow.Code, msg string) {
	WriteJSON(w, status, ErrorBody{Code: string(code), Message: msg})
}

// DecodeJSON reads a bounded JSON body into dst. An empty body leaves dst untouched.
func DecodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// SecurityHeaders sets conservative response headers for a JSON API.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
