// Package middleware holds the chi middleware of the HTTP surface: caller identity set by the
// authenticating gateway, request origin, and the admin read audit.
package middleware

import (
	"net/http"
	"strings"

	"attribute-change-control/backend/internal/server/httpx"
	"attribute-change-control/backend/internal/workflow"
)

// Identity headers set by the upstream gateway after it has authenticated the caller.
const (
	HeaderSubjectID  = "X-Subject-ID"
	HeaderReviewerID = "X-Reviewer-ID"
)

// Identity copies the gateway identity headers into the request context.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if v := strings.TrimSpace(r.Header.Get(HeaderSubjectID)); v != "" {
			ctx = WithSubject(ctx, v)
		}
		if v := strings.TrimSpace(r.Header.Get(HeaderReviewerID)); v != "" {
			ctx = WithReviewer(ctx, v)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSubject rejects requests without a subject identity with 401.
func RequireSubject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetSubjectID(r.Context()); !ok {
			httpx.Error(w, http.StatusUnauthorized, workflow.CodeValidation, "missing subject identity")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireReviewer rejects requests without a reviewer identity with 401.
func RequireReviewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetReviewerID(r.Context()); !ok {
			httpx.Error(w, http.StatusUnauthorized, workflow.CodeValidation, "missing reviewer identity")
			return
		}
		next.ServeHTTP(w, r)
	})
}
