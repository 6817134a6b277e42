package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"attribute-change-control/backend/internal/devotp"
)

func TestOutbox(t *testing.T) {
	store := devotp.NewMemoryStore()
	if err := store.Send(context.Background(), "+15550100", "otp_code", map[string]string{"subject_id": "s1", "code": "424242"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	r := chi.NewRouter()
	New(store).Register(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dev/outbox/s1", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "424242") {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dev/outbox/nobody", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown subject: status = %d", rec.Code)
	}
}
