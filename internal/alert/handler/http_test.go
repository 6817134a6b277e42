package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	alertdomain "attribute-change-control/backend/internal/alert/domain"
	auditdomain "attribute-change-control/backend/internal/audit/domain"
	crdomain "attribute-change-control/backend/internal/changerequest/domain"
	"attribute-change-control/backend/internal/server/middleware"
	"attribute-change-control/backend/internal/workflow"
)

type fakeService struct {
	filter    workflow.AlertFilter
	claimedBy string
	resolveIn workflow.ResolveInput
	trailFor  string
	err       error
}

func (f *fakeService) ListAlerts(_ context.Context, fl workflow.AlertFilter) ([]*alertdomain.Alert, error) {
	f.filter = fl
	if f.err != nil {
		return nil, f.err
	}
	return []*alertdomain.Alert{{ID: "al-1", SubjectID: "s1", Status: alertdomain.StatusPending, Priority: alertdomain.PriorityHigh}}, nil
}

func (f *fakeService) ClaimAlert(_ context.Context, alertID, reviewerID string) (*alertdomain.Alert, error) {
	f.claimedBy = reviewerID
	if f.err != nil {
		return nil, f.err
	}
	return &alertdomain.Alert{ID: alertID, Status: alertdomain.StatusInReview, ReviewerID: reviewerID}, nil
}

func (f *fakeService) Resolve(_ context.Context, in workflow.ResolveInput) (*workflow.Resolution, error) {
	f.resolveIn = in
	if f.err != nil {
		return nil, f.err
	}
	return &workflow.Resolution{AlertID: in.AlertID, AlertStatus: alertdomain.StatusResolved, RequestID: "req-1", RequestStatus: crdomain.StatusApproved}, nil
}

func (f *fakeService) AuditTrail(_ context.Context, subjectID string, _, _ int) ([]*auditdomain.AuditLog, error) {
	f.trailFor = subjectID
	return []*auditdomain.AuditLog{{ID: "l1", Action: "change_request_submitted"}}, f.err
}

func serve(t *testing.T, svc Service, readAudit func(http.Handler) http.Handler, method, path, reviewer, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Use(middleware.Identity)
	New(svc, readAudit).Register(r)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if reviewer != "" {
		req.Header.Set(middleware.HeaderReviewerID, reviewer)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestList(t *testing.T) {
	svc := &fakeService{}
	rec := serve(t, svc, nil, http.MethodGet, "/v1/admin/alerts?status=pending&subject_id=s1&limit=5&offset=10", "rev", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"priority":"high"`) {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	want := workflow.AlertFilter{Status: "pending", SubjectID: "s1", Limit: 5, Offset: 10}
	if svc.filter != want {
		t.Errorf("filter = %+v", svc.filter)
	}
	if rec := serve(t, svc, nil, http.MethodGet, "/v1/admin/alerts?limit=-1", "rev", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit: status = %d", rec.Code)
	}
	if rec := serve(t, svc, nil, http.MethodGet, "/v1/admin/alerts", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no reviewer: status = %d", rec.Code)
	}
}

func TestClaim(t *testing.T) {
	svc := &fakeService{}
	rec := serve(t, svc, nil, http.MethodPost, "/v1/admin/alerts/al-1/claim", "rev-1", "")
	if rec.Code != http.StatusOK || svc.claimedBy != "rev-1" {
		t.Fatalf("status = %d claimedBy=%q", rec.Code, svc.claimedBy)
	}
	svc.err = workflow.ErrAlertAlreadyClaimed
	if rec := serve(t, svc, nil, http.MethodPost, "/v1/admin/alerts/al-1/claim", "rev-2", ""); rec.Code != http.StatusConflict {
		t.Errorf("claimed: status = %d", rec.Code)
	}
}

func TestResolve(t *testing.T) {
	svc := &fakeService{}
	rec := serve(t, svc, nil, http.MethodPost, "/v1/admin/alerts/al-1/resolve", "rev-1", `{"decision":"approve","notes":"docs checked"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"request_status":"APPROVED"`) {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	want := workflow.ResolveInput{AlertID: "al-1", ReviewerID: "rev-1", Decision: "approve", Notes: "docs checked"}
	if svc.resolveIn != want {
		t.Errorf("resolve input = %+v", svc.resolveIn)
	}
	svc.err = workflow.ErrAlertAlreadyResolved
	if rec := serve(t, svc, nil, http.MethodPost, "/v1/admin/alerts/al-1/resolve", "rev-1", `{"decision":"approve"}`); rec.Code != http.StatusConflict {
		t.Errorf("resolved: status = %d", rec.Code)
	}
}

func TestAuditTrailIsAudited(t *testing.T) {
	svc := &fakeService{}
	audited := 0
	readAudit := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			audited++
			next.ServeHTTP(w, r)
		})
	}
	rec := serve(t, svc, readAudit, http.MethodGet, "/v1/admin/subjects/s-7/audit", "rev-1", "")
	if rec.Code != http.StatusOK || svc.trailFor != "s-7" {
		t.Fatalf("status = %d trailFor=%q", rec.Code, svc.trailFor)
	}
	if audited != 1 {
		t.Errorf("audited = %d", audited)
	}
	serve(t, svc, readAudit, http.MethodPost, "/v1/admin/alerts/al-1/claim", "rev-1", "")
	if audited != 1 {
		t.Error("mutations must not pass through the read audit")
	}
}
