// Package memory is an in-process implementation of store.UnitOfWork. Transactions are
// serialized by one mutex and applied by swapping in a modified copy of the state, so a
// failed fn leaves no trace. Used by tests and by the server when no DATABASE_URL is set.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	alertdomain "attribute-change-control/backend/internal/alert/domain"
	alertrepo "attribute-change-control/backend/internal/alert/repository"
	auditdomain "attribute-change-control/backend/internal/audit/domain"
	crdomain "attribute-change-control/backend/internal/changerequest/domain"
	"attribute-change-control/backend/internal/eligibility"
	otpdomain "attribute-change-control/backend/internal/otp/domain"
	"attribute-change-control/backend/internal/store"
	subjectdomain "attribute-change-control/backend/internal/subject/domain"
)

// ErrConflict mirrors a unique-constraint violation.
var ErrConflict = errors.New("memory store: unique constraint violated")

type state struct {
	subjects   map[string]subjectdomain.Subject
	requests   map[string]crdomain.ChangeRequest
	challenges map[string]otpdomain.Challenge // keyed by request id
	alerts     map[string]alertdomain.Alert
	audit      []auditdomain.AuditLog
}

func newState() *state {
	return &state{
		subjects:   make(map[string]subjectdomain.Subject),
		requests:   make(map[string]crdomain.ChangeRequest),
		challenges: make(map[string]otpdomain.Challenge),
		alerts:     make(map[string]alertdomain.Alert),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.subjects {
		c.subjects[k] = v
	}
	for k, v := range s.requests {
		c.requests[k] = v
	}
	for k, v := range s.challenges {
		c.challenges[k] = v
	}
	for k, v := range s.alerts {
		c.alerts[k] = v
	}
	c.audit = append([]auditdomain.AuditLog(nil), s.audit...)
	return c
}

// Store implements store.UnitOfWork in memory.
type Store struct {
	mu    sync.Mutex
	state *state
}

func New() *Store {
	return &Store{state: newState()}
}

// RunInTx runs fn against a private copy of the state and commits it only if fn returns nil.
func (s *Store) RunInTx(ctx context.Context, fn func(r store.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	if err := fn(bind(func(f func(*state) error) error { return f(work) })); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Reader returns repositories that operate on the committed state, one call at a time.
func (s *Store) Reader() store.Repos {
	return bind(func(f func(*state) error) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return f(s.state)
	})
}

type access func(func(*state) error) error

func bind(with access) store.Repos {
	return store.Repos{
		Subjects:   &subjects{with},
		Requests:   &requests{with},
		Challenges: &challenges{with},
		Alerts:     &alerts{with},
		Audit:      &audits{with},
	}
}

type subjects struct{ with access }

func (r *subjects) GetByID(_ context.Context, id string) (*subjectdomain.Subject, error) {
	var out *subjectdomain.Subject
	err := r.with(func(s *state) error {
		if v, ok := s.subjects[id]; ok {
			out = &v
		}
		return nil
	})
	return out, err
}

func (r *subjects) GetByIDForUpdate(ctx context.Context, id string) (*subjectdomain.Subject, error) {
	return r.GetByID(ctx, id)
}

func (r *subjects) Create(_ context.Context, v *subjectdomain.Subject) error {
	return r.with(func(s *state) error {
		if _, ok := s.subjects[v.ID]; ok {
			return fmt.Errorf("create subject %s: %w", v.ID, ErrConflict)
		}
		for _, o := range s.subjects {
			if o.Email == v.Email {
				return fmt.Errorf("create subject email %s: %w", v.Email, ErrConflict)
			}
		}
		s.subjects[v.ID] = *v
		return nil
	})
}

func (r *subjects) CommitAttributeChange(_ context.Context, id, value string, ledger eligibility.Ledger, at time.Time) error {
	return r.with(func(s *state) error {
		v, ok := s.subjects[id]
		if !ok {
			return fmt.Errorf("commit attribute change: subject %s not found", id)
		}
		v.Attribute = value
		v.ChangeCount = ledger.ChangeCount
		v.LastChangeAt = ledger.LastChangeAt
		v.UpdatedAt = at
		s.subjects[id] = v
		return nil
	})
}

type requests struct{ with access }

func (r *requests) Create(_ context.Context, v *crdomain.ChangeRequest) error {
	return r.with(func(s *state) error {
		if _, ok := s.requests[v.ID]; ok {
			return fmt.Errorf("create change request %s: %w", v.ID, ErrConflict)
		}
		for _, o := range s.requests {
			if o.SubjectID == v.SubjectID && crdomain.IsActive(o.Status) && crdomain.IsActive(v.Status) {
				return fmt.Errorf("create change request: active request exists for %s: %w", v.SubjectID, ErrConflict)
			}
			if v.TokenHash != "" && o.TokenHash == v.TokenHash {
				return fmt.Errorf("create change request: token hash: %w", ErrConflict)
			}
		}
		s.requests[v.ID] = *v
		return nil
	})
}

func (r *requests) GetByID(_ context.Context, id string) (*crdomain.ChangeRequest, error) {
	return r.find(func(v crdomain.ChangeRequest) bool { return v.ID == id })
}

func (r *requests) GetByIDForUpdate(ctx context.Context, id string) (*crdomain.ChangeRequest, error) {
	return r.GetByID(ctx, id)
}

func (r *requests) GetByTokenHashForUpdate(_ context.Context, tokenHash string) (*crdomain.ChangeRequest, error) {
	if tokenHash == "" {
		return nil, nil
	}
	return r.find(func(v crdomain.ChangeRequest) bool { return v.TokenHash == tokenHash })
}

func (r *requests) GetActiveBySubjectForUpdate(_ context.Context, subjectID string) (*crdomain.ChangeRequest, error) {
	return r.find(func(v crdomain.ChangeRequest) bool { return v.SubjectID == subjectID && crdomain.IsActive(v.Status) })
}

func (r *requests) LatestTerminalBySubject(_ context.Context, subjectID string) (*crdomain.ChangeRequest, error) {
	var out *crdomain.ChangeRequest
	err := r.with(func(s *state) error {
		for _, v := range s.requests {
			if v.SubjectID != subjectID || !crdomain.IsTerminal(v.Status) {
				continue
			}
			if out == nil || v.UpdatedAt.After(out.UpdatedAt) {
				v := v
				out = &v
			}
		}
		return nil
	})
	return out, err
}

func (r *requests) Update(_ context.Context, v *crdomain.ChangeRequest) error {
	return r.with(func(s *state) error {
		if _, ok := s.requests[v.ID]; !ok {
			return fmt.Errorf("update change request: %s not found", v.ID)
		}
		s.requests[v.ID] = *v
		return nil
	})
}

func (r *requests) ListExpiredPending(_ context.Context, now time.Time, limit int) ([]*crdomain.ChangeRequest, error) {
	var out []*crdomain.ChangeRequest
	err := r.with(func(s *state) error {
		for _, v := range s.requests {
			if v.Status == crdomain.StatusPending && v.TokenExpiresAt.Before(now) {
				v := v
				out = append(out, &v)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].TokenExpiresAt.Before(out[j].TokenExpiresAt) })
	return truncate(out, limit), err
}

func (r *requests) ListExpiredOTPPending(_ context.Context, now time.Time, limit int) ([]*crdomain.ChangeRequest, error) {
	type row struct {
		req *crdomain.ChangeRequest
		exp time.Time
	}
	var rows []row
	err := r.with(func(s *state) error {
		for _, v := range s.requests {
			if v.Status != crdomain.StatusOTPPending {
				continue
			}
			c, ok := s.challenges[v.ID]
			if ok && c.ExpiresAt.Before(now) {
				v := v
				rows = append(rows, row{&v, c.ExpiresAt})
			}
		}
		return nil
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].exp.Before(rows[j].exp) })
	out := make([]*crdomain.ChangeRequest, 0, len(rows))
	for _, rw := range rows {
		out = append(out, rw.req)
	}
	return truncate(out, limit), err
}

func (r *requests) find(match func(crdomain.ChangeRequest) bool) (*crdomain.ChangeRequest, error) {
	var out *crdomain.ChangeRequest
	err := r.with(func(s *state) error {
		for _, v := range s.requests {
			if match(v) {
				v := v
				out = &v
				return nil
			}
		}
		return nil
	})
	return out, err
}

type challenges struct{ with access }

func (r *challenges) Create(_ context.Context, v *otpdomain.Challenge) error {
	return r.with(func(s *state) error {
		if _, ok := s.requests[v.RequestID]; !ok {
			return fmt.Errorf("create otp challenge: request %s not found", v.RequestID)
		}
		if _, ok := s.challenges[v.RequestID]; ok {
			return fmt.Errorf("create otp challenge for %s: %w", v.RequestID, ErrConflict)
		}
		s.challenges[v.RequestID] = *v
		return nil
	})
}

func (r *challenges) GetByRequestIDForUpdate(_ context.Context, requestID string) (*otpdomain.Challenge, error) {
	var out *otpdomain.Challenge
	err := r.with(func(s *state) error {
		if v, ok := s.challenges[requestID]; ok {
			out = &v
		}
		return nil
	})
	return out, err
}

func (r *challenges) Update(_ context.Context, v *otpdomain.Challenge) error {
	return r.with(func(s *state) error {
		cur, ok := s.challenges[v.RequestID]
		if !ok || cur.ID != v.ID {
			return nil
		}
		s.challenges[v.RequestID] = *v
		return nil
	})
}

func (r *challenges) DeleteByRequestID(_ context.Context, requestID string) error {
	return r.with(func(s *state) error {
		delete(s.challenges, requestID)
		return nil
	})
}

type alerts struct{ with access }

func (r *alerts) Create(_ context.Context, v *alertdomain.Alert) error {
	return r.with(func(s *state) error {
		if _, ok := s.alerts[v.ID]; ok {
			return fmt.Errorf("create alert %s: %w", v.ID, ErrConflict)
		}
		s.alerts[v.ID] = *v
		return nil
	})
}

func (r *alerts) GetByID(_ context.Context, id string) (*alertdomain.Alert, error) {
	var out *alertdomain.Alert
	err := r.with(func(s *state) error {
		if v, ok := s.alerts[id]; ok {
			out = &v
		}
		return nil
	})
	return out, err
}

func (r *alerts) GetByIDForUpdate(ctx context.Context, id string) (*alertdomain.Alert, error) {
	return r.GetByID(ctx, id)
}

func (r *alerts) Update(_ context.Context, v *alertdomain.Alert) error {
	return r.with(func(s *state) error {
		if _, ok := s.alerts[v.ID]; !ok {
			return fmt.Errorf("update alert: %s not found", v.ID)
		}
		s.alerts[v.ID] = *v
		return nil
	})
}

func (r *alerts) List(_ context.Context, f alertrepo.Filter) ([]*alertdomain.Alert, error) {
	var out []*alertdomain.Alert
	err := r.with(func(s *state) error {
		for _, v := range s.alerts {
			if f.Status != "" && v.Status != f.Status {
				continue
			}
			if f.SubjectID != "" && v.SubjectID != f.SubjectID {
				continue
			}
			v := v
			out = append(out, &v)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, err
		}
		out = out[f.Offset:]
	}
	limit := f.Limit
	if limit <= 0 {
		limit = alertrepo.DefaultListLimit
	}
	return truncate(out, limit), err
}

func (r *alerts) ListOverdue(_ context.Context, now time.Time, limit int) ([]*alertdomain.Alert, error) {
	var out []*alertdomain.Alert
	err := r.with(func(s *state) error {
		for _, v := range s.alerts {
			if v.Status == alertdomain.StatusPending && v.ExpiresAt.Before(now) {
				v := v
				out = append(out, &v)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return truncate(out, limit), err
}

type audits struct{ with access }

func (r *audits) Create(_ context.Context, v *auditdomain.AuditLog) error {
	return r.with(func(s *state) error {
		s.audit = append(s.audit, *v)
		return nil
	})
}

func (r *audits) ListBySubject(_ context.Context, subjectID string, limit, offset int) ([]*auditdomain.AuditLog, error) {
	var out []*auditdomain.AuditLog
	err := r.with(func(s *state) error {
		for i := len(s.audit) - 1; i >= 0; i-- {
			if s.audit[i].SubjectID == subjectID {
				v := s.audit[i]
				out = append(out, &v)
			}
		}
		return nil
	})
	if offset > 0 {
		if offset >= len(out) {
			return nil, err
		}
		out = out[offset:]
	}
	return truncate(out, limit), err
}

func truncate[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
