// Package store groups the per-feature repositories behind a unit of work so that every
// pipeline operation commits or rolls back as one transaction.
//
// Lock order. A transaction that holds more than one row lock takes them as
// alert, then subject, then change request, then OTP challenge, skipping any it does not need.
// Confirm and verify lock the request only and read the subject without a lock. The sweeper
// locks with SKIP LOCKED and never waits. Subject locks are NO KEY UPDATE, so inserting a row
// that references a locked subject does not wait on it.
package store

import (
	"context"

	alertrepo "attribute-change-control/backend/internal/alert/repository"
	auditrepo "attribute-change-control/backend/internal/audit/repository"
	crrepo "attribute-change-control/backend/internal/changerequest/repository"
	otprepo "attribute-change-control/backend/internal/otp/repository"
	subjectrepo "attribute-change-control/backend/internal/subject/repository"
)

// Repos is the set of repositories bound to one transaction (or to no transaction for Reader).
type Repos struct {
	Subjects   subjectrepo.Repository
	Requests   crrepo.Repository
	Challenges otprepo.Repository
	Alerts     alertrepo.Repository
	Audit      auditrepo.Repository
}

// UnitOfWork runs fn inside a transaction. Returning an error from fn rolls back every write made
// through the Repos passed to it.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(r Repos) error) error
	// Reader returns repositories for reads outside a transaction.
	Reader() Repos
}
