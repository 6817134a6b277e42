package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	alertrepo "attribute-change-control/backend/internal/alert/repository"
	auditrepo "attribute-change-control/backend/internal/audit/repository"
	crrepo "attribute-change-control/backend/internal/changerequest/repository"
	"attribute-change-control/backend/internal/db"
	otprepo "attribute-change-control/backend/internal/otp/repository"
	subjectrepo "attribute-change-control/backend/internal/subject/repository"
)

const defaultTxTimeout = 5 * time.Second

// Postgres implements UnitOfWork over a *sql.DB.
type Postgres struct {
	db      *sql.DB
	timeout time.Duration
}

// NewPostgres returns a unit of work for conn. timeout bounds each transaction when the
// caller's context has no deadline; zero uses the default.
func NewPostgres(conn *sql.DB, timeout time.Duration) *Postgres {
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return &Postgres{db: conn, timeout: timeout}
}

// RunInTx begins a read-committed transaction; row locks taken by ForUpdate reads serialize
// concurrent callers on the same request, challenge, or alert.
func (p *Postgres) RunInTx(ctx context.Context, fn func(r Repos) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(bind(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (p *Postgres) Reader() Repos {
	return bind(p.db)
}

func bind(conn db.DBTX) Repos {
	return Repos{
		Subjects:   subjectrepo.NewPostgresRepository(conn),
		Requests:   crrepo.NewPostgresRepository(conn),
		Challenges: otprepo.NewPostgresRepository(conn),
		Alerts:     alertrepo.NewPostgresRepository(conn),
		Audit:      auditrepo.NewPostgresRepository(conn),
	}
}
