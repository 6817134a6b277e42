package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"attribute-change-control/backend/internal/db"
	"attribute-change-control/backend/internal/eligibility"
	"attribute-change-control/backend/internal/subject/domain"
)

const subjectColumns = `id, email, phone, phone_verified, attribute, change_count, last_change_at, created_at, updated_at`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a subject repository that uses the given db or transaction.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the subject for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Subject, error) {
	return r.get(ctx, `SELECT `+subjectColumns+` FROM subjects WHERE id = $1`, id)
}

// GetByIDForUpdate is GetByID with a row lock. The lock is NO KEY UPDATE so foreign key inserts
// (alerts, requests) against a locked subject do not block.
func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Subject, error) {
	return r.get(ctx, `SELECT `+subjectColumns+` FROM subjects WHERE id = $1 FOR NO KEY UPDATE`, id)
}

// Create persists the subject. The subject must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Subject) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO subjects (`+subjectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.Email, sql.NullString{String: s.Phone, Valid: s.Phone != ""}, s.PhoneVerified,
		s.Attribute, s.ChangeCount, s.LastChangeAt, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// CommitAttributeChange updates the attribute and ledger fields of the subject.
func (r *PostgresRepository) CommitAttributeChange(ctx context.Context, id, value string, ledger eligibility.Ledger, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subjects
		SET attribute = $2, change_count = $3, last_change_at = $4, updated_at = $5
		WHERE id = $1`,
		id, value, ledger.ChangeCount, ledger.LastChangeAt, at,
	)
	if err != nil {
		return fmt.Errorf("commit attribute change: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("commit attribute change rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("commit attribute change: subject %s not found", id)
	}
	return nil
}

func (r *PostgresRepository) get(ctx context.Context, query, id string) (*domain.Subject, error) {
	var (
		s     domain.Subject
		phone sql.NullString
		last  sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.Email, &phone, &s.PhoneVerified, &s.Attribute, &s.ChangeCount, &last, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get subject: %w", err)
	}
	s.Phone = phone.String
	if last.Valid {
		t := last.Time
		s.LastChangeAt = &t
	}
	return &s, nil
}
