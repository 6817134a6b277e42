package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"attribute-change-control/backend/internal/changerequest/domain"
	"attribute-change-control/backend/internal/db"
)

const requestColumns = `id, subject_id, current_value, requested_value, status, token_hash, token_expires_at,
	email_verified_at, reason, outcome_reason, origin_ip, user_agent, created_at, updated_at`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a change request repository that uses the given db or transaction.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Create persists the request. A second active request for the same subject violates
// change_requests_one_active_per_subject and is returned as an error.
func (r *PostgresRepository) Create(ctx context.Context, cr *domain.ChangeRequest) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO change_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		cr.ID, cr.SubjectID, cr.CurrentValue, cr.RequestedValue, string(cr.Status),
		nullString(cr.TokenHash), cr.TokenExpiresAt, cr.EmailVerifiedAt,
		nullString(cr.Reason), nullString(cr.OutcomeReason),
		cr.Context.IP, cr.Context.UserAgent, cr.CreatedAt, cr.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create change request: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.ChangeRequest, error) {
	return r.getOne(ctx, `SELECT `+requestColumns+` FROM change_requests WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.ChangeRequest, error) {
	return r.getOne(ctx, `SELECT `+requestColumns+` FROM change_requests WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresRepository) GetByTokenHashForUpdate(ctx context.Context, tokenHash string) (*domain.ChangeRequest, error) {
	return r.getOne(ctx, `SELECT `+requestColumns+` FROM change_requests WHERE token_hash = $1 FOR UPDATE`, tokenHash)
}

func (r *PostgresRepository) GetActiveBySubjectForUpdate(ctx context.Context, subjectID string) (*domain.ChangeRequest, error) {
	return r.getOne(ctx, `
		SELECT `+requestColumns+` FROM change_requests
		WHERE subject_id = $1 AND status IN ('PENDING', 'OTP_PENDING', 'ADMIN_REVIEW')
		FOR UPDATE`, subjectID)
}

func (r *PostgresRepository) LatestTerminalBySubject(ctx context.Context, subjectID string) (*domain.ChangeRequest, error) {
	return r.getOne(ctx, `
		SELECT `+requestColumns+` FROM change_requests
		WHERE subject_id = $1 AND status IN ('APPROVED', 'REJECTED', 'EXPIRED')
		ORDER BY updated_at DESC
		LIMIT 1`, subjectID)
}

// Update writes the mutable fields of the request.
func (r *PostgresRepository) Update(ctx context.Context, cr *domain.ChangeRequest) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE change_requests
		SET status = $2, token_hash = $3, email_verified_at = $4, outcome_reason = $5, updated_at = $6
		WHERE id = $1`,
		cr.ID, string(cr.Status), nullString(cr.TokenHash), cr.EmailVerifiedAt, nullString(cr.OutcomeReason), cr.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update change request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update change request rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update change request: %s not found", cr.ID)
	}
	return nil
}

func (r *PostgresRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*domain.ChangeRequest, error) {
	return r.list(ctx, `
		SELECT `+requestColumns+` FROM change_requests
		WHERE status = 'PENDING' AND token_expires_at < $1
		ORDER BY token_expires_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, now, limit)
}

func (r *PostgresRepository) ListExpiredOTPPending(ctx context.Context, now time.Time, limit int) ([]*domain.ChangeRequest, error) {
	return r.list(ctx, `
		SELECT cr.id, cr.subject_id, cr.current_value, cr.requested_value, cr.status, cr.token_hash, cr.token_expires_at,
			cr.email_verified_at, cr.reason, cr.outcome_reason, cr.origin_ip, cr.user_agent, cr.created_at, cr.updated_at
		FROM change_requests cr
		JOIN otp_challenges c ON c.request_id = cr.id
		WHERE cr.status = 'OTP_PENDING' AND c.expires_at < $1
		ORDER BY c.expires_at
		LIMIT $2
		FOR UPDATE OF cr SKIP LOCKED`, now, limit)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(s scanner) (*domain.ChangeRequest, error) {
	var (
		cr                         domain.ChangeRequest
		status                     string
		tokenHash, reason, outcome sql.NullString
		emailVerifiedAt            sql.NullTime
	)
	err := s.Scan(
		&cr.ID, &cr.SubjectID, &cr.CurrentValue, &cr.RequestedValue, &status, &tokenHash, &cr.TokenExpiresAt,
		&emailVerifiedAt, &reason, &outcome, &cr.Context.IP, &cr.Context.UserAgent, &cr.CreatedAt, &cr.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	cr.Status = domain.Status(status)
	cr.TokenHash = tokenHash.String
	cr.Reason = reason.String
	cr.OutcomeReason = outcome.String
	if emailVerifiedAt.Valid {
		t := emailVerifiedAt.Time
		cr.EmailVerifiedAt = &t
	}
	return &cr, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*domain.ChangeRequest, error) {
	cr, err := scanRequest(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get change request: %w", err)
	}
	return cr, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*domain.ChangeRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list change requests: %w", err)
	}
	defer rows.Close()
	var out []*domain.ChangeRequest
	for rows.Next() {
		cr, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan change request: %w", err)
		}
		out = append(out, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list change requests: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
