package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"attribute-change-control/backend/internal/db"
	"attribute-change-control/backend/internal/otp/domain"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an OTP challenge repository that uses the given db or transaction.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Create persists the challenge. The challenge must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Challenge) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO otp_challenges (id, request_id, code_hash, expires_at, attempts, max_attempts, resends, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.RequestID, c.CodeHash, c.ExpiresAt, c.Attempts, c.MaxAttempts, c.Resends, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create otp challenge: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByRequestIDForUpdate(ctx context.Context, requestID string) (*domain.Challenge, error) {
	var c domain.Challenge
	err := r.db.QueryRowContext(ctx, `
		SELECT id, request_id, code_hash, expires_at, attempts, max_attempts, resends, created_at
		FROM otp_challenges WHERE request_id = $1 FOR UPDATE`, requestID,
	).Scan(&c.ID, &c.RequestID, &c.CodeHash, &c.ExpiresAt, &c.Attempts, &c.MaxAttempts, &c.Resends, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get otp challenge: %w", err)
	}
	return &c, nil
}

func (r *PostgresRepository) Update(ctx context.Context, c *domain.Challenge) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE otp_challenges SET code_hash = $2, expires_at = $3, attempts = $4, resends = $5
		WHERE id = $1`,
		c.ID, c.CodeHash, c.ExpiresAt, c.Attempts, c.Resends,
	)
	if err != nil {
		return fmt.Errorf("update otp challenge: %w", err)
	}
	return nil
}

func (r *PostgresRepository) DeleteByRequestID(ctx context.Context, requestID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM otp_challenges WHERE request_id = $1`, requestID); err != nil {
		return fmt.Errorf("delete otp challenge: %w", err)
	}
	return nil
}
