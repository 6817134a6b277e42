package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"attribute-change-control/backend/internal/alert/domain"
	"attribute-change-control/backend/internal/db"
)

const alertColumns = `id, subject_id, request_id, category, priority, status, reviewer_id, reviewed_at, notes, expires_at, created_at, updated_at`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an alert repository that uses the given db or transaction.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

func (r *PostgresRepository) Create(ctx context.Context, a *domain.Alert) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO admin_alerts (`+alertColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.SubjectID, nullString(a.RequestID), a.Category, string(a.Priority), string(a.Status),
		nullString(a.ReviewerID), a.ReviewedAt, a.Notes, a.ExpiresAt, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	return r.getOne(ctx, `SELECT `+alertColumns+` FROM admin_alerts WHERE id = $1`, id)
}

func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Alert, error) {
	return r.getOne(ctx, `SELECT `+alertColumns+` FROM admin_alerts WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresRepository) Update(ctx context.Context, a *domain.Alert) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE admin_alerts
		SET priority = $2, status = $3, reviewer_id = $4, reviewed_at = $5, notes = $6, updated_at = $7
		WHERE id = $1`,
		a.ID, string(a.Priority), string(a.Status), nullString(a.ReviewerID), a.ReviewedAt, a.Notes, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update alert rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update alert: %s not found", a.ID)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, f Filter) ([]*domain.Alert, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.SubjectID != "" {
		args = append(args, f.SubjectID)
		where = append(where, fmt.Sprintf("subject_id = $%d", len(args)))
	}
	query := `SELECT ` + alertColumns + ` FROM admin_alerts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	args = append(args, limit, f.Offset)
	query += fmt.Sprintf(` ORDER BY created_at, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	return r.list(ctx, query, args...)
}

func (r *PostgresRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]*domain.Alert, error) {
	return r.list(ctx, `
		SELECT `+alertColumns+` FROM admin_alerts
		WHERE status = 'pending' AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, now, limit)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAlert(s scanner) (*domain.Alert, error) {
	var (
		a                     domain.Alert
		priority, status      string
		requestID, reviewerID sql.NullString
		reviewedAt            sql.NullTime
	)
	err := s.Scan(&a.ID, &a.SubjectID, &requestID, &a.Category, &priority, &status,
		&reviewerID, &reviewedAt, &a.Notes, &a.ExpiresAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Priority = domain.Priority(priority)
	a.Status = domain.Status(status)
	a.RequestID = requestID.String
	a.ReviewerID = reviewerID.String
	if reviewedAt.Valid {
		t := reviewedAt.Time
		a.ReviewedAt = &t
	}
	return &a, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Alert, error) {
	a, err := scanAlert(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()
	var out []*domain.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
