package repository

import (
	"context"

	"attribute-change-control/backend/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// ListBySubject returns the subject's audit trail, newest first.
	ListBySubject(ctx context.Context, subjectID string, limit, offset int) ([]*domain.AuditLog, error)
}
