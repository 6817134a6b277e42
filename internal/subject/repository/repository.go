package repository

import (
	"context"
	"time"

	"attribute-change-control/backend/internal/eligibility"
	"attribute-change-control/backend/internal/subject/domain"
)

// Repository defines persistence for subjects.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Subject, error)
	// GetByIDForUpdate returns the subject and locks its row until the transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Subject, error)
	Create(ctx context.Context, s *domain.Subject) error
	// CommitAttributeChange writes the new attribute value together with the ledger produced by
	// eligibility.Policy.Apply. It is the only write path for change_count and last_change_at.
	CommitAttributeChange(ctx context.Context, id, value string, ledger eligibility.Ledger, at time.Time) error
}
