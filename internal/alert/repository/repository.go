package repository

import (
	"context"
	"time"

	"attribute-change-control/backend/internal/alert/domain"
)

// Filter narrows List. Zero values match everything.
type Filter struct {
	Status    domain.Status
	SubjectID string
	Limit     int
	Offset    int
}

// DefaultListLimit caps List when Filter.Limit is zero.
const DefaultListLimit = 50

// Repository defines persistence for admin alerts.
type Repository interface {
	Create(ctx context.Context, a *domain.Alert) error
	GetByID(ctx context.Context, id string) (*domain.Alert, error)
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Alert, error)
	Update(ctx context.Context, a *domain.Alert) error
	// List returns alerts oldest first.
	List(ctx context.Context, f Filter) ([]*domain.Alert, error)
	// ListOverdue returns pending alerts past their expiry, skipping rows locked elsewhere.
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*domain.Alert, error)
}
