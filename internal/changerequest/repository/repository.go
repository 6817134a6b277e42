package repository

import (
	"context"
	"time"

	"attribute-change-control/backend/internal/changerequest/domain"
)

// Repository defines persistence for change requests. Methods ending in ForUpdate lock the
// returned rows until the surrounding transaction ends; get methods return nil, nil when no row matches.
type Repository interface {
	Create(ctx context.Context, r *domain.ChangeRequest) error
	GetByID(ctx context.Context, id string) (*domain.ChangeRequest, error)
	GetByIDForUpdate(ctx context.Context, id string) (*domain.ChangeRequest, error)
	GetByTokenHashForUpdate(ctx context.Context, tokenHash string) (*domain.ChangeRequest, error)
	// GetActiveBySubjectForUpdate returns the subject's non-terminal request, if any.
	GetActiveBySubjectForUpdate(ctx context.Context, subjectID string) (*domain.ChangeRequest, error)
	// LatestTerminalBySubject returns the most recently finalized request for the subject.
	LatestTerminalBySubject(ctx context.Context, subjectID string) (*domain.ChangeRequest, error)
	Update(ctx context.Context, r *domain.ChangeRequest) error
	// ListExpiredPending returns PENDING requests whose token expired before now, skipping rows locked elsewhere.
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]*domain.ChangeRequest, error)
	// ListExpiredOTPPending returns OTP_PENDING requests whose challenge expired before now, skipping rows locked elsewhere.
	ListExpiredOTPPending(ctx context.Context, now time.Time, limit int) ([]*domain.ChangeRequest, error)
}
