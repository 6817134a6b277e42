package repository

import (
	"context"
	"time"

	"attribute-change-control/backend/internal/otp/domain"
)

// Repository defines persistence for OTP challenges. There is at most one challenge per request.
type Repository interface {
	Create(ctx context.Context, c *domain.Challenge) error
	// GetByRequestIDForUpdate returns the request's challenge under a row lock, or nil if none.
	GetByRequestIDForUpdate(ctx context.Context, requestID string) (*domain.Challenge, error)
	// Update writes code hash, expiry, attempts and resends.
	Update(ctx context.Context, c *domain.Challenge) error
	// DeleteByRequestID removes the request's challenge. Deleting a missing challenge is not an error.
	DeleteByRequestID(ctx context.Context, requestID string) error
}

// DefaultChallengeTTL is used when no expiry is configured.
const DefaultChallengeTTL = 15 * time.Minute
