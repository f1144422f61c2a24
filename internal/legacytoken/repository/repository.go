package repository

import (
	"context"
	"time"

	"devicebound-auth/backend/internal/legacytoken/domain"
)

// Repository defines persistence for legacy tokens. Lookups return (nil, nil) when no row matches.
type Repository interface {
	Create(ctx context.Context, t *domain.Token) error
	GetByHash(ctx context.Context, tokenHash string) (*domain.Token, error)
	Invalidate(ctx context.Context, id string) error
	InvalidateByUser(ctx context.Context, userID string) (int64, error)
	// ListActiveByUser returns valid tokens of the user that have not expired at now, newest first.
	ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]*domain.Token, error)
	// DeleteExpired removes tokens whose expiry is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
