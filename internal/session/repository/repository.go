package repository

import (
	"context"

	"devicebound-auth/backend/internal/session/domain"
)

// Repository defines persistence for device-bound sessions. Lookups return (nil, nil) when no row matches.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	// GetBySecretHashForUpdate locks the session row until the surrounding transaction ends.
	GetBySecretHashForUpdate(ctx context.Context, secretHash string) (*domain.Session, error)
	Invalidate(ctx context.Context, id string) error
	// InvalidateByDevice and InvalidateByUser return the number of sessions flipped to invalid.
	InvalidateByDevice(ctx context.Context, deviceID string) (int64, error)
	InvalidateByUser(ctx context.Context, userID string) (int64, error)
	CountValidByUser(ctx context.Context, userID string) (int64, error)
}
