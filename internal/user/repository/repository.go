package repository

import (
	"context"
	"errors"
	"time"

	"devicebound-auth/backend/internal/user/domain"
)

// ErrDuplicate is returned by Create when username, email or legacy fingerprint is already taken.
var ErrDuplicate = errors.New("user already exists")

// Repository defines persistence for users. Lookups return (nil, nil) when no row matches.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByIDForUpdate locks the user row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.User, error)
	// GetByIdentifier matches username (exact) or email; a username match wins.
	GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error)
	GetByLegacyFingerprint(ctx context.Context, fingerprint string) (*domain.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)
	Create(ctx context.Context, u *domain.User) error
	SetLegacyFingerprint(ctx context.Context, id, fingerprint string) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}
