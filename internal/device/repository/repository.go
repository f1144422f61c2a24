package repository

import (
	"context"
	"errors"
	"time"

	"devicebound-auth/backend/internal/device/domain"
)

// ErrActiveDeviceExists is returned by Create when the user already has an
// active device with the same fingerprint.
var ErrActiveDeviceExists = errors.New("active device already exists for fingerprint")

// Repository defines persistence for devices. Lookups return (nil, nil) when no row matches.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Device, error)
	// GetActiveByUserAndFingerprintForUpdate returns the active device for
	// (userID, fingerprint) and locks it until the surrounding transaction ends.
	GetActiveByUserAndFingerprintForUpdate(ctx context.Context, userID, fingerprint string) (*domain.Device, error)
	// ListByUser returns all devices of the user, most recently seen first.
	ListByUser(ctx context.Context, userID string) ([]*domain.Device, error)
	Create(ctx context.Context, d *domain.Device) error
	// Rotate replaces the secret hash and refreshes last-seen and source address.
	Rotate(ctx context.Context, id, secretHash, sourceAddress string, at time.Time) error
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
	Deactivate(ctx context.Context, id string) error
}
