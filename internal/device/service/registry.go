// Package service registers devices and rotates their secrets.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"devicebound-auth/backend/internal/device/domain"
	devicerepo "devicebound-auth/backend/internal/device/repository"
	"devicebound-auth/backend/internal/security"
	"devicebound-auth/backend/internal/store"
)

var (
	// ErrFingerprintRequired is returned when the device info carries no fingerprint.
	ErrFingerprintRequired = errors.New("device fingerprint required")
	// ErrDeviceNotFound is returned when a device does not exist or belongs to another user.
	ErrDeviceNotFound = errors.New("device not found")
)

// Registry creates and re-registers devices. One active device exists per
// (user, fingerprint); registering again rotates its secret in place.
type Registry struct {
	store store.Store
	now   func() time.Time
}

// NewRegistry returns a Registry on st.
func NewRegistry(st store.Store) *Registry {
	return &Registry{store: st, now: time.Now}
}

// WithStore returns a copy of r bound to st, typically a transaction.
func (r *Registry) WithStore(st store.Store) *Registry {
	cp := *r
	cp.store = st
	return &cp
}

// SetClock overrides the time source.
func (r *Registry) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// RegisterDevice returns the user's active device for info.Fingerprint with a
// freshly generated secret, creating the device when none is active. The raw
// secret is returned once and only its digest is stored, so any session
// relying on the previous secret stops validating.
func (r *Registry) RegisterDevice(ctx context.Context, userID string, info domain.Info, sourceAddress string) (*domain.Device, string, error) {
	fingerprint := strings.TrimSpace(info.Fingerprint)
	if fingerprint == "" {
		return nil, "", ErrFingerprintRequired
	}
	secret, err := security.GenerateSecret()
	if err != nil {
		return nil, "", fmt.Errorf("generate device secret: %w", err)
	}
	secretHash := security.HashSecret(secret)

	var dev *domain.Device
	err = r.store.InTx(ctx, func(tx store.Store) error {
		now := r.now().UTC()
		for attempt := 0; ; attempt++ {
			existing, err := tx.Devices().GetActiveByUserAndFingerprintForUpdate(ctx, userID, fingerprint)
			if err != nil {
				return fmt.Errorf("lookup device: %w", err)
			}
			if existing != nil {
				if err := tx.Devices().Rotate(ctx, existing.ID, secretHash, sourceAddress, now); err != nil {
					return fmt.Errorf("rotate device secret: %w", err)
				}
				existing.SecretHash = secretHash
				existing.SourceAddress = sourceAddress
				existing.LastSeenAt = now
				dev = existing
				return nil
			}

			d := newDevice(userID, fingerprint, info, secretHash, sourceAddress, now)
			err = tx.Devices().Create(ctx, d)
			if errors.Is(err, devicerepo.ErrActiveDeviceExists) && attempt == 0 {
				// Lost the race to a concurrent registration; rotate its device instead.
				continue
			}
			if err != nil {
				return fmt.Errorf("create device: %w", err)
			}
			dev = d
			return nil
		}
	})
	if err != nil {
		return nil, "", err
	}
	return dev, secret, nil
}

func newDevice(userID, fingerprint string, info domain.Info, secretHash, sourceAddress string, now time.Time) *domain.Device {
	label := strings.TrimSpace(info.Label)
	if label == "" {
		label = domain.DefaultLabel(info.Platform, now)
	}
	return &domain.Device{
		ID:            uuid.New().String(),
		UserID:        userID,
		SecretHash:    secretHash,
		Label:         label,
		Fingerprint:   fingerprint,
		Platform:      strings.TrimSpace(info.Platform),
		SourceAddress: sourceAddress,
		Active:        true,
		LastSeenAt:    now,
		CreatedAt:     now,
	}
}

// ListDevices returns all of the user's devices, most recently seen first.
func (r *Registry) ListDevices(ctx context.Context, userID string) ([]*domain.Device, error) {
	list, err := r.store.Devices().ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return list, nil
}

// GetOwnedDevice returns the device only when it belongs to userID.
func (r *Registry) GetOwnedDevice(ctx context.Context, deviceID, userID string) (*domain.Device, error) {
	d, err := r.store.Devices().GetByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}
	if d == nil || d.UserID != userID {
		return nil, ErrDeviceNotFound
	}
	return d, nil
}
