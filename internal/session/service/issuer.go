// Package service issues, validates and revokes device-bound sessions.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"devicebound-auth/backend/internal/security"
	"devicebound-auth/backend/internal/session/domain"
	"devicebound-auth/backend/internal/store"
)

// DefaultSessionTTL is the session lifetime when none is configured.
const DefaultSessionTTL = 7 * 24 * time.Hour

var (
	ErrInvalidOrExpiredSession    = errors.New("invalid or expired session")
	ErrDeviceAuthenticationFailed = errors.New("device authentication failed")
	ErrDeviceDeactivated          = errors.New("device deactivated")
	ErrCannotRevokeCurrentDevice  = errors.New("cannot revoke current device")
)

// Issuer creates sessions bound to a device.
type Issuer struct {
	store store.Store
	now   func() time.Time
}

// NewIssuer returns an Issuer on st.
func NewIssuer(st store.Store) *Issuer {
	return &Issuer{store: st, now: time.Now}
}

// WithStore returns a copy of i bound to st, typically a transaction.
func (i *Issuer) WithStore(st store.Store) *Issuer {
	cp := *i
	cp.store = st
	return &cp
}

// SetClock overrides the time source.
func (i *Issuer) SetClock(now func() time.Time) {
	if now != nil {
		i.now = now
	}
}

// CreateSession issues a session for (deviceID, userID) expiring ttl from now.
// ttl <= 0 uses DefaultSessionTTL. The session secret is drawn independently of
// the device secret and returned once.
func (i *Issuer) CreateSession(ctx context.Context, deviceID, userID string, ttl time.Duration) (*domain.Session, string, error) {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	secret, err := security.GenerateSecret()
	if err != nil {
		return nil, "", fmt.Errorf("generate session secret: %w", err)
	}
	now := i.now().UTC()
	s := &domain.Session{
		ID:         uuid.New().String(),
		SecretHash: security.HashSecret(secret),
		DeviceID:   deviceID,
		UserID:     userID,
		ExpiresAt:  now.Add(ttl),
		Valid:      true,
		CreatedAt:  now,
	}
	if err := i.store.Sessions().Create(ctx, s); err != nil {
		return nil, "", fmt.Errorf("create session: %w", err)
	}
	return s, secret, nil
}
