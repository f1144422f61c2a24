package service

import (
	"context"
	"fmt"
	"time"

	"devicebound-auth/backend/internal/audit"
	devicedomain "devicebound-auth/backend/internal/device/domain"
	"devicebound-auth/backend/internal/security"
	"devicebound-auth/backend/internal/session/domain"
	"devicebound-auth/backend/internal/store"
	userdomain "devicebound-auth/backend/internal/user/domain"
)

// Validated is the identity established by a capability pair.
type Validated struct {
	User    *userdomain.User
	Device  *devicedomain.Device
	Session *domain.Session
}

// Validator checks a (session secret, device secret) pair.
type Validator struct {
	store store.Store
	audit audit.AuditLogger
	now   func() time.Time
}

// NewValidator returns a Validator on st. auditLogger may be nil.
func NewValidator(st store.Store, auditLogger audit.AuditLogger) *Validator {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &Validator{store: st, audit: auditLogger, now: time.Now}
}

// SetClock overrides the time source.
func (v *Validator) SetClock(now func() time.Time) {
	if now != nil {
		v.now = now
	}
}

type outcome int

const (
	outcomeAccepted outcome = iota
	outcomeExpired
	outcomeMismatch
)

// Validate accepts the pair only when the session is valid and unexpired, the
// device secret matches the device's current secret, and the device is active.
// The session row stays locked for the whole check, so concurrent validations
// of one session run one after another.
//
// A wrong device secret invalidates the session before returning
// ErrDeviceAuthenticationFailed and is recorded as a security event. An expired
// session still flagged valid is invalidated on detection. A deactivated
// device leaves the session untouched.
func (v *Validator) Validate(ctx context.Context, sessionSecret, deviceSecret string) (*Validated, error) {
	if sessionSecret == "" {
		return nil, ErrInvalidOrExpiredSession
	}

	var (
		result  outcome
		out     *Validated
		flagged *domain.Session
	)
	err := v.store.InTx(ctx, func(tx store.Store) error {
		now := v.now().UTC()
		sess, err := tx.Sessions().GetBySecretHashForUpdate(ctx, security.HashSecret(sessionSecret))
		if err != nil {
			return fmt.Errorf("lookup session: %w", err)
		}
		if sess == nil || !sess.Valid {
			return ErrInvalidOrExpiredSession
		}
		if sess.Expired(now) {
			if err := tx.Sessions().Invalidate(ctx, sess.ID); err != nil {
				return fmt.Errorf("invalidate expired session: %w", err)
			}
			result = outcomeExpired
			return nil
		}

		dev, err := tx.Devices().GetByID(ctx, sess.DeviceID)
		if err != nil {
			return fmt.Errorf("lookup device: %w", err)
		}
		if dev == nil || !security.SecretHashEqual(deviceSecret, dev.SecretHash) {
			if err := tx.Sessions().Invalidate(ctx, sess.ID); err != nil {
				return fmt.Errorf("invalidate session: %w", err)
			}
			sess.Valid = false
			flagged = sess
			result = outcomeMismatch
			return nil
		}
		if !dev.Active {
			return ErrDeviceDeactivated
		}

		u, err := tx.Users().GetByID(ctx, sess.UserID)
		if err != nil {
			return fmt.Errorf("lookup user: %w", err)
		}
		if u == nil {
			return ErrInvalidOrExpiredSession
		}
		if err := tx.Devices().UpdateLastSeen(ctx, dev.ID, now); err != nil {
			return fmt.Errorf("update device last seen: %w", err)
		}
		dev.LastSeenAt = now
		out = &Validated{User: u, Device: dev, Session: sess}
		result = outcomeAccepted
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch result {
	case outcomeExpired:
		return nil, ErrInvalidOrExpiredSession
	case outcomeMismatch:
		v.audit.LogSecurityEvent(ctx, flagged.UserID, flagged.DeviceID, audit.ActionDeviceAuthFailed, map[string]string{
			"session_id": flagged.ID,
			"reason":     "device secret mismatch",
		})
		return nil, ErrDeviceAuthenticationFailed
	}
	return out, nil
}
