package service

import (
	"context"
	"fmt"

	"devicebound-auth/backend/internal/audit"
	deviceservice "devicebound-auth/backend/internal/device/service"
	"devicebound-auth/backend/internal/security"
	"devicebound-auth/backend/internal/store"
)

// Revoker invalidates devices and sessions. Nothing is ever deleted; every
// operation is a flag flip and is safe to repeat.
type Revoker struct {
	store store.Store
	audit audit.AuditLogger
}

// NewRevoker returns a Revoker on st. auditLogger may be nil.
func NewRevoker(st store.Store, auditLogger audit.AuditLogger) *Revoker {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &Revoker{store: st, audit: auditLogger}
}

// RevokeDevice deactivates deviceID and invalidates all of its sessions.
// currentDeviceID is the device the requester is authenticated from; empty
// when unknown. A device owned by another user is reported as not found.
func (r *Revoker) RevokeDevice(ctx context.Context, deviceID, requesterUserID, currentDeviceID string) error {
	if currentDeviceID != "" && deviceID == currentDeviceID {
		return ErrCannotRevokeCurrentDevice
	}
	var invalidated int64
	err := r.store.InTx(ctx, func(tx store.Store) error {
		dev, err := tx.Devices().GetByID(ctx, deviceID)
		if err != nil {
			return fmt.Errorf("lookup device: %w", err)
		}
		if dev == nil || dev.UserID != requesterUserID {
			return deviceservice.ErrDeviceNotFound
		}
		if dev.Active {
			if err := tx.Devices().Deactivate(ctx, dev.ID); err != nil {
				return fmt.Errorf("deactivate device: %w", err)
			}
		}
		invalidated, err = tx.Sessions().InvalidateByDevice(ctx, dev.ID)
		if err != nil {
			return fmt.Errorf("invalidate device sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.audit.LogEvent(ctx, requesterUserID, deviceID, audit.ActionDeviceRevoked, audit.ResourceDevice, map[string]string{
		"sessions_invalidated": fmt.Sprint(invalidated),
	})
	return nil
}

// InvalidateAllSessions invalidates every session of the user on every device.
func (r *Revoker) InvalidateAllSessions(ctx context.Context, userID string) (int64, error) {
	n, err := r.store.Sessions().InvalidateByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("invalidate user sessions: %w", err)
	}
	r.audit.LogEvent(ctx, userID, "", audit.ActionLogoutAll, audit.ResourceSession, map[string]string{
		"sessions_invalidated": fmt.Sprint(n),
	})
	return n, nil
}

// LogoutSession invalidates the single session identified by sessionSecret.
// An unknown secret is a no-op.
func (r *Revoker) LogoutSession(ctx context.Context, sessionSecret string) error {
	if sessionSecret == "" {
		return nil
	}
	var userID, deviceID string
	err := r.store.InTx(ctx, func(tx store.Store) error {
		sess, err := tx.Sessions().GetBySecretHashForUpdate(ctx, security.HashSecret(sessionSecret))
		if err != nil {
			return fmt.Errorf("lookup session: %w", err)
		}
		if sess == nil || !sess.Valid {
			return nil
		}
		if err := tx.Sessions().Invalidate(ctx, sess.ID); err != nil {
			return fmt.Errorf("invalidate session: %w", err)
		}
		userID, deviceID = sess.UserID, sess.DeviceID
		return nil
	})
	if err != nil {
		return err
	}
	if userID != "" {
		r.audit.LogEvent(ctx, userID, deviceID, audit.ActionLogout, audit.ResourceSession, nil)
	}
	return nil
}
