// Package service implements the legacy single-token login scheme: one bound
// fingerprint per user and one valid token per user at a time.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"devicebound-auth/backend/internal/audit"
	"devicebound-auth/backend/internal/legacytoken/domain"
	"devicebound-auth/backend/internal/security"
	"devicebound-auth/backend/internal/store"
	userdomain "devicebound-auth/backend/internal/user/domain"
	userrepo "devicebound-auth/backend/internal/user/repository"
	userservice "devicebound-auth/backend/internal/user/service"
)

var (
	ErrDeviceMismatch          = errors.New("device mismatch: account is registered to a different device")
	ErrDeviceAlreadyRegistered = errors.New("device is already registered to another account")
	ErrInvalidLegacyToken      = errors.New("invalid token")
	ErrLegacyTokenExpired      = errors.New("token expired")
	ErrFingerprintRequired     = errors.New("device id required")
	ErrUserNotFound            = errors.New("user not found")
)

// Issued is the result of a legacy login: the raw token is returned once.
type Issued struct {
	User  *userdomain.User
	Token *domain.Token
	Raw   string
}

// Verified is the identity behind a legacy token.
type Verified struct {
	User   *userdomain.User
	Token  *domain.Token
	Claims *security.LegacyClaims
}

// DeviceInfo describes the user's legacy binding and live tokens.
type DeviceInfo struct {
	Fingerprint  string
	LastLoginAt  *time.Time
	ActiveTokens []*domain.Token
}

// Service runs the legacy token flows against the shared user store.
type Service struct {
	store    store.Store
	verifier *userservice.CredentialVerifier
	signer   *security.LegacySigner
	audit    audit.AuditLogger
	now      func() time.Time
}

// NewService returns a legacy token Service. auditLogger may be nil.
func NewService(st store.Store, verifier *userservice.CredentialVerifier, signer *security.LegacySigner, auditLogger audit.AuditLogger) *Service {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &Service{store: st, verifier: verifier, signer: signer, audit: auditLogger, now: time.Now}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Login verifies credentials, binds fingerprint on the user's first legacy
// login, and replaces every previous token of the user with a new one.
func (s *Service) Login(ctx context.Context, identifier, password, fingerprint string) (*Issued, error) {
	fingerprint = strings.TrimSpace(fingerprint)
	u, err := s.verifier.Verify(ctx, identifier, password)
	if err != nil {
		return nil, err
	}
	if fingerprint == "" {
		return nil, ErrFingerprintRequired
	}

	var issued *Issued
	err = s.store.InTx(ctx, func(tx store.Store) error {
		locked, err := tx.Users().GetByIDForUpdate(ctx, u.ID)
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		if locked == nil {
			return ErrUserNotFound
		}
		if locked.LegacyFingerprint != "" && locked.LegacyFingerprint != fingerprint {
			return ErrDeviceMismatch
		}
		if locked.LegacyFingerprint == "" {
			if err := s.bindFingerprint(ctx, tx, locked.ID, fingerprint); err != nil {
				return err
			}
			locked.LegacyFingerprint = fingerprint
		}
		issued, err = s.IssueInTx(ctx, tx, locked)
		return err
	})
	if errors.Is(err, ErrDeviceMismatch) {
		s.audit.LogSecurityEvent(ctx, u.ID, "", audit.ActionLegacyDeviceMismatch, map[string]string{"fingerprint": fingerprint})
	}
	if err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, u.ID, "", audit.ActionLegacyLogin, audit.ResourceLegacy, nil)
	return issued, nil
}

// IssueInTx invalidates all of the user's tokens, records the login and
// stores a new token for u.LegacyFingerprint. tx must be a transaction.
func (s *Service) IssueInTx(ctx context.Context, tx store.Store, u *userdomain.User) (*Issued, error) {
	now := s.now().UTC()
	if _, err := tx.LegacyTokens().InvalidateByUser(ctx, u.ID); err != nil {
		return nil, fmt.Errorf("invalidate legacy tokens: %w", err)
	}
	if err := tx.Users().UpdateLastLogin(ctx, u.ID, now); err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}
	u.LastLoginAt = &now

	raw, claims, err := s.signer.Issue(u.ID, u.Username, u.LegacyFingerprint)
	if err != nil {
		return nil, fmt.Errorf("sign legacy token: %w", err)
	}
	t := &domain.Token{
		ID:        uuid.New().String(),
		UserID:    u.ID,
		TokenHash: security.HashSecret(raw),
		DeviceID:  u.LegacyFingerprint,
		ExpiresAt: claims.ExpiresAt.Time,
		Valid:     true,
		CreatedAt: now,
	}
	if err := tx.LegacyTokens().Create(ctx, t); err != nil {
		return nil, fmt.Errorf("store legacy token: %w", err)
	}
	return &Issued{User: u, Token: t, Raw: raw}, nil
}

// CheckFingerprintAvailable returns ErrDeviceAlreadyRegistered when another
// user (not exceptUserID) is bound to fingerprint.
func (s *Service) CheckFingerprintAvailable(ctx context.Context, st store.Store, fingerprint, exceptUserID string) error {
	holder, err := st.Users().GetByLegacyFingerprint(ctx, fingerprint)
	if err != nil {
		return fmt.Errorf("lookup fingerprint: %w", err)
	}
	if holder != nil && holder.ID != exceptUserID {
		return ErrDeviceAlreadyRegistered
	}
	return nil
}

func (s *Service) bindFingerprint(ctx context.Context, tx store.Store, userID, fingerprint string) error {
	if err := s.CheckFingerprintAvailable(ctx, tx, fingerprint, userID); err != nil {
		return err
	}
	if err := tx.Users().SetLegacyFingerprint(ctx, userID, fingerprint); err != nil {
		if errors.Is(err, userrepo.ErrDuplicate) {
			return ErrDeviceAlreadyRegistered
		}
		return fmt.Errorf("bind fingerprint: %w", err)
	}
	return nil
}

// Verify checks the token's signature, its stored validity and its expiry. An
// expired token still flagged valid is marked invalid.
func (s *Service) Verify(ctx context.Context, raw string) (*Verified, error) {
	if raw == "" {
		return nil, ErrInvalidLegacyToken
	}
	claims, err := s.signer.Parse(raw)
	if err != nil && !errors.Is(err, security.ErrTokenExpired) {
		return nil, ErrInvalidLegacyToken
	}
	signatureExpired := err != nil

	t, err := s.store.LegacyTokens().GetByHash(ctx, security.HashSecret(raw))
	if err != nil {
		return nil, fmt.Errorf("lookup legacy token: %w", err)
	}
	if t == nil || !t.Valid {
		return nil, ErrInvalidLegacyToken
	}
	if signatureExpired || t.Expired(s.now().UTC()) {
		if err := s.store.LegacyTokens().Invalidate(ctx, t.ID); err != nil {
			return nil, fmt.Errorf("invalidate expired legacy token: %w", err)
		}
		return nil, ErrLegacyTokenExpired
	}

	u, err := s.store.Users().GetByID(ctx, t.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil || u.ID != claims.UserID() {
		return nil, ErrInvalidLegacyToken
	}
	return &Verified{User: u, Token: t, Claims: claims}, nil
}

// Logout invalidates the given token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	t, err := s.store.LegacyTokens().GetByHash(ctx, security.HashSecret(raw))
	if err != nil {
		return fmt.Errorf("lookup legacy token: %w", err)
	}
	if t == nil {
		return nil
	}
	if err := s.store.LegacyTokens().Invalidate(ctx, t.ID); err != nil {
		return fmt.Errorf("invalidate legacy token: %w", err)
	}
	s.audit.LogEvent(ctx, t.UserID, "", audit.ActionLegacyLogout, audit.ResourceLegacy, nil)
	return nil
}

// ForceLogout invalidates every legacy token of the user.
func (s *Service) ForceLogout(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.LegacyTokens().InvalidateByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("invalidate legacy tokens: %w", err)
	}
	s.audit.LogEvent(ctx, userID, "", audit.ActionLegacyForceLogout, audit.ResourceLegacy, map[string]string{
		"tokens_invalidated": fmt.Sprint(n),
	})
	return n, nil
}

// ChangeDevice rebinds the user's legacy fingerprint and invalidates all of
// the user's legacy tokens.
func (s *Service) ChangeDevice(ctx context.Context, userID, newFingerprint string) (*userdomain.User, error) {
	newFingerprint = strings.TrimSpace(newFingerprint)
	if newFingerprint == "" {
		return nil, ErrFingerprintRequired
	}
	var out *userdomain.User
	err := s.store.InTx(ctx, func(tx store.Store) error {
		u, err := tx.Users().GetByIDForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}
		if u == nil {
			return ErrUserNotFound
		}
		if _, err := tx.LegacyTokens().InvalidateByUser(ctx, userID); err != nil {
			return fmt.Errorf("invalidate legacy tokens: %w", err)
		}
		if u.LegacyFingerprint != newFingerprint {
			if err := s.bindFingerprint(ctx, tx, userID, newFingerprint); err != nil {
				return err
			}
			u.LegacyFingerprint = newFingerprint
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, userID, "", audit.ActionLegacyChangeDevice, audit.ResourceLegacy, nil)
	return out, nil
}

// DeviceInfo returns the user's bound fingerprint, last login and live tokens.
func (s *Service) DeviceInfo(ctx context.Context, userID string) (*DeviceInfo, error) {
	u, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	tokens, err := s.ActiveTokens(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &DeviceInfo{Fingerprint: u.LegacyFingerprint, LastLoginAt: u.LastLoginAt, ActiveTokens: tokens}, nil
}

// ActiveTokens returns the user's valid, unexpired legacy tokens, newest first.
func (s *Service) ActiveTokens(ctx context.Context, userID string) ([]*domain.Token, error) {
	list, err := s.store.LegacyTokens().ListActiveByUser(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list legacy tokens: %w", err)
	}
	return list, nil
}

// CleanupExpired deletes tokens whose expiry has passed and returns how many were removed.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.store.LegacyTokens().DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired legacy tokens: %w", err)
	}
	return n, nil
}

// RunCleanup calls CleanupExpired every interval until ctx is done.
func (s *Service) RunCleanup(ctx context.Context, every time.Duration, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.CleanupExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("legacy token cleanup failed", zap.Error(err))
				}
				continue
			}
			if n > 0 {
				log.Info("deleted expired legacy tokens", zap.Int64("count", n))
			}
		}
	}
}
