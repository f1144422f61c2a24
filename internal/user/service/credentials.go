// Package service verifies user credentials.
package service

import (
	"context"
	"errors"
	"fmt"

	"devicebound-auth/backend/internal/user/domain"
	userrepo "devicebound-auth/backend/internal/user/repository"
)

// ErrInvalidCredentials is returned for an unknown identifier and for a wrong password alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// PasswordHasher compares a password to a stored hash. CompareDummy performs an
// equivalent comparison for identifiers that matched no user.
type PasswordHasher interface {
	Compare(hash string, password []byte) error
	CompareDummy(password []byte) error
}

// CredentialVerifier checks identifier and password against the stored hash.
type CredentialVerifier struct {
	users  userrepo.Repository
	hasher PasswordHasher
}

// NewCredentialVerifier returns a verifier reading users from users.
func NewCredentialVerifier(users userrepo.Repository, hasher PasswordHasher) *CredentialVerifier {
	return &CredentialVerifier{users: users, hasher: hasher}
}

// Verify returns the user whose username or email equals identifier and whose
// password hash matches password. It has no side effects.
func (v *CredentialVerifier) Verify(ctx context.Context, identifier, password string) (*domain.User, error) {
	if identifier == "" || password == "" {
		_ = v.hasher.CompareDummy([]byte(password))
		return nil, ErrInvalidCredentials
	}
	u, err := v.users.GetByIdentifier(ctx, identifier)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil {
		_ = v.hasher.CompareDummy([]byte(password))
		return nil, ErrInvalidCredentials
	}
	if err := v.hasher.Compare(u.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
