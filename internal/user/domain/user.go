package domain

import (
	"errors"
	"strings"
	"time"
)

// User is the account shared by both login schemes.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	// LegacyFingerprint is the single device bound by the legacy scheme; empty until first legacy login.
	LegacyFingerprint string
	LastLoginAt       *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if strings.TrimSpace(u.Username) == "" {
		return errors.New("username is required")
	}
	if strings.TrimSpace(u.Email) == "" {
		return errors.New("email is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	return nil
}

// Profile is the public view of a user returned to clients.
type Profile struct {
	ID                string
	Username          string
	Email             string
	LegacyFingerprint string
	LastLoginAt       *time.Time
	CreatedAt         time.Time
}

// Profile returns the client-facing view of u.
func (u *User) Profile() Profile {
	return Profile{
		ID:                u.ID,
		Username:          u.Username,
		Email:             u.Email,
		LegacyFingerprint: u.LegacyFingerprint,
		LastLoginAt:       u.LastLoginAt,
		CreatedAt:         u.CreatedAt,
	}
}
