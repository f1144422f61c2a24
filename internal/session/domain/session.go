package domain

import "time"

// Session is one login on one device. SecretHash is the SHA-256 digest of the
// session secret. A session is only ever invalidated, never otherwise changed.
type Session struct {
	ID         string
	SecretHash string
	DeviceID   string
	UserID     string
	ExpiresAt  time.Time
	Valid      bool
	CreatedAt  time.Time
}

// Expired reports whether the absolute expiry has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Usable reports whether the session is flagged valid and not expired at now.
func (s *Session) Usable(now time.Time) bool {
	return s.Valid && !s.Expired(now)
}
