package domain

import "time"

// Token is one legacy single-token login. TokenHash is the SHA-256 digest of
// the signed token; DeviceID is the fingerprint claim it was issued for.
type Token struct {
	ID        string
	UserID    string
	TokenHash string
	DeviceID  string
	ExpiresAt time.Time
	Valid     bool
	CreatedAt time.Time
}

// Expired reports whether the token's expiry has passed at now.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
