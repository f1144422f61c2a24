package domain

import (
	"strings"
	"time"
)

// Device is a physical device registered by a user. The raw device secret is
// never stored; SecretHash is its SHA-256 digest and is rotated on every registration.
type Device struct {
	ID            string
	UserID        string
	SecretHash    string
	Label         string
	Fingerprint   string
	Platform      string
	SourceAddress string
	Active        bool
	LastSeenAt    time.Time
	CreatedAt     time.Time
}

// Info is the caller-supplied description of the device logging in.
type Info struct {
	// Fingerprint is opaque to the service (e.g. a user agent string).
	Fingerprint string
	Platform    string
	Label       string
}

// DefaultLabel returns "<platform> - <YYYY-MM-DD>" for devices registered without a label.
func DefaultLabel(platform string, at time.Time) string {
	p := strings.TrimSpace(platform)
	if p == "" {
		p = "Unknown"
	}
	return p + " - " + at.UTC().Format("2006-01-02")
}
