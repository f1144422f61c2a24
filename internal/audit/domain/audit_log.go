package domain

import "time"

// AuditLog is one persisted audit event. UserID and DeviceID are empty when unknown.
type AuditLog struct {
	ID        string
	UserID    string
	DeviceID  string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
