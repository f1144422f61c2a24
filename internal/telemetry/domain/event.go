package domain

import "time"

// Event types.
const (
	EventGRPCRequest = "grpc_request"
	EventHTTPRequest = "http_request"
)

// Event is one telemetry record describing a request handled by the service.
// Identity fields are empty for unauthenticated calls.
type Event struct {
	UserID    string    `json:"user_id,omitempty"`
	DeviceID  string    `json:"device_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	EventType string    `json:"event_type"`
	Source    string    `json:"source"`
	Metadata  []byte    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
