// Package authv1 holds the wire types and gRPC service descriptors of the
// device-bound auth API. Messages travel as JSON (see Codec).
package authv1

import "time"

// User is the public view of an account.
type User struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	DeviceID    string     `json:"deviceId,omitempty"`
	LastLoginAt *time.Time `json:"lastLogin,omitempty"`
	CreatedAt   time.Time  `json:"createdAt,omitzero"`
}

// DeviceInfo describes the device a client logs in from.
type DeviceInfo struct {
	UserAgent  string `json:"userAgent"`
	Platform   string `json:"platform,omitempty"`
	DeviceName string `json:"deviceName,omitempty"`
}

// Device is a registered device. Secrets are never included.
type Device struct {
	ID         string    `json:"id"`
	DeviceName string    `json:"deviceName"`
	Platform   string    `json:"platform,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	IsActive   bool      `json:"isActive"`
	Current    bool      `json:"current,omitempty"`
	LastSeen   time.Time `json:"lastSeen"`
	CreatedAt  time.Time `json:"createdAt"`
}

// LegacyToken is a live legacy token without its raw value.
type LegacyToken struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"deviceId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	// DeviceID binds the account to a legacy device fingerprint.
	DeviceID string `json:"deviceId,omitempty"`
}

type RegisterResponse struct {
	Message   string     `json:"message"`
	User      *User      `json:"user"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// LoginRequest selects the device-bound scheme when DeviceInfo is set and the
// legacy scheme otherwise.
type LoginRequest struct {
	Username   string      `json:"username"`
	Password   string      `json:"password"`
	DeviceInfo *DeviceInfo `json:"deviceInfo,omitempty"`
	DeviceID   string      `json:"deviceId,omitempty"`
}

type LoginResponse struct {
	Success      bool      `json:"success"`
	Message      string    `json:"message,omitempty"`
	SessionToken string    `json:"sessionToken,omitempty"`
	DeviceToken  string    `json:"deviceToken,omitempty"`
	Token        string    `json:"token,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
	User         *User     `json:"user"`
}

type VerifyRequest struct{}

type VerifyResponse struct {
	Valid    bool   `json:"valid"`
	Scheme   string `json:"scheme"`
	User     *User  `json:"user"`
	DeviceID string `json:"deviceId,omitempty"`
}

type LogoutRequest struct{}

type LogoutResponse struct {
	Message string `json:"message"`
}

type LogoutAllRequest struct{}

type LogoutAllResponse struct {
	Message     string `json:"message"`
	Invalidated int64  `json:"invalidated"`
}

type RefreshDeviceRequest struct{}

type RefreshDeviceResponse struct {
	SessionToken string    `json:"sessionToken"`
	DeviceToken  string    `json:"deviceToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type ListDevicesRequest struct{}

type ListDevicesResponse struct {
	Devices []*Device `json:"devices"`
}

type RevokeDeviceRequest struct {
	DeviceID string `json:"deviceId"`
}

type RevokeDeviceResponse struct {
	Success bool `json:"success"`
}

type GetProfileRequest struct{}

type GetProfileResponse struct {
	User *User `json:"user"`
}

type GetSessionsRequest struct{}

type GetSessionsResponse struct {
	DeviceSessions int64          `json:"deviceSessions"`
	Sessions       []*LegacyToken `json:"sessions"`
}

type ForceLogoutRequest struct{}

type ForceLogoutResponse struct {
	Message     string `json:"message"`
	Invalidated int64  `json:"invalidated"`
}

type ChangeDeviceRequest struct {
	NewDeviceID string `json:"newDeviceId"`
}

type ChangeDeviceResponse struct {
	Message string `json:"message"`
	User    *User  `json:"user"`
}

type GetDeviceInfoRequest struct{}

type GetDeviceInfoResponse struct {
	DeviceID     string         `json:"deviceId"`
	LastLoginAt  *time.Time     `json:"lastLogin,omitempty"`
	ActiveTokens []*LegacyToken `json:"activeTokens"`
}

type HealthCheckRequest struct{}

type HealthCheckResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health statuses.
const (
	StatusServing    = "SERVING"
	StatusNotServing = "NOT_SERVING"
)
