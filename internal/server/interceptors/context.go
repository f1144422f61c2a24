package interceptors

import (
	"context"

	identityservice "devicebound-auth/backend/internal/identity/service"
)

type contextKey struct{ name string }

var (
	identityKey    = contextKey{"identity"}
	credentialsKey = contextKey{"credentials"}
)

// WithIdentity returns a context carrying the authenticated caller and the
// credentials it presented. Handlers read them via GetIdentity, GetUserID,
// GetDeviceID, GetSessionID and GetCredentials.
func WithIdentity(ctx context.Context, id *identityservice.Identity, creds identityservice.Credentials) context.Context {
	ctx = context.WithValue(ctx, identityKey, id)
	ctx = context.WithValue(ctx, credentialsKey, creds)
	return ctx
}

// GetIdentity returns the authenticated identity and true if set.
func GetIdentity(ctx context.Context) (*identityservice.Identity, bool) {
	id, ok := ctx.Value(identityKey).(*identityservice.Identity)
	return id, ok && id != nil && id.User != nil
}

// GetCredentials returns the raw credentials of the authenticated call.
func GetCredentials(ctx context.Context) (identityservice.Credentials, bool) {
	c, ok := ctx.Value(credentialsKey).(identityservice.Credentials)
	return c, ok
}

// GetUserID returns the user_id from context and true if set; otherwise "", false.
func GetUserID(ctx context.Context) (string, bool) {
	id, ok := GetIdentity(ctx)
	if !ok {
		return "", false
	}
	return id.User.ID, true
}

// GetDeviceID returns the device of a device-bound caller; "", false for legacy callers.
func GetDeviceID(ctx context.Context) (string, bool) {
	id, ok := GetIdentity(ctx)
	if !ok || id.Device == nil {
		return "", false
	}
	return id.Device.ID, true
}

// GetSessionID returns the device session id, or the legacy token id for legacy callers.
func GetSessionID(ctx context.Context) (string, bool) {
	id, ok := GetIdentity(ctx)
	if !ok {
		return "", false
	}
	switch {
	case id.Session != nil:
		return id.Session.ID, true
	case id.LegacyToken != nil:
		return id.LegacyToken.ID, true
	}
	return "", false
}
