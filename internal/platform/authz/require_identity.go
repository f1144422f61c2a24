// Package authz holds the caller checks and error mapping shared by the gRPC handlers.
package authz

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	identityservice "devicebound-auth/backend/internal/identity/service"
	"devicebound-auth/backend/internal/server/interceptors"
)

// RequireIdentity ensures the caller is authenticated with either scheme.
// Returns a gRPC Unauthenticated error when no identity is in context.
func RequireIdentity(ctx context.Context) (*identityservice.Identity, error) {
	id, ok := interceptors.GetIdentity(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "access token required")
	}
	return id, nil
}

// RequireDeviceSession ensures the caller is authenticated with a device-bound
// session. Legacy callers get FailedPrecondition.
func RequireDeviceSession(ctx context.Context) (*identityservice.Identity, error) {
	id, err := RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if id.Scheme != identityservice.SchemeDevice || id.Device == nil {
		return nil, status.Error(codes.FailedPrecondition, "device-bound session required")
	}
	return id, nil
}
