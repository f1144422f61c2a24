package interceptors

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	identityservice "devicebound-auth/backend/internal/identity/service"
	legacyservice "devicebound-auth/backend/internal/legacytoken/service"
	sessionservice "devicebound-auth/backend/internal/session/service"
)

const (
	bearerPrefix = "bearer "
	// DeviceTokenHeader carries the device secret. It is never combined with
	// the session secret in the authorization header.
	DeviceTokenHeader = "x-device-token"
)

// Authenticator establishes the caller from presented credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, creds identityservice.Credentials) (*identityservice.Identity, error)
}

// AuthUnary returns a unary server interceptor that authenticates the Bearer
// secret (plus the x-device-token secret for device-bound sessions) from gRPC
// metadata and stores the identity in context for protected RPCs.
// publicMethods is the set of full method names that do not require credentials
// (e.g. AuthService Register and Login, HealthService HealthCheck).
func AuthUnary(auth Authenticator, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		creds := ExtractCredentials(ctx)
		if creds.Bearer == "" {
			return nil, status.Error(codes.Unauthenticated, "access token required")
		}
		id, err := auth.Authenticate(ctx, creds)
		if err != nil {
			return nil, authError(err)
		}
		return handler(WithIdentity(ctx, id, creds), req)
	}
}

// authError keeps the distinct failure reasons visible to clients without
// exposing internal errors.
func authError(err error) error {
	switch {
	case errors.Is(err, sessionservice.ErrDeviceDeactivated):
		return status.Error(codes.PermissionDenied, sessionservice.ErrDeviceDeactivated.Error())
	case errors.Is(err, sessionservice.ErrDeviceAuthenticationFailed):
		return status.Error(codes.Unauthenticated, sessionservice.ErrDeviceAuthenticationFailed.Error())
	case errors.Is(err, sessionservice.ErrInvalidOrExpiredSession):
		return status.Error(codes.Unauthenticated, sessionservice.ErrInvalidOrExpiredSession.Error())
	case errors.Is(err, legacyservice.ErrLegacyTokenExpired):
		return status.Error(codes.Unauthenticated, legacyservice.ErrLegacyTokenExpired.Error())
	case errors.Is(err, legacyservice.ErrInvalidLegacyToken):
		return status.Error(codes.Unauthenticated, "invalid or expired token")
	case errors.Is(err, identityservice.ErrMissingCredentials):
		return status.Error(codes.Unauthenticated, "access token required")
	default:
		return status.Error(codes.Internal, "authentication failed")
	}
}

// ExtractCredentials reads the Bearer and x-device-token values from ctx metadata.
func ExtractCredentials(ctx context.Context) identityservice.Credentials {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return identityservice.Credentials{}
	}
	creds := identityservice.Credentials{Bearer: ParseBearer(first(md, "authorization"))}
	creds.DeviceToken = strings.TrimSpace(first(md, DeviceTokenHeader))
	return creds
}

// ParseBearer returns the token of a "Bearer <token>" header value, or "" if malformed.
func ParseBearer(v string) string {
	v = strings.TrimSpace(v)
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

func first(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
