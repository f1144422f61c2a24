package authz

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	deviceservice "devicebound-auth/backend/internal/device/service"
	identityservice "devicebound-auth/backend/internal/identity/service"
	legacyservice "devicebound-auth/backend/internal/legacytoken/service"
	"devicebound-auth/backend/internal/ratelimit"
	sessionservice "devicebound-auth/backend/internal/session/service"
	userservice "devicebound-auth/backend/internal/user/service"
)

var codeTable = []struct {
	err  error
	code codes.Code
}{
	{identityservice.ErrInvalidInput, codes.InvalidArgument},
	{deviceservice.ErrFingerprintRequired, codes.InvalidArgument},
	{legacyservice.ErrFingerprintRequired, codes.InvalidArgument},
	{identityservice.ErrUsernameOrEmailTaken, codes.AlreadyExists},
	{legacyservice.ErrDeviceAlreadyRegistered, codes.AlreadyExists},
	{userservice.ErrInvalidCredentials, codes.Unauthenticated},
	{identityservice.ErrMissingCredentials, codes.Unauthenticated},
	{sessionservice.ErrInvalidOrExpiredSession, codes.Unauthenticated},
	{sessionservice.ErrDeviceAuthenticationFailed, codes.Unauthenticated},
	{legacyservice.ErrInvalidLegacyToken, codes.Unauthenticated},
	{legacyservice.ErrLegacyTokenExpired, codes.Unauthenticated},
	{legacyservice.ErrDeviceMismatch, codes.PermissionDenied},
	{sessionservice.ErrDeviceDeactivated, codes.PermissionDenied},
	{identityservice.ErrLegacyLoginDisabled, codes.PermissionDenied},
	{identityservice.ErrLoginDenied, codes.PermissionDenied},
	{sessionservice.ErrCannotRevokeCurrentDevice, codes.FailedPrecondition},
	{deviceservice.ErrDeviceNotFound, codes.NotFound},
	{identityservice.ErrUserNotFound, codes.NotFound},
	{legacyservice.ErrUserNotFound, codes.NotFound},
	{ratelimit.ErrRateLimited, codes.ResourceExhausted},
}

// StatusError converts a service error into a gRPC status error. Known domain
// errors keep their message; anything else becomes Internal without details.
func StatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, e := range codeTable {
		if errors.Is(err, e.err) {
			msg := e.err.Error()
			if e.code == codes.InvalidArgument || e.code == codes.PermissionDenied {
				msg = err.Error()
			}
			return status.Error(e.code, msg)
		}
	}
	return status.Error(codes.Internal, "internal error")
}
