package handler

import (
	"context"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"devicebound-auth/backend/api/authv1"
	identityservice "devicebound-auth/backend/internal/identity/service"
	"devicebound-auth/backend/internal/platform/authz"
	userhandler "devicebound-auth/backend/internal/user/handler"
)

// LegacyServer implements LegacyService for accounts on the single-token scheme.
type LegacyServer struct {
	authv1.UnimplementedLegacyServiceServer
	auth *identityservice.AuthService
}

// NewLegacyServer returns a new Legacy gRPC server. If auth is nil, all RPCs return Unimplemented.
func NewLegacyServer(auth *identityservice.AuthService) *LegacyServer {
	return &LegacyServer{auth: auth}
}

// ForceLogout invalidates every legacy token of the caller.
func (s *LegacyServer) ForceLogout(ctx context.Context, req *authv1.ForceLogoutRequest) (*authv1.ForceLogoutResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method ForceLogout not implemented")
	}
	id, err := authz.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.auth.ForceLogoutLegacy(ctx, id.User.ID)
	if err != nil {
		return nil, authz.StatusError(err)
	}
	return &authv1.ForceLogoutResponse{Message: "Force logout successful", Invalidated: n}, nil
}

// ChangeDevice rebinds the caller's legacy fingerprint. All legacy tokens,
// including the one used for this call, stop working.
func (s *LegacyServer) ChangeDevice(ctx context.Context, req *authv1.ChangeDeviceRequest) (*authv1.ChangeDeviceResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method ChangeDevice not implemented")
	}
	id, err := authz.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.NewDeviceID) == "" {
		return nil, status.Error(codes.InvalidArgument, "newDeviceId required")
	}
	u, err := s.auth.ChangeLegacyDevice(ctx, id.User.ID, req.NewDeviceID)
	if err != nil {
		return nil, authz.StatusError(err)
	}
	return &authv1.ChangeDeviceResponse{Message: "Device changed successfully", User: userhandler.UserToAPI(u)}, nil
}

// GetDeviceInfo returns the caller's legacy binding and live legacy tokens.
func (s *LegacyServer) GetDeviceInfo(ctx context.Context, req *authv1.GetDeviceInfoRequest) (*authv1.GetDeviceInfoResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method GetDeviceInfo not implemented")
	}
	id, err := authz.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	info, err := s.auth.LegacyDeviceInfo(ctx, id.User.ID)
	if err != nil {
		return nil, authz.StatusError(err)
	}
	return &authv1.GetDeviceInfoResponse{
		DeviceID:     info.Fingerprint,
		LastLoginAt:  info.LastLoginAt,
		ActiveTokens: userhandler.LegacyTokensToAPI(info.ActiveTokens),
	}, nil
}
