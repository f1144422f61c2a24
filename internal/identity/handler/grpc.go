package handler

import (
	"context"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"devicebound-auth/backend/api/authv1"
	devicedomain "devicebound-auth/backend/internal/device/domain"
	identityservice "devicebound-auth/backend/internal/identity/service"
	"devicebound-auth/backend/internal/platform/authz"
	"devicebound-auth/backend/internal/server/interceptors"
	userhandler "devicebound-auth/backend/internal/user/handler"
)

// AuthServer implements AuthService for registration, login in both schemes,
// credential verification, logout and device secret refresh.
type AuthServer struct {
	authv1.UnimplementedAuthServiceServer
	auth *identityservice.AuthService
}

// NewAuthServer returns a new Auth gRPC server. If auth is nil, all RPCs return Unimplemented.
func NewAuthServer(auth *identityservice.AuthService) *AuthServer {
	return &AuthServer{auth: auth}
}

// Register creates an account; a legacy token is returned when deviceId is given.
func (s *AuthServer) Register(ctx context.Context, req *authv1.RegisterRequest) (*authv1.RegisterResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Register not implemented")
	}
	res, err := s.auth.Register(ctx, identityservice.RegisterInput{
		Username:          req.Username,
		Email:             req.Email,
		Password:          req.Password,
		LegacyFingerprint: req.DeviceID,
	})
	if err != nil {
		return nil, authz.StatusError(err)
	}
	out := &authv1.RegisterResponse{
		Message: "User registered successfully",
		User:    userhandler.UserToAPI(res.User),
		Token:   res.LegacyToken,
	}
	if res.LegacyToken != "" {
		out.ExpiresAt = &res.ExpiresAt
	}
	return out, nil
}

// Login authenticates username (or email) and password. With deviceInfo it
// registers the device and returns a session and device secret; otherwise it
// runs the legacy single-token login for deviceId.
func (s *AuthServer) Login(ctx context.Context, req *authv1.LoginRequest) (*authv1.LoginResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Login not implemented")
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return nil, status.Error(codes.InvalidArgument, "username and password are required")
	}
	in := identityservice.LoginRequest{
		Identifier:        req.Username,
		Password:          req.Password,
		LegacyFingerprint: req.DeviceID,
		SourceAddress:     interceptors.ClientIP(ctx),
	}
	if req.DeviceInfo != nil {
		in.Device = &devicedomain.Info{
			Fingerprint: req.DeviceInfo.UserAgent,
			Platform:    req.DeviceInfo.Platform,
			Label:       req.DeviceInfo.DeviceName,
		}
	}
	res, err := s.auth.Login(ctx, in)
	if err != nil {
		return nil, authz.StatusError(err)
	}
	return LoginResultToAPI(res), nil
}

// LoginResultToAPI converts a login result to its wire form.
func LoginResultToAPI(res *identityservice.LoginResult) *authv1.LoginResponse {
	out := &authv1.LoginResponse{
		Success:   true,
		Message:   "Login successful",
		ExpiresAt: res.ExpiresAt,
		User:      userhandler.UserToAPI(res.User),
	}
	if res.Scheme == identityservice.SchemeDevice {
		out.SessionToken = res.SessionSecret
		out.DeviceToken = res.DeviceSecret
		// The legacy fingerprint is not part of a device-bound login.
		if out.User != nil {
			out.User.DeviceID = ""
		}
	} else {
		out.Token = res.LegacyToken
	}
	return out
}

// Verify reports the identity behind the presented credentials. The auth
// interceptor has already validated them.
func (s *AuthServer) Verify(ctx context.Context, req *authv1.VerifyRequest) (*authv1.VerifyResponse, error) {
	id, err := authz.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	return &authv1.VerifyResponse{
		Valid:    true,
		Scheme:   string(id.Scheme),
		User:     userhandler.UserToAPI(id.User),
		DeviceID: id.CurrentDeviceID(),
	}, nil
}

// Logout ends the presented session or legacy token.
func (s *AuthServer) Logout(ctx context.Context, req *authv1.LogoutRequest) (*authv1.LogoutResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Logout not implemented")
	}
	creds, ok := interceptors.GetCredentials(ctx)
	if !ok || creds.Bearer == "" {
		return nil, status.Error(codes.Unauthenticated, "access token required")
	}
	if err := s.auth.Logout(ctx, creds); err != nil {
		return nil, authz.StatusError(err)
	}
	return &authv1.LogoutResponse{Message: "Logout successful"}, nil
}

// LogoutAll ends every session and legacy token of the caller, including the current one.
func (s *AuthServer) LogoutAll(ctx context.Context, req *authv1.LogoutAllRequest) (*authv1.LogoutAllResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method LogoutAll not implemented")
	}
	id, err := authz.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.auth.LogoutAll(ctx, id.User.ID)
	if err != nil {
		return nil, authz.StatusError(err)
	}
	return &authv1.LogoutAllResponse{Message: "All sessions terminated", Invalidated: n}, nil
}

// RefreshDevice rotates the caller's device secret and replaces its session.
func (s *AuthServer) RefreshDevice(ctx context.Context, req *authv1.RefreshDeviceRequest) (*authv1.RefreshDeviceResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method RefreshDevice not implemented")
	}
	id, err := authz.RequireDeviceSession(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.auth.RefreshDevice(ctx, id, interceptors.ClientIP(ctx))
	if err != nil {
		return nil, authz.StatusError(err)
	}
	return &authv1.RefreshDeviceResponse{
		SessionToken: res.SessionSecret,
		DeviceToken:  res.DeviceSecret,
		ExpiresAt:    res.ExpiresAt,
	}, nil
}
