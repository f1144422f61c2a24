package handler

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"devicebound-auth/backend/api/authv1"
	identityservice "devicebound-auth/backend/internal/identity/service"
	legacydomain "devicebound-auth/backend/internal/legacytoken/domain"
	"devicebound-auth/backend/internal/platform/authz"
	"devicebound-auth/backend/internal/user/domain"
)

// Server implements UserService for the authenticated caller's own account.
type Server struct {
	authv1.UnimplementedUserServiceServer
	auth *identityservice.AuthService
}

// NewServer returns a new User gRPC server. If auth is nil, all RPCs return Unimplemented.
func NewServer(auth *identityservice.AuthService) *Server {
	return &Server{auth: auth}
}

// GetProfile returns the caller's profile.
func (s *Server) GetProfile(ctx context.Context, req *authv1.GetProfileRequest) (*authv1.GetProfileResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method GetProfile not implemented")
	}
	id, err := authz.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.auth.Profile(ctx, id.User.ID)
	if err != nil {
		return nil, authz.StatusError(err)
	}
	return &authv1.GetProfileResponse{User: ProfileToAPI(p)}, nil
}

// GetSessions returns the number of live device sessions and the live legacy tokens of the caller.
func (s *Server) GetSessions(ctx context.Context, req *authv1.GetSessionsRequest) (*authv1.GetSessionsResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method GetSessions not implemented")
	}
	id, err := authz.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	sum, err := s.auth.Sessions(ctx, id.User.ID)
	if err != nil {
		return nil, authz.StatusError(err)
	}
	return &authv1.GetSessionsResponse{
		DeviceSessions: sum.DeviceSessions,
		Sessions:       LegacyTokensToAPI(sum.LegacyTokens),
	}, nil
}

// UserToAPI converts a user to its wire form. Credentials are never included.
func UserToAPI(u *domain.User) *authv1.User {
	if u == nil {
		return nil
	}
	p := u.Profile()
	return ProfileToAPI(&p)
}

// ProfileToAPI converts a profile to its wire form.
func ProfileToAPI(p *domain.Profile) *authv1.User {
	if p == nil {
		return nil
	}
	return &authv1.User{
		ID:          p.ID,
		Username:    p.Username,
		Email:       p.Email,
		DeviceID:    p.LegacyFingerprint,
		LastLoginAt: p.LastLoginAt,
		CreatedAt:   p.CreatedAt,
	}
}

// LegacyTokensToAPI converts live legacy tokens, omitting their hashes.
func LegacyTokensToAPI(list []*legacydomain.Token) []*authv1.LegacyToken {
	out := make([]*authv1.LegacyToken, 0, len(list))
	for _, t := range list {
		out = append(out, &authv1.LegacyToken{
			ID:        t.ID,
			DeviceID:  t.DeviceID,
			ExpiresAt: t.ExpiresAt,
			CreatedAt: t.CreatedAt,
		})
	}
	return out
}
