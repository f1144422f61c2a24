package handler

import (
	"context"
	"net"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"devicebound-auth/backend/api/authv1"
	identityservice "devicebound-auth/backend/internal/identity/service"
	"devicebound-auth/backend/internal/security"
	"devicebound-auth/backend/internal/server/interceptors"
	"devicebound-auth/backend/internal/store"
	userdomain "devicebound-auth/backend/internal/user/domain"
)

const testPassword = "Secret123"

func newTestAuth(t *testing.T) *identityservice.AuthService {
	t.Helper()
	signer, err := security.NewTestLegacySigner(time.Hour)
	if err != nil {
		t.Fatalf("NewTestLegacySigner: %v", err)
	}
	return identityservice.NewAuthService(identityservice.Deps{
		Store:              store.NewMemory(),
		Hasher:             security.NewHasher(bcrypt.MinCost),
		Signer:             signer,
		LegacyLoginEnabled: true,
	})
}

// authedContext authenticates creds the way the auth interceptor does.
func authedContext(t *testing.T, auth *identityservice.AuthService, creds identityservice.Credentials) context.Context {
	t.Helper()
	id, err := auth.Authenticate(context.Background(), creds)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	return interceptors.WithIdentity(context.Background(), id, creds)
}

func register(t *testing.T, srv *AuthServer, username, deviceID string) *authv1.RegisterResponse {
	t.Helper()
	resp, err := srv.Register(context.Background(), &authv1.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: testPassword,
		DeviceID: deviceID,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return resp
}

func deviceLogin(t *testing.T, srv *AuthServer, username, userAgent string) *authv1.LoginResponse {
	t.Helper()
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("203.0.113.9"), Port: 443}})
	resp, err := srv.Login(ctx, &authv1.LoginRequest{
		Username:   username,
		Password:   testPassword,
		DeviceInfo: &authv1.DeviceInfo{UserAgent: userAgent, Platform: "Web"},
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return resp
}

func TestNilService_Unimplemented(t *testing.T) {
	srv := NewAuthServer(nil)
	if _, err := srv.Login(context.Background(), &authv1.LoginRequest{}); status.Code(err) != codes.Unimplemented {
		t.Errorf("Login code = %v, want Unimplemented", status.Code(err))
	}
	legacy := NewLegacyServer(nil)
	if _, err := legacy.ForceLogout(context.Background(), &authv1.ForceLogoutRequest{}); status.Code(err) != codes.Unimplemented {
		t.Errorf("ForceLogout code = %v, want Unimplemented", status.Code(err))
	}
}

func TestRegister(t *testing.T) {
	srv := NewAuthServer(newTestAuth(t))
	resp := register(t, srv, "alice", "")
	if resp.User == nil || resp.User.Username != "alice" || resp.Token != "" || resp.ExpiresAt != nil {
		t.Errorf("response = %+v", resp)
	}

	_, err := srv.Register(context.Background(), &authv1.RegisterRequest{Username: "alice", Email: "x@example.com", Password: testPassword})
	if status.Code(err) != codes.AlreadyExists {
		t.Errorf("duplicate code = %v, want AlreadyExists", status.Code(err))
	}
	_, err = srv.Register(context.Background(), &authv1.RegisterRequest{Username: "bob", Email: "bob@example.com", Password: "weak"})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("weak password code = %v, want InvalidArgument", status.Code(err))
	}

	legacy := register(t, srv, "carol", "carol-pc")
	if legacy.Token == "" || legacy.ExpiresAt == nil || legacy.User.DeviceID != "carol-pc" {
		t.Errorf("legacy registration = %+v", legacy)
	}
}

func TestLogin_DeviceScheme(t *testing.T) {
	auth := newTestAuth(t)
	srv := NewAuthServer(auth)
	register(t, srv, "alice", "")

	resp := deviceLogin(t, srv, "alice@example.com", "Mozilla/5.0")
	if !resp.Success || resp.SessionToken == "" || resp.DeviceToken == "" || resp.Token != "" {
		t.Fatalf("response = %+v", resp)
	}
	if resp.User.Email != "alice@example.com" {
		t.Errorf("user = %+v", resp.User)
	}

	ctx := authedContext(t, auth, identityservice.Credentials{Bearer: resp.SessionToken, DeviceToken: resp.DeviceToken})
	v, err := srv.Verify(ctx, &authv1.VerifyRequest{})
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !v.Valid || v.Scheme != "device" || v.DeviceID == "" {
		t.Errorf("verify = %+v", v)
	}
}

func TestLoginResultToAPI_DeviceIDOnlyForLegacy(t *testing.T) {
	user := &userdomain.User{ID: "u1", Username: "carol", Email: "carol@example.com", LegacyFingerprint: "carol-pc"}

	device := LoginResultToAPI(&identityservice.LoginResult{
		Scheme:        identityservice.SchemeDevice,
		User:          user,
		SessionSecret: "session",
		DeviceSecret:  "device",
	})
	if device.User.DeviceID != "" {
		t.Errorf("device login User.DeviceID = %q, want empty", device.User.DeviceID)
	}
	if device.SessionToken != "session" || device.DeviceToken != "device" || device.Token != "" {
		t.Errorf("device login = %+v", device)
	}

	legacy := LoginResultToAPI(&identityservice.LoginResult{
		Scheme:      identityservice.SchemeLegacy,
		User:        user,
		LegacyToken: "a.b.c",
	})
	if legacy.User.DeviceID != "carol-pc" {
		t.Errorf("legacy login User.DeviceID = %q, want carol-pc", legacy.User.DeviceID)
	}
	if user.LegacyFingerprint != "carol-pc" {
		t.Error("LoginResultToAPI modified the user")
	}
}

func TestLogin_Errors(t *testing.T) {
	srv := NewAuthServer(newTestAuth(t))
	register(t, srv, "alice", "")
	tests := []struct {
		name string
		req  *authv1.LoginRequest
		want codes.Code
	}{
		{"missing password", &authv1.LoginRequest{Username: "alice"}, codes.InvalidArgument},
		{"wrong password", &authv1.LoginRequest{Username: "alice", Password: "Wrong123", DeviceInfo: &authv1.DeviceInfo{UserAgent: "ua"}}, codes.Unauthenticated},
		{"unknown user", &authv1.LoginRequest{Username: "nobody", Password: testPassword, DeviceID: "fp"}, codes.Unauthenticated},
		{"missing fingerprint", &authv1.LoginRequest{Username: "alice", Password: testPassword, DeviceInfo: &authv1.DeviceInfo{}}, codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := srv.Login(context.Background(), tt.req); status.Code(err) != tt.want {
				t.Errorf("code = %v, want %v (%v)", status.Code(err), tt.want, err)
			}
		})
	}
}

func TestLogin_LegacyMismatch(t *testing.T) {
	srv := NewAuthServer(newTestAuth(t))
	register(t, srv, "alice", "")
	resp, err := srv.Login(context.Background(), &authv1.LoginRequest{Username: "alice", Password: testPassword, DeviceID: "abc"})
	if err != nil {
		t.Fatalf("Login abc: %v", err)
	}
	if resp.Token == "" || resp.SessionToken != "" {
		t.Errorf("legacy response = %+v", resp)
	}
	_, err = srv.Login(context.Background(), &authv1.LoginRequest{Username: "alice", Password: testPassword, DeviceID: "xyz"})
	if status.Code(err) != codes.PermissionDenied {
		t.Errorf("code = %v, want PermissionDenied", status.Code(err))
	}
}

func TestLogoutAndLogoutAll(t *testing.T) {
	auth := newTestAuth(t)
	srv := NewAuthServer(auth)
	register(t, srv, "alice", "")
	first := deviceLogin(t, srv, "alice", "ua-1")
	second := deviceLogin(t, srv, "alice", "ua-2")

	firstCreds := identityservice.Credentials{Bearer: first.SessionToken, DeviceToken: first.DeviceToken}
	if _, err := srv.Logout(authedContext(t, auth, firstCreds), &authv1.LogoutRequest{}); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := auth.Authenticate(context.Background(), firstCreds); err == nil {
		t.Error("session still valid after logout")
	}
	if _, err := srv.Logout(context.Background(), &authv1.LogoutRequest{}); status.Code(err) != codes.Unauthenticated {
		t.Errorf("logout without credentials code = %v", status.Code(err))
	}

	secondCreds := identityservice.Credentials{Bearer: second.SessionToken, DeviceToken: second.DeviceToken}
	resp, err := srv.LogoutAll(authedContext(t, auth, secondCreds), &authv1.LogoutAllRequest{})
	if err != nil {
		t.Fatalf("LogoutAll: %v", err)
	}
	if resp.Invalidated != 1 {
		t.Errorf("invalidated = %d, want 1", resp.Invalidated)
	}
	if _, err := auth.Authenticate(context.Background(), secondCreds); err == nil {
		t.Error("session still valid after logout all")
	}
}

func TestRefreshDevice(t *testing.T) {
	auth := newTestAuth(t)
	srv := NewAuthServer(auth)
	reg := register(t, srv, "alice", "alice-pc")
	login := deviceLogin(t, srv, "alice", "ua")

	creds := identityservice.Credentials{Bearer: login.SessionToken, DeviceToken: login.DeviceToken}
	resp, err := srv.RefreshDevice(authedContext(t, auth, creds), &authv1.RefreshDeviceRequest{})
	if err != nil {
		t.Fatalf("RefreshDevice: %v", err)
	}
	if resp.SessionToken == login.SessionToken || resp.DeviceToken == login.DeviceToken {
		t.Error("refresh returned the old secrets")
	}

	legacyCtx := authedContext(t, auth, identityservice.Credentials{Bearer: reg.Token})
	if _, err := srv.RefreshDevice(legacyCtx, &authv1.RefreshDeviceRequest{}); status.Code(err) != codes.FailedPrecondition {
		t.Errorf("legacy refresh code = %v, want FailedPrecondition", status.Code(err))
	}
	if _, err := srv.RefreshDevice(context.Background(), &authv1.RefreshDeviceRequest{}); status.Code(err) != codes.Unauthenticated {
		t.Errorf("anonymous refresh code = %v, want Unauthenticated", status.Code(err))
	}
}
