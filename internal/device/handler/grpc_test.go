package handler

import (
	"context"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"devicebound-auth/backend/api/authv1"
	devicedomain "devicebound-auth/backend/internal/device/domain"
	identityservice "devicebound-auth/backend/internal/identity/service"
	"devicebound-auth/backend/internal/security"
	"devicebound-auth/backend/internal/server/interceptors"
	"devicebound-auth/backend/internal/store"
)

type fixture struct {
	auth  *identityservice.AuthService
	srv   *Server
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	signer, err := security.NewTestLegacySigner(time.Hour)
	if err != nil {
		t.Fatalf("NewTestLegacySigner: %v", err)
	}
	f := &fixture{clock: time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)}
	f.auth = identityservice.NewAuthService(identityservice.Deps{
		Store:  store.NewMemory(),
		Hasher: security.NewHasher(bcrypt.MinCost),
		Signer: signer,
	})
	f.auth.SetClock(func() time.Time { return f.clock })
	f.srv = NewServer(f.auth)
	for _, name := range []string{"alice", "mallory"} {
		if _, err := f.auth.Register(context.Background(), identityservice.RegisterInput{
			Username: name, Email: name + "@example.com", Password: "Secret123",
		}); err != nil {
			t.Fatalf("Register %s: %v", name, err)
		}
	}
	return f
}

// login signs username in from userAgent and returns a context authenticated as that device.
func (f *fixture) login(t *testing.T, username, userAgent string) (context.Context, *identityservice.LoginResult) {
	t.Helper()
	f.clock = f.clock.Add(time.Minute)
	res, err := f.auth.Login(context.Background(), identityservice.LoginRequest{
		Identifier: username,
		Password:   "Secret123",
		Device:     &devicedomain.Info{Fingerprint: userAgent, Platform: "Android"},
	})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	creds := identityservice.Credentials{Bearer: res.SessionSecret, DeviceToken: res.DeviceSecret}
	id, err := f.auth.Authenticate(context.Background(), creds)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	return interceptors.WithIdentity(context.Background(), id, creds), res
}

func TestListDevices(t *testing.T) {
	f := newFixture(t)
	f.login(t, "alice", "phone")
	ctx, laptop := f.login(t, "alice", "laptop")

	resp, err := f.srv.ListDevices(ctx, &authv1.ListDevicesRequest{})
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(resp.Devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(resp.Devices))
	}
	first := resp.Devices[0]
	if first.ID != laptop.Device.ID || !first.Current || first.UserAgent != "laptop" {
		t.Errorf("first device = %+v, want current laptop", first)
	}
	if resp.Devices[1].Current {
		t.Error("phone flagged as current")
	}
	if first.DeviceName != "Android - 2026-04-01" {
		t.Errorf("label = %q", first.DeviceName)
	}
}

func TestRevokeDevice(t *testing.T) {
	f := newFixture(t)
	_, phone := f.login(t, "alice", "phone")
	ctx, laptop := f.login(t, "alice", "laptop")
	_, other := f.login(t, "mallory", "m-phone")

	tests := []struct {
		name     string
		deviceID string
		want     codes.Code
	}{
		{"missing id", " ", codes.InvalidArgument},
		{"current device", laptop.Device.ID, codes.FailedPrecondition},
		{"other user's device", other.Device.ID, codes.NotFound},
		{"unknown device", "does-not-exist", codes.NotFound},
		{"own other device", phone.Device.ID, codes.OK},
		{"already revoked", phone.Device.ID, codes.OK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.srv.RevokeDevice(ctx, &authv1.RevokeDeviceRequest{DeviceID: tt.deviceID})
			if status.Code(err) != tt.want {
				t.Errorf("code = %v, want %v (%v)", status.Code(err), tt.want, err)
			}
		})
	}
	_, err := f.auth.Authenticate(context.Background(), identityservice.Credentials{Bearer: phone.SessionSecret, DeviceToken: phone.DeviceSecret})
	if err == nil {
		t.Error("revoked device session still valid")
	}
}

func TestRequiresIdentity(t *testing.T) {
	f := newFixture(t)
	if _, err := f.srv.ListDevices(context.Background(), &authv1.ListDevicesRequest{}); status.Code(err) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", status.Code(err))
	}
	if _, err := NewServer(nil).RevokeDevice(context.Background(), &authv1.RevokeDeviceRequest{}); status.Code(err) != codes.Unimplemented {
		t.Errorf("nil service code = %v, want Unimplemented", status.Code(err))
	}
}
