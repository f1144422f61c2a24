package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"devicebound-auth/backend/internal/security"
	"devicebound-auth/backend/internal/store"
	userdomain "devicebound-auth/backend/internal/user/domain"
	userservice "devicebound-auth/backend/internal/user/service"
)

const testPassword = "s3cret-pass"

type fixture struct {
	svc   *Service
	st    *store.Memory
	now   time.Time
	audit *recordingAudit
}

type recordingAudit struct {
	actions  []string
	security []string
}

func (r *recordingAudit) LogEvent(_ context.Context, _, _, action, _ string, _ map[string]string) {
	r.actions = append(r.actions, action)
}

func (r *recordingAudit) LogSecurityEvent(_ context.Context, _, _, action string, _ map[string]string) {
	r.security = append(r.security, action)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemory()
	hasher := security.NewHasher(bcrypt.MinCost)
	hash, err := hasher.Hash([]byte(testPassword))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	for _, u := range []*userdomain.User{
		{ID: "u1", Username: "alice", Email: "alice@example.com", PasswordHash: hash},
		{ID: "u2", Username: "bob", Email: "bob@example.com", PasswordHash: hash},
	} {
		if err := st.Users().Create(context.Background(), u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	signer, err := security.NewHMACLegacySigner([]byte("test-legacy-secret-0123456789abcdef"), "devauth-test", 24*time.Hour)
	if err != nil {
		t.Fatalf("NewHMACLegacySigner: %v", err)
	}
	f := &fixture{st: st, now: time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC), audit: &recordingAudit{}}
	clock := func() time.Time { return f.now }
	signer.SetClock(clock)
	f.svc = NewService(st, userservice.NewCredentialVerifier(st.Users(), hasher), signer, f.audit)
	f.svc.SetClock(clock)
	return f
}

func TestLogin_BindsFingerprintOnFirstLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.svc.Login(ctx, "alice", testPassword, "abc")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if issued.Raw == "" || issued.Token.DeviceID != "abc" {
		t.Errorf("issued = %+v", issued)
	}
	if issued.Token.TokenHash == issued.Raw {
		t.Error("raw token stored")
	}
	u, _ := f.st.Users().GetByID(ctx, "u1")
	if u.LegacyFingerprint != "abc" {
		t.Errorf("LegacyFingerprint = %q, want abc", u.LegacyFingerprint)
	}
	if u.LastLoginAt == nil || !u.LastLoginAt.Equal(f.now) {
		t.Errorf("LastLoginAt = %v, want %v", u.LastLoginAt, f.now)
	}
	v, err := f.svc.Verify(ctx, issued.Raw)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.User.ID != "u1" || v.Claims.DeviceID != "abc" {
		t.Errorf("Verified = %+v", v)
	}
}

func TestLogin_DeviceMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.svc.Login(ctx, "alice", testPassword, "abc")
	if err != nil {
		t.Fatalf("Login abc: %v", err)
	}
	if _, err := f.svc.Login(ctx, "alice", testPassword, "xyz"); !errors.Is(err, ErrDeviceMismatch) {
		t.Fatalf("Login xyz err = %v, want ErrDeviceMismatch", err)
	}
	if len(f.audit.security) != 1 || f.audit.security[0] != "legacy_device_mismatch" {
		t.Errorf("security events = %v", f.audit.security)
	}
	// The rejected login must not disturb the existing token.
	if _, err := f.svc.Verify(ctx, first.Raw); err != nil {
		t.Errorf("Verify after mismatch: %v", err)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Login(context.Background(), "alice", "wrong", "abc")
	if !errors.Is(err, userservice.ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	_, err = f.svc.Login(context.Background(), "alice", testPassword, "")
	if !errors.Is(err, ErrFingerprintRequired) {
		t.Fatalf("err = %v, want ErrFingerprintRequired", err)
	}
}

func TestLogin_FingerprintBoundToAnotherUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Login(ctx, "alice", testPassword, "abc"); err != nil {
		t.Fatalf("Login alice: %v", err)
	}
	if _, err := f.svc.Login(ctx, "bob", testPassword, "abc"); !errors.Is(err, ErrDeviceAlreadyRegistered) {
		t.Fatalf("Login bob err = %v, want ErrDeviceAlreadyRegistered", err)
	}
	u, _ := f.st.Users().GetByID(ctx, "u2")
	if u.LegacyFingerprint != "" {
		t.Errorf("bob fingerprint = %q, want unbound", u.LegacyFingerprint)
	}
}

func TestLogin_ReplacesPreviousTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.svc.Login(ctx, "alice", testPassword, "abc")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	second, err := f.svc.Login(ctx, "alice@example.com", testPassword, "abc")
	if err != nil {
		t.Fatalf("Login again: %v", err)
	}
	if first.Raw == second.Raw {
		t.Fatal("second login returned the same token")
	}
	if _, err := f.svc.Verify(ctx, first.Raw); !errors.Is(err, ErrInvalidLegacyToken) {
		t.Errorf("Verify first err = %v, want ErrInvalidLegacyToken", err)
	}
	if _, err := f.svc.Verify(ctx, second.Raw); err != nil {
		t.Errorf("Verify second: %v", err)
	}
	active, err := f.svc.ActiveTokens(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveTokens: %v", err)
	}
	if len(active) != 1 || active[0].ID != second.Token.ID {
		t.Errorf("active tokens = %d, want only the latest", len(active))
	}
}

func TestVerify_ExpiredTokenIsInvalidated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.svc.Login(ctx, "alice", testPassword, "abc")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	f.now = f.now.Add(25 * time.Hour)
	if _, err := f.svc.Verify(ctx, issued.Raw); !errors.Is(err, ErrLegacyTokenExpired) {
		t.Fatalf("Verify err = %v, want ErrLegacyTokenExpired", err)
	}
	stored, _ := f.st.LegacyTokens().GetByHash(ctx, security.HashSecret(issued.Raw))
	if stored == nil || stored.Valid {
		t.Errorf("expired token still valid: %+v", stored)
	}
	if _, err := f.svc.Verify(ctx, issued.Raw); !errors.Is(err, ErrInvalidLegacyToken) {
		t.Errorf("second Verify err = %v, want ErrInvalidLegacyToken", err)
	}
}

func TestVerify_RejectsForeignAndMalformedTokens(t *testing.T) {
	f := newFixture(t)
	other, err := security.NewHMACLegacySigner([]byte("some-other-secret-value-xxxxxxxxxx"), "devauth-test", time.Hour)
	if err != nil {
		t.Fatalf("NewHMACLegacySigner: %v", err)
	}
	forged, _, err := other.Issue("u1", "alice", "abc")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	for _, raw := range []string{"", "not-a-token", forged} {
		if _, err := f.svc.Verify(context.Background(), raw); !errors.Is(err, ErrInvalidLegacyToken) {
			t.Errorf("Verify(%q) err = %v, want ErrInvalidLegacyToken", raw, err)
		}
	}
}

func TestLogoutAndForceLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued, err := f.svc.Login(ctx, "alice", testPassword, "abc")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := f.svc.Logout(ctx, issued.Raw); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.svc.Verify(ctx, issued.Raw); !errors.Is(err, ErrInvalidLegacyToken) {
		t.Errorf("Verify after logout err = %v", err)
	}
	if err := f.svc.Logout(ctx, "unknown"); err != nil {
		t.Errorf("Logout unknown: %v", err)
	}

	issued, err = f.svc.Login(ctx, "alice", testPassword, "abc")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	n, err := f.svc.ForceLogout(ctx, "u1")
	if err != nil {
		t.Fatalf("ForceLogout: %v", err)
	}
	if n != 1 {
		t.Errorf("ForceLogout invalidated %d, want 1", n)
	}
	if _, err := f.svc.Verify(ctx, issued.Raw); !errors.Is(err, ErrInvalidLegacyToken) {
		t.Errorf("Verify after force logout err = %v", err)
	}
}

func TestChangeDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, err := f.svc.Login(ctx, "alice", testPassword, "abc")
	if err != nil {
		t.Fatalf("Login alice: %v", err)
	}
	if _, err := f.svc.Login(ctx, "bob", testPassword, "bob-phone"); err != nil {
		t.Fatalf("Login bob: %v", err)
	}

	if _, err := f.svc.ChangeDevice(ctx, "u1", "bob-phone"); !errors.Is(err, ErrDeviceAlreadyRegistered) {
		t.Fatalf("ChangeDevice collision err = %v, want ErrDeviceAlreadyRegistered", err)
	}
	if _, err := f.svc.Verify(ctx, alice.Raw); err != nil {
		t.Errorf("failed ChangeDevice invalidated tokens: %v", err)
	}

	u, err := f.svc.ChangeDevice(ctx, "u1", "xyz")
	if err != nil {
		t.Fatalf("ChangeDevice: %v", err)
	}
	if u.LegacyFingerprint != "xyz" {
		t.Errorf("LegacyFingerprint = %q, want xyz", u.LegacyFingerprint)
	}
	if _, err := f.svc.Verify(ctx, alice.Raw); !errors.Is(err, ErrInvalidLegacyToken) {
		t.Errorf("old token after ChangeDevice err = %v", err)
	}
	if _, err := f.svc.Login(ctx, "alice", testPassword, "abc"); !errors.Is(err, ErrDeviceMismatch) {
		t.Errorf("Login with old fingerprint err = %v, want ErrDeviceMismatch", err)
	}
	if _, err := f.svc.Login(ctx, "alice", testPassword, "xyz"); err != nil {
		t.Errorf("Login with new fingerprint: %v", err)
	}
	if _, err := f.svc.ChangeDevice(ctx, "u1", ""); !errors.Is(err, ErrFingerprintRequired) {
		t.Errorf("empty fingerprint err = %v", err)
	}
	if _, err := f.svc.ChangeDevice(ctx, "ghost", "q"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown user err = %v", err)
	}
}

func TestDeviceInfoAndCleanup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Login(ctx, "alice", testPassword, "abc"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	info, err := f.svc.DeviceInfo(ctx, "u1")
	if err != nil {
		t.Fatalf("DeviceInfo: %v", err)
	}
	if info.Fingerprint != "abc" || len(info.ActiveTokens) != 1 || info.LastLoginAt == nil {
		t.Errorf("DeviceInfo = %+v", info)
	}
	if _, err := f.svc.DeviceInfo(ctx, "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("DeviceInfo unknown user err = %v", err)
	}

	f.now = f.now.Add(48 * time.Hour)
	n, err := f.svc.CleanupExpired(ctx)
	if err != nil {
		t.Fatalf("CleanupExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("CleanupExpired removed %d, want 1", n)
	}
	info, _ = f.svc.DeviceInfo(ctx, "u1")
	if len(info.ActiveTokens) != 0 {
		t.Errorf("active tokens after cleanup = %d, want 0", len(info.ActiveTokens))
	}
}

func TestRunCleanup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Login(ctx, "alice", testPassword, "abc"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	f.now = f.now.Add(48 * time.Hour)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		f.svc.RunCleanup(runCtx, 5*time.Millisecond, nil)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		left, err := f.st.LegacyTokens().ListActiveByUser(ctx, "u1", time.Time{})
		if err != nil {
			t.Fatalf("ListActiveByUser: %v", err)
		}
		if len(left) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expired token was not cleaned up")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunCleanup did not stop after cancel")
	}
}
