package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"devicebound-auth/backend/internal/audit"
	devicedomain "devicebound-auth/backend/internal/device/domain"
	deviceservice "devicebound-auth/backend/internal/device/service"
	legacydomain "devicebound-auth/backend/internal/legacytoken/domain"
	legacyservice "devicebound-auth/backend/internal/legacytoken/service"
	"devicebound-auth/backend/internal/policy/engine"
	"devicebound-auth/backend/internal/ratelimit"
	"devicebound-auth/backend/internal/security"
	sessiondomain "devicebound-auth/backend/internal/session/domain"
	sessionservice "devicebound-auth/backend/internal/session/service"
	"devicebound-auth/backend/internal/store"
	"devicebound-auth/backend/internal/telemetry"
	userdomain "devicebound-auth/backend/internal/user/domain"
	userrepo "devicebound-auth/backend/internal/user/repository"
	userservice "devicebound-auth/backend/internal/user/service"
)

// Sentinel errors for the auth service; handlers map them to gRPC codes and HTTP statuses.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrUsernameOrEmailTaken = errors.New("username or email already exists")
	ErrLegacyLoginDisabled  = errors.New("legacy login is disabled")
	ErrLoginDenied          = errors.New("login denied by policy")
	ErrUserNotFound         = errors.New("user not found")
	ErrMissingCredentials   = errors.New("missing credentials")
)

// Scheme tags which login scheme a request or identity belongs to.
type Scheme string

const (
	SchemeDevice Scheme = engine.SchemeDevice
	SchemeLegacy Scheme = engine.SchemeLegacy
)

// RegisterInput is a new account. LegacyFingerprint is optional; when set the
// account is bound to it and a legacy token is issued.
type RegisterInput struct {
	Username          string
	Email             string
	Password          string
	LegacyFingerprint string
}

// RegisterResult is the created user and, for a legacy registration, its token.
type RegisterResult struct {
	User        *userdomain.User
	LegacyToken string
	ExpiresAt   time.Time
}

// LoginRequest carries either Device (device-bound scheme) or
// LegacyFingerprint (legacy scheme). Device wins when both are set.
type LoginRequest struct {
	Identifier        string
	Password          string
	Device            *devicedomain.Info
	LegacyFingerprint string
	SourceAddress     string
}

// Scheme reports which login variant the request selects.
func (r LoginRequest) Scheme() Scheme {
	if r.Device != nil {
		return SchemeDevice
	}
	return SchemeLegacy
}

// LoginResult is the tagged outcome of Login or RefreshDevice. SessionSecret
// and DeviceSecret are set for SchemeDevice; LegacyToken for SchemeLegacy.
type LoginResult struct {
	Scheme        Scheme
	User          *userdomain.User
	Device        *devicedomain.Device
	Session       *sessiondomain.Session
	SessionSecret string
	DeviceSecret  string
	LegacyToken   string
	ExpiresAt     time.Time
}

// Credentials are what a client presents on an authenticated call. See Scheme
// for how they select a scheme.
type Credentials struct {
	Bearer      string
	DeviceToken string
}

// Scheme reports which scheme the credentials select. Only a bearer shaped
// like a signed legacy token without a device token selects SchemeLegacy; an
// opaque session secret sent alone is validated as a device-bound session with
// an empty device secret.
func (c Credentials) Scheme() Scheme {
	if c.DeviceToken != "" || !isLegacyTokenShape(c.Bearer) {
		return SchemeDevice
	}
	return SchemeLegacy
}

// isLegacyTokenShape reports whether s has the header.payload.signature form of
// a legacy token. Session secrets are hex and never contain a dot.
func isLegacyTokenShape(s string) bool {
	return strings.Count(s, ".") == 2
}

// Identity is the caller established by Authenticate.
type Identity struct {
	Scheme      Scheme
	User        *userdomain.User
	Device      *devicedomain.Device
	Session     *sessiondomain.Session
	LegacyToken *legacydomain.Token
}

// CurrentDeviceID returns the device id of a device-bound identity, or "".
func (i *Identity) CurrentDeviceID() string {
	if i == nil || i.Device == nil {
		return ""
	}
	return i.Device.ID
}

// SessionSummary describes a user's live sessions across both schemes.
type SessionSummary struct {
	DeviceSessions int64
	LegacyTokens   []*legacydomain.Token
}

// Deps are the collaborators of AuthService. Store, Hasher and Signer are
// required; the rest default to permissive no-ops.
type Deps struct {
	Store              store.Store
	Hasher             *security.Hasher
	Signer             *security.LegacySigner
	Policy             engine.Evaluator
	Limiter            ratelimit.Limiter
	Audit              audit.AuditLogger
	Metrics            *telemetry.Metrics
	Log                *zap.Logger
	SessionTTL         time.Duration
	LegacyLoginEnabled bool
}

// AuthService is the single entry point of both login schemes. Login and
// Authenticate dispatch on the scheme tag; everything else delegates to the
// component services.
type AuthService struct {
	store     store.Store
	hasher    *security.Hasher
	verifier  *userservice.CredentialVerifier
	registry  *deviceservice.Registry
	issuer    *sessionservice.Issuer
	validator *sessionservice.Validator
	revoker   *sessionservice.Revoker
	legacy    *legacyservice.Service
	policy    engine.Evaluator
	limiter   ratelimit.Limiter
	audit     audit.AuditLogger
	metrics   *telemetry.Metrics
	log       *zap.Logger

	sessionTTL         time.Duration
	legacyLoginEnabled bool
	now                func() time.Time
}

// NewAuthService wires the component services on d.Store.
func NewAuthService(d Deps) *AuthService {
	if d.Policy == nil {
		d.Policy = engine.StaticEvaluator{}
	}
	if d.Limiter == nil {
		d.Limiter = ratelimit.Noop{}
	}
	if d.Audit == nil {
		d.Audit = audit.Nop{}
	}
	if d.Metrics == nil {
		d.Metrics = telemetry.NopMetrics()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.SessionTTL <= 0 {
		d.SessionTTL = sessionservice.DefaultSessionTTL
	}
	verifier := userservice.NewCredentialVerifier(d.Store.Users(), d.Hasher)
	return &AuthService{
		store:              d.Store,
		hasher:             d.Hasher,
		verifier:           verifier,
		registry:           deviceservice.NewRegistry(d.Store),
		issuer:             sessionservice.NewIssuer(d.Store),
		validator:          sessionservice.NewValidator(d.Store, d.Audit),
		revoker:            sessionservice.NewRevoker(d.Store, d.Audit),
		legacy:             legacyservice.NewService(d.Store, verifier, d.Signer, d.Audit),
		policy:             d.Policy,
		limiter:            d.Limiter,
		audit:              d.Audit,
		metrics:            d.Metrics,
		log:                d.Log,
		sessionTTL:         d.SessionTTL,
		legacyLoginEnabled: d.LegacyLoginEnabled,
		now:                time.Now,
	}
}

// SetClock overrides the time source of the service and its components.
func (s *AuthService) SetClock(now func() time.Time) {
	if now == nil {
		return
	}
	s.now = now
	s.registry.SetClock(now)
	s.issuer.SetClock(now)
	s.validator.SetClock(now)
	s.legacy.SetClock(now)
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,64}$`)

// Register creates an account. A supplied legacy fingerprint must not be bound
// to another account; the user row, the binding and the first legacy token are
// written in one transaction.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.LegacyFingerprint = strings.TrimSpace(in.LegacyFingerprint)
	if err := validateRegistration(in); err != nil {
		return nil, err
	}
	hashed, err := s.hasher.Hash([]byte(in.Password))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	u := &userdomain.User{
		ID:                uuid.New().String(),
		Username:          in.Username,
		Email:             in.Email,
		PasswordHash:      hashed,
		LegacyFingerprint: in.LegacyFingerprint,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var issued *legacyservice.Issued
	err = s.store.InTx(ctx, func(tx store.Store) error {
		taken, err := tx.Users().ExistsByUsernameOrEmail(ctx, u.Username, u.Email)
		if err != nil {
			return fmt.Errorf("check username and email: %w", err)
		}
		if taken {
			return ErrUsernameOrEmailTaken
		}
		if u.LegacyFingerprint != "" {
			if err := s.legacy.CheckFingerprintAvailable(ctx, tx, u.LegacyFingerprint, ""); err != nil {
				return err
			}
		}
		if err := tx.Users().Create(ctx, u); err != nil {
			if errors.Is(err, userrepo.ErrDuplicate) {
				return ErrUsernameOrEmailTaken
			}
			return fmt.Errorf("create user: %w", err)
		}
		if u.LegacyFingerprint == "" {
			return nil
		}
		issued, err = s.legacy.IssueInTx(ctx, tx, u)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, u.ID, "", audit.ActionRegister, audit.ResourceAuth, nil)

	out := &RegisterResult{User: u}
	if issued != nil {
		out.LegacyToken = issued.Raw
		out.ExpiresAt = issued.Token.ExpiresAt
	}
	return out, nil
}

func validateRegistration(in RegisterInput) error {
	if !usernamePattern.MatchString(in.Username) {
		return fmt.Errorf("%w: username must be 3-64 letters, numbers or underscores", ErrInvalidInput)
	}
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	return validatePassword(in.Password)
}

func validateEmail(email string) error {
	const simpleEmail = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	if ok, _ := regexp.MatchString(simpleEmail, email); !ok {
		return fmt.Errorf("%w: invalid email format", ErrInvalidInput)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 6 {
		return fmt.Errorf("%w: password must be at least 6 characters", ErrInvalidInput)
	}
	if len(password) > 72 {
		return fmt.Errorf("%w: password must be at most 72 bytes", ErrInvalidInput)
	}
	var hasUpper, hasLower, hasNumber bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasNumber = true
		}
	}
	if !hasUpper || !hasLower || !hasNumber {
		return fmt.Errorf("%w: password must contain an uppercase letter, a lowercase letter and a number", ErrInvalidInput)
	}
	return nil
}

// Login authenticates identifier and password and issues credentials for the
// requested scheme. The scheme is checked against the login policy and the
// attempt against the rate limiter before any credential check.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	scheme := req.Scheme()
	req.Identifier = strings.TrimSpace(req.Identifier)

	if err := s.admit(ctx, req); err != nil {
		s.metrics.RecordLogin(ctx, string(scheme), loginOutcome(err))
		return nil, err
	}

	var (
		res *LoginResult
		err error
	)
	switch scheme {
	case SchemeDevice:
		res, err = s.loginDevice(ctx, req)
	default:
		res, err = s.loginLegacy(ctx, req)
	}
	s.metrics.RecordLogin(ctx, string(scheme), loginOutcome(err))
	if err != nil {
		if errors.Is(err, userservice.ErrInvalidCredentials) {
			s.audit.LogEvent(ctx, "", "", audit.ActionLoginFailure, audit.ResourceAuth, map[string]string{
				"scheme":     string(scheme),
				"identifier": req.Identifier,
			})
		}
		return nil, err
	}

	if err := s.limiter.Reset(ctx, req.Identifier); err != nil {
		s.log.Warn("login limiter reset failed", zap.Error(err))
	}
	return res, nil
}

// admit runs the policy gate and the rate limiter.
func (s *AuthService) admit(ctx context.Context, req LoginRequest) error {
	scheme := req.Scheme()
	in := engine.LoginInput{
		Scheme:             string(scheme),
		ClientIP:           req.SourceAddress,
		LegacyLoginEnabled: s.legacyLoginEnabled,
	}
	if req.Device != nil {
		in.Platform = req.Device.Platform
	}
	decision, err := s.policy.EvaluateLogin(ctx, in)
	if err != nil {
		return fmt.Errorf("evaluate login policy: %w", err)
	}
	if !decision.Allow {
		s.log.Info("login denied by policy",
			zap.String("scheme", string(scheme)),
			zap.String("reason", decision.Reason),
		)
		if scheme == SchemeLegacy {
			return ErrLegacyLoginDisabled
		}
		return fmt.Errorf("%w: %s", ErrLoginDenied, decision.Reason)
	}

	err = s.limiter.Allow(ctx, req.Identifier, req.SourceAddress)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ratelimit.ErrRateLimited):
		return err
	default:
		// Fail open while Redis is unreachable.
		s.log.Warn("login limiter unavailable, allowing attempt", zap.Error(err))
		return nil
	}
}

func (s *AuthService) loginDevice(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	u, err := s.verifier.Verify(ctx, req.Identifier, req.Password)
	if err != nil {
		return nil, err
	}

	res := &LoginResult{Scheme: SchemeDevice, User: u}
	err = s.store.InTx(ctx, func(tx store.Store) error {
		dev, deviceSecret, err := s.registry.WithStore(tx).RegisterDevice(ctx, u.ID, *req.Device, req.SourceAddress)
		if err != nil {
			return err
		}
		sess, sessionSecret, err := s.issuer.WithStore(tx).CreateSession(ctx, dev.ID, u.ID, s.sessionTTL)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		if err := tx.Users().UpdateLastLogin(ctx, u.ID, now); err != nil {
			return fmt.Errorf("update last login: %w", err)
		}
		u.LastLoginAt = &now
		res.Device, res.DeviceSecret = dev, deviceSecret
		res.Session, res.SessionSecret = sess, sessionSecret
		res.ExpiresAt = sess.ExpiresAt
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, u.ID, res.Device.ID, audit.ActionLoginSuccess, audit.ResourceAuth, map[string]string{
		"scheme": string(SchemeDevice),
	})
	return res, nil
}

func (s *AuthService) loginLegacy(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	issued, err := s.legacy.Login(ctx, req.Identifier, req.Password, req.LegacyFingerprint)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		Scheme:      SchemeLegacy,
		User:        issued.User,
		LegacyToken: issued.Raw,
		ExpiresAt:   issued.Token.ExpiresAt,
	}, nil
}

func loginOutcome(err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeSuccess
	case errors.Is(err, userservice.ErrInvalidCredentials):
		return telemetry.OutcomeInvalidCredentials
	case errors.Is(err, ratelimit.ErrRateLimited):
		return telemetry.OutcomeRateLimited
	case errors.Is(err, ErrLegacyLoginDisabled), errors.Is(err, ErrLoginDenied):
		return telemetry.OutcomePolicyDenied
	case errors.Is(err, legacyservice.ErrDeviceMismatch), errors.Is(err, legacyservice.ErrDeviceAlreadyRegistered):
		return telemetry.OutcomeDeviceMismatch
	default:
		return telemetry.OutcomeError
	}
}

// Authenticate establishes the caller from creds using the scheme they select.
func (s *AuthService) Authenticate(ctx context.Context, creds Credentials) (*Identity, error) {
	if creds.Bearer == "" {
		return nil, ErrMissingCredentials
	}
	scheme := creds.Scheme()
	var (
		id  *Identity
		err error
	)
	switch scheme {
	case SchemeDevice:
		var v *sessionservice.Validated
		v, err = s.validator.Validate(ctx, creds.Bearer, creds.DeviceToken)
		if err == nil {
			id = &Identity{Scheme: SchemeDevice, User: v.User, Device: v.Device, Session: v.Session}
		}
	default:
		var v *legacyservice.Verified
		v, err = s.legacy.Verify(ctx, creds.Bearer)
		if err == nil {
			id = &Identity{Scheme: SchemeLegacy, User: v.User, LegacyToken: v.Token}
		}
	}
	s.metrics.RecordValidation(ctx, string(scheme), validationOutcome(err))
	if err != nil {
		return nil, err
	}
	return id, nil
}

func validationOutcome(err error) string {
	switch {
	case err == nil:
		return telemetry.OutcomeSuccess
	case errors.Is(err, sessionservice.ErrDeviceAuthenticationFailed):
		return telemetry.OutcomeDeviceMismatch
	case errors.Is(err, sessionservice.ErrDeviceDeactivated):
		return telemetry.OutcomeDeviceDeactivated
	case errors.Is(err, sessionservice.ErrInvalidOrExpiredSession),
		errors.Is(err, legacyservice.ErrInvalidLegacyToken),
		errors.Is(err, legacyservice.ErrLegacyTokenExpired):
		return telemetry.OutcomeInvalidSession
	default:
		return telemetry.OutcomeError
	}
}

// RefreshDevice rotates the secret of the caller's device and replaces the
// caller's session with a new one. The previous device secret and session stop
// working. Only device-bound identities can refresh.
func (s *AuthService) RefreshDevice(ctx context.Context, id *Identity, sourceAddress string) (*LoginResult, error) {
	if id == nil || id.Scheme != SchemeDevice || id.Device == nil || id.Session == nil {
		return nil, sessionservice.ErrInvalidOrExpiredSession
	}
	res := &LoginResult{Scheme: SchemeDevice, User: id.User}
	err := s.store.InTx(ctx, func(tx store.Store) error {
		info := devicedomain.Info{Fingerprint: id.Device.Fingerprint, Platform: id.Device.Platform, Label: id.Device.Label}
		dev, deviceSecret, err := s.registry.WithStore(tx).RegisterDevice(ctx, id.User.ID, info, sourceAddress)
		if err != nil {
			return err
		}
		if dev.ID != id.Device.ID {
			// The device was revoked while the request was in flight.
			return deviceservice.ErrDeviceNotFound
		}
		if err := tx.Sessions().Invalidate(ctx, id.Session.ID); err != nil {
			return fmt.Errorf("invalidate previous session: %w", err)
		}
		sess, sessionSecret, err := s.issuer.WithStore(tx).CreateSession(ctx, dev.ID, id.User.ID, s.sessionTTL)
		if err != nil {
			return err
		}
		res.Device, res.DeviceSecret = dev, deviceSecret
		res.Session, res.SessionSecret = sess, sessionSecret
		res.ExpiresAt = sess.ExpiresAt
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, id.User.ID, res.Device.ID, audit.ActionDeviceRefreshed, audit.ResourceDevice, nil)
	return res, nil
}

// Logout ends the session or legacy token presented in creds. Unknown
// credentials are a no-op.
func (s *AuthService) Logout(ctx context.Context, creds Credentials) error {
	var err error
	switch creds.Scheme() {
	case SchemeDevice:
		err = s.revoker.LogoutSession(ctx, creds.Bearer)
	default:
		err = s.legacy.Logout(ctx, creds.Bearer)
	}
	if err == nil {
		s.metrics.RecordRevocation(ctx, "session", 1)
	}
	return err
}

// LogoutAll invalidates every device-bound session and every legacy token of
// the user and returns how many were invalidated.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) (int64, error) {
	sessions, err := s.revoker.InvalidateAllSessions(ctx, userID)
	if err != nil {
		return 0, err
	}
	tokens, err := s.legacy.ForceLogout(ctx, userID)
	if err != nil {
		return sessions, err
	}
	s.metrics.RecordRevocation(ctx, "all", sessions+tokens)
	return sessions + tokens, nil
}

// RevokeDevice deactivates one of the caller's other devices.
func (s *AuthService) RevokeDevice(ctx context.Context, id *Identity, deviceID string) error {
	if err := s.revoker.RevokeDevice(ctx, deviceID, id.User.ID, id.CurrentDeviceID()); err != nil {
		return err
	}
	s.metrics.RecordRevocation(ctx, "device", 1)
	return nil
}

// ListDevices returns the user's devices, most recently seen first.
func (s *AuthService) ListDevices(ctx context.Context, userID string) ([]*devicedomain.Device, error) {
	return s.registry.ListDevices(ctx, userID)
}

// Profile returns the public view of the user.
func (s *AuthService) Profile(ctx context.Context, userID string) (*userdomain.Profile, error) {
	u, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	p := u.Profile()
	return &p, nil
}

// Sessions summarizes the user's live sessions in both schemes.
func (s *AuthService) Sessions(ctx context.Context, userID string) (*SessionSummary, error) {
	n, err := s.store.Sessions().CountValidByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count sessions: %w", err)
	}
	tokens, err := s.legacy.ActiveTokens(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &SessionSummary{DeviceSessions: n, LegacyTokens: tokens}, nil
}

// ForceLogoutLegacy invalidates all legacy tokens of the user.
func (s *AuthService) ForceLogoutLegacy(ctx context.Context, userID string) (int64, error) {
	n, err := s.legacy.ForceLogout(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.metrics.RecordRevocation(ctx, "legacy", n)
	return n, nil
}

// ChangeLegacyDevice rebinds the user's legacy fingerprint.
func (s *AuthService) ChangeLegacyDevice(ctx context.Context, userID, fingerprint string) (*userdomain.User, error) {
	return s.legacy.ChangeDevice(ctx, userID, fingerprint)
}

// LegacyDeviceInfo returns the user's legacy binding and live tokens.
func (s *AuthService) LegacyDeviceInfo(ctx context.Context, userID string) (*legacyservice.DeviceInfo, error) {
	return s.legacy.DeviceInfo(ctx, userID)
}

// CleanupLegacyTokens deletes expired legacy tokens.
func (s *AuthService) CleanupLegacyTokens(ctx context.Context) (int64, error) {
	return s.legacy.CleanupExpired(ctx)
}
