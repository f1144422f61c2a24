// Package audit records authentication events to audit_logs.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	otellog "go.opentelemetry.io/otel/log"
	"go.uber.org/zap"

	"devicebound-auth/backend/internal/audit/domain"
	auditrepo "devicebound-auth/backend/internal/audit/repository"
)

// Actions recorded by the auth flows.
const (
	ActionRegister             = "register"
	ActionLoginSuccess         = "login_success"
	ActionLoginFailure         = "login_failure"
	ActionLogout               = "logout"
	ActionLogoutAll            = "logout_all"
	ActionDeviceRevoked        = "device_revoked"
	ActionDeviceRefreshed      = "device_refreshed"
	ActionDeviceAuthFailed     = "device_auth_failed"
	ActionLegacyLogin          = "legacy_login"
	ActionLegacyLogout         = "legacy_logout"
	ActionLegacyForceLogout    = "legacy_force_logout"
	ActionLegacyChangeDevice   = "legacy_change_device"
	ActionLegacyDeviceMismatch = "legacy_device_mismatch"
)

// Resources.
const (
	ResourceAuth    = "auth"
	ResourceDevice  = "device"
	ResourceSession = "session"
	ResourceLegacy  = "legacy_token"
)

// IPExtractor returns the client IP from the request context (e.g. gRPC metadata or peer).
type IPExtractor func(context.Context) string

// AuditLogger writes audit events. Both methods are best-effort: failures are
// logged and never reach the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, deviceID, action, resource string, metadata map[string]string)
	// LogSecurityEvent records an event that indicates a likely attack (e.g. a
	// stolen session secret presented with the wrong device secret).
	LogSecurityEvent(ctx context.Context, userID, deviceID, action string, metadata map[string]string)
}

// Logger implements AuditLogger on top of the audit repository.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	log         *zap.Logger
	otelLogger  otellog.Logger
}

// Option configures a Logger.
type Option func(*Logger)

// WithOTelLogger also emits security events as OpenTelemetry log records.
func WithOTelLogger(l otellog.Logger) Option {
	return func(lg *Logger) { lg.otelLogger = l }
}

// NewLogger returns a Logger that persists to repo. ipExtractor may be nil; then
// IP is recorded as "unknown". log may be nil.
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, log *zap.Logger, opts ...Option) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Logger{repo: repo, ipExtractor: ipExtractor, log: log}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LogEvent writes one audit log entry.
func (l *Logger) LogEvent(ctx context.Context, userID, deviceID, action, resource string, metadata map[string]string) {
	l.write(ctx, userID, deviceID, action, resource, metadata)
}

// LogSecurityEvent writes the entry, warns through zap and emits an OTel log record.
func (l *Logger) LogSecurityEvent(ctx context.Context, userID, deviceID, action string, metadata map[string]string) {
	ip := l.clientIP(ctx)
	l.log.Warn("security event",
		zap.String("action", action),
		zap.String("user_id", userID),
		zap.String("device_id", deviceID),
		zap.String("ip", ip),
		zap.Any("metadata", metadata),
	)
	if l.otelLogger != nil {
		var rec otellog.Record
		rec.SetTimestamp(time.Now())
		rec.SetSeverity(otellog.SeverityWarn)
		rec.SetSeverityText("WARN")
		rec.SetBody(otellog.StringValue(action))
		rec.AddAttributes(
			otellog.String("user_id", userID),
			otellog.String("device_id", deviceID),
			otellog.String("ip", ip),
		)
		l.otelLogger.Emit(ctx, rec)
	}
	l.write(ctx, userID, deviceID, action, ResourceSession, metadata)
}

func (l *Logger) write(ctx context.Context, userID, deviceID, action, resource string, metadata map[string]string) {
	if l.repo == nil {
		return
	}
	var meta string
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err == nil {
			meta = string(b)
		}
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		DeviceID:  deviceID,
		Action:    action,
		Resource:  resource,
		IP:        l.clientIP(ctx),
		Metadata:  meta,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(context.WithoutCancel(ctx), entry); err != nil {
		l.log.Error("audit: failed to log event",
			zap.String("action", action),
			zap.String("resource", resource),
			zap.Error(err),
		)
	}
}

func (l *Logger) clientIP(ctx context.Context) string {
	if l.ipExtractor == nil {
		return "unknown"
	}
	if ip := l.ipExtractor(ctx); ip != "" {
		return ip
	}
	return "unknown"
}

// Nop is an AuditLogger that drops every event.
type Nop struct{}

func (Nop) LogEvent(context.Context, string, string, string, string, map[string]string) {}

func (Nop) LogSecurityEvent(context.Context, string, string, string, map[string]string) {}
