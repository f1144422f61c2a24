package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Outcome labels recorded on the auth counters.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeRateLimited        = "rate_limited"
	OutcomePolicyDenied       = "policy_denied"
	OutcomeDeviceMismatch     = "device_mismatch"
	OutcomeInvalidSession     = "invalid_session"
	OutcomeDeviceDeactivated  = "device_deactivated"
	OutcomeError              = "error"
)

// Metrics holds the authentication counters. The zero value is not usable;
// construct with NewMetrics or NopMetrics.
type Metrics struct {
	logins      metric.Int64Counter
	validations metric.Int64Counter
	revocations metric.Int64Counter
}

// NewMetrics registers the counters on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	logins, err := meter.Int64Counter("devauth.login.attempts",
		metric.WithDescription("Login attempts by scheme and outcome."),
		metric.WithUnit("{attempt}"))
	if err != nil {
		return nil, err
	}
	validations, err := meter.Int64Counter("devauth.session.validations",
		metric.WithDescription("Capability validations by scheme and outcome."),
		metric.WithUnit("{validation}"))
	if err != nil {
		return nil, err
	}
	revocations, err := meter.Int64Counter("devauth.revocations",
		metric.WithDescription("Revocations by kind (device, session, all)."),
		metric.WithUnit("{revocation}"))
	if err != nil {
		return nil, err
	}
	return &Metrics{logins: logins, validations: validations, revocations: revocations}, nil
}

// NopMetrics returns Metrics that record nothing.
func NopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter("noop"))
	return m
}

// RecordLogin counts one login attempt.
func (m *Metrics) RecordLogin(ctx context.Context, scheme, outcome string) {
	if m == nil {
		return
	}
	m.logins.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scheme", scheme),
		attribute.String("outcome", outcome),
	))
}

// RecordValidation counts one capability validation.
func (m *Metrics) RecordValidation(ctx context.Context, scheme, outcome string) {
	if m == nil {
		return
	}
	m.validations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scheme", scheme),
		attribute.String("outcome", outcome),
	))
}

// RecordRevocation counts n revoked items of kind.
func (m *Metrics) RecordRevocation(ctx context.Context, kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.revocations.Add(ctx, n, metric.WithAttributes(attribute.String("kind", kind)))
}
