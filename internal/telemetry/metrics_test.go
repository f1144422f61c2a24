package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Sum[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := make(map[string]metricdata.Sum[int64])
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				out[m.Name] = sum
			}
		}
	}
	return out
}

func valueFor(sum metricdata.Sum[int64], attrs ...attribute.KeyValue) int64 {
	want := attribute.NewSet(attrs...)
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	return 0
}

func TestMetrics_Counters(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m, err := NewMetrics(provider.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	ctx := context.Background()
	m.RecordLogin(ctx, "device", OutcomeSuccess)
	m.RecordLogin(ctx, "device", OutcomeSuccess)
	m.RecordLogin(ctx, "legacy", OutcomeInvalidCredentials)
	m.RecordValidation(ctx, "device", OutcomeDeviceMismatch)
	m.RecordRevocation(ctx, "device", 3)
	m.RecordRevocation(ctx, "session", 0)

	sums := collect(t, reader)
	logins := sums["devauth.login.attempts"]
	if got := valueFor(logins, attribute.String("scheme", "device"), attribute.String("outcome", OutcomeSuccess)); got != 2 {
		t.Errorf("device success logins = %d, want 2", got)
	}
	if got := valueFor(logins, attribute.String("scheme", "legacy"), attribute.String("outcome", OutcomeInvalidCredentials)); got != 1 {
		t.Errorf("legacy failed logins = %d, want 1", got)
	}
	if got := valueFor(sums["devauth.session.validations"], attribute.String("scheme", "device"), attribute.String("outcome", OutcomeDeviceMismatch)); got != 1 {
		t.Errorf("mismatch validations = %d, want 1", got)
	}
	revocations := sums["devauth.revocations"]
	if got := valueFor(revocations, attribute.String("kind", "device")); got != 3 {
		t.Errorf("device revocations = %d, want 3", got)
	}
	if got := valueFor(revocations, attribute.String("kind", "session")); got != 0 {
		t.Errorf("zero-count revocation recorded: %d", got)
	}
}

func TestMetrics_NilAndNop(t *testing.T) {
	var m *Metrics
	m.RecordLogin(context.Background(), "device", OutcomeSuccess)
	NopMetrics().RecordValidation(context.Background(), "legacy", OutcomeSuccess)
}
