package otel

import (
	"context"
	"sync"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"devicebound-auth/backend/internal/telemetry/domain"
)

// captureProcessor keeps every record emitted through the provider.
type captureProcessor struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (c *captureProcessor) OnEmit(_ context.Context, r *sdklog.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r.Clone())
	return nil
}

func (c *captureProcessor) Enabled(context.Context, sdklog.EnabledParameters) bool { return true }
func (c *captureProcessor) Shutdown(context.Context) error                         { return nil }
func (c *captureProcessor) ForceFlush(context.Context) error                       { return nil }

func (c *captureProcessor) last(t *testing.T) sdklog.Record {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.records) == 0 {
		t.Fatal("no record emitted")
	}
	return c.records[len(c.records)-1]
}

func newCapturingProvider(t *testing.T) (*sdklog.LoggerProvider, *captureProcessor) {
	t.Helper()
	capture := &captureProcessor{}
	provider := sdklog.NewLoggerProvider(sdklog.WithProcessor(capture))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider, capture
}

func attributes(r sdklog.Record) map[string]string {
	attrs := make(map[string]string)
	r.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	return attrs
}

func TestNewEventEmitter_NilProvider_ReturnsNoop(t *testing.T) {
	em := NewEventEmitter(nil)
	if em == nil {
		t.Fatal("NewEventEmitter(nil) returned nil")
	}
	if err := em.Emit(context.Background(), &domain.Event{EventType: "x"}); err != nil {
		t.Errorf("noop Emit: %v", err)
	}
}

func TestEmit_AttributeAndBodyMapping(t *testing.T) {
	provider, capture := newCapturingProvider(t)
	em := NewEventEmitter(provider)
	created := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	event := &domain.Event{
		UserID:    "user1",
		DeviceID:  "dev1",
		SessionID: "sess1",
		EventType: domain.EventGRPCRequest,
		Source:    "grpc_interceptor",
		Metadata:  []byte(`{"key":"value"}`),
		CreatedAt: created,
	}
	if err := em.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	rec := capture.last(t)
	if got := rec.Body().AsBytes(); string(got) != `{"key":"value"}` {
		t.Errorf("body = %q", got)
	}
	if !rec.Timestamp().Equal(created) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp(), created)
	}
	want := map[string]string{
		"user_id": "user1", "device_id": "dev1", "session_id": "sess1",
		"event_type": domain.EventGRPCRequest, "source": "grpc_interceptor",
	}
	attrs := attributes(rec)
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attr %q = %q, want %q", k, attrs[k], v)
		}
	}
}

func TestEmit_PartialEventDefaults(t *testing.T) {
	provider, capture := newCapturingProvider(t)
	em := NewEventEmitter(provider)
	before := time.Now().UTC()
	if err := em.Emit(context.Background(), &domain.Event{EventType: "ping"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	rec := capture.last(t)
	if !rec.Body().Empty() {
		t.Error("body should be empty when metadata is nil")
	}
	if rec.Timestamp().Before(before) {
		t.Errorf("timestamp = %v, want now", rec.Timestamp())
	}
	attrs := attributes(rec)
	if _, ok := attrs["user_id"]; ok {
		t.Error("empty user_id should not be an attribute")
	}
	if attrs["event_type"] != "ping" {
		t.Errorf("event_type = %q", attrs["event_type"])
	}
}

func TestEmit_NilEvent(t *testing.T) {
	provider, capture := newCapturingProvider(t)
	if err := NewEventEmitter(provider).Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(nil): %v", err)
	}
	if len(capture.records) != 0 {
		t.Errorf("records = %d, want 0", len(capture.records))
	}
}
