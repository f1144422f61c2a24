package interceptors

import (
	"context"
	"errors"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	identityservice "devicebound-auth/backend/internal/identity/service"
)

type auditEntry struct {
	userID, deviceID, action, resource string
	metadata                           map[string]string
}

// mockAuditLogger implements audit.AuditLogger for interceptor tests.
type mockAuditLogger struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (m *mockAuditLogger) LogEvent(_ context.Context, userID, deviceID, action, resource string, metadata map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, auditEntry{userID, deviceID, action, resource, metadata})
}

func (m *mockAuditLogger) LogSecurityEvent(context.Context, string, string, string, map[string]string) {}

func TestAuditUnary_SkipMethod(t *testing.T) {
	logger := &mockAuditLogger{}
	interceptor := AuditUnary(logger, map[string]bool{"/devauth.v1.HealthService/HealthCheck": true})
	ctx := WithIdentity(context.Background(), deviceIdentity(), identityservice.Credentials{})

	resp, err := interceptor(ctx, "request", &grpc.UnaryServerInfo{FullMethod: "/devauth.v1.HealthService/HealthCheck"}, okHandler)
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if resp != "success" {
		t.Errorf("response = %v, want %q", resp, "success")
	}
	if len(logger.entries) != 0 {
		t.Errorf("audit entries = %d, want 0", len(logger.entries))
	}
}

func TestAuditUnary_AuthenticatedRequest(t *testing.T) {
	logger := &mockAuditLogger{}
	interceptor := AuditUnary(logger, nil)
	ctx := WithIdentity(context.Background(), deviceIdentity(), identityservice.Credentials{})

	if _, err := interceptor(ctx, "request", &grpc.UnaryServerInfo{FullMethod: "/devauth.v1.DeviceService/ListDevices"}, okHandler); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if len(logger.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(logger.entries))
	}
	e := logger.entries[0]
	if e.userID != "user-1" || e.deviceID != "device-1" {
		t.Errorf("identity = (%q, %q)", e.userID, e.deviceID)
	}
	if e.action != "list" || e.resource != "device" {
		t.Errorf("action/resource = %q/%q, want list/device", e.action, e.resource)
	}
	if e.metadata["status_code"] != codes.OK.String() {
		t.Errorf("status_code = %q", e.metadata["status_code"])
	}
}

func TestAuditUnary_RecordsFailureAndKeepsError(t *testing.T) {
	logger := &mockAuditLogger{}
	interceptor := AuditUnary(logger, nil)
	ctx := WithIdentity(context.Background(), legacyIdentity(), identityservice.Credentials{})
	want := status.Error(codes.NotFound, "device not found")
	handler := func(ctx context.Context, req interface{}) (interface{}, error) { return nil, want }

	_, err := interceptor(ctx, "request", &grpc.UnaryServerInfo{FullMethod: "/devauth.v1.DeviceService/RevokeDevice"}, handler)
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
	if len(logger.entries) != 1 || logger.entries[0].metadata["status_code"] != codes.NotFound.String() {
		t.Errorf("entries = %+v", logger.entries)
	}
	if logger.entries[0].deviceID != "" {
		t.Error("legacy caller should have no device id")
	}
}

func TestAuditUnary_UnauthenticatedNotRecorded(t *testing.T) {
	logger := &mockAuditLogger{}
	interceptor := AuditUnary(logger, nil)
	if _, err := interceptor(context.Background(), "request", &grpc.UnaryServerInfo{FullMethod: "/devauth.v1.AuthService/Login"}, okHandler); err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if len(logger.entries) != 0 {
		t.Errorf("audit entries = %d, want 0", len(logger.entries))
	}
}
