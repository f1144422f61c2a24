package interceptors

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"devicebound-auth/backend/internal/telemetry"
	"devicebound-auth/backend/internal/telemetry/domain"
)

// grpcRequestMetadata is the JSON shape stored in Event.Metadata for grpc_request events.
type grpcRequestMetadata struct {
	FullMethod string `json:"full_method"`
	StatusCode string `json:"status_code"`
	DurationMs int64  `json:"duration_ms"`
	ClientIP   string `json:"client_ip"`
	Scheme     string `json:"scheme,omitempty"`
}

// TelemetryUnary returns a unary server interceptor that emits a telemetry event after each RPC.
// Best-effort: failures are logged and do not fail the RPC. If emitter is nil, the interceptor no-ops.
// skipMethods is the set of full method names to not emit (e.g. HealthCheck).
func TelemetryUnary(emitter telemetry.EventEmitter, log *zap.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if emitter == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		meta := grpcRequestMetadata{
			FullMethod: info.FullMethod,
			StatusCode: status.Code(err).String(),
			DurationMs: time.Since(start).Milliseconds(),
			ClientIP:   ClientIP(ctx),
		}
		event := &domain.Event{
			EventType: domain.EventGRPCRequest,
			Source:    "grpc_interceptor",
			CreatedAt: time.Now().UTC(),
		}
		if id, ok := GetIdentity(ctx); ok {
			meta.Scheme = string(id.Scheme)
			event.UserID = id.User.ID
			event.DeviceID, _ = GetDeviceID(ctx)
			event.SessionID, _ = GetSessionID(ctx)
		}
		event.Metadata, _ = json.Marshal(meta)
		telemetry.EmitAsync(emitter, log, event)
		return resp, err
	}
}
