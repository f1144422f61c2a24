package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"devicebound-auth/backend/internal/audit"
)

// AuditUnary returns a unary server interceptor that records an audit entry after each authenticated RPC.
// skipMethods is the set of full method names to not audit (e.g. HealthCheck).
// Writing is best-effort inside the audit logger and never fails the RPC. Calls without an identity
// in context are not recorded here; the auth flows audit their own outcomes.
func AuditUnary(auditLogger audit.AuditLogger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if auditLogger == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		userID, ok := GetUserID(ctx)
		if !ok {
			return resp, err
		}
		deviceID, _ := GetDeviceID(ctx)
		ar := audit.ParseFullMethod(info.FullMethod)
		auditLogger.LogEvent(ctx, userID, deviceID, ar.Action, ar.Resource, map[string]string{
			"full_method": info.FullMethod,
			"status_code": status.Code(err).String(),
		})
		return resp, err
	}
}
