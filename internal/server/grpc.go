package server

import (
	"net/http"
	"net/netip"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"devicebound-auth/backend/api/authv1"
	"devicebound-auth/backend/internal/audit"
	devicehandler "devicebound-auth/backend/internal/device/handler"
	healthhandler "devicebound-auth/backend/internal/health/handler"
	"devicebound-auth/backend/internal/httpapi"
	identityhandler "devicebound-auth/backend/internal/identity/handler"
	identityservice "devicebound-auth/backend/internal/identity/service"
	"devicebound-auth/backend/internal/server/interceptors"
	"devicebound-auth/backend/internal/telemetry"
	userhandler "devicebound-auth/backend/internal/user/handler"
)

// Deps holds optional service dependencies for gRPC handlers.
type Deps struct {
	// Auth is the auth service behind every RPC. If nil, auth, device, user and legacy RPCs return Unimplemented.
	Auth *identityservice.AuthService
	// HealthDB is pinged by HealthService for readiness (e.g. *pgxpool.Pool). If nil, the check is skipped.
	HealthDB healthhandler.Pinger
	// HealthCache is the Redis limiter; its failure is reported without failing readiness.
	HealthCache healthhandler.Pinger
	// HealthPolicy is the login policy engine. If nil, the check is skipped.
	HealthPolicy healthhandler.PolicyChecker
	// GRPCHealth, when set, is registered as the standard grpc.health.v1 service for load balancers.
	GRPCHealth *health.Server
}

// RegisterServices registers all gRPC services with the given server.
//
// Service → handler mapping:
//   - AuthService   → internal/identity/handler (AuthServer)
//   - LegacyService → internal/identity/handler (LegacyServer)
//   - DeviceService → internal/device/handler
//   - UserService   → internal/user/handler
//   - HealthService → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	svc := newServices(deps)
	authv1.RegisterAuthServiceServer(s, svc.Auth)
	authv1.RegisterLegacyServiceServer(s, svc.Legacy)
	authv1.RegisterDeviceServiceServer(s, svc.Device)
	authv1.RegisterUserServiceServer(s, svc.User)
	authv1.RegisterHealthServiceServer(s, svc.Health)
	if deps.GRPCHealth != nil {
		healthpb.RegisterHealthServer(s, deps.GRPCHealth)
	}
}

// PublicMethods are callable without credentials.
var PublicMethods = map[string]bool{
	authv1.AuthService_Register_FullMethodName:      true,
	authv1.AuthService_Login_FullMethodName:         true,
	authv1.HealthService_HealthCheck_FullMethodName: true,
	healthpb.Health_Check_FullMethodName:            true,
	healthpb.Health_Watch_FullMethodName:            true,
}

// QuietMethods are neither audited nor emitted as telemetry.
var QuietMethods = map[string]bool{
	authv1.HealthService_HealthCheck_FullMethodName: true,
	healthpb.Health_Check_FullMethodName:            true,
	healthpb.Health_Watch_FullMethodName:            true,
}

// Options configures the interceptor chain of NewGRPCServer.
type Options struct {
	// Audit records authenticated RPCs. Nil disables the audit interceptor.
	Audit audit.AuditLogger
	// Telemetry receives one grpc_request event per RPC. Nil disables emission.
	Telemetry telemetry.EventEmitter
	// TrustedProxies lists the peers whose forwarding headers name the client.
	TrustedProxies []netip.Prefix
	Log            *zap.Logger
}

// UnaryInterceptors returns the unary chain shared by the gRPC server and the
// REST API: client address resolution, authentication, then audit and
// telemetry when configured.
func UnaryInterceptors(auth interceptors.Authenticator, opts Options) []grpc.UnaryServerInterceptor {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	chain := []grpc.UnaryServerInterceptor{
		interceptors.ClientAddressUnary(opts.TrustedProxies),
		interceptors.AuthUnary(auth, PublicMethods),
	}
	if opts.Audit != nil {
		chain = append(chain, interceptors.AuditUnary(opts.Audit, QuietMethods))
	}
	if opts.Telemetry != nil {
		chain = append(chain, interceptors.TelemetryUnary(opts.Telemetry, opts.Log, QuietMethods))
	}
	return chain
}

// NewGRPCServer returns a gRPC server instrumented with OpenTelemetry whose
// unary calls pass through UnaryInterceptors.
func NewGRPCServer(auth interceptors.Authenticator, opts Options, extra ...grpc.ServerOption) *grpc.Server {
	serverOpts := append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(UnaryInterceptors(auth, opts)...),
	}, extra...)
	return grpc.NewServer(serverOpts...)
}

// NewHTTPHandler returns the REST API backed by the same handlers and
// interceptors as the gRPC server.
func NewHTTPHandler(auth interceptors.Authenticator, deps Deps, opts Options, cfg httpapi.Config) http.Handler {
	if cfg.Log == nil {
		cfg.Log = opts.Log
	}
	return httpapi.NewRouter(newServices(deps), UnaryInterceptors(auth, opts), cfg)
}

func newServices(deps Deps) httpapi.Services {
	return httpapi.Services{
		Auth:   identityhandler.NewAuthServer(deps.Auth),
		Legacy: identityhandler.NewLegacyServer(deps.Auth),
		Device: devicehandler.NewServer(deps.Auth),
		User:   userhandler.NewServer(deps.Auth),
		Health: healthhandler.NewServer(deps.HealthDB, deps.HealthCache, deps.HealthPolicy),
	}
}
