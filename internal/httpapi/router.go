// Package httpapi exposes the gRPC services as a JSON REST API. Requests are
// translated into incoming gRPC metadata and run through the same unary
// interceptor chain as the gRPC server, so both surfaces authenticate,
// audit and emit telemetry identically.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"devicebound-auth/backend/api/authv1"
)

// Services are the RPC implementations behind the REST routes.
type Services struct {
	Auth   authv1.AuthServiceServer
	Legacy authv1.LegacyServiceServer
	Device authv1.DeviceServiceServer
	User   authv1.UserServiceServer
	Health authv1.HealthServiceServer
}

// Config tunes the router.
type Config struct {
	// AllowedOrigins for CORS. Empty disables the CORS middleware.
	AllowedOrigins []string
	// RequestTimeout bounds each request; zero means 30s.
	RequestTimeout time.Duration
	Log            *zap.Logger
}

type api struct {
	svc   Services
	chain grpc.UnaryServerInterceptor
	log   *zap.Logger
}

// NewRouter builds the chi router for the REST API. Every field of svc must be
// set. interceptors run in order around every route, as
// grpc.ChainUnaryInterceptor would run them.
func NewRouter(svc Services, interceptors []grpc.UnaryServerInterceptor, cfg Config) chi.Router {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	a := &api{svc: svc, chain: chainUnary(interceptors), log: cfg.Log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware(cfg.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Device-Token"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", serve(a, authv1.HealthService_HealthCheck_FullMethodName, svc.Health.HealthCheck, http.StatusOK, nil))

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", serve(a, authv1.AuthService_Register_FullMethodName, svc.Auth.Register, http.StatusCreated, nil))
		r.Post("/login", serve(a, authv1.AuthService_Login_FullMethodName, svc.Auth.Login, http.StatusOK, nil))
		r.Get("/verify", serve(a, authv1.AuthService_Verify_FullMethodName, svc.Auth.Verify, http.StatusOK, nil))
		r.Post("/logout", serve(a, authv1.AuthService_Logout_FullMethodName, svc.Auth.Logout, http.StatusOK, nil))
		r.Post("/logout-all", serve(a, authv1.AuthService_LogoutAll_FullMethodName, svc.Auth.LogoutAll, http.StatusOK, nil))
		r.Post("/force-logout", serve(a, authv1.LegacyService_ForceLogout_FullMethodName, svc.Legacy.ForceLogout, http.StatusOK, nil))
	})

	r.Route("/api/user", func(r chi.Router) {
		r.Get("/profile", serve(a, authv1.UserService_GetProfile_FullMethodName, svc.User.GetProfile, http.StatusOK, nil))
		r.Get("/sessions", serve(a, authv1.UserService_GetSessions_FullMethodName, svc.User.GetSessions, http.StatusOK, nil))
		r.Put("/device/change", serve(a, authv1.LegacyService_ChangeDevice_FullMethodName, svc.Legacy.ChangeDevice, http.StatusOK, nil))
		r.Get("/device/info", serve(a, authv1.LegacyService_GetDeviceInfo_FullMethodName, svc.Legacy.GetDeviceInfo, http.StatusOK, nil))
	})

	r.Route("/api/devices", func(r chi.Router) {
		r.Get("/", serve(a, authv1.DeviceService_ListDevices_FullMethodName, svc.Device.ListDevices, http.StatusOK, nil))
		r.Post("/refresh", serve(a, authv1.AuthService_RefreshDevice_FullMethodName, svc.Auth.RefreshDevice, http.StatusOK, nil))
		r.Delete("/{deviceID}", serve(a, authv1.DeviceService_RevokeDevice_FullMethodName, svc.Device.RevokeDevice, http.StatusOK,
			func(r *http.Request, req *authv1.RevokeDeviceRequest) {
				req.DeviceID = chi.URLParam(r, "deviceID")
			}))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "endpoint not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})
	return r
}

// LoggerMiddleware logs one line per HTTP request.
func LoggerMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				log.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Int("status", ww.Status()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
