package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"devicebound-auth/backend/internal/audit"
	auditrepo "devicebound-auth/backend/internal/audit/repository"
	"devicebound-auth/backend/internal/config"
	"devicebound-auth/backend/internal/db"
	"devicebound-auth/backend/internal/httpapi"
	identityservice "devicebound-auth/backend/internal/identity/service"
	"devicebound-auth/backend/internal/logger"
	"devicebound-auth/backend/internal/policy/engine"
	"devicebound-auth/backend/internal/ratelimit"
	"devicebound-auth/backend/internal/security"
	"devicebound-auth/backend/internal/server"
	"devicebound-auth/backend/internal/server/interceptors"
	"devicebound-auth/backend/internal/store"
	"devicebound-auth/backend/internal/telemetry"
	telemetryotel "devicebound-auth/backend/internal/telemetry/otel"
	"devicebound-auth/backend/internal/telemetry/producer"
)

const (
	serviceName     = "devicebound-auth"
	legacyIssuer    = "devicebound-auth"
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.Env, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zl); err != nil {
		zl.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, zl *zap.Logger) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, serviceName, cfg.OTLPInsecure, zl)
	if err != nil {
		return err
	}
	providers.SetGlobal()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(sctx); err != nil {
			zl.Warn("otel shutdown", zap.Error(err))
		}
	}()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	signer, err := security.LoadLegacySigner(cfg.LegacyJWTSecret, cfg.LegacyJWTPrivateKey, cfg.LegacyJWTPublicKey, legacyIssuer, cfg.LegacyTokenLifetime())
	if err != nil {
		return err
	}

	metrics, err := telemetry.NewMetrics(providers.MeterProvider.Meter(serviceName))
	if err != nil {
		return err
	}
	otelLogger := providers.LoggerProvider.Logger(serviceName)
	auditLogger := audit.NewLogger(auditrepo.NewPostgresRepository(pool), interceptors.ClientIP, zl, audit.WithOTelLogger(otelLogger))

	policy, err := loadPolicy(ctx, cfg.LoginPolicyFile, zl)
	if err != nil {
		return err
	}

	deps := server.Deps{HealthDB: pool, HealthPolicy: policy, GRPCHealth: health.NewServer()}
	var limiter ratelimit.Limiter = ratelimit.Noop{}
	if cfg.RedisURL != "" {
		redisLimiter, client, err := ratelimit.NewFromURL(cfg.RedisURL, cfg.LoginRateLimitMax, cfg.LoginRateWindow())
		if err != nil {
			return err
		}
		defer client.Close()
		limiter = redisLimiter
		deps.HealthCache = redisLimiter
	}

	emitters := []telemetry.EventEmitter{telemetryotel.NewEventEmitterWithLogger(otelLogger)}
	if kp := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic, zl); kp != nil {
		defer kp.Close()
		emitters = append(emitters, kp)
	}

	auth := identityservice.NewAuthService(identityservice.Deps{
		Store:              store.NewPostgres(pool),
		Hasher:             security.NewHasher(cfg.BcryptCost),
		Signer:             signer,
		Policy:             policy,
		Limiter:            limiter,
		Audit:              auditLogger,
		Metrics:            metrics,
		Log:                zl,
		SessionTTL:         cfg.SessionLifetime(),
		LegacyLoginEnabled: cfg.LegacyLoginEnabled,
	})
	deps.Auth = auth

	proxies, err := interceptors.ParseTrustedProxies(cfg.TrustedProxyList())
	if err != nil {
		return err
	}
	opts := server.Options{Audit: auditLogger, Telemetry: telemetry.Multi(emitters...), TrustedProxies: proxies, Log: zl}
	grpcServer := server.NewGRPCServer(auth, opts)
	server.RegisterServices(grpcServer, deps)
	deps.GRPCHealth.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	var httpServer *http.Server
	if cfg.HTTPAddr != "" {
		httpServer = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           server.NewHTTPHandler(auth, deps, opts, httpapi.Config{AllowedOrigins: cfg.CORSOrigins()}),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		return grpcServer.Serve(lis)
	})
	if httpServer != nil {
		g.Go(func() error {
			zl.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("shutting down")
		deps.GRPCHealth.Shutdown()
		if httpServer != nil {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(sctx); err != nil {
				zl.Warn("http shutdown", zap.Error(err))
			}
		}
		grpcServer.GracefulStop()
		return nil
	})
	return g.Wait()
}

// loadPolicy compiles the login policy from path, or the built-in policy when path is empty.
func loadPolicy(ctx context.Context, path string, zl *zap.Logger) (*engine.OPAEvaluator, error) {
	if path != "" {
		return engine.NewOPAEvaluatorFromFile(ctx, path, zl)
	}
	return engine.NewOPAEvaluator(ctx, engine.DefaultLoginPolicy, zl)
}
