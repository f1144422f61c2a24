package handler

import (
	"context"
	"time"

	"devicebound-auth/backend/api/authv1"
)

const checkTimeout = 2 * time.Second

// Pinger is a dependency reachable over the network (e.g. *pgxpool.Pool, the Redis limiter).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker reports whether the login policy engine is ready (e.g. the OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server implements HealthService for readiness/liveness.
type Server struct {
	db     Pinger
	cache  Pinger
	policy PolicyChecker
}

// NewServer returns a new Health gRPC server. Nil dependencies are skipped.
func NewServer(db, cache Pinger, policy PolicyChecker) *Server {
	return &Server{db: db, cache: cache, policy: policy}
}

// HealthCheck pings each configured dependency. The service is NOT_SERVING when
// the database or the policy engine fails; a Redis failure is reported but only
// degrades login throttling.
func (s *Server) HealthCheck(ctx context.Context, req *authv1.HealthCheckRequest) (*authv1.HealthCheckResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	resp := &authv1.HealthCheckResponse{Status: authv1.StatusServing, Checks: map[string]string{}}
	record := func(name string, err error, critical bool) {
		if err == nil {
			resp.Checks[name] = "ok"
			return
		}
		resp.Checks[name] = err.Error()
		if critical {
			resp.Status = authv1.StatusNotServing
		}
	}
	if s.db != nil {
		record("database", s.db.Ping(ctx), true)
	}
	if s.policy != nil {
		record("policy", s.policy.HealthCheck(ctx), true)
	}
	if s.cache != nil {
		record("redis", s.cache.Ping(ctx), false)
	}
	return resp, nil
}
