package engine

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"
)

const loginPolicyQuery = "data.devauth.login"

// DefaultLoginPolicy allows the device-bound scheme always and the legacy
// scheme only while legacy logins are enabled for the platform.
const DefaultLoginPolicy = `package devauth.login

default allow := false
default reason := ""

allow if input.scheme == "device"

allow if {
	input.scheme == "legacy"
	input.platform.legacy_login_enabled
}

reason := "legacy login is disabled" if {
	input.scheme == "legacy"
	not input.platform.legacy_login_enabled
}

known_schemes := {"device", "legacy"}

reason := "unknown login scheme" if {
	not known_schemes[input.scheme]
}
`

// OPAEvaluator evaluates the login policy with an in-process Rego engine. The
// query is prepared once at construction.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
	log   *zap.Logger
}

// NewOPAEvaluator compiles policy (DefaultLoginPolicy when empty).
func NewOPAEvaluator(ctx context.Context, policy string, log *zap.Logger) (*OPAEvaluator, error) {
	if policy == "" {
		policy = DefaultLoginPolicy
	}
	if log == nil {
		log = zap.NewNop()
	}
	compiler, err := ast.CompileModules(map[string]string{"login.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile login policy: %w", err)
	}
	q, err := rego.New(
		rego.Query(loginPolicyQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare login policy: %w", err)
	}
	return &OPAEvaluator{query: q, log: log}, nil
}

// NewOPAEvaluatorFromFile loads the Rego module at path, or the default policy when path is empty.
func NewOPAEvaluatorFromFile(ctx context.Context, path string, log *zap.Logger) (*OPAEvaluator, error) {
	if path == "" {
		return NewOPAEvaluator(ctx, "", log)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read login policy: %w", err)
	}
	return NewOPAEvaluator(ctx, string(b), log)
}

// HealthCheck evaluates the prepared policy against a minimal input.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	_, err := e.EvaluateLogin(ctx, LoginInput{Scheme: SchemeDevice})
	return err
}

// EvaluateLogin evaluates the login policy. A policy that yields no allow
// value denies.
func (e *OPAEvaluator) EvaluateLogin(ctx context.Context, in LoginInput) (LoginDecision, error) {
	input := map[string]interface{}{
		"scheme": in.Scheme,
		"platform": map[string]interface{}{
			"name":                 in.Platform,
			"legacy_login_enabled": in.LegacyLoginEnabled,
		},
		"request": map[string]interface{}{
			"ip": in.ClientIP,
		},
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return LoginDecision{}, fmt.Errorf("eval login policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		e.log.Warn("policy: login policy returned no result; denying", zap.String("scheme", in.Scheme))
		return LoginDecision{Allow: false, Reason: "no policy result"}, nil
	}
	doc, ok := rs[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return LoginDecision{}, fmt.Errorf("login policy returned %T", rs[0].Expressions[0].Value)
	}
	out := LoginDecision{}
	if allow, ok := doc["allow"].(bool); ok {
		out.Allow = allow
	}
	if reason, ok := doc["reason"].(string); ok {
		out.Reason = reason
	}
	if !out.Allow && out.Reason == "" {
		out.Reason = "login denied by policy"
	}
	return out, nil
}

// StaticEvaluator allows every scheme except legacy when LegacyLoginEnabled is false.
// Used when no policy engine is configured.
type StaticEvaluator struct{}

func (StaticEvaluator) EvaluateLogin(_ context.Context, in LoginInput) (LoginDecision, error) {
	if in.Scheme == SchemeLegacy && !in.LegacyLoginEnabled {
		return LoginDecision{Allow: false, Reason: "legacy login is disabled"}, nil
	}
	return LoginDecision{Allow: true}, nil
}
