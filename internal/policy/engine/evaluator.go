package engine

import "context"

// Scheme names passed to the login policy.
const (
	SchemeDevice = "device"
	SchemeLegacy = "legacy"
)

// LoginInput is what the login policy sees about one login attempt.
type LoginInput struct {
	Scheme             string
	Platform           string
	ClientIP           string
	LegacyLoginEnabled bool
}

// LoginDecision is the policy verdict. Reason is set when Allow is false.
type LoginDecision struct {
	Allow  bool
	Reason string
}

// Evaluator decides whether a login scheme may be used.
type Evaluator interface {
	EvaluateLogin(ctx context.Context, in LoginInput) (LoginDecision, error)
}
