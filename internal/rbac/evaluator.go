package rbac

import "context"

// Scope names a (dimension, resource id) requirement for a check.
type Scope struct {
	Type ContextType
	ID   string
}

// DecisionReason classifies why a check allowed or denied. The split
// between insufficient level and context denial is internal bookkeeping;
// HTTP surfaces report both identically to avoid leaking scope data.
type DecisionReason string

const (
	ReasonAllowed           DecisionReason = "allowed"
	ReasonUnauthenticated   DecisionReason = "unauthenticated"
	ReasonInsufficientLevel DecisionReason = "insufficient_level"
	ReasonContextDenied     DecisionReason = "context_denied"
)

// Decision is the transient result of one access evaluation.
type Decision struct {
	Allowed bool
	Reason  DecisionReason
}

// Decide answers whether a resolved principal may perform an action
// requiring the given level, optionally scoped to resources. It is pure:
// a deny is a value, never an error.
func Decide(res Resolution, required RoleLevel, scopes ...Scope) Decision {
	if !res.Authenticated() {
		return Decision{Reason: ReasonUnauthenticated}
	}
	if !res.RoleLevel.AtLeast(required) {
		return Decision{Reason: ReasonInsufficientLevel}
	}
	// Admin bypasses every context check.
	if res.RoleLevel >= LevelAdmin {
		return Decision{Allowed: true, Reason: ReasonAllowed}
	}
	for _, scope := range scopes {
		if !res.Context.Contains(scope.Type, scope.ID) {
			return Decision{Reason: ReasonContextDenied}
		}
	}
	return Decision{Allowed: true, Reason: ReasonAllowed}
}

// Evaluator resolves the current principal and applies Decide.
type Evaluator struct {
	resolver *Resolver
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(resolver *Resolver) *Evaluator {
	return &Evaluator{resolver: resolver}
}

// Check evaluates the current principal against a required level and
// optional scopes. A deny is returned in the Decision; the error return
// carries only resolver transport failures, which callers must surface
// as an outage rather than a denial.
func (e *Evaluator) Check(ctx context.Context, required RoleLevel, scopes ...Scope) (Decision, error) {
	res, err := e.resolver.Resolve(ctx)
	if err != nil {
		return Decision{}, err
	}
	return Decide(res, required, scopes...), nil
}

// Resolve exposes the underlying resolution for handlers that need the
// principal identity alongside the decision.
func (e *Evaluator) Resolve(ctx context.Context) (Resolution, error) {
	return e.resolver.Resolve(ctx)
}
