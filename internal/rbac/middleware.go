package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shepherd-cms/shepherd/internal/observability"
	"github.com/shepherd-cms/shepherd/internal/platform/httpx"
)

// Middleware wires authorization helpers for HTTP handlers.
type Middleware struct {
	Evaluator *Evaluator
	Logger    *slog.Logger
	Metrics   *observability.Metrics
}

// RequireLevel admits only principals at or above the given level.
func (m Middleware) RequireLevel(required RoleLevel) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := m.Evaluator.Check(r.Context(), required)
			if err != nil {
				m.fail(w, err)
				return
			}
			m.observe(decision)
			if !decision.Allowed {
				m.deny(w, decision)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireScope admits principals at or above the given level whose
// context map lists the resource id found in the named URL parameter.
// Admin bypasses the scope check.
func (m Middleware) RequireScope(required RoleLevel, contextType ContextType, urlParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resourceID := chi.URLParam(r, urlParam)
			if resourceID == "" {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "missing resource id")
				return
			}
			decision, err := m.Evaluator.Check(r.Context(), required, Scope{Type: contextType, ID: resourceID})
			if err != nil {
				m.fail(w, err)
				return
			}
			m.observe(decision)
			if !decision.Allowed {
				m.deny(w, decision)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) deny(w http.ResponseWriter, decision Decision) {
	if decision.Reason == ReasonUnauthenticated {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	// Context denials read the same as level denials on the wire.
	httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient role")
}

func (m Middleware) fail(w http.ResponseWriter, err error) {
	if m.Logger != nil {
		m.Logger.Error("authorization check failed", slog.Any("error", err))
	}
	httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "temporary backend failure, try again")
}

func (m Middleware) observe(decision Decision) {
	if m.Metrics != nil {
		m.Metrics.ObserveAuthzDecision(string(decision.Reason))
	}
}
