package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-lms/odyssey-lms/internal/platform/httpx"
	"github.com/odyssey-lms/odyssey-lms/internal/shared"
)

// ResourceFunc loads the resource a request acts upon.
type ResourceFunc func(r *http.Request) (*Resource, error)

// CheckOption configures the scope and resource of a route check.
type CheckOption func(*routeCheck)

type routeCheck struct {
	scope      string
	scopeParam string
	resource   ResourceFunc
}

// Scope fixes the scope of the check.
func Scope(scope string) CheckOption {
	return func(c *routeCheck) { c.scope = scope }
}

// ScopeParam scopes the check to the department id found in the chi URL parameter.
func ScopeParam(param string) CheckOption {
	return func(c *routeCheck) { c.scopeParam = param }
}

// WithResource attaches a resource loader to the check.
func WithResource(fn ResourceFunc) CheckOption {
	return func(c *routeCheck) { c.resource = fn }
}

func (c routeCheck) options(r *http.Request) (Options, error) {
	opts := Options{Scope: c.scope}
	if c.scopeParam != "" {
		if id := chi.URLParam(r, c.scopeParam); id != "" {
			opts.Scope = DepartmentScope(id)
		}
	}
	if c.resource != nil {
		res, err := c.resource(r)
		if err != nil {
			return Options{}, err
		}
		opts.Resource = res
	}
	return opts, nil
}

// Middleware protects routes with authorization checks.
type Middleware struct {
	Authorizer *Authorizer
	Logger     *slog.Logger
}

type decideFunc func(ctx context.Context, userID string, opts Options) (Decision, error)

// Require allows the request when right is granted. Malformed rights panic at construction.
func (m Middleware) Require(right string, opts ...CheckOption) func(http.Handler) http.Handler {
	right = MustRight(right)
	return m.guard(opts, func(ctx context.Context, userID string, o Options) (Decision, error) {
		return m.Authorizer.Authorize(ctx, userID, right, o)
	})
}

// RequireAny allows the request when at least one of rights is granted.
func (m Middleware) RequireAny(rights []string, opts ...CheckOption) func(http.Handler) http.Handler {
	rights = mustRights(rights)
	return m.guard(opts, func(ctx context.Context, userID string, o Options) (Decision, error) {
		return m.Authorizer.AuthorizeAny(ctx, userID, rights, o)
	})
}

// RequireAll allows the request when every one of rights is granted.
func (m Middleware) RequireAll(rights []string, opts ...CheckOption) func(http.Handler) http.Handler {
	rights = mustRights(rights)
	return m.guard(opts, func(ctx context.Context, userID string, o Options) (Decision, error) {
		return m.Authorizer.AuthorizeAll(ctx, userID, rights, o)
	})
}

// RequireInDepartment checks right scoped to the department named by the URL parameter.
func (m Middleware) RequireInDepartment(right, param string) func(http.Handler) http.Handler {
	return m.Require(right, ScopeParam(param))
}

func (m Middleware) guard(opts []CheckOption, decide decideFunc) func(http.Handler) http.Handler {
	var check routeCheck
	for _, opt := range opts {
		opt(&check)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := shared.IdentityFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			o, err := check.options(r)
			if err != nil {
				m.logError("rbac load resource", err)
				httpx.RespondError(w, err)
				return
			}
			d, err := decide(r.Context(), id.UserID, o)
			if err != nil {
				m.logError("rbac authorize", err)
				httpx.RespondError(w, err)
				return
			}
			if !d.Allowed {
				httpx.Coded(w, http.StatusForbidden, "Forbidden", shared.CodeAuthorizationDenied, d.DenialMessage())
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithDecision(r.Context(), d)))
		})
	}
}

func (m Middleware) logError(msg string, err error) {
	if m.Logger != nil {
		m.Logger.Error(msg, slog.Any("error", err))
	}
}

func mustRights(rights []string) []string {
	out := make([]string, 0, len(rights))
	for _, r := range rights {
		out = append(out, MustRight(r))
	}
	return out
}

type decisionContextKey struct{}

// ContextWithDecision stores the decision that admitted a request.
func ContextWithDecision(ctx context.Context, d Decision) context.Context {
	return context.WithValue(ctx, decisionContextKey{}, d)
}

// DecisionFromContext returns the admitting decision, if any.
func DecisionFromContext(ctx context.Context) (Decision, bool) {
	d, ok := ctx.Value(decisionContextKey{}).(Decision)
	return d, ok
}
