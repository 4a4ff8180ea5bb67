package rbac

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rolegate/rolegate/internal/platform/httpx"
	"github.com/rolegate/rolegate/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers. It expects the
// authentication middleware to have bound a principal to the request context.
type Middleware struct {
	Engine *Engine
	Logger *slog.Logger
}

// RequireRole ensures the current principal holds the named active role.
func (m Middleware) RequireRole(name string) func(http.Handler) http.Handler {
	return m.require(RoleRequirement(name))
}

// RequirePermission ensures the current principal holds perm.
func (m Middleware) RequirePermission(perm string) func(http.Handler) http.Handler {
	return m.require(Requirement{AllOf: normalizePermissions([]string{perm})})
}

// RequireAny ensures the current principal has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require(Requirement{AnyOf: normalizePermissions(perms)})
}

// RequireAll ensures the current principal has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require(Requirement{AllOf: normalizePermissions(perms)})
}

func (m Middleware) require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := m.Engine.Authorize(r.Context(), shared.PrincipalFromContext(r.Context()), req)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, shared.ErrInfrastructure):
				httpx.RespondUnavailable(w)
			default:
				if m.Logger != nil && errors.Is(err, shared.ErrForbidden) {
					m.Logger.Info("request forbidden",
						slog.String("path", r.URL.Path),
						slog.String("requirement", req.String()))
				}
				httpx.RespondError(w, err)
			}
		})
	}
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		if _, ok := unique[p]; ok {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
