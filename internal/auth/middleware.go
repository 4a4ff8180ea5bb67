package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rolegate/rolegate/internal/platform/httpx"
	"github.com/rolegate/rolegate/internal/shared"
)

// Verifier turns a raw bearer token into the principal it was issued to.
type Verifier interface {
	Verify(raw string) (*shared.PrincipalContext, error)
}

// Middleware is the authentication gate.
type Middleware struct {
	Tokens Verifier
	Logger *slog.Logger
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", shared.ErrUnauthenticated
	}
	scheme, raw, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", shared.ErrUnauthenticated
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", shared.ErrUnauthenticated
	}
	return raw, nil
}

// Authenticate verifies the bearer token and binds the principal to the request context.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := BearerToken(r)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		principal, err := m.Tokens.Verify(raw)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Debug("bearer token rejected", slog.String("path", r.URL.Path), slog.Any("error", err))
			}
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

// RequireKind rejects callers whose token kind differs from the {kind} URL parameter.
func (m Middleware) RequireKind(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := shared.PrincipalFromContext(r.Context())
		if principal == nil {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		kind, err := shared.ParseKind(chi.URLParam(r, "kind"))
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		if principal.Ref.Kind != kind {
			httpx.RespondError(w, shared.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
