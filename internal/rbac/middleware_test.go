package rbac

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolegate/rolegate/internal/shared"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestAs(ref *shared.PrincipalRef) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if ref != nil {
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), &shared.PrincipalContext{Ref: *ref}))
	}
	return req
}

func TestMiddlewareStatuses(t *testing.T) {
	svc, repo := newTestGraph(t)
	mw := Middleware{Engine: NewEngine(svc, time.Second, nil, nil)}
	ctx := context.Background()

	manager := shared.PrincipalRef{Kind: shared.KindWeb, ID: 1}
	require.NoError(t, svc.ReplaceRole(ctx, manager, 3))

	t.Run("no principal", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mw.RequirePermission("users.read")(okHandler()).ServeHTTP(rec, requestAs(nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mw.RequirePermission("users.read")(okHandler()).ServeHTTP(rec, requestAs(&manager))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("any of", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mw.RequireAny("roles.assign", "users.update")(okHandler()).ServeHTTP(rec, requestAs(&manager))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("all of", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mw.RequireAll("users.read", "users.delete")(okHandler()).ServeHTTP(rec, requestAs(&manager))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("missing role", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mw.RequireRole("Admin")(okHandler()).ServeHTTP(rec, requestAs(&manager))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("blank requirements", func(t *testing.T) {
		for _, gate := range []func(http.Handler) http.Handler{
			mw.RequireRole(" "),
			mw.RequirePermission(""),
			mw.RequireAny(" ", ""),
		} {
			rec := httptest.NewRecorder()
			gate(okHandler()).ServeHTTP(rec, requestAs(&manager))
			assert.Equal(t, http.StatusForbidden, rec.Code)
		}
	})

	t.Run("store down", func(t *testing.T) {
		repo.Err = shared.Unavailable("query", errors.New("connection reset"))
		defer func() { repo.Err = nil }()

		rec := httptest.NewRecorder()
		mw.RequirePermission("users.read")(okHandler()).ServeHTTP(rec, requestAs(&manager))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
