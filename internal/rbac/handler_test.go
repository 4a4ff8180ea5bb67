package rbac

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolegate/rolegate/internal/shared"
)

func newCatalogueRouter(t *testing.T, caller shared.PrincipalRef) (http.Handler, *Service) {
	t.Helper()
	svc, _ := newTestGraph(t)
	h := NewHandler(nil, svc, Middleware{Engine: NewEngine(svc, time.Second, nil, nil)}, "Admin")
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithPrincipal(req.Context(), &shared.PrincipalContext{Ref: caller})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	h.MountRoutes(r)
	return r, svc
}

func TestHandlerAdminCreatesRole(t *testing.T) {
	admin := shared.PrincipalRef{Kind: shared.KindWeb, ID: 1}
	router, svc := newCatalogueRouter(t, admin)
	require.NoError(t, svc.ReplaceRole(context.Background(), admin, 1))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/roles", strings.NewReader(`{"name":"support"}`)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var role Role
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &role))
	assert.Equal(t, "support", role.Name)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/roles", strings.NewReader(`{"name":"support"}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/roles", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerManagerCannotMutate(t *testing.T) {
	manager := shared.PrincipalRef{Kind: shared.KindWeb, ID: 2}
	router, svc := newCatalogueRouter(t, manager)
	require.NoError(t, svc.ReplaceRole(context.Background(), manager, 3))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/roles", strings.NewReader(`{"name":"x"}`)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/roles", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code, "manager lacks roles.read")
}

func TestHandlerRolePermissions(t *testing.T) {
	admin := shared.PrincipalRef{Kind: shared.KindAPI, ID: 1}
	router, svc := newCatalogueRouter(t, admin)
	require.NoError(t, svc.ReplaceRole(context.Background(), admin, 1))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/roles/3/permissions", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Permissions []Permission `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	keys := make([]string, 0, len(body.Permissions))
	for _, p := range body.Permissions {
		keys = append(keys, p.Key())
	}
	assert.Equal(t, []string{"users.read", "users.update"}, keys)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/roles/99/permissions", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
