package principals

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

	"github.com/rolegate/rolegate/internal/rbac"
	"github.com/rolegate/rolegate/internal/shared"
)

func newAdminRouter(t *testing.T, f fixture, caller shared.PrincipalRef) http.Handler {
	t.Helper()
	mw := rbac.Middleware{Engine: rbac.NewEngine(f.graph, time.Second, nil, nil)}
	h := NewHandler(nil, f.svc, mw)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := shared.ContextWithPrincipal(req.Context(), &shared.PrincipalContext{Ref: caller})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/{kind}", h.MountRoutes)
	return r
}

func TestHandlerListAndForbiddenDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := webInput("manager", "manager@example.com")
	in.RoleID = 3
	mgr, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	router := newAdminRouter(t, f, mgr.Ref())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/web/principals", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Principals []WithRoles `json:"principals"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Principals, 1)
	assert.NotContains(t, rec.Body.String(), "$2a$", "credential hash must not be serialized")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/web/principals/1", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/robots/principals", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerAdminReplacesRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := webInput("root", "root@example.com")
	in.RoleID = 1
	admin, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	target, err := f.svc.Create(ctx, CreateInput{Kind: shared.KindAPI, Username: "bot", Email: "bot@example.com", Password: "s3cretpass", RoleID: 2})
	require.NoError(t, err)

	router := newAdminRouter(t, f, admin.Ref())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/principals/1/roles", strings.NewReader(`{"roleId":3}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, f.roles.AssignmentCount(target.Ref()))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/principals/1/roles", strings.NewReader(`{"roleId":3}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, f.roles.AssignmentCount(target.Ref()))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/principals/1/roles", strings.NewReader(`{"roleId":0}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/principals/1", strings.NewReader(`{"statusId":3}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stored, err := f.svc.Get(ctx, shared.KindAPI, target.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuspended, stored.Status)
}
