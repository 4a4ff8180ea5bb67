package auth_test

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

	"github.com/rolegate/rolegate/internal/auth"
	"github.com/rolegate/rolegate/internal/rbac"
	"github.com/rolegate/rolegate/internal/shared"
)

func newRouter(t *testing.T, e env) http.Handler {
	t.Helper()
	authn := auth.Middleware{Tokens: e.tokenSvc}
	authz := rbac.Middleware{Engine: rbac.NewEngine(e.graph, time.Second, nil, nil)}
	h := auth.NewHandler(nil, e.auth, authn, authz, nil)
	r := chi.NewRouter()
	r.Route("/{kind}", h.MountRoutes)
	return r
}

func do(t *testing.T, router http.Handler, method, path, bearer, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func loginToken(t *testing.T, router http.Handler, kind, body string) string {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/"+kind+"/login", "", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sess struct {
		Token struct {
			Token string `json:"token"`
		} `json:"token"`
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	require.NotEmpty(t, sess.Token.Token)
	return sess.Token.Token
}

func TestRegisterLoginMeFlow(t *testing.T) {
	e := newEnv(t, nil)
	router := newRouter(t, e)

	rec := do(t, router, http.MethodPost, "/web/register", "",
		`{"username":"alice","email":"alice@example.com","password":"wonderland","firstName":"Alice","lastName":"Liddell"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "wonderland")

	rec = do(t, router, http.MethodPost, "/web/register", "",
		`{"username":"alice","email":"other@example.com","password":"wonderland","firstName":"A","lastName":"L"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodPost, "/web/login", "", `{"username":"alice","password":"nope-nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tok := loginToken(t, router, "web", `{"username":"alice","password":"wonderland"}`)

	rec = do(t, router, http.MethodGet, "/web/me", tok, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var account struct {
		Principal struct {
			Username string `json:"username"`
		} `json:"principal"`
		Permissions []string `json:"permissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &account))
	assert.Equal(t, "alice", account.Principal.Username)
	assert.Equal(t, []string{"users.read"}, account.Permissions)

	rec = do(t, router, http.MethodGet, "/api/me", tok, "")
	assert.Equal(t, http.StatusForbidden, rec.Code, "web token on api route")

	rec = do(t, router, http.MethodPut, "/web/me/password", tok, `{"currentPassword":"wonderland","newPassword":"short"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodDelete, "/web/me", tok, `{"password":"wonderland"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestShortPasswordRegistrationIs400(t *testing.T) {
	e := newEnv(t, nil)
	router := newRouter(t, e)

	rec := do(t, router, http.MethodPost, "/api/register", "",
		`{"username":"bot","email":"bot@example.com","password":"1234567"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "password")
}

func TestOverlongPasswordRegistrationIs400(t *testing.T) {
	e := newEnv(t, nil)
	router := newRouter(t, e)

	body := `{"username":"bot","email":"bot@example.com","password":"` + strings.Repeat("p", 80) + `"}`
	rec := do(t, router, http.MethodPost, "/api/register", "", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "password")
}

func TestGateRejectsMissingAndBadTokens(t *testing.T) {
	e := newEnv(t, nil)
	router := newRouter(t, e)

	rec := do(t, router, http.MethodGet, "/web/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	rec = do(t, router, http.MethodGet, "/web/me", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminCreateRequiresPermission(t *testing.T) {
	e := newEnv(t, nil)
	router := newRouter(t, e)
	ctx := context.Background()

	in := alice()
	in.RoleID = 1
	_, err := e.auth.AdminCreate(ctx, in)
	require.NoError(t, err)
	_, err = e.auth.AdminCreate(ctx, bot("plain"))
	require.NoError(t, err)

	adminTok := loginToken(t, router, "web", `{"username":"alice","password":"wonderland"}`)
	plainTok := loginToken(t, router, "api", `{"email":"plain@example.com","password":"machine-pass"}`)

	body := `{"username":"svc","email":"svc@example.com","password":"service-pass","roleId":3}`
	rec := do(t, router, http.MethodPost, "/api/admin/create", plainTok, body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/admin/create", adminTok, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	svc, err := e.directory.FindByUsername(ctx, shared.KindAPI, "svc")
	require.NoError(t, err)
	roles, err := e.graph.RolesOf(ctx, svc.Ref())
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "manager", roles[0].Name)
}

func TestBearerToken(t *testing.T) {
	cases := map[string]bool{
		"":                 false,
		"Bearer":           false,
		"Bearer ":          false,
		"Basic abc":        false,
		"Bearer abc.def.g": true,
		"bearer abc":       true,
	}
	for header, ok := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		raw, err := auth.BearerToken(req)
		if ok {
			assert.NoError(t, err, header)
			assert.NotEmpty(t, raw)
		} else {
			assert.ErrorIs(t, err, shared.ErrUnauthenticated, header)
		}
	}
}
