package app

import (
	"log/slog"
	"net/http"

	"github.com/rolegate/rolegate/internal/auth"
	"github.com/rolegate/rolegate/internal/credential"
	"github.com/rolegate/rolegate/internal/observability"
	"github.com/rolegate/rolegate/internal/platform/db"
	"github.com/rolegate/rolegate/internal/principals"
	"github.com/rolegate/rolegate/internal/rbac"
	"github.com/rolegate/rolegate/internal/token"
	"github.com/rolegate/rolegate/jobs"
)

// Stores groups the persistence backends of the three stores.
type Stores struct {
	Roles      rbac.Repository
	Principals principals.Repository
	Tokens     token.Repository
}

// PostgresStores returns pgx-backed stores sharing q.
func PostgresStores(q db.DBTX) Stores {
	return Stores{
		Roles:      rbac.NewRepository(q),
		Principals: principals.NewRepository(q),
		Tokens:     token.NewRepository(q),
	}
}

// ServerDeps is everything NewServer needs beyond configuration.
type ServerDeps struct {
	Logger     *slog.Logger
	Metrics    *observability.Metrics
	Stores     Stores
	JobHandler *jobs.Handler
	Probes     map[string]Probe
}

// Server holds the assembled services behind the HTTP handler.
type Server struct {
	Handler   http.Handler
	Graph     *rbac.Service
	Directory *principals.Service
	Tokens    *token.Service
	Auth      *auth.Service
}

// NewServer wires services, gates and handlers into a router.
func NewServer(cfg *Config, deps ServerDeps) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	graph := rbac.NewService(deps.Stores.Roles, logger)
	directory := principals.NewService(deps.Stores.Principals, graph, credential.NewBcrypt(cfg.BcryptCost), logger)
	tokens, err := token.NewService([]byte(cfg.JWTSecret), cfg.TokenTTL, deps.Stores.Tokens, logger)
	if err != nil {
		return nil, err
	}

	var decisions rbac.DecisionRecorder
	var logins auth.LoginRecorder
	if deps.Metrics != nil {
		decisions = deps.Metrics
		logins = deps.Metrics
	}
	engine := rbac.NewEngine(graph, cfg.AuthzTimeout, logger, decisions)
	authz := rbac.Middleware{Engine: engine, Logger: logger}
	authn := auth.Middleware{Tokens: tokens, Logger: logger}

	authService := auth.NewService(directory, graph, tokens, cfg.DefaultRoleID, logger, logins)

	handler := NewRouter(RouterParams{
		Logger:            logger,
		Config:            cfg,
		Metrics:           deps.Metrics,
		Authn:             authn,
		AuthHandler:       auth.NewHandler(logger, authService, authn, authz, LoginRateLimit(cfg.LoginRateLimit)),
		PrincipalsHandler: principals.NewHandler(logger, directory, authz),
		RBACHandler:       rbac.NewHandler(logger, graph, authz, cfg.AdminRoleName),
		JobHandler:        deps.JobHandler,
		Probes:            deps.Probes,
	})

	return &Server{
		Handler:   handler,
		Graph:     graph,
		Directory: directory,
		Tokens:    tokens,
		Auth:      authService,
	}, nil
}
