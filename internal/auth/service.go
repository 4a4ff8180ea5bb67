// Package auth implements account lifecycle and bearer authentication.
package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/rolegate/rolegate/internal/principals"
	"github.com/rolegate/rolegate/internal/rbac"
	"github.com/rolegate/rolegate/internal/shared"
	"github.com/rolegate/rolegate/internal/token"
)

// Login outcomes reported to the LoginRecorder.
const (
	LoginSucceeded = "success"
	LoginRejected  = "invalid_credentials"
	LoginFailed    = "error"
)

// RoleGraph is the part of the role graph authentication needs.
type RoleGraph interface {
	ReplaceRole(ctx context.Context, ref shared.PrincipalRef, roleID int64) error
	RolesWithPermissions(ctx context.Context, ref shared.PrincipalRef) ([]rbac.RoleGrant, error)
}

// LoginRecorder observes login outcomes.
type LoginRecorder interface {
	RecordLogin(kind, outcome string)
}

// Session is what a successful login returns.
type Session struct {
	Token       token.Issued         `json:"token"`
	Principal   principals.Principal `json:"principal"`
	Roles       []rbac.RoleGrant     `json:"roles"`
	Permissions []string             `json:"permissions"`
}

// Account is the self-service view of the caller.
type Account struct {
	Principal   principals.Principal `json:"principal"`
	Roles       []rbac.RoleGrant     `json:"roles"`
	Permissions []string             `json:"permissions"`
}

// Service wraps authentication business rules.
type Service struct {
	directory     *principals.Service
	graph         RoleGraph
	tokens        *token.Service
	logger        *slog.Logger
	recorder      LoginRecorder
	defaultRoleID int64
	now           func() time.Time
}

// NewService constructs a Service. recorder may be nil.
func NewService(directory *principals.Service, graph RoleGraph, tokens *token.Service, defaultRoleID int64, logger *slog.Logger, recorder LoginRecorder) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		directory:     directory,
		graph:         graph,
		tokens:        tokens,
		logger:        logger,
		recorder:      recorder,
		defaultRoleID: defaultRoleID,
		now:           time.Now,
	}
}

// Register creates an active principal and gives it the default role. A failed role
// assignment is logged and does not undo the registration; the principal then has no
// access until an administrator assigns a role.
func (s *Service) Register(ctx context.Context, in principals.CreateInput) (principals.Principal, error) {
	in.Status = principals.StatusActive
	in.RoleID = 0
	p, err := s.directory.Create(ctx, in)
	if err != nil {
		return principals.Principal{}, err
	}
	if s.defaultRoleID > 0 {
		if err := s.graph.ReplaceRole(ctx, p.Ref(), s.defaultRoleID); err != nil {
			s.logger.Warn("default role assignment failed",
				slog.String("principal", p.Ref().String()),
				slog.Int64("role_id", s.defaultRoleID),
				slog.Any("error", err))
		}
	}
	return p, nil
}

// AdminCreate creates a principal on behalf of an administrator. The role, explicit or
// default, is assigned in the same transaction as the insert.
func (s *Service) AdminCreate(ctx context.Context, in principals.CreateInput) (principals.Principal, error) {
	if in.RoleID == 0 {
		in.RoleID = s.defaultRoleID
	}
	return s.directory.Create(ctx, in)
}

// Login authenticates by password and issues a token carrying the current role snapshot.
// Unknown principals, inactive statuses, wrong passwords and principals without an active
// role all yield shared.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, kind shared.PrincipalKind, login, password string) (Session, error) {
	sess, err := s.login(ctx, kind, login, password)
	switch {
	case err == nil:
		s.record(kind, LoginSucceeded)
	case shared.IsInvalidCredentials(err):
		s.record(kind, LoginRejected)
	default:
		s.record(kind, LoginFailed)
	}
	return sess, err
}

func (s *Service) login(ctx context.Context, kind shared.PrincipalKind, login, password string) (Session, error) {
	if !kind.Valid() {
		return Session{}, shared.Invalid("kind", "must be web or api")
	}
	p, err := s.directory.FindByLogin(ctx, kind, login)
	if err != nil {
		if shared.IsNotFound(err) {
			return Session{}, shared.ErrInvalidCredentials
		}
		return Session{}, err
	}
	if !p.Active() {
		s.logger.Info("login refused for non-active principal",
			slog.String("principal", p.Ref().String()),
			slog.String("status", p.Status.String()))
		return Session{}, shared.ErrInvalidCredentials
	}
	if !s.directory.VerifyPassword(p, password) {
		return Session{}, shared.ErrInvalidCredentials
	}
	grants, err := s.graph.RolesWithPermissions(ctx, p.Ref())
	if err != nil {
		return Session{}, err
	}
	if len(grants) == 0 {
		s.logger.Info("login refused for principal without active role", slog.String("principal", p.Ref().String()))
		return Session{}, shared.ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.directory.TouchLogin(ctx, kind, p.ID, now); err != nil {
		return Session{}, err
	}
	p.LastLoginAt = &now

	issued, err := s.tokens.Issue(token.Identity{Ref: p.Ref(), Username: p.Username, Email: p.Email}, rbac.RoleRefs(grants))
	if err != nil {
		return Session{}, err
	}
	if kind == shared.KindAPI {
		if err := s.tokens.PersistLatest(ctx, p.Ref(), issued); err != nil {
			return Session{}, err
		}
	}
	s.logger.Info("login succeeded", slog.String("principal", p.Ref().String()))
	return Session{
		Token:       issued,
		Principal:   p,
		Roles:       grants,
		Permissions: rbac.NewPermissionSet(grants).Sorted(),
	}, nil
}

func (s *Service) record(kind shared.PrincipalKind, outcome string) {
	if s.recorder != nil {
		s.recorder.RecordLogin(string(kind), outcome)
	}
}

// Me returns the caller's record with its live roles and permissions.
func (s *Service) Me(ctx context.Context, caller *shared.PrincipalContext) (Account, error) {
	if caller == nil {
		return Account{}, shared.ErrUnauthenticated
	}
	p, err := s.directory.Get(ctx, caller.Ref.Kind, caller.Ref.ID)
	if err != nil {
		return Account{}, err
	}
	grants, err := s.graph.RolesWithPermissions(ctx, caller.Ref)
	if err != nil {
		return Account{}, err
	}
	if grants == nil {
		grants = []rbac.RoleGrant{}
	}
	return Account{Principal: p, Roles: grants, Permissions: rbac.NewPermissionSet(grants).Sorted()}, nil
}

// UpdateMe applies self-service changes. Status cannot be changed this way.
func (s *Service) UpdateMe(ctx context.Context, caller *shared.PrincipalContext, in principals.SelfUpdate) (principals.Principal, error) {
	if caller == nil {
		return principals.Principal{}, shared.ErrUnauthenticated
	}
	return s.directory.UpdateSelf(ctx, caller.Ref.Kind, caller.Ref.ID, in)
}

func (s *Service) confirm(ctx context.Context, caller *shared.PrincipalContext, password string) (principals.Principal, error) {
	if caller == nil {
		return principals.Principal{}, shared.ErrUnauthenticated
	}
	p, err := s.directory.Get(ctx, caller.Ref.Kind, caller.Ref.ID)
	if err != nil {
		return principals.Principal{}, err
	}
	if !s.directory.VerifyPassword(p, password) {
		return principals.Principal{}, shared.ErrInvalidCredentials
	}
	return p, nil
}

// ChangePassword replaces the caller's password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, caller *shared.PrincipalContext, current, next string) error {
	p, err := s.confirm(ctx, caller, current)
	if err != nil {
		return err
	}
	return s.directory.SetPassword(ctx, p.Kind, p.ID, next)
}

// DeleteMe removes the caller's account after password confirmation.
func (s *Service) DeleteMe(ctx context.Context, caller *shared.PrincipalContext, password string) error {
	p, err := s.confirm(ctx, caller, password)
	if err != nil {
		return err
	}
	return s.directory.Delete(ctx, p.Kind, p.ID)
}
