package principals

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rolegate/rolegate/internal/credential"
	"github.com/rolegate/rolegate/internal/rbac"
	"github.com/rolegate/rolegate/internal/shared"
)

// listConcurrency bounds concurrent role lookups in admin listings.
const listConcurrency = 8

// RoleGraph is the part of the role graph the directory needs.
type RoleGraph interface {
	RolesOf(ctx context.Context, ref shared.PrincipalRef) ([]rbac.Role, error)
	AssignRole(ctx context.Context, ref shared.PrincipalRef, roleID int64) error
	ReplaceRole(ctx context.Context, ref shared.PrincipalRef, roleID int64) error
}

// CreateInput holds the plaintext fields of a new principal.
type CreateInput struct {
	Kind        shared.PrincipalKind
	Username    string
	Email       string
	Password    string
	Status      Status
	Description string
	Profile     *Profile
	RoleID      int64
}

// AdminUpdate is a partial update made by an administrator.
type AdminUpdate struct {
	Username    *string
	Email       *string
	Password    *string
	Description *string
	Status      *Status
	RoleID      *int64
	Profile     *ProfileFields
}

// SelfUpdate is a partial update a principal makes to its own record. Status is never included.
type SelfUpdate struct {
	Username    *string
	Email       *string
	Description *string
	Profile     *ProfileFields
}

// Service implements the principal directory.
type Service struct {
	repo   Repository
	roles  RoleGraph
	hasher credential.Hasher
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, roles RoleGraph, hasher credential.Hasher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, roles: roles, hasher: hasher, logger: logger}
}

func checkKind(kind shared.PrincipalKind) error {
	if !kind.Valid() {
		return shared.Invalid("kind", "must be web or api")
	}
	return nil
}

func normalizeUsername(raw string) (string, error) {
	u := shared.NormalizeUsername(raw)
	if u == "" {
		return "", shared.Invalid("username", "is required")
	}
	return u, nil
}

func normalizeEmail(raw string) (string, error) {
	e := shared.NormalizeEmail(raw)
	if e == "" || !strings.Contains(e, "@") {
		return "", shared.Invalid("email", "must be a valid email")
	}
	return e, nil
}

func (s *Service) hashPassword(plain string) (string, error) {
	if err := credential.CheckPolicy(plain); err != nil {
		return "", err
	}
	return s.hasher.Hash(plain)
}

// Create validates, hashes and stores a new principal. Web principals need a profile
// with first and last name.
func (s *Service) Create(ctx context.Context, in CreateInput) (Principal, error) {
	if err := checkKind(in.Kind); err != nil {
		return Principal{}, err
	}
	username, err := normalizeUsername(in.Username)
	if err != nil {
		return Principal{}, err
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return Principal{}, err
	}
	status := in.Status
	if status == 0 {
		status = StatusActive
	}
	if !status.Valid() {
		return Principal{}, shared.Invalid("status", "is unknown")
	}
	var profile *Profile
	if in.Kind == shared.KindWeb {
		if in.Profile == nil || strings.TrimSpace(in.Profile.FirstName) == "" || strings.TrimSpace(in.Profile.LastName) == "" {
			return Principal{}, shared.Invalid("profile", "first and last name are required")
		}
		pf := *in.Profile
		pf.FirstName = strings.TrimSpace(pf.FirstName)
		pf.LastName = strings.TrimSpace(pf.LastName)
		profile = &pf
	}
	hash, err := s.hashPassword(in.Password)
	if err != nil {
		return Principal{}, err
	}

	p, err := s.repo.Create(ctx, NewPrincipal{
		Kind:           in.Kind,
		Username:       username,
		Email:          email,
		CredentialHash: hash,
		Status:         status,
		Description:    strings.TrimSpace(in.Description),
		Profile:        profile,
		RoleID:         in.RoleID,
	})
	if err != nil {
		return Principal{}, err
	}
	s.logger.Info("principal created", slog.String("principal", p.Ref().String()))
	return p, nil
}

// Get fetches a principal by id.
func (s *Service) Get(ctx context.Context, kind shared.PrincipalKind, id int64) (Principal, error) {
	if err := checkKind(kind); err != nil {
		return Principal{}, err
	}
	return s.repo.FindByID(ctx, kind, id)
}

// FindByUsername fetches a principal by username.
func (s *Service) FindByUsername(ctx context.Context, kind shared.PrincipalKind, username string) (Principal, error) {
	if err := checkKind(kind); err != nil {
		return Principal{}, err
	}
	return s.repo.FindByUsername(ctx, kind, shared.NormalizeUsername(username))
}

// FindByEmail fetches a principal by email.
func (s *Service) FindByEmail(ctx context.Context, kind shared.PrincipalKind, email string) (Principal, error) {
	if err := checkKind(kind); err != nil {
		return Principal{}, err
	}
	return s.repo.FindByEmail(ctx, kind, shared.NormalizeEmail(email))
}

// FindByLogin resolves a login identifier. Web principals log in by username;
// API principals by username or email.
func (s *Service) FindByLogin(ctx context.Context, kind shared.PrincipalKind, login string) (Principal, error) {
	p, err := s.FindByUsername(ctx, kind, login)
	if err == nil || kind != shared.KindAPI || !shared.IsNotFound(err) {
		return p, err
	}
	return s.FindByEmail(ctx, kind, login)
}

func (s *Service) identityFields(username, email *string) (UpdateFields, error) {
	var f UpdateFields
	if username != nil {
		u, err := normalizeUsername(*username)
		if err != nil {
			return f, err
		}
		f.Username = &u
	}
	if email != nil {
		e, err := normalizeEmail(*email)
		if err != nil {
			return f, err
		}
		f.Email = &e
	}
	return f, nil
}

// Update applies an administrator's changes atomically. A role change replaces every
// existing role.
func (s *Service) Update(ctx context.Context, kind shared.PrincipalKind, id int64, in AdminUpdate) (Principal, error) {
	if err := checkKind(kind); err != nil {
		return Principal{}, err
	}
	fields, err := s.identityFields(in.Username, in.Email)
	if err != nil {
		return Principal{}, err
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return Principal{}, shared.Invalid("status", "is unknown")
		}
		fields.Status = in.Status
	}
	if in.Password != nil {
		hash, err := s.hashPassword(*in.Password)
		if err != nil {
			return Principal{}, err
		}
		fields.CredentialHash = &hash
	}
	if in.Description != nil {
		if kind != shared.KindAPI {
			return Principal{}, shared.Invalid("description", "only api principals carry a description")
		}
		d := strings.TrimSpace(*in.Description)
		fields.Description = &d
	}
	if in.Profile != nil && kind != shared.KindWeb {
		return Principal{}, shared.Invalid("profile", "only web principals have a profile")
	}
	if in.RoleID != nil && *in.RoleID <= 0 {
		return Principal{}, shared.Invalid("roleId", "must be positive")
	}

	change := Change{Fields: fields, Profile: in.Profile}
	if in.RoleID != nil {
		change.RoleID = *in.RoleID
	}
	p, err := s.repo.Update(ctx, kind, id, change)
	if err != nil {
		return Principal{}, err
	}
	s.logger.Info("principal updated", slog.String("principal", p.Ref().String()))
	return p, nil
}

// UpdateSelf applies changes a principal makes to itself.
func (s *Service) UpdateSelf(ctx context.Context, kind shared.PrincipalKind, id int64, in SelfUpdate) (Principal, error) {
	if err := checkKind(kind); err != nil {
		return Principal{}, err
	}
	fields, err := s.identityFields(in.Username, in.Email)
	if err != nil {
		return Principal{}, err
	}
	if in.Description != nil && kind == shared.KindAPI {
		d := strings.TrimSpace(*in.Description)
		fields.Description = &d
	}
	if in.Profile != nil && kind != shared.KindWeb {
		return Principal{}, shared.Invalid("profile", "only web principals have a profile")
	}
	return s.repo.Update(ctx, kind, id, Change{Fields: fields, Profile: in.Profile})
}

// UpdateProfile partially updates a web principal's profile.
func (s *Service) UpdateProfile(ctx context.Context, id int64, fields ProfileFields) (Profile, error) {
	return s.repo.UpdateProfile(ctx, id, fields)
}

// SetPassword enforces the password policy and stores the new hash.
func (s *Service) SetPassword(ctx context.Context, kind shared.PrincipalKind, id int64, plain string) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	hash, err := s.hashPassword(plain)
	if err != nil {
		return err
	}
	return s.repo.UpdateCredentialHash(ctx, kind, id, hash)
}

// VerifyPassword reports whether plain matches the principal's stored credential.
func (s *Service) VerifyPassword(p Principal, plain string) bool {
	return s.hasher.Verify(plain, p.CredentialHash)
}

// TouchLogin records a successful login.
func (s *Service) TouchLogin(ctx context.Context, kind shared.PrincipalKind, id int64, at time.Time) error {
	return s.repo.UpdateLastLogin(ctx, kind, id, at)
}

// Delete removes a principal and everything it owns.
func (s *Service) Delete(ctx context.Context, kind shared.PrincipalKind, id int64) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, kind, id); err != nil {
		return err
	}
	s.logger.Info("principal deleted", slog.String("principal", shared.PrincipalRef{Kind: kind, ID: id}.String()))
	return nil
}

// List returns every principal of kind.
func (s *Service) List(ctx context.Context, kind shared.PrincipalKind) ([]Principal, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	return s.repo.ListAll(ctx, kind)
}

// ListWithRoles returns every principal of kind with its assigned roles.
func (s *Service) ListWithRoles(ctx context.Context, kind shared.PrincipalKind) ([]WithRoles, error) {
	list, err := s.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	return s.attachRoles(ctx, list)
}

// ListPage returns one page of principals of kind with their roles.
func (s *Service) ListPage(ctx context.Context, kind shared.PrincipalKind, page, perPage int) ([]WithRoles, shared.Pagination, error) {
	list, err := s.List(ctx, kind)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	pg := shared.NewPagination(page, perPage, len(list))
	start, end := pg.Bounds()
	items, err := s.attachRoles(ctx, list[start:end])
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, pg, nil
}

func (s *Service) attachRoles(ctx context.Context, list []Principal) ([]WithRoles, error) {
	out := make([]WithRoles, len(list))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i, p := range list {
		g.Go(func() error {
			roles, err := s.roles.RolesOf(gctx, p.Ref())
			if err != nil {
				return err
			}
			if roles == nil {
				roles = []rbac.Role{}
			}
			out[i] = WithRoles{Principal: p, Roles: roles}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Roles lists the roles assigned to a principal.
func (s *Service) Roles(ctx context.Context, kind shared.PrincipalKind, id int64) ([]rbac.Role, error) {
	p, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	return s.roles.RolesOf(ctx, p.Ref())
}

// AssignRole adds a role to a principal.
func (s *Service) AssignRole(ctx context.Context, kind shared.PrincipalKind, id, roleID int64) error {
	p, err := s.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	return s.roles.AssignRole(ctx, p.Ref(), roleID)
}

// ReplaceRole makes roleID the principal's only role.
func (s *Service) ReplaceRole(ctx context.Context, kind shared.PrincipalKind, id, roleID int64) error {
	p, err := s.Get(ctx, kind, id)
	if err != nil {
		return err
	}
	return s.roles.ReplaceRole(ctx, p.Ref(), roleID)
}
