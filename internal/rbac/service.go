package rbac

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rolegate/rolegate/internal/shared"
)

// Service orchestrates role assignment and the role/permission catalogue.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

func validRef(ref shared.PrincipalRef) error {
	if !ref.Kind.Valid() {
		return shared.Invalid("kind", "must be web or api")
	}
	if ref.ID <= 0 {
		return shared.Invalid("principalId", "must be positive")
	}
	return nil
}

func validRoleID(id int64) error {
	if id <= 0 {
		return shared.Invalid("roleId", "must be positive")
	}
	return nil
}

// AssignRole adds roleID to the principal's roles.
func (s *Service) AssignRole(ctx context.Context, ref shared.PrincipalRef, roleID int64) error {
	if err := validRef(ref); err != nil {
		return err
	}
	if err := validRoleID(roleID); err != nil {
		return err
	}
	if err := s.repo.AssignRole(ctx, ref, roleID); err != nil {
		return err
	}
	s.logger.Info("role assigned", slog.String("principal", ref.String()), slog.Int64("role_id", roleID))
	return nil
}

// ReplaceRole leaves roleID as the principal's only role.
func (s *Service) ReplaceRole(ctx context.Context, ref shared.PrincipalRef, roleID int64) error {
	if err := validRef(ref); err != nil {
		return err
	}
	if err := validRoleID(roleID); err != nil {
		return err
	}
	if err := s.repo.ReplaceRole(ctx, ref, roleID); err != nil {
		return err
	}
	s.logger.Info("role replaced", slog.String("principal", ref.String()), slog.Int64("role_id", roleID))
	return nil
}

// RolesOf lists every role assigned to the principal.
func (s *Service) RolesOf(ctx context.Context, ref shared.PrincipalRef) ([]Role, error) {
	if err := validRef(ref); err != nil {
		return nil, err
	}
	return s.repo.RolesOf(ctx, ref)
}

// RolesWithPermissions lists the principal's active roles with their permissions.
func (s *Service) RolesWithPermissions(ctx context.Context, ref shared.PrincipalRef) ([]RoleGrant, error) {
	if err := validRef(ref); err != nil {
		return nil, err
	}
	return s.repo.ActiveGrants(ctx, ref)
}

// EffectivePermissions returns the union of permissions over the principal's active roles.
// An empty set means no access.
func (s *Service) EffectivePermissions(ctx context.Context, ref shared.PrincipalRef) (PermissionSet, error) {
	grants, err := s.RolesWithPermissions(ctx, ref)
	if err != nil {
		return nil, err
	}
	return NewPermissionSet(grants), nil
}

func normalizeRoleInput(in RoleInput) (RoleInput, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" {
		return in, shared.Invalid("name", "is required")
	}
	return in, nil
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	if err := validRoleID(id); err != nil {
		return Role{}, err
	}
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, in RoleInput) (Role, error) {
	in, err := normalizeRoleInput(in)
	if err != nil {
		return Role{}, err
	}
	return s.repo.CreateRole(ctx, in)
}

// UpdateRole updates an existing role.
func (s *Service) UpdateRole(ctx context.Context, id int64, in RoleInput) (Role, error) {
	if err := validRoleID(id); err != nil {
		return Role{}, err
	}
	in, err := normalizeRoleInput(in)
	if err != nil {
		return Role{}, err
	}
	return s.repo.UpdateRole(ctx, id, in)
}

// DeleteRole removes a role by id.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	if err := validRoleID(id); err != nil {
		return err
	}
	return s.repo.DeleteRole(ctx, id)
}

// ListPermissions returns the permission catalogue.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// EnsurePermission upserts the permission named by key ("module.action").
func (s *Service) EnsurePermission(ctx context.Context, key, description string) (Permission, error) {
	perm, err := ParsePermission(key)
	if err != nil {
		return Permission{}, err
	}
	perm.Description = strings.TrimSpace(description)
	return s.repo.EnsurePermission(ctx, perm)
}

// RolePermissions lists the permissions granted to a role.
func (s *Service) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	if err := validRoleID(roleID); err != nil {
		return nil, err
	}
	return s.repo.RolePermissions(ctx, roleID)
}

// SetRolePermissions replaces the permissions granted to a role.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if err := validRoleID(roleID); err != nil {
		return err
	}
	seen := make(map[int64]struct{}, len(permissionIDs))
	unique := make([]int64, 0, len(permissionIDs))
	for _, id := range permissionIDs {
		if id <= 0 {
			return shared.Invalid("permissionIds", "must be positive")
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return s.repo.SetRolePermissions(ctx, roleID, unique)
}
