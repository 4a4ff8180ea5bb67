package rbac

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rolegate/rolegate/internal/shared"
)

// MemoryRepository is an in-process Repository used by tests and local tooling.
type MemoryRepository struct {
	mu          sync.Mutex
	roles       map[int64]Role
	permissions map[int64]Permission
	grants      map[int64]map[int64]struct{}
	assignments map[shared.PrincipalRef][]int64
	nextRole    int64
	nextPerm    int64

	// Known reports whether a principal exists. Nil accepts every principal.
	Known func(shared.PrincipalRef) bool
	// Err, when set, is returned by every operation.
	Err error
}

// NewMemoryRepository returns an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		roles:       make(map[int64]Role),
		permissions: make(map[int64]Permission),
		grants:      make(map[int64]map[int64]struct{}),
		assignments: make(map[shared.PrincipalRef][]int64),
	}
}

// SeedRole stores role with its id as given, granting the listed permission keys.
func (m *MemoryRepository) SeedRole(role Role, perms ...string) Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now().UTC()
		role.UpdatedAt = role.CreatedAt
	}
	m.roles[role.ID] = role
	if role.ID > m.nextRole {
		m.nextRole = role.ID
	}
	set := m.grants[role.ID]
	if set == nil {
		set = make(map[int64]struct{})
		m.grants[role.ID] = set
	}
	for _, key := range perms {
		p, err := ParsePermission(key)
		if err != nil {
			continue
		}
		set[m.ensurePermissionLocked(p).ID] = struct{}{}
	}
	return role
}

// RemovePrincipal drops every assignment of ref.
func (m *MemoryRepository) RemovePrincipal(ref shared.PrincipalRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.assignments, ref)
}

// AssignmentCount returns how many role rows ref has.
func (m *MemoryRepository) AssignmentCount(ref shared.PrincipalRef) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.assignments[ref])
}

func (m *MemoryRepository) check(ctx context.Context, ref *shared.PrincipalRef) error {
	if err := ctx.Err(); err != nil {
		return shared.Unavailable("rbac: memory", err)
	}
	if m.Err != nil {
		return m.Err
	}
	if ref != nil {
		if !ref.Kind.Valid() {
			return shared.Invalid("kind", "must be web or api")
		}
		if m.Known != nil && !m.Known(*ref) {
			return shared.Missing("principal")
		}
	}
	return nil
}

// AssignRole adds roleID to ref, keeping existing assignments.
func (m *MemoryRepository) AssignRole(ctx context.Context, ref shared.PrincipalRef, roleID int64) error {
	if err := m.check(ctx, &ref); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[roleID]; !ok {
		return shared.Missing("role")
	}
	for _, id := range m.assignments[ref] {
		if id == roleID {
			return nil
		}
	}
	m.assignments[ref] = append(m.assignments[ref], roleID)
	return nil
}

// ReplaceRole makes roleID the only assignment of ref.
func (m *MemoryRepository) ReplaceRole(ctx context.Context, ref shared.PrincipalRef, roleID int64) error {
	if err := m.check(ctx, &ref); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[roleID]; !ok {
		return shared.Missing("role")
	}
	m.assignments[ref] = []int64{roleID}
	return nil
}

// RolesOf returns every role assigned to ref, active or not.
func (m *MemoryRepository) RolesOf(ctx context.Context, ref shared.PrincipalRef) ([]Role, error) {
	if err := m.check(ctx, nil); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var roles []Role
	for _, id := range m.sortedAssignments(ref) {
		roles = append(roles, m.roles[id])
	}
	return roles, nil
}

// ActiveGrants returns the active roles of ref with their permissions.
func (m *MemoryRepository) ActiveGrants(ctx context.Context, ref shared.PrincipalRef) ([]RoleGrant, error) {
	if err := m.check(ctx, nil); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var grants []RoleGrant
	for _, id := range m.sortedAssignments(ref) {
		role := m.roles[id]
		if !role.IsActive {
			continue
		}
		grants = append(grants, RoleGrant{Role: role, Permissions: m.rolePermissionsLocked(id)})
	}
	return grants, nil
}

func (m *MemoryRepository) sortedAssignments(ref shared.PrincipalRef) []int64 {
	ids := make([]int64, 0, len(m.assignments[ref]))
	for _, id := range m.assignments[ref] {
		if _, ok := m.roles[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ListRoles returns all roles ordered by id.
func (m *MemoryRepository) ListRoles(ctx context.Context) ([]Role, error) {
	if err := m.check(ctx, nil); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	roles := make([]Role, 0, len(m.roles))
	for _, r := range m.roles {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
	return roles, nil
}

// GetRole fetches a role by id.
func (m *MemoryRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	if err := m.check(ctx, nil); err != nil {
		return Role{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return Role{}, shared.Missing("role")
	}
	return role, nil
}

// CreateRole stores a role with a unique name.
func (m *MemoryRepository) CreateRole(ctx context.Context, in RoleInput) (Role, error) {
	if err := m.check(ctx, nil); err != nil {
		return Role{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.nameTakenLocked(in.Name, 0) {
		return Role{}, shared.Duplicate("name")
	}
	m.nextRole++
	now := time.Now().UTC()
	role := Role{ID: m.nextRole, Name: in.Name, Description: in.Description, IsActive: true, CreatedAt: now, UpdatedAt: now}
	if in.IsActive != nil {
		role.IsActive = *in.IsActive
	}
	m.roles[role.ID] = role
	return role, nil
}

// UpdateRole replaces the mutable fields of a role.
func (m *MemoryRepository) UpdateRole(ctx context.Context, id int64, in RoleInput) (Role, error) {
	if err := m.check(ctx, nil); err != nil {
		return Role{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.roles[id]
	if !ok {
		return Role{}, shared.Missing("role")
	}
	if m.nameTakenLocked(in.Name, id) {
		return Role{}, shared.Duplicate("name")
	}
	role.Name = in.Name
	role.Description = in.Description
	if in.IsActive != nil {
		role.IsActive = *in.IsActive
	}
	role.UpdatedAt = time.Now().UTC()
	m.roles[id] = role
	return role, nil
}

func (m *MemoryRepository) nameTakenLocked(name string, except int64) bool {
	for id, r := range m.roles {
		if id != except && r.Name == name {
			return true
		}
	}
	return false
}

// DeleteRole removes a role and its permission grants.
func (m *MemoryRepository) DeleteRole(ctx context.Context, id int64) error {
	if err := m.check(ctx, nil); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[id]; !ok {
		return shared.Missing("role")
	}
	delete(m.roles, id)
	delete(m.grants, id)
	return nil
}

// ListPermissions returns the permission catalogue.
func (m *MemoryRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	if err := m.check(ctx, nil); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	perms := make([]Permission, 0, len(m.permissions))
	for _, p := range m.permissions {
		perms = append(perms, p)
	}
	sortPermissions(perms)
	return perms, nil
}

// EnsurePermission returns the stored permission, creating it when absent.
func (m *MemoryRepository) EnsurePermission(ctx context.Context, perm Permission) (Permission, error) {
	if err := m.check(ctx, nil); err != nil {
		return Permission{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensurePermissionLocked(perm), nil
}

func (m *MemoryRepository) ensurePermissionLocked(perm Permission) Permission {
	for id, p := range m.permissions {
		if p.Key() == perm.Key() {
			if perm.Description != "" {
				p.Description = perm.Description
				m.permissions[id] = p
			}
			return p
		}
	}
	m.nextPerm++
	perm.ID = m.nextPerm
	m.permissions[perm.ID] = perm
	return perm
}

// RolePermissions returns the permissions granted to roleID.
func (m *MemoryRepository) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	if err := m.check(ctx, nil); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rolePermissionsLocked(roleID), nil
}

func (m *MemoryRepository) rolePermissionsLocked(roleID int64) []Permission {
	var perms []Permission
	for id := range m.grants[roleID] {
		perms = append(perms, m.permissions[id])
	}
	sortPermissions(perms)
	return perms
}

// SetRolePermissions replaces the grants of roleID.
func (m *MemoryRepository) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if err := m.check(ctx, nil); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[roleID]; !ok {
		return shared.Missing("role")
	}
	set := make(map[int64]struct{}, len(permissionIDs))
	for _, id := range permissionIDs {
		if _, ok := m.permissions[id]; !ok {
			return shared.Missing("permission")
		}
		set[id] = struct{}{}
	}
	m.grants[roleID] = set
	return nil
}

func sortPermissions(perms []Permission) {
	sort.Slice(perms, func(i, j int) bool { return perms[i].Key() < perms[j].Key() })
}
