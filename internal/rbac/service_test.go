package rbac

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolegate/rolegate/internal/shared"
)

func newTestGraph(t *testing.T) (*Service, *MemoryRepository) {
	t.Helper()
	repo := NewMemoryRepository()
	repo.SeedRole(Role{ID: 1, Name: "Admin", IsActive: true},
		"users.read", "users.create", "users.update", "users.delete", "roles.read", "roles.assign", "roles.update")
	repo.SeedRole(Role{ID: 2, Name: "user", IsActive: true})
	repo.SeedRole(Role{ID: 3, Name: "manager", IsActive: true}, "users.read", "users.update")
	return NewService(repo, nil), repo
}

func TestEffectivePermissionsUnionAndDedupe(t *testing.T) {
	svc, repo := newTestGraph(t)
	repo.SeedRole(Role{ID: 4, Name: "auditor", IsActive: true}, "users.read", "roles.read")
	ctx := context.Background()
	ref := shared.PrincipalRef{Kind: shared.KindWeb, ID: 10}

	require.NoError(t, svc.AssignRole(ctx, ref, 3))
	require.NoError(t, svc.AssignRole(ctx, ref, 4))

	perms, err := svc.EffectivePermissions(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, []string{"roles.read", "users.read", "users.update"}, perms.Sorted())
}

func TestEffectivePermissionsEmptyWithoutRoles(t *testing.T) {
	svc, _ := newTestGraph(t)
	perms, err := svc.EffectivePermissions(context.Background(), shared.PrincipalRef{Kind: shared.KindAPI, ID: 99})
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestInactiveRolesExcluded(t *testing.T) {
	svc, repo := newTestGraph(t)
	repo.SeedRole(Role{ID: 5, Name: "retired", IsActive: false}, "users.delete")
	ctx := context.Background()
	ref := shared.PrincipalRef{Kind: shared.KindWeb, ID: 11}

	require.NoError(t, svc.AssignRole(ctx, ref, 3))
	require.NoError(t, svc.AssignRole(ctx, ref, 5))

	roles, err := svc.RolesOf(ctx, ref)
	require.NoError(t, err)
	assert.Len(t, roles, 2)

	grants, err := svc.RolesWithPermissions(ctx, ref)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "manager", grants[0].Role.Name)

	perms, err := svc.EffectivePermissions(ctx, ref)
	require.NoError(t, err)
	assert.False(t, perms.Has("users.delete"))
}

func TestReplaceRoleLeavesSingleAssignment(t *testing.T) {
	svc, repo := newTestGraph(t)
	ctx := context.Background()
	ref := shared.PrincipalRef{Kind: shared.KindAPI, ID: 7}

	require.NoError(t, svc.AssignRole(ctx, ref, 1))
	require.NoError(t, svc.AssignRole(ctx, ref, 3))
	require.Equal(t, 2, repo.AssignmentCount(ref))

	require.NoError(t, svc.ReplaceRole(ctx, ref, 2))
	assert.Equal(t, 1, repo.AssignmentCount(ref))

	roles, err := svc.RolesOf(ctx, ref)
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, int64(2), roles[0].ID)
}

func TestAssignmentsArePerKind(t *testing.T) {
	svc, _ := newTestGraph(t)
	ctx := context.Background()
	require.NoError(t, svc.AssignRole(ctx, shared.PrincipalRef{Kind: shared.KindWeb, ID: 1}, 1))

	perms, err := svc.EffectivePermissions(ctx, shared.PrincipalRef{Kind: shared.KindAPI, ID: 1})
	require.NoError(t, err)
	assert.Empty(t, perms, "api:1 must not inherit web:1 roles")
}

func TestReplaceRoleUnknownRole(t *testing.T) {
	svc, _ := newTestGraph(t)
	err := svc.ReplaceRole(context.Background(), shared.PrincipalRef{Kind: shared.KindWeb, ID: 1}, 42)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReplaceRoleUnknownPrincipal(t *testing.T) {
	svc, repo := newTestGraph(t)
	repo.Known = func(shared.PrincipalRef) bool { return false }
	err := svc.ReplaceRole(context.Background(), shared.PrincipalRef{Kind: shared.KindWeb, ID: 1}, 2)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGraphValidation(t *testing.T) {
	svc, _ := newTestGraph(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.AssignRole(ctx, shared.PrincipalRef{Kind: "robot", ID: 1}, 1), shared.ErrValidation)
	assert.ErrorIs(t, svc.AssignRole(ctx, shared.PrincipalRef{Kind: shared.KindWeb, ID: 0}, 1), shared.ErrValidation)
	assert.ErrorIs(t, svc.ReplaceRole(ctx, shared.PrincipalRef{Kind: shared.KindWeb, ID: 1}, 0), shared.ErrValidation)
}

func TestCatalogue(t *testing.T) {
	svc, _ := newTestGraph(t)
	ctx := context.Background()

	_, err := svc.CreateRole(ctx, RoleInput{Name: "  "})
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateRole(ctx, RoleInput{Name: "manager"})
	assert.ErrorIs(t, err, shared.ErrDuplicate)

	role, err := svc.CreateRole(ctx, RoleInput{Name: " support ", Description: "helpdesk"})
	require.NoError(t, err)
	assert.Equal(t, "support", role.Name)
	assert.True(t, role.IsActive)

	perm, err := svc.EnsurePermission(ctx, "Tickets.Close", "close tickets")
	require.NoError(t, err)
	assert.Equal(t, "tickets.close", perm.Key())

	again, err := svc.EnsurePermission(ctx, "tickets.close", "")
	require.NoError(t, err)
	assert.Equal(t, perm.ID, again.ID)

	_, err = svc.EnsurePermission(ctx, "tickets", "")
	assert.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, svc.SetRolePermissions(ctx, role.ID, []int64{perm.ID, perm.ID}))
	perms, err := svc.RolePermissions(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, perms, 1)
	assert.Equal(t, "tickets.close", perms[0].Key())

	inactive := false
	updated, err := svc.UpdateRole(ctx, role.ID, RoleInput{Name: "support", IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)

	require.NoError(t, svc.DeleteRole(ctx, role.ID))
	assert.ErrorIs(t, svc.DeleteRole(ctx, role.ID), shared.ErrNotFound)
}
