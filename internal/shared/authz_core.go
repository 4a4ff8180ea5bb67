package shared

// Route permissions, formatted module.action.
const (
	PermUsersRead   = "users.read"
	PermUsersCreate = "users.create"
	PermUsersUpdate = "users.update"
	PermUsersDelete = "users.delete"

	PermRolesRead   = "roles.read"
	PermRolesCreate = "roles.create"
	PermRolesAssign = "roles.assign"
	PermRolesUpdate = "roles.update"
	PermRolesDelete = "roles.delete"

	PermPermissionsRead = "permissions.read"
)

// CoreScopes lists all permissions checked by the HTTP surface.
func CoreScopes() []string {
	return []string{
		PermUsersRead,
		PermUsersCreate,
		PermUsersUpdate,
		PermUsersDelete,
		PermRolesRead,
		PermRolesCreate,
		PermRolesAssign,
		PermRolesUpdate,
		PermRolesDelete,
		PermPermissionsRead,
	}
}
