package rbac

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/rolegate/rolegate/internal/platform/db"
	"github.com/rolegate/rolegate/internal/shared"
)

// Repository defines persistence for role assignments and the role/permission catalogue.
type Repository interface {
	AssignRole(ctx context.Context, ref shared.PrincipalRef, roleID int64) error
	ReplaceRole(ctx context.Context, ref shared.PrincipalRef, roleID int64) error
	RolesOf(ctx context.Context, ref shared.PrincipalRef) ([]Role, error)
	ActiveGrants(ctx context.Context, ref shared.PrincipalRef) ([]RoleGrant, error)

	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, in RoleInput) (Role, error)
	UpdateRole(ctx context.Context, id int64, in RoleInput) (Role, error)
	DeleteRole(ctx context.Context, id int64) error

	ListPermissions(ctx context.Context) ([]Permission, error)
	EnsurePermission(ctx context.Context, perm Permission) (Permission, error)
	RolePermissions(ctx context.Context, roleID int64) ([]Permission, error)
	SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL repository. q may be a pool or an open transaction.
func NewRepository(q db.DBTX) *PGRepository {
	return &PGRepository{db: q}
}

func assignmentTable(kind shared.PrincipalKind) (string, error) {
	switch kind {
	case shared.KindWeb:
		return "web_principal_roles", nil
	case shared.KindAPI:
		return "api_principal_roles", nil
	}
	return "", shared.Invalid("kind", "must be web or api")
}

func principalTable(kind shared.PrincipalKind) (string, error) {
	switch kind {
	case shared.KindWeb:
		return "web_principals", nil
	case shared.KindAPI:
		return "api_principals", nil
	}
	return "", shared.Invalid("kind", "must be web or api")
}

// AssignRole adds a role to the principal's existing roles.
func (r *PGRepository) AssignRole(ctx context.Context, ref shared.PrincipalRef, roleID int64) error {
	table, err := assignmentTable(ref.Kind)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO `+table+` (principal_id, role_id) VALUES ($1, $2)
		ON CONFLICT (principal_id, role_id) DO NOTHING`, ref.ID, roleID)
	return db.Translate(err, "principal")
}

// ReplaceRole removes every role of the principal and assigns roleID, atomically.
// The principal row is locked so concurrent replacements serialize.
func (r *PGRepository) ReplaceRole(ctx context.Context, ref shared.PrincipalRef, roleID int64) error {
	table, err := assignmentTable(ref.Kind)
	if err != nil {
		return err
	}
	owner, err := principalTable(ref.Kind)
	if err != nil {
		return err
	}
	return db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		var locked int64
		if err := tx.QueryRow(ctx, `SELECT id FROM `+owner+` WHERE id = $1 FOR UPDATE`, ref.ID).Scan(&locked); err != nil {
			return db.Translate(err, "principal")
		}
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE principal_id = $1`, ref.ID); err != nil {
			return db.Translate(err, "role assignment")
		}
		if _, err := tx.Exec(ctx, `INSERT INTO `+table+` (principal_id, role_id) VALUES ($1, $2)`, ref.ID, roleID); err != nil {
			return db.Translate(err, "role")
		}
		return nil
	})
}

// RolesOf returns every role assigned to the principal, active or not.
func (r *PGRepository) RolesOf(ctx context.Context, ref shared.PrincipalRef) ([]Role, error) {
	table, err := assignmentTable(ref.Kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `SELECT r.id, r.name, r.description, r.is_active, r.created_at, r.updated_at
		FROM `+table+` pr
		JOIN roles r ON r.id = pr.role_id
		WHERE pr.principal_id = $1
		ORDER BY r.id`, ref.ID)
	if err != nil {
		return nil, db.Translate(err, "roles")
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, db.Translate(err, "roles")
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Translate(err, "roles")
	}
	return roles, nil
}

// ActiveGrants returns the principal's active roles with their permissions.
// An unknown principal yields no grants.
func (r *PGRepository) ActiveGrants(ctx context.Context, ref shared.PrincipalRef) ([]RoleGrant, error) {
	table, err := assignmentTable(ref.Kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `SELECT r.id, r.name, r.description, r.is_active, r.created_at, r.updated_at,
			p.id, p.module_name, p.action, p.description
		FROM `+table+` pr
		JOIN roles r ON r.id = pr.role_id AND r.is_active
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id
		WHERE pr.principal_id = $1
		ORDER BY r.id, p.module_name, p.action`, ref.ID)
	if err != nil {
		return nil, db.Translate(err, "role grants")
	}
	defer rows.Close()

	var grants []RoleGrant
	for rows.Next() {
		var (
			role     Role
			permID   *int64
			module   *string
			action   *string
			permDesc *string
		)
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt,
			&permID, &module, &action, &permDesc); err != nil {
			return nil, db.Translate(err, "role grants")
		}
		if len(grants) == 0 || grants[len(grants)-1].Role.ID != role.ID {
			grants = append(grants, RoleGrant{Role: role})
		}
		if permID == nil {
			continue
		}
		last := &grants[len(grants)-1]
		last.Permissions = append(last.Permissions, Permission{
			ID:          *permID,
			Module:      deref(module),
			Action:      deref(action),
			Description: deref(permDesc),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, db.Translate(err, "role grants")
	}
	return grants, nil
}

const roleColumns = `id, name, description, is_active, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.IsActive, &role.CreatedAt, &role.UpdatedAt)
	return role, err
}

// ListRoles returns all roles ordered by id.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.db.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY id`)
	if err != nil {
		return nil, db.Translate(err, "roles")
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, db.Translate(err, "roles")
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Translate(err, "roles")
	}
	return roles, nil
}

// GetRole fetches a role by id.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(r.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
	if err != nil {
		return Role{}, db.Translate(err, "role")
	}
	return role, nil
}

// CreateRole inserts a role. Roles are active unless in.IsActive says otherwise.
func (r *PGRepository) CreateRole(ctx context.Context, in RoleInput) (Role, error) {
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	role, err := scanRole(r.db.QueryRow(ctx, `INSERT INTO roles (name, description, is_active)
		VALUES ($1, $2, $3) RETURNING `+roleColumns, in.Name, in.Description, active))
	if err != nil {
		return Role{}, db.Translate(err, "role")
	}
	return role, nil
}

// UpdateRole updates name, description and optionally the active flag.
func (r *PGRepository) UpdateRole(ctx context.Context, id int64, in RoleInput) (Role, error) {
	role, err := scanRole(r.db.QueryRow(ctx, `UPDATE roles
		SET name = $2, description = $3, is_active = COALESCE($4, is_active), updated_at = NOW()
		WHERE id = $1 RETURNING `+roleColumns, id, in.Name, in.Description, in.IsActive))
	if err != nil {
		return Role{}, db.Translate(err, "role")
	}
	return role, nil
}

// DeleteRole removes a role. Assignments and grants cascade.
func (r *PGRepository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return db.Translate(err, "role")
	}
	if tag.RowsAffected() == 0 {
		return shared.Missing("role")
	}
	return nil
}

func (r *PGRepository) queryPermissions(ctx context.Context, sql string, args ...any) ([]Permission, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, db.Translate(err, "permissions")
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Module, &p.Action, &p.Description); err != nil {
			return nil, db.Translate(err, "permissions")
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Translate(err, "permissions")
	}
	return perms, nil
}

// ListPermissions returns the permission catalogue ordered by key.
func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	return r.queryPermissions(ctx, `SELECT id, module_name, action, description
		FROM permissions ORDER BY module_name, action`)
}

// EnsurePermission upserts a permission, refreshing its description.
func (r *PGRepository) EnsurePermission(ctx context.Context, perm Permission) (Permission, error) {
	var out Permission
	err := r.db.QueryRow(ctx, `INSERT INTO permissions (module_name, action, description)
		VALUES ($1, $2, $3)
		ON CONFLICT ON CONSTRAINT uq_permissions__permission DO UPDATE SET description = EXCLUDED.description
		RETURNING id, module_name, action, description`, perm.Module, perm.Action, perm.Description).
		Scan(&out.ID, &out.Module, &out.Action, &out.Description)
	if err != nil {
		return Permission{}, db.Translate(err, "permission")
	}
	return out, nil
}

// RolePermissions lists the permissions granted to a role.
func (r *PGRepository) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	return r.queryPermissions(ctx, `SELECT p.id, p.module_name, p.action, p.description
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.module_name, p.action`, roleID)
}

// SetRolePermissions replaces the permission grants of a role in one transaction.
func (r *PGRepository) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.InTx(ctx, r.db, func(tx pgx.Tx) error {
		var locked int64
		if err := tx.QueryRow(ctx, `SELECT id FROM roles WHERE id = $1 FOR UPDATE`, roleID).Scan(&locked); err != nil {
			return db.Translate(err, "role")
		}
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return db.Translate(err, "role permissions")
		}
		if len(permissionIDs) == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id)
			SELECT $1, unnest($2::bigint[])
			ON CONFLICT DO NOTHING`, roleID, permissionIDs); err != nil {
			return db.Translate(err, "permission")
		}
		return nil
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
