package rbac

import (
	"sort"
	"strings"
	"time"

	"github.com/rolegate/rolegate/internal/shared"
)

// Role represents a high-level permission grouping.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Ref returns the token snapshot form of the role.
func (r Role) Ref() shared.RoleRef {
	return shared.RoleRef{ID: r.ID, Name: r.Name}
}

// Permission represents an atomic capability on a module.
type Permission struct {
	ID          int64  `json:"id"`
	Module      string `json:"module"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// Key returns the "module.action" permission string.
func (p Permission) Key() string {
	return p.Module + "." + p.Action
}

// RoleGrant is a role together with the permissions attached to it.
type RoleGrant struct {
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
}

// RoleInput carries role create/update fields.
type RoleInput struct {
	Name        string
	Description string
	IsActive    *bool
}

// PermissionSet is a deduplicated set of permission keys.
type PermissionSet map[string]struct{}

// NewPermissionSet builds the union of the permissions granted by every grant.
func NewPermissionSet(grants []RoleGrant) PermissionSet {
	set := make(PermissionSet)
	for _, g := range grants {
		for _, p := range g.Permissions {
			set[p.Key()] = struct{}{}
		}
	}
	return set
}

// Has reports whether perm is in the set. Lookup is case-insensitive.
func (s PermissionSet) Has(perm string) bool {
	_, ok := s[NormalizePermission(perm)]
	return ok
}

// Sorted returns the keys in lexical order.
func (s PermissionSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NormalizePermission lowercases and trims a permission key.
func NormalizePermission(perm string) string {
	return strings.ToLower(strings.TrimSpace(perm))
}

// ParsePermission splits "module.action" into its parts.
func ParsePermission(key string) (Permission, error) {
	key = NormalizePermission(key)
	module, action, ok := strings.Cut(key, ".")
	if !ok || module == "" || action == "" || strings.Contains(action, ".") {
		return Permission{}, shared.Invalid("permission", "must be formatted module.action")
	}
	return Permission{Module: module, Action: action}, nil
}

// RoleRefs converts grants into token role snapshots.
func RoleRefs(grants []RoleGrant) []shared.RoleRef {
	refs := make([]shared.RoleRef, 0, len(grants))
	for _, g := range grants {
		refs = append(refs, g.Role.Ref())
	}
	return refs
}
