package rbac

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rolegate/rolegate/internal/platform/httpx"
	"github.com/rolegate/rolegate/internal/shared"
)

// Handler exposes the role and permission catalogue over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      Middleware
	adminRole string
}

// NewHandler builds a Handler. Mutating routes require adminRole.
func NewHandler(logger *slog.Logger, service *Service, rbac Middleware, adminRole string) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, adminRole: adminRole}
}

// MountRoutes registers catalogue routes on an authenticated router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/roles", func(r chi.Router) {
		r.With(h.rbac.RequirePermission(shared.PermRolesRead)).Get("/", h.listRoles)
		r.With(h.rbac.RequirePermission(shared.PermRolesRead)).Get("/{id}", h.getRole)
		r.With(h.rbac.RequirePermission(shared.PermRolesRead)).Get("/{id}/permissions", h.rolePermissions)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireRole(h.adminRole))
			r.Post("/", h.createRole)
			r.With(h.rbac.RequirePermission(shared.PermRolesUpdate)).Put("/{id}", h.updateRole)
			r.Delete("/{id}", h.deleteRole)
			r.With(h.rbac.RequirePermission(shared.PermRolesUpdate)).Put("/{id}/permissions", h.setRolePermissions)
		})
	})
	r.Route("/permissions", func(r chi.Router) {
		r.With(h.rbac.RequirePermission(shared.PermPermissionsRead)).Get("/", h.listPermissions)
		r.With(h.rbac.RequireRole(h.adminRole)).Post("/", h.createPermission)
	})
}

type roleRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
	IsActive    *bool  `json:"isActive"`
}

type permissionRequest struct {
	Permission  string `json:"permission" validate:"required"`
	Description string `json:"description" validate:"max=500"`
}

type rolePermissionsRequest struct {
	PermissionIDs []int64 `json:"permissionIds"`
}

func roleID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Invalid("id", "must be a positive integer")
	}
	return id, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if h.logger != nil && !httpx.IsClientError(err) {
		h.logger.Error("rbac request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": nonNil(roles)})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := roleID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	role, err := h.service.CreateRole(r.Context(), RoleInput{Name: req.Name, Description: req.Description, IsActive: req.IsActive})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := roleID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req roleRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, RoleInput{Name: req.Name, Description: req.Description, IsActive: req.IsActive})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := roleID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) rolePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := roleID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.service.GetRole(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	perms, err := h.service.RolePermissions(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": nonNil(perms)})
}

func (h *Handler) setRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := roleID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req rolePermissionsRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.SetRolePermissions(r.Context(), id, req.PermissionIDs); err != nil {
		h.fail(w, r, err)
		return
	}
	perms, err := h.service.RolePermissions(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": nonNil(perms)})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": nonNil(perms)})
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req permissionRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	perm, err := h.service.EnsurePermission(r.Context(), req.Permission, req.Description)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, perm)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
