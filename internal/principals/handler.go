package principals

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rolegate/rolegate/internal/platform/httpx"
	"github.com/rolegate/rolegate/internal/rbac"
	"github.com/rolegate/rolegate/internal/shared"
)

// Handler exposes the administrative principal directory. It mounts under a
// router carrying a {kind} URL parameter.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers admin routes on an authenticated router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/principals", func(r chi.Router) {
		r.With(h.rbac.RequirePermission(shared.PermUsersRead)).Get("/", h.list)
		r.With(h.rbac.RequirePermission(shared.PermUsersRead)).Get("/{id}", h.get)
		r.With(h.rbac.RequirePermission(shared.PermUsersUpdate)).Put("/{id}", h.update)
		r.With(h.rbac.RequirePermission(shared.PermUsersDelete)).Delete("/{id}", h.delete)
		r.With(h.rbac.RequirePermission(shared.PermRolesRead)).Get("/{id}/roles", h.roles)
		r.With(h.rbac.RequirePermission(shared.PermRolesAssign)).Post("/{id}/roles", h.assignRole)
		r.With(h.rbac.RequirePermission(shared.PermRolesAssign)).Put("/{id}/roles", h.replaceRole)
	})
}

type updateRequest struct {
	Username    *string        `json:"username" validate:"omitempty,min=3,max=100"`
	Email       *string        `json:"email" validate:"omitempty,email"`
	Password    *string        `json:"password"`
	Description *string        `json:"description" validate:"omitempty,max=500"`
	StatusID    *int64         `json:"statusId" validate:"omitempty,oneof=1 2 3"`
	RoleID      *int64         `json:"roleId" validate:"omitempty,gt=0"`
	Profile     *ProfileFields `json:"profile"`
}

type roleRequest struct {
	RoleID int64 `json:"roleId" validate:"required,gt=0"`
}

func (h *Handler) target(r *http.Request) (shared.PrincipalKind, int64, error) {
	kind, err := shared.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		return "", 0, err
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return "", 0, shared.Invalid("id", "must be a positive integer")
	}
	return kind, id, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if h.logger != nil && !httpx.IsClientError(err) {
		h.logger.Error("principal request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	kind, err := shared.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("perPage"))
	items, pg, err := h.service.ListPage(r.Context(), kind, page, perPage)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"principals": items, "pagination": pg})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	kind, id, err := h.target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.service.Get(r.Context(), kind, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	roles, err := h.service.Roles(r.Context(), kind, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if roles == nil {
		roles = []rbac.Role{}
	}
	httpx.JSON(w, http.StatusOK, WithRoles{Principal: p, Roles: roles})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	kind, id, err := h.target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req updateRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	in := AdminUpdate{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		Description: req.Description,
		RoleID:      req.RoleID,
		Profile:     req.Profile,
	}
	if req.StatusID != nil {
		st := Status(*req.StatusID)
		in.Status = &st
	}
	p, err := h.service.Update(r.Context(), kind, id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	kind, id, err := h.target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.Delete(r.Context(), kind, id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) roles(w http.ResponseWriter, r *http.Request) {
	kind, id, err := h.target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	roles, err := h.service.Roles(r.Context(), kind, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if roles == nil {
		roles = []rbac.Role{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, h.service.AssignRole)
}

func (h *Handler) replaceRole(w http.ResponseWriter, r *http.Request) {
	h.changeRole(w, r, h.service.ReplaceRole)
}

func (h *Handler) changeRole(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, kind shared.PrincipalKind, id, roleID int64) error) {
	kind, id, err := h.target(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req roleRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := apply(r.Context(), kind, id, req.RoleID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.roles(w, r)
}
