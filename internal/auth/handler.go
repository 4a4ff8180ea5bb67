package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rolegate/rolegate/internal/platform/httpx"
	"github.com/rolegate/rolegate/internal/principals"
	"github.com/rolegate/rolegate/internal/rbac"
	"github.com/rolegate/rolegate/internal/shared"
)

// Handler wires HTTP endpoints for account lifecycle and login.
// It mounts under a router carrying a {kind} URL parameter.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	authn      Middleware
	rbac       rbac.Middleware
	loginLimit func(http.Handler) http.Handler
}

// NewHandler constructs a Handler. loginLimit throttles login attempts and may be nil.
func NewHandler(logger *slog.Logger, service *Service, authn Middleware, rbac rbac.Middleware, loginLimit func(http.Handler) http.Handler) *Handler {
	if loginLimit == nil {
		loginLimit = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{logger: logger, service: service, authn: authn, rbac: rbac, loginLimit: loginLimit}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.register)
	r.With(h.loginLimit).Post("/login", h.login)

	r.Group(func(r chi.Router) {
		r.Use(h.authn.Authenticate, h.authn.RequireKind)
		r.Get("/me", h.me)
		r.Put("/me", h.updateMe)
		r.Delete("/me", h.deleteMe)
		r.Put("/me/password", h.changePassword)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authn.Authenticate, h.rbac.RequirePermission(shared.PermUsersCreate))
		r.Post("/admin/create", h.adminCreate)
	})
}

type registerRequest struct {
	Username       string     `json:"username" validate:"required,min=3,max=100"`
	Email          string     `json:"email" validate:"required,email"`
	Password       string     `json:"password" validate:"required"`
	Description    string     `json:"description" validate:"max=500"`
	FirstName      string     `json:"firstName" validate:"max=100"`
	LastName       string     `json:"lastName" validate:"max=100"`
	Address        string     `json:"address" validate:"max=255"`
	Phone          string     `json:"phone" validate:"max=50"`
	DocumentTypeID *int64     `json:"documentTypeId" validate:"omitempty,gt=0"`
	DocumentNumber string     `json:"documentNumber" validate:"max=50"`
	PhotoURL       string     `json:"photoUrl" validate:"max=500"`
	BirthDate      *time.Time `json:"birthDate"`
}

func (req registerRequest) input(kind shared.PrincipalKind) principals.CreateInput {
	in := principals.CreateInput{
		Kind:     kind,
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}
	if kind == shared.KindAPI {
		in.Description = req.Description
		return in
	}
	in.Profile = &principals.Profile{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Address:        req.Address,
		Phone:          req.Phone,
		DocumentTypeID: req.DocumentTypeID,
		DocumentNumber: req.DocumentNumber,
		PhotoURL:       req.PhotoURL,
		BirthDate:      req.BirthDate,
	}
	return in
}

type adminCreateRequest struct {
	registerRequest
	StatusID int64 `json:"statusId" validate:"omitempty,oneof=1 2 3"`
	RoleID   int64 `json:"roleId" validate:"omitempty,gt=0"`
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password" validate:"required"`
}

type updateMeRequest struct {
	Username    *string                   `json:"username" validate:"omitempty,min=3,max=100"`
	Email       *string                   `json:"email" validate:"omitempty,email"`
	Description *string                   `json:"description" validate:"omitempty,max=500"`
	Profile     *principals.ProfileFields `json:"profile"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

type confirmRequest struct {
	Password string `json:"password" validate:"required"`
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if h.logger != nil && !httpx.IsClientError(err) {
		h.logger.Error("auth request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	kind, err := shared.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req registerRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.service.Register(r.Context(), req.input(kind))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) adminCreate(w http.ResponseWriter, r *http.Request) {
	kind, err := shared.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req adminCreateRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	in := req.input(kind)
	in.Status = principals.Status(req.StatusID)
	in.RoleID = req.RoleID
	p, err := h.service.AdminCreate(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	kind, err := shared.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req loginRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	login := req.Username
	if login == "" && kind == shared.KindAPI {
		login = req.Email
	}
	if login == "" {
		h.fail(w, r, shared.Invalid("username", "is required"))
		return
	}
	sess, err := h.service.Login(r.Context(), kind, login, req.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sess)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.Me(r.Context(), shared.PrincipalFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	var req updateMeRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.service.UpdateMe(r.Context(), shared.PrincipalFromContext(r.Context()), principals.SelfUpdate{
		Username:    req.Username,
		Email:       req.Email,
		Description: req.Description,
		Profile:     req.Profile,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.ChangePassword(r.Context(), shared.PrincipalFromContext(r.Context()), req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteMe(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := httpx.DecodeValid(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.service.DeleteMe(r.Context(), shared.PrincipalFromContext(r.Context()), req.Password); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
