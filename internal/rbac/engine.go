package rbac

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/rolegate/rolegate/internal/shared"
)

// Decision outcomes reported to the DecisionRecorder.
const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"
)

// DefaultCheckTimeout bounds a single authorization lookup when none is configured.
const DefaultCheckTimeout = 2 * time.Second

// Resolver loads a principal's active roles and their permissions.
type Resolver interface {
	RolesWithPermissions(ctx context.Context, ref shared.PrincipalRef) ([]RoleGrant, error)
}

// DecisionRecorder observes authorization outcomes.
type DecisionRecorder interface {
	RecordAuthzDecision(requirement, outcome string)
}

// Requirement is what a route demands of the caller. Exactly one field is normally set;
// when several are set all of them must hold.
type Requirement struct {
	Role  string
	AllOf []string
	AnyOf []string
}

// RoleRequirement requires membership in the named active role. A blank name yields an
// empty Requirement, which never passes.
func RoleRequirement(name string) Requirement {
	return Requirement{Role: strings.TrimSpace(name)}
}

// PermissionRequirement requires one permission.
func PermissionRequirement(perm string) Requirement {
	return Requirement{AllOf: []string{perm}}
}

// Empty reports whether r demands nothing. Empty requirements are denied.
func (r Requirement) Empty() bool {
	return r.Role == "" && len(r.AllOf) == 0 && len(r.AnyOf) == 0
}

func (r Requirement) String() string {
	var parts []string
	if r.Role != "" {
		parts = append(parts, "role:"+r.Role)
	}
	if len(r.AllOf) > 0 {
		parts = append(parts, "all:"+strings.Join(r.AllOf, ","))
	}
	if len(r.AnyOf) > 0 {
		parts = append(parts, "any:"+strings.Join(r.AnyOf, ","))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ";")
}

// Engine answers authorization questions against the live role graph.
// Every check reloads grants; nothing is cached between requests.
type Engine struct {
	resolver Resolver
	timeout  time.Duration
	logger   *slog.Logger
	recorder DecisionRecorder
}

// NewEngine constructs an Engine. recorder may be nil.
func NewEngine(resolver Resolver, timeout time.Duration, logger *slog.Logger, recorder DecisionRecorder) *Engine {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{resolver: resolver, timeout: timeout, logger: logger, recorder: recorder}
}

// RequireRole succeeds when the principal holds the named active role.
func (e *Engine) RequireRole(ctx context.Context, ref shared.PrincipalRef, roleName string) error {
	return e.authorize(ctx, ref, RoleRequirement(roleName))
}

// RequirePermission succeeds when one of the principal's active roles grants perm.
func (e *Engine) RequirePermission(ctx context.Context, ref shared.PrincipalRef, perm string) error {
	return e.authorize(ctx, ref, PermissionRequirement(perm))
}

// Authorize returns nil when allowed, shared.ErrUnauthenticated without a principal,
// shared.ErrForbidden when denied and shared.ErrInfrastructure when the decision could
// not be made. Any failure denies.
func (e *Engine) Authorize(ctx context.Context, principal *shared.PrincipalContext, req Requirement) error {
	if principal == nil {
		return shared.ErrUnauthenticated
	}
	return e.authorize(ctx, principal.Ref, req)
}

func (e *Engine) authorize(ctx context.Context, ref shared.PrincipalRef, req Requirement) error {
	label := req.String()

	checkCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	grants, err := e.resolver.RolesWithPermissions(checkCtx, ref)
	if err == nil {
		err = checkCtx.Err()
	}
	if err != nil {
		if errors.Is(err, shared.ErrValidation) {
			e.record(label, OutcomeDenied)
			return shared.ErrForbidden
		}
		e.record(label, OutcomeError)
		e.logger.Error("authorization check failed",
			slog.String("principal", ref.String()),
			slog.String("requirement", label),
			slog.Any("error", err))
		return shared.Unavailable("rbac: authorize", err)
	}

	if !satisfies(grants, req) {
		e.record(label, OutcomeDenied)
		e.logger.Debug("authorization denied", slog.String("principal", ref.String()), slog.String("requirement", label))
		return shared.ErrForbidden
	}
	e.record(label, OutcomeAllowed)
	return nil
}

func (e *Engine) record(requirement, outcome string) {
	if e.recorder != nil {
		e.recorder.RecordAuthzDecision(requirement, outcome)
	}
}

// satisfies evaluates req against active grants. No grants and an empty requirement
// never satisfy anything.
func satisfies(grants []RoleGrant, req Requirement) bool {
	if len(grants) == 0 || req.Empty() {
		return false
	}
	if req.Role != "" && !hasRole(grants, req.Role) {
		return false
	}
	perms := NewPermissionSet(grants)
	for _, p := range req.AllOf {
		if !perms.Has(p) {
			return false
		}
	}
	if len(req.AnyOf) > 0 {
		found := false
		for _, p := range req.AnyOf {
			if perms.Has(p) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func hasRole(grants []RoleGrant, name string) bool {
	for _, g := range grants {
		if g.Role.IsActive && g.Role.Name == name {
			return true
		}
	}
	return false
}
