package shared

import (
	"strconv"
	"strings"
	"time"
)

// PrincipalKind discriminates the two principal populations.
type PrincipalKind string

const (
	// KindWeb is an interactive user.
	KindWeb PrincipalKind = "web"
	// KindAPI is a machine user.
	KindAPI PrincipalKind = "api"
)

// Valid reports whether k is a known kind.
func (k PrincipalKind) Valid() bool {
	return k == KindWeb || k == KindAPI
}

func (k PrincipalKind) String() string {
	return string(k)
}

// ParseKind accepts "web"/"api" in any case.
func ParseKind(raw string) (PrincipalKind, error) {
	kind := PrincipalKind(strings.ToLower(strings.TrimSpace(raw)))
	if !kind.Valid() {
		return "", Invalid("kind", "must be web or api")
	}
	return kind, nil
}

// PrincipalRef identifies a principal across both namespaces.
type PrincipalRef struct {
	Kind PrincipalKind `json:"kind"`
	ID   int64         `json:"id"`
}

func (r PrincipalRef) String() string {
	return string(r.Kind) + ":" + strconv.FormatInt(r.ID, 10)
}

// RoleRef is the role snapshot embedded in tokens.
type RoleRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// PrincipalContext is bound to the request by the authentication gate.
type PrincipalContext struct {
	Ref       PrincipalRef
	Username  string
	Email     string
	Roles     []RoleRef
	TokenID   string
	ExpiresAt time.Time
}
