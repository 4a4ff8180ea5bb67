// Package token issues and verifies signed bearer tokens.
package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rolegate/rolegate/internal/shared"
)

// Claims is the signed token payload.
type Claims struct {
	jwt.RegisteredClaims
	PrincipalID int64                `json:"principalId"`
	Username    string               `json:"username"`
	Email       string               `json:"email"`
	Kind        shared.PrincipalKind `json:"kind"`
	Roles       []shared.RoleRef     `json:"roles"`
}

// Identity is the principal data embedded in a token.
type Identity struct {
	Ref      shared.PrincipalRef
	Username string
	Email    string
}

// Issued is a freshly signed token.
type Issued struct {
	Token     string    `json:"token"`
	ID        string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Record is the latest token stored for an API principal.
type Record struct {
	PrincipalID int64
	Token       string
	TokenID     string
	ExpiresAt   time.Time
	UpdatedAt   time.Time
}

func (c Claims) principal() *shared.PrincipalContext {
	roles := make([]shared.RoleRef, len(c.Roles))
	copy(roles, c.Roles)
	var expires time.Time
	if c.ExpiresAt != nil {
		expires = c.ExpiresAt.Time
	}
	return &shared.PrincipalContext{
		Ref:       shared.PrincipalRef{Kind: c.Kind, ID: c.PrincipalID},
		Username:  c.Username,
		Email:     c.Email,
		Roles:     roles,
		TokenID:   c.ID,
		ExpiresAt: expires,
	}
}
