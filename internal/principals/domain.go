// Package principals manages the web and API principal directories.
package principals

import (
	"time"

	"github.com/rolegate/rolegate/internal/rbac"
	"github.com/rolegate/rolegate/internal/shared"
)

// Status is a principal lifecycle status. Only active principals may log in.
type Status int64

const (
	StatusActive    Status = 1
	StatusInactive  Status = 2
	StatusSuspended Status = 3
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive || s == StatusSuspended
}

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	case StatusSuspended:
		return "suspended"
	}
	return "unknown"
}

// Profile holds personal details of a web principal.
type Profile struct {
	FirstName      string     `json:"firstName"`
	LastName       string     `json:"lastName"`
	Address        string     `json:"address"`
	Phone          string     `json:"phone"`
	DocumentTypeID *int64     `json:"documentTypeId,omitempty"`
	DocumentNumber string     `json:"documentNumber"`
	PhotoURL       string     `json:"photoUrl"`
	BirthDate      *time.Time `json:"birthDate,omitempty"`
}

// Principal is an authenticatable identity of one kind.
type Principal struct {
	ID             int64                `json:"id"`
	Kind           shared.PrincipalKind `json:"kind"`
	Username       string               `json:"username"`
	Email          string               `json:"email"`
	CredentialHash string               `json:"-"`
	Status         Status               `json:"statusId"`
	Description    string               `json:"description,omitempty"`
	LastLoginAt    *time.Time           `json:"lastLoginAt,omitempty"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
	Profile        *Profile             `json:"profile,omitempty"`
}

// Ref returns the cross-kind identifier of p.
func (p Principal) Ref() shared.PrincipalRef {
	return shared.PrincipalRef{Kind: p.Kind, ID: p.ID}
}

// Active reports whether p may authenticate.
func (p Principal) Active() bool {
	return p.Status == StatusActive
}

// WithRoles pairs a principal with its assigned roles for admin listings.
type WithRoles struct {
	Principal
	Roles []rbac.Role `json:"roles"`
}

// NewPrincipal carries the fields of a principal to insert. RoleID, when positive,
// becomes the principal's only role within the same transaction.
type NewPrincipal struct {
	Kind           shared.PrincipalKind
	Username       string
	Email          string
	CredentialHash string
	Status         Status
	Description    string
	Profile        *Profile
	RoleID         int64
}

// UpdateFields is a partial principal update. Nil fields are left untouched.
type UpdateFields struct {
	Username       *string
	Email          *string
	CredentialHash *string
	Status         *Status
	Description    *string
}

// Empty reports whether no field is set.
func (u UpdateFields) Empty() bool {
	return u.Username == nil && u.Email == nil && u.CredentialHash == nil && u.Status == nil && u.Description == nil
}

// Change is one atomic administrative or self-service edit: the principal's own fields,
// its profile and, when RoleID is positive, the role that replaces all current ones.
type Change struct {
	Fields  UpdateFields
	Profile *ProfileFields
	RoleID  int64
}

// ProfileFields is a partial profile update.
type ProfileFields struct {
	FirstName      *string    `json:"firstName"`
	LastName       *string    `json:"lastName"`
	Address        *string    `json:"address"`
	Phone          *string    `json:"phone"`
	DocumentTypeID *int64     `json:"documentTypeId"`
	DocumentNumber *string    `json:"documentNumber"`
	PhotoURL       *string    `json:"photoUrl"`
	BirthDate      *time.Time `json:"birthDate"`
}

// Apply merges the set fields into p.
func (f ProfileFields) Apply(p Profile) Profile {
	if f.FirstName != nil {
		p.FirstName = *f.FirstName
	}
	if f.LastName != nil {
		p.LastName = *f.LastName
	}
	if f.Address != nil {
		p.Address = *f.Address
	}
	if f.Phone != nil {
		p.Phone = *f.Phone
	}
	if f.DocumentTypeID != nil {
		p.DocumentTypeID = f.DocumentTypeID
	}
	if f.DocumentNumber != nil {
		p.DocumentNumber = *f.DocumentNumber
	}
	if f.PhotoURL != nil {
		p.PhotoURL = *f.PhotoURL
	}
	if f.BirthDate != nil {
		p.BirthDate = f.BirthDate
	}
	return p
}
