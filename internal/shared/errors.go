package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates missing or malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicate indicates a username/email collision within a principal kind.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated indicates a missing, malformed or expired bearer token.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden indicates an authenticated principal lacking a role or permission.
	ErrForbidden = errors.New("forbidden")
	// ErrInfrastructure indicates a store, timeout or library failure.
	ErrInfrastructure = errors.New("service unavailable")
	// ErrCredential indicates the password hashing library failed.
	ErrCredential = errors.New("credential hashing failed")
)

// FieldError attaches a field name to one of the sentinel classes above.
type FieldError struct {
	Class   error
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Class, e.Message)
	}
	return fmt.Sprintf("%s: %s %s", e.Class, e.Field, e.Message)
}

// Unwrap exposes the error class for errors.Is.
func (e *FieldError) Unwrap() error {
	return e.Class
}

// Invalid builds a validation error for field.
func Invalid(field, message string) error {
	return &FieldError{Class: ErrValidation, Field: field, Message: message}
}

// Duplicate builds a conflict error for field.
func Duplicate(field string) error {
	return &FieldError{Class: ErrDuplicate, Field: field, Message: "already exists"}
}

// Missing builds a not-found error for the named entity.
func Missing(entity string) error {
	return &FieldError{Class: ErrNotFound, Field: entity, Message: "not found"}
}

// Unavailable wraps err as an infrastructure fault, keeping the cause in the chain.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInfrastructure) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrInfrastructure, err)
}

// UserSafeMessage returns a message suitable for API responses.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe.Error()
	}
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrDuplicate),
		errors.Is(err, ErrNotFound):
		return err.Error()
	case errors.Is(err, ErrInvalidCredentials):
		return ErrInvalidCredentials.Error()
	case errors.Is(err, ErrUnauthenticated):
		return ErrUnauthenticated.Error()
	case errors.Is(err, ErrForbidden):
		return ErrForbidden.Error()
	}
	return ""
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidCredentials reports whether err is a login failure.
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}
