package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rolegate/rolegate/internal/shared"
)

// Postgres SQLSTATE codes translated into domain errors.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Translate maps store errors onto the shared taxonomy. entity names the record for
// not-found errors. Unique violations are the only source of shared.ErrDuplicate.
func Translate(err error, entity string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.Missing(entity)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return shared.Duplicate(constraintSubject(pgErr.ConstraintName, "record"))
		case codeForeignKeyViolation:
			return shared.Missing(constraintSubject(pgErr.ConstraintName, entity))
		}
	}
	return shared.Unavailable("platform/db: "+entity, err)
}

// constraintSubject extracts the field after "__" in constraint names such as
// uq_web_principals__email or fk_api_principal_roles__role.
func constraintSubject(constraint, fallback string) string {
	if idx := strings.LastIndex(constraint, "__"); idx >= 0 && idx+2 < len(constraint) {
		return constraint[idx+2:]
	}
	return fallback
}
