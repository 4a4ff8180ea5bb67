package token

import (
	"context"
	"time"

	"github.com/rolegate/rolegate/internal/platform/db"
)

// Repository stores the latest token per API principal.
type Repository interface {
	Upsert(ctx context.Context, rec Record) error
	Latest(ctx context.Context, principalID int64) (Record, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db db.DBTX
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(q db.DBTX) *PGRepository {
	return &PGRepository{db: q}
}

// Upsert creates or replaces the principal's token row.
func (r *PGRepository) Upsert(ctx context.Context, rec Record) error {
	_, err := r.db.Exec(ctx, `INSERT INTO api_tokens (api_principal_id, token, token_id, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (api_principal_id) DO UPDATE
		SET token = EXCLUDED.token, token_id = EXCLUDED.token_id, expires_at = EXCLUDED.expires_at, updated_at = NOW()`,
		rec.PrincipalID, rec.Token, rec.TokenID, rec.ExpiresAt.UTC())
	return db.Translate(err, "principal")
}

// Latest fetches the token row of a principal.
func (r *PGRepository) Latest(ctx context.Context, principalID int64) (Record, error) {
	var rec Record
	err := r.db.QueryRow(ctx, `SELECT api_principal_id, token, token_id, expires_at, updated_at
		FROM api_tokens WHERE api_principal_id = $1`, principalID).
		Scan(&rec.PrincipalID, &rec.Token, &rec.TokenID, &rec.ExpiresAt, &rec.UpdatedAt)
	if err != nil {
		return Record{}, db.Translate(err, "token")
	}
	return rec, nil
}

// DeleteExpired removes rows whose expiry is at or before the cutoff.
func (r *PGRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM api_tokens WHERE expires_at <= $1`, before.UTC())
	if err != nil {
		return 0, db.Translate(err, "tokens")
	}
	return tag.RowsAffected(), nil
}
