package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WithTx runs fn in a top-level transaction with the given options. The transaction is
// committed when fn returns nil and rolled back otherwise.
func WithTx(ctx context.Context, pool *pgxpool.Pool, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	if err := pgx.BeginTxFunc(ctx, pool, opts, fn); err != nil {
		return fmt.Errorf("platform/db: tx: %w", err)
	}
	return nil
}

// InTx runs fn inside a transaction opened on q. When q is already a pgx.Tx this is a savepoint.
func InTx(ctx context.Context, q DBTX, fn func(pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, q, fn)
}
