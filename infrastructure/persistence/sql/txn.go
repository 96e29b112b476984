// Package sql is the Storage Layer (spec §4.6): per-table SQL relations for
// items, GSI mirrors, and streams, plus the shared metadata relation. Every
// data-plane mutation runs inside one transaction spanning all three, via
// WithTx. Queries are written with '?' placeholders and rebound for the
// handle's driver by rebindCtx so the same DAOs work against any database/sql driver the
// deployment plugs in behind *sqlx.DB (spec's "HSQLDB, PostgreSQL, or
// similar").
package sql

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	pretendererrors "github.com/pretender-db/pretender/pkg/errors"
)

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic. The core refuses backends that cannot provide
// atomic multi-statement transactions (spec §9); *sqlx.DB already requires
// database/sql driver support for this.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (err error) {
	tx, beginErr := db.BeginTxx(ctx, nil)
	if beginErr != nil {
		return pretendererrors.NewInternalError("beginning transaction: %v", beginErr)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if fnErr := fn(tx); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return pretendererrors.Wrap(fnErr, fmt.Sprintf("rollback also failed: %v", rbErr))
		}
		return fnErr
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return pretendererrors.NewInternalError("committing transaction: %v", commitErr)
	}
	return nil
}
