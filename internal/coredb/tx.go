// SPDX-License-Identifier: AGPL-3.0-or-later

package coredb

import (
	"context"
	"database/sql"
	"fmt"
)

// WithTx runs fn inside a single transaction. Every mutating tracker
// operation and its audit append share one call, so either both commit or
// neither does. Rollback errors are ignored in favour of the original error.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if db == nil || db.sql == nil {
		return fmt.Errorf("coredb: database not initialised")
	}
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
