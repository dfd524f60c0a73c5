package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped on any schema change. The journal holds no
// authoritative state, so an outdated file is deleted rather than migrated.
const schemaVersion = 1

// ErrSchemaMismatch reports a journal written by a different schema version.
var ErrSchemaMismatch = errors.New("journal schema version mismatch")

// initSchema applies the idempotent DDL and stamps a fresh database with the
// current version in a single transaction.
func (s *Store) initSchema(ctx context.Context) error {
	var found int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		err := tx.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&found)
		if errors.Is(err, sql.ErrNoRows) {
			found = schemaVersion
			_, err = tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion)
		}
		if err != nil {
			return fmt.Errorf("schema version: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if found != schemaVersion {
		return fmt.Errorf("%w: %s has version %d, want %d (delete it to start a fresh journal)",
			ErrSchemaMismatch, s.path, found, schemaVersion)
	}
	return nil
}
