package store

import (
	"context"
	"errors"
	"fmt"
)

// migrations are applied in order; a database at user_version N has run the
// first N entries. Append only.
var migrations = [][]string{
	{
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS history (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			result TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_history_created ON history(created_at);`,
	},
	{
		`ALTER TABLE history ADD COLUMN kind TEXT NOT NULL DEFAULT 'analyze';`,
	},
	{
		`CREATE TABLE IF NOT EXISTS response_cache (
			cache_key TEXT PRIMARY KEY,
			endpoint TEXT NOT NULL,
			value TEXT NOT NULL,
			stored_at INTEGER NOT NULL,
			ttl_ms INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_response_cache_expires ON response_cache(expires_at);`,
		`CREATE INDEX IF NOT EXISTS idx_response_cache_endpoint ON response_cache(endpoint);`,
	},
}

// LatestSchemaVersion is the user_version after a full Migrate.
var LatestSchemaVersion = len(migrations)

// Migrate brings the schema up to LatestSchemaVersion. Each step runs in its
// own transaction together with the version bump.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if current > len(migrations) {
		return fmt.Errorf("store schema v%d is newer than this binary (v%d)", current, len(migrations))
	}

	for version := current; version < len(migrations); version++ {
		if err := s.applyMigration(ctx, version+1, migrations[version]); err != nil {
			return err
		}
	}
	return nil
}

// SchemaVersion reports the applied migration count.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.DB.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) applyMigration(ctx context.Context, version int, statements []string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration v%d: %w", version, err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	for _, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration v%d failed: %w", version, err)
		}
	}
	// PRAGMA does not accept bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("record schema v%d: %w", version, err)
	}
	return tx.Commit()
}
