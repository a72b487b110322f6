package tasks

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"ydlwebui/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is written to schema_version when a database is created.
// There are no migrations: a database stamped with another version has to be
// removed and recreated.
const schemaVersion = 1

// ErrSchemaMismatch is returned by Open when the database was created by an
// incompatible build.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// recordTables are the four per-task record groups. task_status comes last
// so a delete drops it only once its siblings are gone.
var recordTables = []string{"task_param", "task_info", "task_opts", "task_status"}

// prepareSchema creates the tables on an empty database and otherwise checks
// the stamped version. Both happen in one transaction so concurrent openers
// of a fresh file cannot both try to create it.
func (s *Store) prepareSchema(ctx context.Context) error {
	created := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var found int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'`,
		).Scan(&found); err != nil {
			return fmt.Errorf("look up schema_version: %w", err)
		}

		if found > 0 {
			var stamped int
			if err := tx.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&stamped); err != nil {
				return fmt.Errorf("read schema version: %w", err)
			}
			if stamped != schemaVersion {
				return fmt.Errorf("%w: %s is at version %d, this build expects %d; remove the file to start over",
					ErrSchemaMismatch, s.path, stamped, schemaVersion)
			}
			return nil
		}

		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create tables: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("stamp schema version: %w", err)
		}
		created = true
		return nil
	})
	if err != nil {
		return err
	}
	if created {
		s.logger.Info("task database created",
			logging.String("path", s.path),
			logging.Int64("schema_version", schemaVersion),
		)
	}
	return nil
}
