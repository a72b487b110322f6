package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// CheckHealth returns diagnostic information about the task database.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if s.path == "" {
		return health, errors.New("task database path is unknown")
	}
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat task database: %w", err)
	}
	if !info.Mode().IsRegular() {
		return health, fmt.Errorf("task database path %q is not a regular file", s.path)
	}
	health.DatabaseExists = true

	if s.db == nil {
		return health, errors.New("task database connection unavailable")
	}

	connCtx, cancel := context.WithTimeout(ensureContext(ctx), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("ping task database: %w", err)
	}
	health.DatabaseReadable = true

	if err := s.db.QueryRowContext(connCtx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("read schema version: %w", err)
	}

	rows, err := s.db.QueryContext(connCtx, "SELECT name FROM sqlite_master WHERE type = 'table'")
	if err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("list tables: %w", err)
	}
	present := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			health.Error = err.Error()
			return health, fmt.Errorf("scan table name: %w", err)
		}
		present[name] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("iterate tables: %w", err)
	}
	for _, table := range recordTables {
		if _, ok := present[table]; ok {
			health.TablesPresent = append(health.TablesPresent, table)
		} else {
			health.MissingTables = append(health.MissingTables, table)
		}
	}

	if len(health.MissingTables) == 0 {
		if err := s.db.QueryRowContext(connCtx, "SELECT COUNT(*) FROM task_status").Scan(&health.TotalTasks); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count tasks: %w", err)
		}
		parts := make([]string, len(recordTables))
		for i, table := range recordTables {
			parts[i] = "SELECT tid FROM " + table
		}
		orphanQuery := fmt.Sprintf(
			"SELECT COUNT(*) FROM (SELECT tid FROM (%s) GROUP BY tid HAVING COUNT(*) < %d)",
			strings.Join(parts, " UNION ALL "), len(recordTables),
		)
		if err := s.db.QueryRowContext(connCtx, orphanQuery).Scan(&health.OrphanRecords); err != nil {
			health.Error = err.Error()
			return health, fmt.Errorf("count orphan records: %w", err)
		}
	}

	var integrityResult string
	if err := s.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrityResult); err != nil {
		health.Error = err.Error()
		return health, fmt.Errorf("integrity check: %w", err)
	}
	health.IntegrityCheck = strings.EqualFold(integrityResult, "ok")

	return health, nil
}

// Healthy reports whether the database is present, readable and consistent.
func (h DatabaseHealth) Healthy() bool {
	return h.DatabaseExists && h.DatabaseReadable && h.IntegrityCheck &&
		len(h.MissingTables) == 0 && h.OrphanRecords == 0 && h.Error == ""
}
