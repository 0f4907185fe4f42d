package store

import (
	"context"
	"embed"
	"sort"
	"strings"

	"loom/internal/services"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type migration struct {
	version string
	sql     string
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "store", "migrate", "read migrations dir", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	migrations := make([]migration, 0, len(names))
	for _, name := range names {
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, services.Wrap(services.ErrStorage, "store", "migrate", "read migration "+name, err)
		}
		migrations = append(migrations, migration{
			version: strings.TrimSuffix(name, ".sql"),
			sql:     string(data),
		})
	}
	return migrations, nil
}

// applyMigrations runs every pending migration, each at most once, recording
// applied versions in the schema_migrations ledger. The whole pass happens in
// one transaction so a failed migration leaves no partial schema behind.
func (s *Store) applyMigrations(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return services.Wrap(services.ErrStorage, "store", "migrate", "begin tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		"CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TEXT NOT NULL)",
	); err != nil {
		return services.Wrap(services.ErrStorage, "store", "migrate", "ensure ledger", err)
	}

	for _, m := range migrations {
		var count int
		row := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", m.version)
		if err := row.Scan(&count); err != nil {
			return services.Wrap(services.ErrStorage, "store", "migrate", "scan ledger", err)
		}
		if count > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			return services.Wrap(services.ErrStorage, "store", "migrate", "apply "+m.version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)", m.version, nowUTC(),
		); err != nil {
			return services.Wrap(services.ErrStorage, "store", "migrate", "record "+m.version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return services.Wrap(services.ErrStorage, "store", "migrate", "commit", err)
	}
	return nil
}

// AppliedMigrations lists the versions recorded in the ledger, sorted.
func (s *Store) AppliedMigrations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "store", "migrate", "list ledger", err)
	}
	defer rows.Close()

	var versions []string
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, services.Wrap(services.ErrStorage, "store", "migrate", "scan version", err)
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}
