package store

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// RunMigrations applies every pending numbered migration transactionally,
// recording the new schema version immediately after each step so a crash
// mid-migration resumes where it left off. SQLite's own file lock
// serializes concurrent migration attempts, so no advisory lock is
// required here.
func RunMigrations(ctx context.Context, db *sqlx.DB, logger *zap.Logger) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`); err != nil {
		return fmt.Errorf("store: creating schema_migrations table: %w", err)
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("store: reading embedded migrations: %w", err)
	}

	type migration struct {
		version  int
		filename string
	}
	var migrations []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		parts := strings.SplitN(e.Name(), "_", 2)
		if len(parts) < 2 {
			continue
		}
		ver, err := strconv.Atoi(parts[0])
		if err != nil {
			logger.Warn("skipping non-numeric migration file", zap.String("file", e.Name()))
			continue
		}
		migrations = append(migrations, migration{version: ver, filename: e.Name()})
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].version < migrations[j].version })

	applied := make(map[int]bool)
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("store: querying applied migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("store: scanning migration version: %w", err)
		}
		applied[v] = true
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		sqlBytes, err := migrationFS.ReadFile("migrations/" + m.filename)
		if err != nil {
			return fmt.Errorf("store: reading migration %s: %w", m.filename, err)
		}

		logger.Info("applying migration", zap.Int("version", m.version), zap.String("file", m.filename))

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("store: beginning transaction for migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: executing migration %d (%s): %w", m.version, m.filename, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: recording migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("store: committing migration %d: %w", m.version, err)
		}
	}
	return nil
}
