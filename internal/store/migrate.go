package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

type migrationFile struct {
	version string
	path    string
}

// migrationFiles lists files in dir ending in suffix, sorted by name.
func migrationFiles(dir, suffix string) ([]migrationFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	files := make([]migrationFile, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		files = append(files, migrationFile{
			version: strings.TrimSuffix(name, suffix) + ".up.sql",
			path:    filepath.Join(dir, name),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return files, nil
}

// ApplyMigrations runs every *.up.sql file not yet recorded in
// schema_migrations, each in its own transaction, and returns the versions
// it applied.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrationsDir string, logger zerolog.Logger) ([]string, error) {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}
	files, err := migrationFiles(migrationsDir, ".up.sql")
	if err != nil {
		return nil, err
	}

	applied := make([]string, 0)
	for _, file := range files {
		if migrated, err := isMigrated(ctx, db, file.version); err != nil {
			return applied, err
		} else if migrated {
			continue
		}
		err := runMigration(ctx, db, file, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES($1)`, file.version)
			return err
		})
		if err != nil {
			return applied, err
		}
		logger.Info().Str("version", file.version).Msg("migration applied")
		applied = append(applied, file.version)
	}
	return applied, nil
}

// RollbackMigrations runs the *.down.sql file of every recorded version in
// reverse order and forgets it.
func RollbackMigrations(ctx context.Context, db *sql.DB, migrationsDir string, logger zerolog.Logger) ([]string, error) {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return nil, err
	}
	files, err := migrationFiles(migrationsDir, ".down.sql")
	if err != nil {
		return nil, err
	}

	reverted := make([]string, 0)
	for i := len(files) - 1; i >= 0; i-- {
		file := files[i]
		if migrated, err := isMigrated(ctx, db, file.version); err != nil {
			return reverted, err
		} else if !migrated {
			continue
		}
		err := runMigration(ctx, db, file, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version=$1`, file.version)
			return err
		})
		if err != nil {
			return reverted, err
		}
		logger.Info().Str("version", file.version).Msg("migration reverted")
		reverted = append(reverted, file.version)
	}
	return reverted, nil
}

func runMigration(ctx context.Context, db *sql.DB, file migrationFile, record func(tx *sql.Tx) error) error {
	contents, err := os.ReadFile(file.path)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file.path, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx %s: %w", file.version, err)
	}
	if sqlText := strings.TrimSpace(string(contents)); sqlText != "" {
		if _, err := tx.ExecContext(ctx, sqlText); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("execute migration %s: %w", file.path, err)
		}
	}
	if err := record(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %s: %w", file.version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", file.version, err)
	}
	return nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func isMigrated(ctx context.Context, db *sql.DB, version string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)`, version).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	return exists, nil
}
