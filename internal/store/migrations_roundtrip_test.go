package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

func testDatabaseURL(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres test in short mode")
	}
	dsn := strings.TrimSpace(os.Getenv("DOCSHUB_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("DOCSHUB_TEST_DATABASE_URL is not set")
	}
	return dsn
}

func openTestDatabase(t *testing.T, ctx context.Context) *sql.DB {
	t.Helper()
	db, err := sql.Open("pgx", testDatabaseURL(t))
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}
	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	return db
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	db := openTestDatabase(t, ctx)
	migrationsDir := filepath.Join("..", "..", "db", "migrations")
	logger := zerolog.Nop()

	applied, err := ApplyMigrations(ctx, db, migrationsDir, logger)
	if err != nil {
		t.Fatalf("apply up migrations (pass 1): %v", err)
	}
	if len(applied) == 0 {
		t.Fatal("expected at least one migration to apply")
	}

	again, err := ApplyMigrations(ctx, db, migrationsDir, logger)
	if err != nil {
		t.Fatalf("reapply up migrations: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no-op reapply, got %v", again)
	}

	reverted, err := RollbackMigrations(ctx, db, migrationsDir, logger)
	if err != nil {
		t.Fatalf("apply down migrations: %v", err)
	}
	if len(reverted) != len(applied) {
		t.Fatalf("expected %d reverted migrations, got %d", len(applied), len(reverted))
	}

	if _, err := ApplyMigrations(ctx, db, migrationsDir, logger); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
}

func resetPublicSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	return err
}
