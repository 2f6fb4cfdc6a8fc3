package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// Backend selects where users and projects live.
type Backend struct {
	DatabaseURL   string
	MigrationsDir string
	DataDir       string
}

// OpenBackend opens Postgres and applies migrations when a database URL is
// configured, and the embedded store under DataDir otherwise.
func OpenBackend(ctx context.Context, backend Backend, logger zerolog.Logger) (Store, error) {
	if backend.DatabaseURL == "" {
		logger.Info().Str("dir", backend.DataDir).Msg("using embedded store")
		return OpenBadger(backend.DataDir)
	}
	db, err := Open(ctx, backend.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if _, err := ApplyMigrations(ctx, db, backend.MigrationsDir, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info().Msg("using postgres store")
	return NewPostgresStore(db), nil
}
