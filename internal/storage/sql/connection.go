// Package sql wires the keeper's PostgreSQL connection pool and runs its
// embedded migrations, grounded on the teacher's storage/sql/connection.go.
// Unlike the teacher, this package is Postgres-only: the keeper's
// persistence layer has no embedded/local storage target (spec.md's
// non-goals exclude it), so the SQLite driver and dialect branch are
// dropped rather than carried as dead weight.
package sql

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/pressly/goose/v3"

	"github.com/solcron/keeper/internal/keeperr"
	"github.com/solcron/keeper/internal/storage/sql/repository"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// DBConfig holds database connection configuration.
type DBConfig struct {
	DSN             string        // Data Source Name / connection string
	MaxOpenConns    int           // Maximum open connections (default: 25)
	MaxIdleConns    int           // Maximum idle connections (default: 5)
	ConnMaxLifetime time.Duration // Connection max lifetime (default: 5min)
	ConnMaxIdleTime time.Duration // Connection max idle time (default: 1min)
}

// NewStore opens a PostgreSQL connection pool, applies embedded
// migrations, and returns a ready repository.Store.
func NewStore(ctx context.Context, cfg DBConfig) (*repository.Store, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, keeperr.Wrap(keeperr.KindDatabase, "open database", err)
	}

	maxOpenConns := cfg.MaxOpenConns
	if maxOpenConns <= 0 {
		maxOpenConns = 25
	}
	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns <= 0 {
		maxIdleConns = 5
	}
	connMaxLifetime := cfg.ConnMaxLifetime
	if connMaxLifetime <= 0 {
		connMaxLifetime = 5 * time.Minute
	}
	connMaxIdleTime := cfg.ConnMaxIdleTime
	if connMaxIdleTime <= 0 {
		connMaxIdleTime = time.Minute
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, keeperr.Wrap(keeperr.KindDatabase, "ping database", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, keeperr.Wrap(keeperr.KindDatabase, "run migrations", err)
	}

	return repository.NewStore(db), nil
}

// NewPostgresStore creates a store with default connection pool settings.
func NewPostgresStore(ctx context.Context, connString string) (*repository.Store, error) {
	return NewStore(ctx, DBConfig{DSN: connString})
}

func runMigrations(db *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	goose.SetBaseFS(embedMigrations)
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
