package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ferpoks/wabridge/internal/config"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
)

func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// RunMigrations applies every pending up migration found in dir.
func RunMigrations(databaseURL, dir string) error {
	m, err := migrate.New("file://"+dir, databaseURL)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Engine names the storage backend a DATABASE_URL selects.
type Engine string

const (
	EnginePostgres Engine = "postgres"
	EngineSQLite   Engine = "sqlite"
)

// EngineFor picks the backend from the URL scheme and, for SQLite, returns
// the file path to open.
func EngineFor(databaseURL string) (Engine, string, error) {
	switch {
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return EnginePostgres, databaseURL, nil
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return EngineSQLite, strings.TrimPrefix(databaseURL, "sqlite://"), nil
	case strings.HasPrefix(databaseURL, "file:"):
		return EngineSQLite, strings.TrimPrefix(databaseURL, "file:"), nil
	default:
		return "", "", fmt.Errorf("unsupported database URL scheme in %q", databaseURL)
	}
}

// Open connects to the backend named by cfg.URL and prepares its schema.
// The returned close function releases the underlying handle.
func Open(ctx context.Context, cfg config.DatabaseConfig) (Store, func(), error) {
	engine, target, err := EngineFor(cfg.URL)
	if err != nil {
		return nil, nil, err
	}

	switch engine {
	case EngineSQLite:
		s, err := OpenSQLite(ctx, target)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		if err := RunMigrations(cfg.URL, cfg.MigrationsDir); err != nil {
			return nil, nil, err
		}
		pool, err := Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return NewPostgresStore(pool), pool.Close, nil
	}
}
