// Package archive keeps finished leak cases and closed alerts in PostgreSQL
// after they leave the in-memory engine.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dd0wney/cluso-waternet/pkg/logging"
)

// DBPool is the subset of pgxpool.Pool the store uses
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store archives cases and alerts
type Store struct {
	pool   DBPool
	logger logging.Logger
}

// New wraps an existing pool. The schema is not touched; call Migrate.
func New(pool DBPool, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Store{pool: pool, logger: logger.With(logging.Component("archive"))}
}

// Open connects to databaseURL, verifies the connection and creates the
// archive tables if they are missing
func Open(ctx context.Context, databaseURL string, logger logging.Logger) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	config.MaxConns = 8
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	s := New(pool, logger)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	s.logger.Info("archive connected", logging.String("host", config.ConnConfig.Host))
	return s, nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
