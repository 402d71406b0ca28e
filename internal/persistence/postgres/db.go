// Package postgres implements the persistence contracts on PostgreSQL via
// sqlx. All unique keys are enforced by constraints; upsert paths use
// ON CONFLICT ... DO UPDATE scoped to the documented key.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/brewsignal/brewsignal/internal/config"
	"github.com/brewsignal/brewsignal/internal/persistence"
)

// Manager owns the connection pool and the repository set.
type Manager struct {
	db    *sqlx.DB
	cfg   config.DatabaseConfig
	store *persistence.Store
}

// NewManager opens the pool, verifies connectivity, and wires repositories.
func NewManager(cfg config.DatabaseConfig) (*Manager, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Manager{
		db:    db,
		cfg:   cfg,
		store: NewStore(db, cfg.QueryTimeout),
	}, nil
}

// NewStore wires the repository set onto an existing pool. Split out so
// tests can back it with sqlmock.
func NewStore(db *sqlx.DB, timeout time.Duration) *persistence.Store {
	return &persistence.Store{
		IPs:    NewIPRepo(db, timeout),
		Trends: NewTrendRepo(db, timeout),
		Events: NewEventRepo(db, timeout),
		Health: NewHealthRepo(db, timeout),
		Scores: NewScoreRepo(db, timeout),
	}
}

// Store returns the repository set.
func (m *Manager) Store() *persistence.Store { return m.store }

// DB returns the underlying pool (migrations, seeding).
func (m *Manager) DB() *sqlx.DB { return m.db }

// Ping tests connectivity.
func (m *Manager) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.QueryTimeout)
	defer cancel()
	return m.db.PingContext(ctx)
}

// Close releases the pool.
func (m *Manager) Close() error { return m.db.Close() }
