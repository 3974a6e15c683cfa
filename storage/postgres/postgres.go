// Package postgres provides a PostgreSQL implementation of the storekit.Ledger interface.
// Claims are rows in finalized_transactions inserted with ON CONFLICT DO NOTHING.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the table backing the ledger.
const Schema = `
CREATE TABLE IF NOT EXISTS finalized_transactions (
	transaction_id TEXT PRIMARY KEY,
	finalized_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS finalized_transactions_finalized_at_idx
	ON finalized_transactions (finalized_at);
`

// Ledger implements storekit.Ledger using PostgreSQL
type Ledger struct {
	pool   *pgxpool.Pool
	config Config

	// stopCleanup cancels the background cleanup goroutine
	stopCleanup func()
}

// Config holds PostgreSQL ledger configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// Migrate runs Schema on startup
	Migrate bool

	// Cleanup configuration
	CleanupEnabled  bool
	CleanupInterval time.Duration // How often to run cleanup
	RecordTTL       time.Duration // How long claims are kept
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		Migrate:         true,
		CleanupEnabled:  true,
		CleanupInterval: time.Hour,
		RecordTTL:       30 * 24 * time.Hour,
	}
}

// New creates a new PostgreSQL ledger
func New(ctx context.Context, config Config) (*Ledger, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if config.Migrate {
		if _, err := pool.Exec(ctx, Schema); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	cleanupCtx, cancel := context.WithCancel(context.Background())
	l := &Ledger{
		pool:        pool,
		config:      config,
		stopCleanup: cancel,
	}

	if config.CleanupEnabled && config.CleanupInterval > 0 && config.RecordTTL > 0 {
		go l.startCleanup(cleanupCtx)
	}

	return l, nil
}

// Close closes the PostgreSQL connection pool and stops background cleanup
func (l *Ledger) Close() {
	if l.stopCleanup != nil {
		l.stopCleanup()
	}
	if l.pool != nil {
		l.pool.Close()
	}
}

// Claim implements storekit.Ledger
func (l *Ledger) Claim(ctx context.Context, txID string) (bool, error) {
	if txID == "" {
		return false, fmt.Errorf("transaction id is required")
	}
	tag, err := l.pool.Exec(ctx,
		`INSERT INTO finalized_transactions (transaction_id, finalized_at)
		 VALUES ($1, $2)
		 ON CONFLICT (transaction_id) DO NOTHING`,
		txID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to claim transaction %s: %w", txID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release implements storekit.Ledger
func (l *Ledger) Release(ctx context.Context, txID string) error {
	if _, err := l.pool.Exec(ctx,
		`DELETE FROM finalized_transactions WHERE transaction_id = $1`, txID); err != nil {
		return fmt.Errorf("failed to release transaction %s: %w", txID, err)
	}
	return nil
}

// ClaimedAt returns when txID was claimed, or the zero time when it is not.
func (l *Ledger) ClaimedAt(ctx context.Context, txID string) (time.Time, error) {
	var at time.Time
	err := l.pool.QueryRow(ctx,
		`SELECT finalized_at FROM finalized_transactions WHERE transaction_id = $1`, txID).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read claim for %s: %w", txID, err)
	}
	return at, nil
}

// startCleanup runs periodic cleanup of expired claims
func (l *Ledger) startCleanup(ctx context.Context) {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = l.Cleanup(ctx)
		}
	}
}

// Cleanup deletes claims older than RecordTTL and returns how many were removed.
func (l *Ledger) Cleanup(ctx context.Context) (int64, error) {
	if l.config.RecordTTL <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-l.config.RecordTTL)
	tag, err := l.pool.Exec(ctx,
		`DELETE FROM finalized_transactions WHERE finalized_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup finalized transactions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks the PostgreSQL connection
func (l *Ledger) Ping(ctx context.Context) error {
	return l.pool.Ping(ctx)
}
