// Package redis provides a Redis implementation of the storekit.Ledger interface.
// Claims are SET NX keys, so concurrent processes sharing one Redis finalize a transaction once.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ledger implements storekit.Ledger using Redis
type Ledger struct {
	client redis.UniversalClient
	config Config
}

// Config holds Redis ledger configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "storekit:finalized:")
	KeyPrefix string

	// ClaimTTL is how long a claim is remembered (0 = no expiration)
	ClaimTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "storekit:finalized:",
		ClaimTTL:  30 * 24 * time.Hour,
	}
}

// New creates a new Redis ledger
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Ledger, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig().KeyPrefix
	}
	return &Ledger{client: client, config: config}, nil
}

// Claim implements storekit.Ledger
func (l *Ledger) Claim(ctx context.Context, txID string) (bool, error) {
	if txID == "" {
		return false, fmt.Errorf("transaction id is required")
	}
	ok, err := l.client.SetNX(ctx, l.key(txID), time.Now().UTC().Format(time.RFC3339Nano), l.config.ClaimTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim transaction %s: %w", txID, err)
	}
	return ok, nil
}

// Release implements storekit.Ledger
func (l *Ledger) Release(ctx context.Context, txID string) error {
	if err := l.client.Del(ctx, l.key(txID)).Err(); err != nil {
		return fmt.Errorf("failed to release transaction %s: %w", txID, err)
	}
	return nil
}

// ClaimedAt returns when txID was claimed, or the zero time when it is not.
func (l *Ledger) ClaimedAt(ctx context.Context, txID string) (time.Time, error) {
	val, err := l.client.Get(ctx, l.key(txID)).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read claim for %s: %w", txID, err)
	}
	return time.Parse(time.RFC3339Nano, val)
}

// Close closes the Redis client
func (l *Ledger) Close() error {
	return l.client.Close()
}

// Ping checks the Redis connection
func (l *Ledger) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *Ledger) key(txID string) string {
	return l.config.KeyPrefix + txID
}
