package storekit

import "time"

// Config configures a Manager.
type Config struct {
	// Receipts reads and refreshes the cached receipt. If nil, every receipt load
	// reports ErrReceiptNotFound.
	Receipts ReceiptSource

	// Ledger records finalized transactions. If nil, claims live in process memory.
	// Use a persistent ledger (storage/redis, storage/postgres, storage/firestore) to keep
	// finalization idempotent across restarts.
	Ledger Ledger

	// RefreshTimeout bounds how long a receipt refresh may stay unresolved.
	// Default: 30s. Negative disables the bound.
	RefreshTimeout time.Duration

	// DeliveryBuffer is the dispatcher queue size. Default: 64
	DeliveryBuffer int

	// ReplayUndelivered keeps envelopes delivered before a callback is registered and
	// replays them on registration. Defaults to false (such envelopes are dropped).
	ReplayUndelivered bool

	// BacklogSize bounds the replay backlog. Default: 32
	BacklogSize int

	// Logger is an optional structured logger. If nil, logging is disabled.
	// Use storekit/logger/zerolog.NewLogger for zerolog output.
	Logger Logger

	// Metrics is an optional metrics collector. If nil, metrics are ignored.
	// Use storekit/metrics/prometheus.DefaultMetrics(namespace) for Prometheus metrics.
	Metrics Metrics
}

const (
	defaultRefreshTimeout = 30 * time.Second
	defaultDeliveryBuffer = 64
	defaultBacklogSize    = 32
)

func (c *Config) applyDefaults() {
	if c.RefreshTimeout == 0 {
		c.RefreshTimeout = defaultRefreshTimeout
	}
	if c.DeliveryBuffer <= 0 {
		c.DeliveryBuffer = defaultDeliveryBuffer
	}
	if c.BacklogSize <= 0 {
		c.BacklogSize = defaultBacklogSize
	}
	if c.Logger == nil {
		c.Logger = &NoopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = &NoopMetrics{}
	}
}
