package storekit

import (
	"context"
	"encoding/base64"
	"time"

	"golang.org/x/sync/singleflight"
)

const refreshKey = "receipt-refresh"

// ReceiptLoader returns the cached receipt, refreshing it once when the cache is empty.
type ReceiptLoader struct {
	source  ReceiptSource
	timeout time.Duration
	group   singleflight.Group
	logger  Logger
	metrics Metrics
}

// NewReceiptLoader creates a loader over source. refreshTimeout bounds how long a refresh
// may stay unresolved (<= 0 disables the bound).
func NewReceiptLoader(source ReceiptSource, refreshTimeout time.Duration, logger Logger, metrics Metrics) *ReceiptLoader {
	if logger == nil {
		logger = &NoopLogger{}
	}
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	return &ReceiptLoader{
		source:  source,
		timeout: refreshTimeout,
		logger:  logger,
		metrics: metrics,
	}
}

// Load returns the receipt bytes or ErrReceiptNotFound.
//
// A non-empty cached receipt short-circuits. Otherwise exactly one refresh is awaited
// (concurrent loaders share it) followed by exactly one re-read of the cache.
func (l *ReceiptLoader) Load(ctx context.Context) ([]byte, error) {
	if l == nil || l.source == nil {
		return nil, ErrReceiptNotFound
	}

	if data, err := l.source.ReadReceipt(ctx); err == nil && len(data) > 0 {
		l.metrics.RecordReceiptLoad(ReceiptFromCache)
		return data, nil
	} else if err != nil {
		l.logger.Debug("cached receipt unreadable", errField(err))
	}

	_, err, _ := l.group.Do(refreshKey, func() (interface{}, error) {
		return nil, l.refresh(ctx)
	})
	if err != nil {
		l.logger.Warn("failed to refresh receipt", errField(err))
		l.metrics.RecordReceiptLoad(ReceiptRefreshFail)
		return nil, ErrReceiptNotFound
	}

	data, err := l.source.ReadReceipt(ctx)
	if err != nil || len(data) == 0 {
		l.metrics.RecordReceiptLoad(ReceiptMissing)
		return nil, ErrReceiptNotFound
	}
	l.metrics.RecordReceiptLoad(ReceiptRefreshed)
	return data, nil
}

// LoadBase64 is Load with the receipt rendered the way envelopes carry it.
func (l *ReceiptLoader) LoadBase64(ctx context.Context) (string, error) {
	data, err := l.Load(ctx)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// refresh issues one refresh request and waits for its delegate to fire.
func (l *ReceiptLoader) refresh(ctx context.Context) error {
	gate := NewCompletion()
	l.source.RefreshReceipt(ctx, func(err error) {
		if !gate.Resolve(err) {
			l.logger.Warn("receipt refresh completed more than once, ignoring")
		}
	})
	return gate.Wait(ctx, l.timeout)
}
