package storekit

import (
	"context"
	"fmt"
	"sync"
)

// Finalizer acknowledges verified transactions with the platform at most once per id.
type Finalizer struct {
	store   Store
	ledger  Ledger
	logger  Logger
	metrics Metrics
}

// NewFinalizer creates a finalizer. A nil ledger keeps claims in process memory.
func NewFinalizer(store Store, ledger Ledger, logger Logger, metrics Metrics) *Finalizer {
	if ledger == nil {
		ledger = newProcessLedger()
	}
	if logger == nil {
		logger = &NoopLogger{}
	}
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	return &Finalizer{store: store, ledger: ledger, logger: logger, metrics: metrics}
}

// Finish finalizes tx. It returns true when this call performed the platform finish and
// false when tx had already been finalized. A failed platform finish releases the claim
// so a redelivered transaction can be finalized later.
func (f *Finalizer) Finish(ctx context.Context, tx Transaction) (bool, error) {
	if tx.ID == "" {
		return false, fmt.Errorf("finalize: empty transaction id")
	}

	claimed, err := f.ledger.Claim(ctx, tx.ID)
	if err != nil {
		f.metrics.RecordFinalize(FinalizeError)
		return false, fmt.Errorf("failed to claim transaction %s: %w", tx.ID, err)
	}
	if !claimed {
		f.logger.Debug("transaction already finalized", Field{Key: "transaction_id", Value: tx.ID})
		f.metrics.RecordFinalize(FinalizeDuplicate)
		return false, nil
	}

	if err := f.store.Finish(ctx, tx); err != nil {
		if relErr := f.ledger.Release(ctx, tx.ID); relErr != nil {
			f.logger.Error("failed to release finalize claim",
				Field{Key: "transaction_id", Value: tx.ID}, errField(relErr))
		}
		f.metrics.RecordFinalize(FinalizeError)
		return false, fmt.Errorf("failed to finish transaction %s: %w", tx.ID, err)
	}

	f.metrics.RecordFinalize(FinalizeFinished)
	return true, nil
}

// processLedger is the fallback Ledger when none is configured.
type processLedger struct {
	mu       sync.Mutex
	finished map[string]struct{}
}

func newProcessLedger() *processLedger {
	return &processLedger{finished: make(map[string]struct{})}
}

func (l *processLedger) Claim(_ context.Context, txID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.finished[txID]; ok {
		return false, nil
	}
	l.finished[txID] = struct{}{}
	return true, nil
}

func (l *processLedger) Release(_ context.Context, txID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.finished, txID)
	return nil
}
