// Package tiered provides a Hot/Cold ledger: a fast local ledger (Hot) absorbs repeated
// claims for the same transaction, while a durable shared ledger (Cold) stays the source
// of truth.
package tiered

import (
	"context"
	"errors"
	"fmt"

	"github.com/mihaimyh/gostorekit/pkg/storekit"
)

// Config configures the tiered ledger
type Config struct {
	// Hot is the L1 ledger (e.g. memory) consulted first
	Hot storekit.Ledger

	// Cold is the L2 ledger (e.g. Redis, Postgres, Firestore) deciding every first claim
	Cold storekit.Ledger

	// ErrorHandler is called when the Hot tier fails after Cold succeeded.
	// Such failures leave the tiers briefly inconsistent but never double-finalize.
	ErrorHandler func(error)
}

// Ledger implements storekit.Ledger over two tiers.
//   - Claim: Hot short-circuits duplicates, Cold decides (Hot → Cold)
//   - Release: Cold first, then Hot (Cold → Hot)
type Ledger struct {
	hot  storekit.Ledger
	cold storekit.Ledger
	conf Config
}

// New creates a new tiered ledger.
func New(config Config) (*Ledger, error) {
	if config.Hot == nil || config.Cold == nil {
		return nil, errors.New("tiered ledger: both hot and cold ledgers are required")
	}
	if config.ErrorHandler == nil {
		config.ErrorHandler = func(error) {}
	}
	return &Ledger{hot: config.Hot, cold: config.Cold, conf: config}, nil
}

// Claim implements storekit.Ledger
func (l *Ledger) Claim(ctx context.Context, txID string) (bool, error) {
	fresh, err := l.hot.Claim(ctx, txID)
	if err != nil {
		l.conf.ErrorHandler(fmt.Errorf("hot claim %s: %w", txID, err))
		return l.cold.Claim(ctx, txID)
	}
	if !fresh {
		return false, nil
	}

	claimed, err := l.cold.Claim(ctx, txID)
	if err != nil {
		if releaseErr := l.hot.Release(ctx, txID); releaseErr != nil {
			l.conf.ErrorHandler(fmt.Errorf("hot release %s: %w", txID, releaseErr))
		}
		return false, err
	}
	// A false from Cold means another process finalized it; the Hot claim stays as a cache.
	return claimed, nil
}

// Release implements storekit.Ledger
func (l *Ledger) Release(ctx context.Context, txID string) error {
	if err := l.cold.Release(ctx, txID); err != nil {
		return err
	}
	if err := l.hot.Release(ctx, txID); err != nil {
		l.conf.ErrorHandler(fmt.Errorf("hot release %s: %w", txID, err))
	}
	return nil
}
