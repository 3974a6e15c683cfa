// Package memory provides an in-memory implementation of the storekit.Ledger interface.
// Claims do not survive a restart; use it for tests and single-process development.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Ledger implements storekit.Ledger using an in-memory map
type Ledger struct {
	mu      sync.RWMutex
	claims  map[string]time.Time
	ttl     time.Duration
	nowFunc func() time.Time
}

// New creates a ledger. Claims older than ttl are forgotten; ttl <= 0 keeps them forever.
func New(ttl time.Duration) *Ledger {
	return &Ledger{
		claims:  make(map[string]time.Time),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// Claim implements storekit.Ledger
func (l *Ledger) Claim(_ context.Context, txID string) (bool, error) {
	if txID == "" {
		return false, errors.New("transaction id is required")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	if claimedAt, ok := l.claims[txID]; ok && !l.expired(claimedAt, now) {
		return false, nil
	}
	l.claims[txID] = now
	return true, nil
}

// Release implements storekit.Ledger
func (l *Ledger) Release(_ context.Context, txID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.claims, txID)
	return nil
}

// Claimed reports whether txID currently holds a claim.
func (l *Ledger) Claimed(txID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	claimedAt, ok := l.claims[txID]
	return ok && !l.expired(claimedAt, l.nowFunc())
}

// Cleanup drops expired claims.
func (l *Ledger) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.nowFunc()
	for id, claimedAt := range l.claims {
		if l.expired(claimedAt, now) {
			delete(l.claims, id)
		}
	}
}

// Len returns the number of stored claims, expired ones included until Cleanup runs.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.claims)
}

// Clear removes all claims (useful for testing)
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.claims = make(map[string]time.Time)
}

func (l *Ledger) expired(claimedAt, now time.Time) bool {
	return l.ttl > 0 && now.Sub(claimedAt) >= l.ttl
}
