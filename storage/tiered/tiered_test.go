package tiered

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gostorekit/pkg/storekit"
	"github.com/mihaimyh/gostorekit/storage/memory"
)

var _ storekit.Ledger = (*Ledger)(nil)

// countingLedger wraps a ledger, counting calls and optionally failing them.
type countingLedger struct {
	storekit.Ledger
	claims   int
	releases int
	claimErr error
}

func (c *countingLedger) Claim(ctx context.Context, txID string) (bool, error) {
	c.claims++
	if c.claimErr != nil {
		return false, c.claimErr
	}
	return c.Ledger.Claim(ctx, txID)
}

func (c *countingLedger) Release(ctx context.Context, txID string) error {
	c.releases++
	return c.Ledger.Release(ctx, txID)
}

func newTiers() (*countingLedger, *countingLedger) {
	return &countingLedger{Ledger: memory.New(0)}, &countingLedger{Ledger: memory.New(0)}
}

func TestNew(t *testing.T) {
	hot, cold := newTiers()

	_, err := New(Config{Hot: hot})
	assert.Error(t, err)
	_, err = New(Config{Cold: cold})
	assert.Error(t, err)

	l, err := New(Config{Hot: hot, Cold: cold})
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestLedger_HotShortCircuitsDuplicates(t *testing.T) {
	hot, cold := newTiers()
	l, err := New(Config{Hot: hot, Cold: cold})
	require.NoError(t, err)
	ctx := context.Background()

	claimed, err := l.Claim(ctx, "tx-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = l.Claim(ctx, "tx-1")
	require.NoError(t, err)
	assert.False(t, claimed)

	assert.Equal(t, 2, hot.claims)
	assert.Equal(t, 1, cold.claims)
}

func TestLedger_ColdDecides(t *testing.T) {
	hot, cold := newTiers()
	l, err := New(Config{Hot: hot, Cold: cold})
	require.NoError(t, err)
	ctx := context.Background()

	// Another process already finalized tx-1.
	_, err = cold.Ledger.Claim(ctx, "tx-1")
	require.NoError(t, err)

	claimed, err := l.Claim(ctx, "tx-1")
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestLedger_ColdFailureReleasesHot(t *testing.T) {
	hot, cold := newTiers()
	cold.claimErr = errors.New("cold down")
	l, err := New(Config{Hot: hot, Cold: cold})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = l.Claim(ctx, "tx-1")
	assert.EqualError(t, err, "cold down")
	assert.Equal(t, 1, hot.releases)

	cold.claimErr = nil
	claimed, err := l.Claim(ctx, "tx-1")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestLedger_HotFailureFallsBackToCold(t *testing.T) {
	hot, cold := newTiers()
	hot.claimErr = errors.New("hot down")
	var handled []error
	l, err := New(Config{Hot: hot, Cold: cold, ErrorHandler: func(err error) { handled = append(handled, err) }})
	require.NoError(t, err)

	claimed, err := l.Claim(context.Background(), "tx-1")
	require.NoError(t, err)
	assert.True(t, claimed)
	require.Len(t, handled, 1)
	assert.Contains(t, handled[0].Error(), "hot down")
}

func TestLedger_Release(t *testing.T) {
	hot, cold := newTiers()
	l, err := New(Config{Hot: hot, Cold: cold})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = l.Claim(ctx, "tx-1")
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx, "tx-1"))
	assert.Equal(t, 1, cold.releases)
	assert.Equal(t, 1, hot.releases)

	claimed, err := l.Claim(ctx, "tx-1")
	require.NoError(t, err)
	assert.True(t, claimed)
}
