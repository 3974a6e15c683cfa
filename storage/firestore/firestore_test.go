package firestore

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gostorekit/pkg/storekit"
)

const testProjectID = "test-project"

var _ storekit.Ledger = (*Ledger)(nil)

// setupTestLedger connects to the emulator at FIRESTORE_EMULATOR_HOST or skips.
func setupTestLedger(t *testing.T) *Ledger {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	ctx := context.Background()
	client, err := firestore.NewClient(ctx, testProjectID)
	if err != nil {
		t.Fatalf("Failed to create Firestore client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	collection := fmt.Sprintf("test_finalized_%s_%d", t.Name(), time.Now().UnixNano())
	ledger, err := New(client, Config{Collection: collection})
	require.NoError(t, err)
	return ledger
}

func TestNew(t *testing.T) {
	_, err := New(nil, Config{})
	assert.Error(t, err)
}

func TestLedger_ClaimOnce(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()

	claimed, err := l.Claim(ctx, "tx-1")
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = l.Claim(ctx, "tx-1")
	require.NoError(t, err)
	assert.False(t, claimed)

	at, err := l.ClaimedAt(ctx, "tx-1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), at, time.Minute)
}

func TestLedger_Release(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()

	_, err := l.Claim(ctx, "tx-1")
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx, "tx-1"))
	require.NoError(t, l.Release(ctx, "tx-1"))

	claimed, err := l.Claim(ctx, "tx-1")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestLedger_ConcurrentClaims(t *testing.T) {
	l := setupTestLedger(t)
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := l.Claim(ctx, "tx-shared"); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}
