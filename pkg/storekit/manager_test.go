package storekit_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gostorekit/pkg/storekit"
	"github.com/mihaimyh/gostorekit/platform/memory"
)

const (
	testToken   = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
	testProduct = "premium_monthly"
)

type recorder struct {
	mu        sync.Mutex
	envelopes []storekit.Envelope
}

func (r *recorder) callback(payload []byte) {
	var env storekit.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		panic(err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envelopes = append(r.envelopes, env)
}

func (r *recorder) all() []storekit.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]storekit.Envelope(nil), r.envelopes...)
}

func (r *recorder) only(t *testing.T) storekit.Envelope {
	t.Helper()
	envs := r.all()
	require.Len(t, envs, 1)
	return envs[0]
}

type harness struct {
	platform *memory.Platform
	manager  *storekit.Manager
	rec      *recorder
}

func newHarness(t *testing.T, config storekit.Config) *harness {
	t.Helper()
	platform := memory.New(
		storekit.Product{ID: testProduct, DisplayName: "Premium Monthly", Price: "4.99"},
		storekit.Product{ID: "premium_yearly", DisplayName: "Premium Yearly", Price: "39.99"},
	)
	if config.Receipts == nil {
		config.Receipts = platform
	}
	if config.RefreshTimeout == 0 {
		config.RefreshTimeout = time.Second
	}

	manager, err := storekit.NewManager(platform, config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	rec := &recorder{}
	manager.RegisterCallback(rec.callback)
	return &harness{platform: platform, manager: manager, rec: rec}
}

func decodeData(t *testing.T, env storekit.Envelope) map[string]string {
	t.Helper()
	require.NotNil(t, env.Data, "envelope carries no data")
	require.Nil(t, env.Error)
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(*env.Data), &payload))
	return payload
}

func errorText(t *testing.T, env storekit.Envelope) string {
	t.Helper()
	require.Nil(t, env.Data)
	require.NotNil(t, env.Error, "envelope carries no error")
	return *env.Error
}

func TestNewManager_RequiresStore(t *testing.T) {
	_, err := storekit.NewManager(nil, storekit.Config{})
	assert.ErrorIs(t, err, storekit.ErrStoreNotConfigured)
}

func TestManager_PurchaseAsyncDeliversBeforeClose(t *testing.T) {
	h := newHarness(t, storekit.Config{})
	h.platform.SetReceipt([]byte("receipt-bytes"))
	h.platform.SetPurchaseDelay(30 * time.Millisecond)

	require.NoError(t, h.manager.PurchaseAsync(testToken, testProduct))
	require.NoError(t, h.manager.RestoreAsync())
	require.NoError(t, h.manager.Close())

	envs := h.rec.all()
	require.Len(t, envs, 2)
	events := []storekit.EventKind{envs[0].Event, envs[1].Event}
	assert.ElementsMatch(t, []storekit.EventKind{storekit.EventPurchase, storekit.EventLoadReceipt}, events)
}

func TestManager_AsyncRacingClose(t *testing.T) {
	h := newHarness(t, storekit.Config{})
	h.platform.SetPurchaseDelay(20 * time.Millisecond)

	require.NoError(t, h.manager.PurchaseAsync(testToken, testProduct))

	var wg sync.WaitGroup
	var started atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.manager.PurchaseAsync(testToken, testProduct); err == nil {
				started.Add(1)
			} else {
				assert.ErrorIs(t, err, storekit.ErrManagerClosed)
			}
		}()
	}
	require.NoError(t, h.manager.Close())
	wg.Wait()

	successes := 0
	for _, env := range h.rec.all() {
		if env.Data != nil {
			successes++
		}
	}
	assert.Equal(t, 1+int(started.Load()), successes)

	assert.ErrorIs(t, h.manager.PurchaseAsync(testToken, testProduct), storekit.ErrManagerClosed)
	assert.ErrorIs(t, h.manager.RestoreAsync(), storekit.ErrManagerClosed)
}

func TestManager_DeliverAfterClose(t *testing.T) {
	h := newHarness(t, storekit.Config{})
	require.NoError(t, h.manager.Close())

	assert.False(t, h.manager.Deliver(context.Background(), storekit.DataEnvelope(storekit.EventLoadReceipt, "x")))
	assert.Empty(t, h.rec.all())
}

func TestManager_LoadReceiptWithoutSource(t *testing.T) {
	platform := memory.New()
	manager, err := storekit.NewManager(platform, storekit.Config{})
	require.NoError(t, err)
	defer manager.Close()

	_, err = manager.LoadReceipt(context.Background())
	assert.ErrorIs(t, err, storekit.ErrReceiptNotFound)
}

func TestManager_ReplayUndelivered(t *testing.T) {
	platform := memory.New(storekit.Product{ID: testProduct})
	platform.SetReceipt([]byte("receipt-bytes"))
	manager, err := storekit.NewManager(platform, storekit.Config{Receipts: platform, ReplayUndelivered: true})
	require.NoError(t, err)
	defer manager.Close()

	manager.Restore(context.Background())

	rec := &recorder{}
	manager.RegisterCallback(rec.callback)
	manager.Restore(context.Background())

	envs := rec.all()
	require.Len(t, envs, 2)
	assert.Equal(t, "cmVjZWlwdC1ieXRlcw==", *envs[0].Data)
	assert.Equal(t, "cmVjZWlwdC1ieXRlcw==", *envs[1].Data)
}
