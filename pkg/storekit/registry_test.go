package storekit

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedPayloads struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (r *recordedPayloads) callback(payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, append([]byte(nil), payload...))
}

func (r *recordedPayloads) envelopes(t *testing.T) []Envelope {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Envelope, 0, len(r.payloads))
	for _, p := range r.payloads {
		var env Envelope
		require.NoError(t, json.Unmarshal(p, &env))
		out = append(out, env)
	}
	return out
}

func newTestRegistry(t *testing.T, config RegistryConfig) *CallbackRegistry {
	t.Helper()
	d := NewDispatcher(16)
	t.Cleanup(func() { _ = d.Close() })
	return NewCallbackRegistry(d, config)
}

func TestRegistry_DropsWithoutCallback(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{})

	assert.False(t, r.Registered())
	assert.False(t, r.Deliver(context.Background(), DataEnvelope(EventLoadReceipt, "x")))
}

func TestRegistry_DeliversEncodedEnvelope(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{})
	rec := &recordedPayloads{}
	r.Register(rec.callback)

	require.True(t, r.Deliver(context.Background(), ErrorEnvelope(EventPurchase, "Product not found")))

	envs := rec.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, EventPurchase, envs[0].Event)
	assert.Nil(t, envs[0].Data)
	require.NotNil(t, envs[0].Error)
	assert.Equal(t, "Product not found", *envs[0].Error)
}

func TestRegistry_ReRegisterReplacesCallback(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{})
	first, second := &recordedPayloads{}, &recordedPayloads{}

	r.Register(first.callback)
	r.Deliver(context.Background(), DataEnvelope(EventLoadReceipt, "a"))
	r.Register(second.callback)
	r.Deliver(context.Background(), DataEnvelope(EventLoadReceipt, "b"))

	assert.Len(t, first.envelopes(t), 1)
	assert.Len(t, second.envelopes(t), 1)

	r.Register(nil)
	assert.False(t, r.Registered())
	assert.False(t, r.Deliver(context.Background(), DataEnvelope(EventLoadReceipt, "c")))
}

func TestRegistry_CallbackMayReRegister(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{})
	rec := &recordedPayloads{}
	r.Register(func(payload []byte) {
		r.Register(rec.callback)
	})

	done := make(chan struct{})
	go func() {
		r.Deliver(context.Background(), DataEnvelope(EventLoadReceipt, "a"))
		r.Deliver(context.Background(), DataEnvelope(EventLoadReceipt, "b"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("re-registering from a callback blocked delivery")
	}
	envs := rec.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, "b", *envs[0].Data)
}

func TestRegistry_SerializesConcurrentDeliveries(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{})

	var running, overlaps, calls atomic.Int32
	r.Register(func([]byte) {
		if running.Add(1) > 1 {
			overlaps.Add(1)
		}
		time.Sleep(time.Millisecond)
		running.Add(-1)
		calls.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Deliver(context.Background(), DataEnvelope(EventUnlockProduct, "{}"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(25), calls.Load())
	assert.Zero(t, overlaps.Load())
}

func TestRegistry_SkipsUnencodableEnvelope(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{})
	rec := &recordedPayloads{}
	r.Register(rec.callback)

	assert.False(t, r.Deliver(context.Background(), DataEnvelope(EventLoadReceipt, "\xff\xfe")))
	assert.Empty(t, rec.envelopes(t))
}

func TestRegistry_ReplaysBacklogOnRegister(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{ReplayUndelivered: true, BacklogSize: 2})

	for _, data := range []string{"one", "two", "three"} {
		assert.False(t, r.Deliver(context.Background(), DataEnvelope(EventUnlockProduct, data)))
	}

	rec := &recordedPayloads{}
	r.Register(rec.callback)
	// Queued behind the replay, so it returns once the backlog has been delivered.
	require.True(t, r.Deliver(context.Background(), DataEnvelope(EventUnlockProduct, "four")))

	envs := rec.envelopes(t)
	require.Len(t, envs, 3)
	assert.Equal(t, "two", *envs[0].Data)
	assert.Equal(t, "three", *envs[1].Data)
	assert.Equal(t, "four", *envs[2].Data)
}

func TestRegistry_ReRegisterWithFullQueue(t *testing.T) {
	d := NewDispatcher(1)
	t.Cleanup(func() { _ = d.Close() })
	r := NewCallbackRegistry(d, RegistryConfig{ReplayUndelivered: true})
	ctx := context.Background()

	assert.False(t, r.Deliver(ctx, DataEnvelope(EventUnlockProduct, "early")))

	rec := &recordedPayloads{}
	var cb Callback
	cb = func(payload []byte) {
		rec.callback(payload)
		time.Sleep(20 * time.Millisecond)
		r.Register(cb)
	}
	r.Register(cb)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Deliver(ctx, DataEnvelope(EventUnlockProduct, "late"))
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("deliveries stuck behind a callback re-registering")
	}
	envs := rec.envelopes(t)
	require.Len(t, envs, 6)
	assert.Equal(t, "early", *envs[0].Data)
}

func TestRegistry_BacklogDrainsBeforeNextDelivery(t *testing.T) {
	d := NewDispatcher(1)
	t.Cleanup(func() { _ = d.Close() })
	r := NewCallbackRegistry(d, RegistryConfig{ReplayUndelivered: true})
	ctx := context.Background()

	assert.False(t, r.Deliver(ctx, DataEnvelope(EventUnlockProduct, "one")))

	// Occupy the worker and fill the queue so Register cannot schedule the replay.
	release := make(chan struct{})
	require.NoError(t, d.Go(func() { <-release }))
	require.Eventually(t, func() bool { return d.TryGo(func() {}) }, time.Second, time.Millisecond)

	rec := &recordedPayloads{}
	r.Register(rec.callback)
	close(release)

	require.True(t, r.Deliver(ctx, DataEnvelope(EventUnlockProduct, "two")))
	envs := rec.envelopes(t)
	require.Len(t, envs, 2)
	assert.Equal(t, "one", *envs[0].Data)
	assert.Equal(t, "two", *envs[1].Data)
}
