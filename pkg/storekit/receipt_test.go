package storekit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gostorekit/pkg/storekit"
	"github.com/mihaimyh/gostorekit/platform/memory"
)

func TestReceiptLoader_CachedReceipt(t *testing.T) {
	platform := memory.New()
	platform.SetReceipt([]byte("cached"))
	loader := storekit.NewReceiptLoader(platform, time.Second, nil, nil)

	data, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), data)
	assert.Zero(t, platform.Calls().RefreshReceipt)
}

func TestReceiptLoader_RefreshThenSingleReread(t *testing.T) {
	platform := memory.New()
	platform.SetRefresh([]byte("fresh"), nil)
	loader := storekit.NewReceiptLoader(platform, time.Second, nil, nil)

	encoded, err := loader.LoadBase64(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ZnJlc2g=", encoded)

	calls := platform.Calls()
	assert.Equal(t, 1, calls.RefreshReceipt)
	assert.Equal(t, 2, calls.ReadReceipt)
}

func TestReceiptLoader_RefreshFails(t *testing.T) {
	platform := memory.New()
	platform.SetRefresh(nil, errors.New("offline"))
	loader := storekit.NewReceiptLoader(platform, time.Second, nil, nil)

	_, err := loader.Load(context.Background())
	assert.ErrorIs(t, err, storekit.ErrReceiptNotFound)
	assert.Equal(t, 1, platform.Calls().ReadReceipt)
}

func TestReceiptLoader_RefreshYieldsNothing(t *testing.T) {
	platform := memory.New()
	platform.SetRefresh(nil, nil)
	loader := storekit.NewReceiptLoader(platform, time.Second, nil, nil)

	_, err := loader.Load(context.Background())
	assert.ErrorIs(t, err, storekit.ErrReceiptNotFound)

	calls := platform.Calls()
	assert.Equal(t, 1, calls.RefreshReceipt)
	assert.Equal(t, 2, calls.ReadReceipt)
}

func TestReceiptLoader_UnreadableCacheRefreshes(t *testing.T) {
	platform := memory.New()
	platform.SetReadError(errors.New("permission denied"))
	platform.SetRefresh([]byte("fresh"), nil)
	loader := storekit.NewReceiptLoader(platform, time.Second, nil, nil)

	_, err := loader.Load(context.Background())
	assert.ErrorIs(t, err, storekit.ErrReceiptNotFound)
	assert.Equal(t, 1, platform.Calls().RefreshReceipt)
}

func TestReceiptLoader_DuplicateCompletionIgnored(t *testing.T) {
	platform := memory.New()
	platform.SetRefresh([]byte("fresh"), nil)
	platform.SetRefreshBehavior(0, 3)
	loader := storekit.NewReceiptLoader(platform, time.Second, nil, nil)

	data, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh"), data)
}

func TestReceiptLoader_RefreshNeverCompletes(t *testing.T) {
	platform := memory.New()
	platform.SetRefreshBehavior(0, 0)
	loader := storekit.NewReceiptLoader(platform, 20*time.Millisecond, nil, nil)

	start := time.Now()
	_, err := loader.Load(context.Background())
	assert.ErrorIs(t, err, storekit.ErrReceiptNotFound)
	assert.Less(t, time.Since(start), time.Second)
}

func TestReceiptLoader_ConcurrentLoadsShareRefresh(t *testing.T) {
	platform := memory.New()
	platform.SetRefresh([]byte("fresh"), nil)
	platform.SetRefreshBehavior(100*time.Millisecond, 1)
	loader := storekit.NewReceiptLoader(platform, time.Second, nil, nil)

	start := make(chan struct{})
	errs := make(chan error, 8)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := loader.Load(context.Background())
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, platform.Calls().RefreshReceipt)
}

func TestReceiptLoader_NilLoader(t *testing.T) {
	var loader *storekit.ReceiptLoader
	_, err := loader.Load(context.Background())
	assert.ErrorIs(t, err, storekit.ErrReceiptNotFound)
}
