package gateway

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mihaimyh/gostorekit/pkg/storekit"
)

const streamBody = `{"notificationType":"RENEWAL","verified":true,"transaction":{"id":"42","productId":"sub_monthly"}}`

func TestSubscriber_Handle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := newSubscriber(ctx, 4, &storekit.NoopLogger{}, &storekit.NoopMetrics{})

	sub.handle([]byte("not json"))
	sub.handle([]byte(streamBody))

	require.Len(t, sub.updates, 1)
	update := <-sub.updates
	verified, ok := update.(storekit.Verified)
	require.True(t, ok)
	assert.Equal(t, "42", verified.Transaction.ID)
	assert.Equal(t, "sub_monthly", verified.Transaction.ProductID)
}

func TestSubscriber_CloseStopsDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sub := newSubscriber(ctx, 0, &storekit.NoopLogger{}, &storekit.NoopMetrics{})

	handled := make(chan struct{})
	go func() {
		sub.handle([]byte(streamBody))
		close(handled)
	}()

	cancel()
	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("handler blocked after cancellation")
	}

	sub.close()
	sub.close()
	_, ok := <-sub.updates
	assert.False(t, ok)

	sub.handle([]byte(streamBody))
}

func TestDialStream_RequiresSubject(t *testing.T) {
	_, err := DialStream(StreamConfig{URL: nats.DefaultURL})
	assert.Error(t, err)
}

// setupTestNATS connects to NATS_URL (default localhost:4222) or skips.
func setupTestNATS(t *testing.T, subject string) (*Stream, *nats.Conn) {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}
	stream, err := DialStream(StreamConfig{URL: url, Subject: subject})
	if err != nil {
		t.Skipf("NATS not available: %v", err)
	}
	t.Cleanup(func() { _ = stream.Close() })

	publisher, err := nats.Connect(url)
	require.NoError(t, err)
	t.Cleanup(publisher.Close)
	return stream, publisher
}

func TestStream_Updates(t *testing.T) {
	stream, publisher := setupTestNATS(t, "storekit.test.transactions")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, err := stream.Updates(ctx)
	require.NoError(t, err)
	require.NoError(t, stream.conn.Flush())

	require.NoError(t, publisher.Publish("storekit.test.transactions", []byte(streamBody)))
	require.NoError(t, publisher.Flush())

	select {
	case update := <-updates:
		assert.Equal(t, "42", update.(storekit.Verified).Transaction.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("no update received")
	}

	cancel()
	select {
	case _, ok := <-updates:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("updates channel not closed")
	}
}
