package main

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mihaimyh/gostorekit/internal/app"
	"github.com/mihaimyh/gostorekit/internal/config"
	"github.com/mihaimyh/gostorekit/pkg/storekit"
)

// bootLog is used until native_init has built the configured logger.
var bootLog = zerolog.New(os.Stderr).With().Timestamp().Str("component", "libstorekit").Logger()

func main() {}

var errNotStarted = errors.New("storekit bridge is not initialized")

// bridge holds the process-wide state behind the exported C functions.
type bridge struct {
	mu       sync.Mutex
	app      *app.App
	callback storekit.Callback
	cancel   context.CancelFunc
	observed chan struct{}

	// early serializes error deliveries made before start.
	early sync.Mutex
}

// start loads configuration, builds the app and launches the transaction observers.
// Starting an already started bridge is a no-op.
func (b *bridge) start(configPath string, out io.Writer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.app != nil {
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	a, err := app.New(context.Background(), cfg, out)
	if err != nil {
		return err
	}
	if b.callback != nil {
		a.Manager.RegisterCallback(b.callback)
	}

	ctx, cancel := context.WithCancel(context.Background())
	observed := make(chan struct{})
	go func() {
		defer close(observed)
		if err := a.Observe(ctx); err != nil {
			a.Log.Error().Err(err).Msg("transaction observer stopped")
		}
	}()

	b.app = a
	b.cancel = cancel
	b.observed = observed
	a.Log.Info().Str("platform", cfg.Platform.Kind).Str("ledger", cfg.Ledger.Backend).Msg("storekit bridge started")
	return nil
}

// setCallback registers cb, remembering it for a later start. nil unregisters.
func (b *bridge) setCallback(cb storekit.Callback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callback = cb
	if b.app != nil {
		b.app.Manager.RegisterCallback(cb)
	}
}

func (b *bridge) manager() (*storekit.Manager, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.app == nil {
		return nil, errNotStarted
	}
	return b.app.Manager, nil
}

// logger returns the configured logger once started, else the boot logger.
func (b *bridge) logger() *zerolog.Logger {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.app != nil {
		return &b.app.Log
	}
	return &bootLog
}

// purchase starts an asynchronous purchase. Before start the registered callback still
// receives a PURCHASE error envelope.
func (b *bridge) purchase(accountToken, productID string) error {
	m, err := b.manager()
	if err != nil {
		b.rejectEarly(storekit.EventPurchase, err)
		return err
	}
	return m.PurchaseAsync(accountToken, productID)
}

// restore starts an asynchronous restore, answering with a LOAD_RECEIPT error envelope
// before start.
func (b *bridge) restore() error {
	m, err := b.manager()
	if err != nil {
		b.rejectEarly(storekit.EventLoadReceipt, err)
		return err
	}
	return m.RestoreAsync()
}

// rejectEarly delivers cause to the remembered callback off the calling thread, as a
// started bridge would.
func (b *bridge) rejectEarly(event storekit.EventKind, cause error) {
	b.mu.Lock()
	cb := b.callback
	b.mu.Unlock()
	if cb == nil {
		return
	}

	payload, err := storekit.Encode(storekit.ErrorEnvelope(event, cause.Error()))
	if err != nil {
		bootLog.Error().Err(err).Msg("failed to encode rejection envelope")
		return
	}
	go func() {
		b.early.Lock()
		defer b.early.Unlock()
		cb(payload)
	}()
}

// stop cancels the observers, waits for in-flight work and releases the app.
// The lock is released before waiting so a callback may still call back into the bridge.
func (b *bridge) stop() error {
	b.mu.Lock()
	a, cancel, observed := b.app, b.cancel, b.observed
	b.app, b.cancel, b.observed = nil, nil, nil
	b.mu.Unlock()
	if a == nil {
		return nil
	}

	cancel()
	<-observed
	err := a.Close()
	a.Log.Info().Msg("storekit bridge stopped")
	return err
}
