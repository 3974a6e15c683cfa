// Package storekit bridges a platform-owned, asynchronous commerce API (product lookup,
// purchase, restore, receipts) to a caller that only sees plain functions and a single
// registered callback receiving {event, data, error} JSON envelopes.
package storekit

import (
	"context"
	"sync"
)

// Manager owns the callback registry, its delivery dispatcher and the purchase, restore
// and observation pipelines.
type Manager struct {
	config       Config
	dispatcher   *Dispatcher
	registry     *CallbackRegistry
	receipts     *ReceiptLoader
	finalizer    *Finalizer
	orchestrator *Orchestrator
	observer     *Observer

	mu        sync.Mutex
	closed    bool
	inflight  sync.WaitGroup
	closeOnce sync.Once
}

// NewManager creates a bridge manager over store with the given configuration.
func NewManager(store Store, config Config) (*Manager, error) {
	if store == nil {
		return nil, ErrStoreNotConfigured
	}
	config.applyDefaults()

	refreshTimeout := config.RefreshTimeout
	if refreshTimeout < 0 {
		refreshTimeout = 0
	}

	dispatcher := NewDispatcher(config.DeliveryBuffer)
	registry := NewCallbackRegistry(dispatcher, RegistryConfig{
		ReplayUndelivered: config.ReplayUndelivered,
		BacklogSize:       config.BacklogSize,
		Logger:            config.Logger,
		Metrics:           config.Metrics,
	})

	var receipts *ReceiptLoader
	if config.Receipts != nil {
		receipts = NewReceiptLoader(config.Receipts, refreshTimeout, config.Logger, config.Metrics)
	}
	finalizer := NewFinalizer(store, config.Ledger, config.Logger, config.Metrics)

	return &Manager{
		config:     config,
		dispatcher: dispatcher,
		registry:   registry,
		receipts:   receipts,
		finalizer:  finalizer,
		orchestrator: &Orchestrator{
			store:     store,
			receipts:  receipts,
			finalizer: finalizer,
			registry:  registry,
			logger:    config.Logger,
			metrics:   config.Metrics,
		},
		observer: &Observer{
			registry:  registry,
			finalizer: finalizer,
			logger:    config.Logger,
			metrics:   config.Metrics,
		},
	}, nil
}

// RegisterCallback replaces the registered foreign callback.
func (m *Manager) RegisterCallback(cb Callback) {
	m.registry.Register(cb)
}

// Deliver hands an envelope to the registered callback. See CallbackRegistry.Deliver.
func (m *Manager) Deliver(ctx context.Context, env Envelope) bool {
	return m.registry.Deliver(ctx, env)
}

// Purchase runs a purchase synchronously, delivers its envelope and returns the outcome.
func (m *Manager) Purchase(ctx context.Context, accountToken, productID string) Outcome {
	return m.orchestrator.Purchase(ctx, PurchaseRequest{AccountToken: accountToken, ProductID: productID})
}

// PurchaseAsync starts a purchase and returns immediately; the result arrives via the callback.
// After Close it returns ErrManagerClosed and delivers a PURCHASE error envelope if it still can.
func (m *Manager) PurchaseAsync(accountToken, productID string) error {
	if !m.begin() {
		m.registry.Deliver(context.Background(), ErrorEnvelope(EventPurchase, ErrManagerClosed.Error()))
		return ErrManagerClosed
	}
	go func() {
		defer m.inflight.Done()
		m.Purchase(context.Background(), accountToken, productID)
	}()
	return nil
}

// Restore resynchronizes purchases synchronously and delivers a LOAD_RECEIPT envelope.
func (m *Manager) Restore(ctx context.Context) Envelope {
	return m.orchestrator.Restore(ctx)
}

// RestoreAsync starts a restore and returns immediately. Closed managers behave as in PurchaseAsync.
func (m *Manager) RestoreAsync() error {
	if !m.begin() {
		m.registry.Deliver(context.Background(), ErrorEnvelope(EventLoadReceipt, ErrManagerClosed.Error()))
		return ErrManagerClosed
	}
	go func() {
		defer m.inflight.Done()
		m.Restore(context.Background())
	}()
	return nil
}

// begin registers an asynchronous pipeline unless Close has started.
func (m *Manager) begin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.inflight.Add(1)
	return true
}

// LoadReceipt returns the cached or refreshed receipt.
func (m *Manager) LoadReceipt(ctx context.Context) ([]byte, error) {
	return m.receipts.Load(ctx)
}

// Observe consumes source until ctx is done, reporting and finalizing each verified transaction.
func (m *Manager) Observe(ctx context.Context, source TransactionSource) error {
	return m.observer.Run(ctx, source)
}

// Close rejects new asynchronous pipelines, waits for the in-flight ones, then stops the delivery dispatcher.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()

		m.inflight.Wait()
		err = m.dispatcher.Close()
	})
	return err
}
