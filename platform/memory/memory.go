// Package memory provides a scriptable in-process platform for tests and local development.
package memory

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/mihaimyh/gostorekit/pkg/storekit"
)

// ErrClosed is returned by Updates after Close.
var ErrClosed = errors.New("memory platform closed")

// Calls counts invocations of each platform operation.
type Calls struct {
	CanMakePayments int
	Products        int
	Purchase        int
	Sync            int
	Finish          int
	ReadReceipt     int
	RefreshReceipt  int
}

type scriptedPurchase struct {
	result storekit.PurchaseResult
	err    error
}

// Platform implements storekit.Store, storekit.ReceiptSource and storekit.TransactionSource
// in memory. Unscripted purchases succeed with a verified transaction.
type Platform struct {
	mu sync.Mutex

	paymentsDisabled bool
	products         map[string]storekit.Product
	productsErr      error
	purchases        map[string]scriptedPurchase
	purchaseDelay    time.Duration
	syncErr          error
	finishErr        error

	receipt        []byte
	readErr        error
	refreshReceipt []byte
	refreshErr     error
	refreshDelay   time.Duration
	completions    int

	nextTxID int
	finished []string
	calls    Calls

	streamMu sync.RWMutex
	closed   bool
	updates  chan storekit.VerificationResult
}

// New creates a platform selling products.
func New(products ...storekit.Product) *Platform {
	p := &Platform{
		products:    make(map[string]storekit.Product, len(products)),
		purchases:   make(map[string]scriptedPurchase),
		completions: 1,
		nextTxID:    1000000000,
		updates:     make(chan storekit.VerificationResult, 64),
	}
	for _, product := range products {
		p.products[product.ID] = product
	}
	return p
}

// SetPaymentsEnabled toggles the device-level purchase switch.
func (p *Platform) SetPaymentsEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paymentsDisabled = !enabled
}

// SetProductsError makes catalog lookups fail.
func (p *Platform) SetProductsError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.productsErr = err
}

// SetPurchaseResult scripts the answer for purchases of productID.
func (p *Platform) SetPurchaseResult(productID string, result storekit.PurchaseResult, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purchases[productID] = scriptedPurchase{result: result, err: err}
}

// SetPurchaseDelay makes Purchase take d before answering.
func (p *Platform) SetPurchaseDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purchaseDelay = d
}

// SetSyncError makes Sync fail.
func (p *Platform) SetSyncError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.syncErr = err
}

// SetFinishError makes Finish fail.
func (p *Platform) SetFinishError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finishErr = err
}

// SetReceipt sets the cached receipt. nil means no receipt.
func (p *Platform) SetReceipt(receipt []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.receipt = receipt
}

// SetReadError makes ReadReceipt fail.
func (p *Platform) SetReadError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
}

// SetRefresh scripts the outcome of a refresh: on success the cache holds receipt afterwards.
func (p *Platform) SetRefresh(receipt []byte, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshReceipt = receipt
	p.refreshErr = err
}

// SetRefreshBehavior sets how long a refresh takes and how many times its completion fires.
// completions of 0 never completes; more than 1 simulates a misbehaving delegate.
func (p *Platform) SetRefreshBehavior(delay time.Duration, completions int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshDelay = delay
	p.completions = completions
}

func (p *Platform) CanMakePayments(_ context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls.CanMakePayments++
	return !p.paymentsDisabled
}

func (p *Platform) Products(ctx context.Context, ids []string) ([]storekit.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls.Products++
	if p.productsErr != nil {
		return nil, p.productsErr
	}

	result := make([]storekit.Product, 0, len(ids))
	for _, id := range ids {
		if product, ok := p.products[id]; ok {
			result = append(result, product)
		}
	}
	return result, nil
}

func (p *Platform) Purchase(ctx context.Context, product storekit.Product, opts storekit.PurchaseOptions) (storekit.PurchaseResult, error) {
	p.mu.Lock()
	p.calls.Purchase++
	delay := p.purchaseDelay
	scripted, ok := p.purchases[product.ID]
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if ok {
		return scripted.result, scripted.err
	}

	p.mu.Lock()
	p.nextTxID++
	id := strconv.Itoa(p.nextTxID)
	p.mu.Unlock()

	return storekit.PurchaseSucceeded{Verification: storekit.Verified{Transaction: storekit.Transaction{
		ID:              id,
		ProductID:       product.ID,
		AppAccountToken: opts.AppAccountToken.String(),
		PurchasedAt:     time.Now().UTC(),
	}}}, nil
}

func (p *Platform) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls.Sync++
	return p.syncErr
}

func (p *Platform) Finish(_ context.Context, tx storekit.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls.Finish++
	if p.finishErr != nil {
		return p.finishErr
	}
	p.finished = append(p.finished, tx.ID)
	return nil
}

func (p *Platform) ReadReceipt(_ context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls.ReadReceipt++
	if p.readErr != nil {
		return nil, p.readErr
	}
	if len(p.receipt) == 0 {
		return nil, nil
	}
	return append([]byte(nil), p.receipt...), nil
}

func (p *Platform) RefreshReceipt(_ context.Context, done func(error)) {
	p.mu.Lock()
	p.calls.RefreshReceipt++
	delay := p.refreshDelay
	completions := p.completions
	receipt := p.refreshReceipt
	err := p.refreshErr
	p.mu.Unlock()

	go func() {
		if delay > 0 {
			time.Sleep(delay)
		}
		if err == nil && receipt != nil {
			p.SetReceipt(receipt)
		}
		for i := 0; i < completions; i++ {
			done(err)
		}
	}()
}

// Updates implements storekit.TransactionSource. All callers share one channel.
func (p *Platform) Updates(_ context.Context) (<-chan storekit.VerificationResult, error) {
	p.streamMu.RLock()
	defer p.streamMu.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}
	return p.updates, nil
}

// Publish emits an observed transaction update. It returns false after Close.
func (p *Platform) Publish(update storekit.VerificationResult) bool {
	p.streamMu.RLock()
	defer p.streamMu.RUnlock()
	if p.closed {
		return false
	}
	p.updates <- update
	return true
}

// Close ends the update stream.
func (p *Platform) Close() error {
	p.streamMu.Lock()
	defer p.streamMu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.updates)
	}
	return nil
}

// Calls returns a snapshot of the invocation counters.
func (p *Platform) Calls() Calls {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Finished returns the ids of finished transactions in order.
func (p *Platform) Finished() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.finished...)
}
