package storekit

import "context"

// Store is the platform-owned commerce API the bridge drives.
// All methods may block; implementations must honor ctx.
type Store interface {
	// CanMakePayments reports whether purchasing is enabled for this device/account.
	CanMakePayments(ctx context.Context) bool

	// Products resolves catalog entries by id. Unknown ids are omitted from the result.
	Products(ctx context.Context, ids []string) ([]Product, error)

	// Purchase submits a purchase and waits for the platform's answer.
	Purchase(ctx context.Context, product Product, opts PurchaseOptions) (PurchaseResult, error)

	// Sync resynchronizes the local view with the platform's purchase ledger.
	Sync(ctx context.Context) error

	// Finish acknowledges a transaction so the platform stops re-presenting it.
	Finish(ctx context.Context, tx Transaction) error
}

// ReceiptSource reads and refreshes the locally cached receipt.
type ReceiptSource interface {
	// ReadReceipt returns the cached receipt. A missing receipt is (nil, nil).
	ReadReceipt(ctx context.Context) ([]byte, error)

	// RefreshReceipt starts a refresh request and returns immediately.
	// done is the request's delegate: it is called when the request finishes (nil) or fails.
	RefreshReceipt(ctx context.Context, done func(error))
}

// TransactionSource streams transactions observed outside direct purchase calls
// (renewals, restores, family sharing). The channel closes when ctx is done or the
// source shuts down.
type TransactionSource interface {
	Updates(ctx context.Context) (<-chan VerificationResult, error)
}

// Ledger records which transactions have been finalized so finalization happens once.
type Ledger interface {
	// Claim marks txID as finalized. It returns false when txID was already claimed.
	Claim(ctx context.Context, txID string) (bool, error)

	// Release removes a claim after the platform finish failed.
	Release(ctx context.Context, txID string) error
}
