package storekit

import "errors"

// Messages of the purchase errors below travel to the foreign caller unchanged.
var (
	// ErrPurchasesDisabled is returned when the platform reports purchasing as disabled
	ErrPurchasesDisabled = errors.New("In-app purchases are disabled")

	// ErrProductNotFound is returned when the catalog does not resolve a product id
	ErrProductNotFound = errors.New("Product not found")

	// ErrInvalidAccountToken is returned when the account token is not a UUID
	ErrInvalidAccountToken = errors.New("Invalid UUID")

	// ErrUnknownPurchaseResult is returned for purchase result shapes this package does not know
	ErrUnknownPurchaseResult = errors.New("Unknown purchase result")

	// ErrReceiptNotFound is returned when neither the cache nor a refresh yields a receipt
	ErrReceiptNotFound = errors.New("Receipt not found")

	// ErrStoreNotConfigured is returned by NewManager without a Store
	ErrStoreNotConfigured = errors.New("store not configured")

	// ErrCompletionTimeout is returned when a completion gate is not resolved in time
	ErrCompletionTimeout = errors.New("completion timed out")

	// ErrManagerClosed is returned when an asynchronous pipeline is started after Close
	ErrManagerClosed = errors.New("store bridge closed")

	// ErrDispatcherClosed is returned when work is submitted to a closed dispatcher
	ErrDispatcherClosed = errors.New("dispatcher closed")

	// ErrUnrepresentable is returned when an envelope carries text that is not valid UTF-8
	ErrUnrepresentable = errors.New("envelope content is not representable")

	// ErrInvalidNotification is returned when a transaction notification cannot be decoded
	ErrInvalidNotification = errors.New("invalid transaction notification")
)
