package storekit

import "time"

// Delivery statuses reported to Metrics.RecordDelivery.
const (
	DeliveryDelivered   = "delivered"
	DeliveryDropped     = "dropped"
	DeliveryBacklogged  = "backlogged"
	DeliveryReplayed    = "replayed"
	DeliveryEncodeError = "encode_error"
)

// Receipt sources reported to Metrics.RecordReceiptLoad.
const (
	ReceiptFromCache   = "cache"
	ReceiptRefreshed   = "refreshed"
	ReceiptMissing     = "missing"
	ReceiptRefreshFail = "refresh_failed"
)

// Finalize statuses reported to Metrics.RecordFinalize.
const (
	FinalizeFinished  = "finished"
	FinalizeDuplicate = "duplicate"
	FinalizeError     = "error"
)

// Metrics defines the interface for tracking bridge operations.
// All methods are optional - components fall back to NoopMetrics when nil.
type Metrics interface {
	// RecordPurchase records the terminal outcome of a purchase attempt.
	// status: "success", "cancelled", "pending", "verification_failed" or "error"
	RecordPurchase(productID, status string)

	// RecordPurchaseDuration records how long a purchase pipeline took end to end.
	RecordPurchaseDuration(status string, duration time.Duration)

	// RecordDelivery records what happened to an envelope handed to the registry.
	RecordDelivery(event EventKind, status string)

	// RecordReceiptLoad records where a receipt load was satisfied from.
	RecordReceiptLoad(source string)

	// RecordRestore records a restore attempt. status: "success" or "error"
	RecordRestore(status string)

	// RecordFinalize records a transaction finalization attempt.
	RecordFinalize(status string)

	// RecordNotification records an observed transaction notification.
	// source: "webhook", "nats", ... status: "accepted", "unverified", "invalid", "auth_failed", ...
	RecordNotification(source, status string)

	// RecordPlatformCall records a call to the platform collaborator.
	RecordPlatformCall(operation, status string, duration time.Duration)

	// RecordCircuitBreakerStateChange records a circuit breaker state change.
	RecordCircuitBreakerStateChange(state string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordPurchase(_, _ string)                       {}
func (n *NoopMetrics) RecordPurchaseDuration(_ string, _ time.Duration) {}
func (n *NoopMetrics) RecordDelivery(_ EventKind, _ string)             {}
func (n *NoopMetrics) RecordReceiptLoad(_ string)                       {}
func (n *NoopMetrics) RecordRestore(_ string)                           {}
func (n *NoopMetrics) RecordFinalize(_ string)                          {}
func (n *NoopMetrics) RecordNotification(_, _ string)                   {}
func (n *NoopMetrics) RecordPlatformCall(_, _ string, _ time.Duration)  {}
func (n *NoopMetrics) RecordCircuitBreakerStateChange(_ string)         {}
