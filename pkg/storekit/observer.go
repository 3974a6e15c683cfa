package storekit

import (
	"context"
	"fmt"
)

// Observer consumes transaction updates for the lifetime of the process, reporting each
// verified transaction as UNLOCK_PRODUCT and then finalizing it.
type Observer struct {
	registry  *CallbackRegistry
	finalizer *Finalizer
	logger    Logger
	metrics   Metrics
}

// Run reads source until ctx is done or the source closes its channel.
func (o *Observer) Run(ctx context.Context, source TransactionSource) error {
	updates, err := source.Updates(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to transaction updates: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			o.Handle(ctx, update)
		}
	}
}

// Handle processes one observed update. Finalization follows the delivery attempt even when
// no callback is registered: not re-presenting a grant indefinitely wins over guaranteeing the
// foreign side saw it (enable replay on the registry to keep such envelopes).
func (o *Observer) Handle(ctx context.Context, update VerificationResult) {
	switch u := update.(type) {
	case Verified:
		env, err := unlockEnvelope(u.Transaction)
		if err != nil {
			o.logger.Error("failed to render unlock envelope",
				Field{Key: "transaction_id", Value: u.Transaction.ID}, errField(err))
			return
		}
		o.registry.Deliver(ctx, env)

		if _, err := o.finalizer.Finish(ctx, u.Transaction); err != nil {
			o.logger.Error("failed to finalize observed transaction",
				Field{Key: "transaction_id", Value: u.Transaction.ID}, errField(err))
		}
	case Unverified:
		reason := "unverified"
		if u.Err != nil {
			reason = u.Err.Error()
		}
		o.logger.Warn("ignoring unverified transaction update",
			Field{Key: "transaction_id", Value: u.Transaction.ID},
			Field{Key: "reason", Value: reason})
	default:
		o.logger.Warn("ignoring unknown transaction update shape",
			Field{Key: "type", Value: fmt.Sprintf("%T", update)})
	}
}

func unlockEnvelope(tx Transaction) (Envelope, error) {
	data, err := marshalPayload(unlockPayload{
		ProductID:       tx.ProductID,
		AppAccountToken: tx.AppAccountToken,
		TransactionID:   tx.ID,
	})
	if err != nil {
		return Envelope{}, err
	}
	return DataEnvelope(EventUnlockProduct, data), nil
}
