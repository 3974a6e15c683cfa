package storekit

import (
	"context"
	"encoding/base64"
)

// Restore resynchronizes with the platform ledger and delivers a LOAD_RECEIPT envelope with
// the resulting receipt, or the error that prevented it. Re-granted transactions are not
// reported here; they arrive through the transaction observer.
func (o *Orchestrator) Restore(ctx context.Context) Envelope {
	var env Envelope
	if err := o.store.Sync(ctx); err != nil {
		o.logger.Warn("restore sync failed", errField(err))
		o.metrics.RecordRestore(StatusError)
		env = ErrorEnvelope(EventLoadReceipt, err.Error())
	} else if data, err := o.receipts.Load(ctx); err != nil {
		o.metrics.RecordRestore(StatusError)
		env = ErrorEnvelope(EventLoadReceipt, err.Error())
	} else {
		o.metrics.RecordRestore(StatusSuccess)
		env = DataEnvelope(EventLoadReceipt, base64.StdEncoding.EncodeToString(data))
	}

	o.registry.Deliver(context.WithoutCancel(ctx), env)
	return env
}
