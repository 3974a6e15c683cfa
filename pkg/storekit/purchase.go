package storekit

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Orchestrator drives purchase and restore pipelines to a terminal envelope.
// Every pipeline delivers exactly one envelope through the registry.
type Orchestrator struct {
	store     Store
	receipts  *ReceiptLoader
	finalizer *Finalizer
	registry  *CallbackRegistry
	logger    Logger
	metrics   Metrics
}

// Purchase runs one purchase attempt and delivers its PURCHASE envelope.
//
// Steps: eligibility, product resolution, account token validation, submission,
// classification, and for verified purchases receipt retrieval. Finalization runs once the
// Success envelope has been built, before it is delivered.
// Once submitted, the purchase is no longer bound to ctx cancellation: it runs to a
// terminal outcome and the caller may only ignore the delivery.
func (o *Orchestrator) Purchase(ctx context.Context, req PurchaseRequest) Outcome {
	start := time.Now()
	outcome, tx := o.purchase(ctx, req)

	env, err := OutcomeEnvelope(outcome, req.ProductID)
	if err != nil {
		// Payload rendering failed; deliver the failure instead of nothing.
		o.logger.Error("failed to render purchase outcome", errField(err))
		outcome = failure(err)
		env = ErrorEnvelope(EventPurchase, err.Error())
	} else if _, ok := outcome.(Success); ok {
		// A failed finish leaves the transaction to be redelivered by the platform and
		// does not revoke the grant.
		if _, err := o.finalizer.Finish(context.WithoutCancel(ctx), tx); err != nil {
			o.logger.Error("failed to finalize purchased transaction",
				Field{Key: "transaction_id", Value: tx.ID}, errField(err))
		}
	}

	// Deliver on a context that outlives the caller so the terminal envelope is not lost.
	o.registry.Deliver(context.WithoutCancel(ctx), env)

	o.metrics.RecordPurchase(req.ProductID, outcome.Status())
	o.metrics.RecordPurchaseDuration(outcome.Status(), time.Since(start))
	o.logger.Info("purchase completed",
		Field{Key: "product_id", Value: req.ProductID},
		Field{Key: "status", Value: outcome.Status()})
	return outcome
}

// purchase runs steps 1 to 6. The transaction is only set for a Success outcome.
func (o *Orchestrator) purchase(ctx context.Context, req PurchaseRequest) (Outcome, Transaction) {
	// 1. Eligibility
	if !o.store.CanMakePayments(ctx) {
		return failure(ErrPurchasesDisabled), Transaction{}
	}

	// 2. Resolution
	products, err := o.store.Products(ctx, []string{req.ProductID})
	if err != nil {
		return platformFailure(err), Transaction{}
	}
	product, ok := findProduct(products, req.ProductID)
	if !ok {
		return failure(ErrProductNotFound), Transaction{}
	}

	// 3. Identity validation
	token, err := uuid.Parse(req.AccountToken)
	if err != nil {
		return failure(ErrInvalidAccountToken), Transaction{}
	}

	// 4. Submission
	submitCtx := context.WithoutCancel(ctx)
	result, err := o.store.Purchase(submitCtx, product, PurchaseOptions{AppAccountToken: token})
	if err != nil {
		return platformFailure(err), Transaction{}
	}

	// 5. Classification
	tx, outcome := classify(result)
	if outcome != nil {
		return outcome, Transaction{}
	}

	// 6. Receipt retrieval; a missing receipt does not fail a confirmed grant.
	receipt := ""
	if data, err := o.receipts.Load(submitCtx); err == nil {
		receipt = base64.StdEncoding.EncodeToString(data)
	} else {
		o.logger.Warn("purchase succeeded without receipt",
			Field{Key: "transaction_id", Value: tx.ID}, errField(err))
	}

	return Success{
		TransactionID: tx.ID,
		ProductID:     req.ProductID,
		ReceiptBase64: receipt,
	}, tx
}

// classify reduces a platform result to an outcome. It returns the verified transaction
// and a nil outcome when the pipeline should continue to receipt retrieval.
func classify(result PurchaseResult) (Transaction, Outcome) {
	switch r := result.(type) {
	case PurchaseSucceeded:
		switch v := r.Verification.(type) {
		case Verified:
			if strings.TrimSpace(v.Transaction.ID) == "" {
				return Transaction{}, failure(ErrUnknownPurchaseResult)
			}
			return v.Transaction, nil
		case Unverified:
			if v.Err != nil {
				return Transaction{}, VerificationFailed{Reason: v.Err.Error()}
			}
			return Transaction{}, VerificationFailed{}
		default:
			return Transaction{}, VerificationFailed{}
		}
	case PurchaseUserCancelled:
		return Transaction{}, Cancelled{}
	case PurchasePending:
		return Transaction{}, Pending{}
	default:
		return Transaction{}, failure(ErrUnknownPurchaseResult)
	}
}

func findProduct(products []Product, id string) (Product, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}
