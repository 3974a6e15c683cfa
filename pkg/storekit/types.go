package storekit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Product is a catalog entry resolved by the platform.
type Product struct {
	ID          string
	DisplayName string
	Price       string
}

// PurchaseRequest is a single caller-initiated purchase. It is consumed exactly once.
type PurchaseRequest struct {
	AccountToken string
	ProductID    string
}

// PurchaseOptions are attached to the platform purchase submission.
type PurchaseOptions struct {
	AppAccountToken uuid.UUID
}

// Transaction is one purchase grant reported by the platform.
type Transaction struct {
	ID              string
	ProductID       string
	AppAccountToken string
	PurchasedAt     time.Time
}

// PurchaseResult is the closed set of shapes the platform answers a purchase submission with.
// PurchaseUnknown stands in for shapes a platform adapter could not decode.
type PurchaseResult interface {
	isPurchaseResult()
}

// PurchaseSucceeded carries the verification result of a completed purchase.
type PurchaseSucceeded struct {
	Verification VerificationResult
}

// PurchaseUserCancelled reports that the user dismissed the purchase.
type PurchaseUserCancelled struct{}

// PurchasePending reports that the purchase awaits external approval.
type PurchasePending struct{}

// PurchaseUnknown is a result shape this version does not understand.
type PurchaseUnknown struct {
	Kind string
}

func (PurchaseSucceeded) isPurchaseResult()     {}
func (PurchaseUserCancelled) isPurchaseResult() {}
func (PurchasePending) isPurchaseResult()       {}
func (PurchaseUnknown) isPurchaseResult()       {}

// VerificationResult is the platform's verdict on a signed transaction.
type VerificationResult interface {
	isVerificationResult()
}

// Verified wraps a transaction whose signature checked out.
type Verified struct {
	Transaction Transaction
}

// Unverified wraps a transaction that failed verification.
type Unverified struct {
	Transaction Transaction
	Err         error
}

func (Verified) isVerificationResult()   {}
func (Unverified) isVerificationResult() {}

// Outcome statuses, shared by metrics and the wire payload.
const (
	StatusSuccess            = "success"
	StatusCancelled          = "cancelled"
	StatusPending            = "pending"
	StatusVerificationFailed = "verification_failed"
	StatusError              = "error"
)

// Outcome is the terminal classification of one purchase attempt.
// Exactly one of Success, Cancelled, Pending, VerificationFailed or Failure is produced.
type Outcome interface {
	Status() string
	isOutcome()
}

// Success is a verified, granted purchase.
type Success struct {
	TransactionID string
	ProductID     string
	ReceiptBase64 string
}

// Cancelled means the user cancelled the purchase.
type Cancelled struct{}

// Pending means the purchase awaits approval; the grant arrives later as an observed transaction.
type Pending struct{}

// VerificationFailed means the platform could not verify the transaction.
type VerificationFailed struct {
	Reason string
}

// Failure is an input, system or forward-compatibility error.
type Failure struct {
	Message string
}

func (Success) Status() string            { return StatusSuccess }
func (Cancelled) Status() string          { return StatusCancelled }
func (Pending) Status() string            { return StatusPending }
func (VerificationFailed) Status() string { return StatusVerificationFailed }
func (Failure) Status() string            { return StatusError }

func (Success) isOutcome()            {}
func (Cancelled) isOutcome()          {}
func (Pending) isOutcome()            {}
func (VerificationFailed) isOutcome() {}
func (Failure) isOutcome()            {}

// failure builds a Failure from an error, keeping sentinel messages verbatim.
func failure(err error) Failure {
	return Failure{Message: err.Error()}
}

// platformFailure builds a Failure for errors raised by a platform call.
func platformFailure(err error) Failure {
	return Failure{Message: fmt.Sprintf("Error: %v", err)}
}

// OutcomeEnvelope renders an outcome as the PURCHASE envelope for productID.
func OutcomeEnvelope(outcome Outcome, productID string) (Envelope, error) {
	switch o := outcome.(type) {
	case Success:
		data, err := marshalPayload(successPayload{
			Status:        StatusSuccess,
			ReceiptData:   o.ReceiptBase64,
			TransactionID: o.TransactionID,
			ProductID:     o.ProductID,
		})
		if err != nil {
			return Envelope{}, err
		}
		return DataEnvelope(EventPurchase, data), nil
	case Cancelled, Pending:
		data, err := marshalPayload(statusPayload{Status: o.Status(), ProductID: productID})
		if err != nil {
			return Envelope{}, err
		}
		return DataEnvelope(EventPurchase, data), nil
	case VerificationFailed:
		if o.Reason == "" {
			return ErrorEnvelope(EventPurchase, "Verification failed"), nil
		}
		return ErrorEnvelope(EventPurchase, "Verification failed: "+o.Reason), nil
	case Failure:
		return ErrorEnvelope(EventPurchase, o.Message), nil
	default:
		return ErrorEnvelope(EventPurchase, ErrUnknownPurchaseResult.Error()), nil
	}
}
