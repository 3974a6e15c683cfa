package storekit

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// EventKind identifies the operation an envelope reports on.
type EventKind string

const (
	// EventPurchase reports the terminal outcome of a purchase request.
	EventPurchase EventKind = "PURCHASE"
	// EventLoadReceipt reports the receipt state after a restore.
	EventLoadReceipt EventKind = "LOAD_RECEIPT"
	// EventUnlockProduct reports a transaction observed outside a direct purchase call.
	EventUnlockProduct EventKind = "UNLOCK_PRODUCT"
)

// Envelope is the uniform outcome record handed to the foreign caller.
// A terminal envelope carries either Data or Error, never both.
type Envelope struct {
	Event EventKind `json:"event"`
	Data  *string   `json:"data"`
	Error *string   `json:"error"`
}

// DataEnvelope builds a successful envelope.
func DataEnvelope(event EventKind, data string) Envelope {
	return Envelope{Event: event, Data: &data}
}

// ErrorEnvelope builds a failed envelope.
func ErrorEnvelope(event EventKind, message string) Envelope {
	return Envelope{Event: event, Error: &message}
}

// Failed reports whether the envelope carries an error.
func (e Envelope) Failed() bool {
	return e.Error != nil
}

// Encode serializes the envelope into the UTF-8 JSON understood by the foreign caller:
// {"event": string, "data": string|null, "error": string|null}.
func Encode(env Envelope) ([]byte, error) {
	if env.Event == "" {
		return nil, fmt.Errorf("%w: missing event", ErrUnrepresentable)
	}
	if env.Data != nil && !utf8.ValidString(*env.Data) {
		return nil, fmt.Errorf("%w: data of %s", ErrUnrepresentable, env.Event)
	}
	if env.Error != nil && !utf8.ValidString(*env.Error) {
		return nil, fmt.Errorf("%w: error of %s", ErrUnrepresentable, env.Event)
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return out, nil
}

// marshalPayload renders one of the payload structs below as the envelope's data string.
func marshalPayload(v interface{}) (string, error) {
	out, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// successPayload keeps receipt-data present even when no receipt could be loaded.
type successPayload struct {
	Status        string `json:"status"`
	ReceiptData   string `json:"receipt-data"`
	TransactionID string `json:"transaction-id"`
	ProductID     string `json:"productId"`
}

type statusPayload struct {
	Status    string `json:"status"`
	ProductID string `json:"productId"`
}

type unlockPayload struct {
	ProductID       string `json:"productId"`
	AppAccountToken string `json:"appAccountToken"`
	TransactionID   string `json:"transactionId"`
}
