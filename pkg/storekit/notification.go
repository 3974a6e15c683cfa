package storekit

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Notification is the JSON shape of a transaction update pushed by the platform's
// server-to-server channels (webhook, message bus).
type Notification struct {
	Type        string                  `json:"notificationType"`
	Verified    bool                    `json:"verified"`
	Reason      string                  `json:"reason,omitempty"`
	Transaction NotificationTransaction `json:"transaction"`
}

// NotificationTransaction is the transaction part of a Notification.
type NotificationTransaction struct {
	ID              string `json:"id"`
	ProductID       string `json:"productId"`
	AppAccountToken string `json:"appAccountToken,omitempty"`
	PurchaseDateMs  int64  `json:"purchaseDateMs,omitempty"`
}

// ParseNotification decodes and validates a notification body.
func ParseNotification(body []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNotification, err)
	}
	if strings.TrimSpace(n.Transaction.ID) == "" {
		return nil, fmt.Errorf("%w: missing transaction id", ErrInvalidNotification)
	}
	if strings.TrimSpace(n.Transaction.ProductID) == "" {
		return nil, fmt.Errorf("%w: missing product id", ErrInvalidNotification)
	}
	return &n, nil
}

// VerificationResult converts the notification into the observer's input.
func (n *Notification) VerificationResult() VerificationResult {
	tx := Transaction{
		ID:              strings.TrimSpace(n.Transaction.ID),
		ProductID:       strings.TrimSpace(n.Transaction.ProductID),
		AppAccountToken: strings.TrimSpace(n.Transaction.AppAccountToken),
	}
	if n.Transaction.PurchaseDateMs > 0 {
		tx.PurchasedAt = time.UnixMilli(n.Transaction.PurchaseDateMs).UTC()
	}
	if n.Verified {
		return Verified{Transaction: tx}
	}
	reason := n.Reason
	if reason == "" {
		reason = "unverified transaction"
	}
	return Unverified{Transaction: tx, Err: errors.New(reason)}
}
