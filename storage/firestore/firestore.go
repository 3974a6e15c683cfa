// Package firestore provides a Firestore implementation of the storekit.Ledger interface.
// Each claim is a document keyed by transaction id, created with Create so a second claim
// fails with AlreadyExists.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Ledger implements storekit.Ledger using Google Cloud Firestore
type Ledger struct {
	client     *firestore.Client
	collection string
}

// Config holds Firestore ledger configuration
type Config struct {
	// Collection is the Firestore collection for claims
	// Default: "storekit_finalized_transactions"
	Collection string
}

type claimDoc struct {
	TransactionID string    `firestore:"transactionId"`
	FinalizedAt   time.Time `firestore:"finalizedAt"`
}

// New creates a new Firestore ledger
func New(client *firestore.Client, config Config) (*Ledger, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}
	if config.Collection == "" {
		config.Collection = "storekit_finalized_transactions"
	}
	return &Ledger{client: client, collection: config.Collection}, nil
}

// Claim implements storekit.Ledger
func (l *Ledger) Claim(ctx context.Context, txID string) (bool, error) {
	if txID == "" {
		return false, fmt.Errorf("transaction id is required")
	}
	_, err := l.client.Collection(l.collection).Doc(txID).Create(ctx, claimDoc{
		TransactionID: txID,
		FinalizedAt:   time.Now().UTC(),
	})
	if status.Code(err) == codes.AlreadyExists {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to claim transaction %s: %w", txID, err)
	}
	return true, nil
}

// Release implements storekit.Ledger
func (l *Ledger) Release(ctx context.Context, txID string) error {
	_, err := l.client.Collection(l.collection).Doc(txID).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to release transaction %s: %w", txID, err)
	}
	return nil
}

// ClaimedAt returns when txID was claimed, or the zero time when it is not.
func (l *Ledger) ClaimedAt(ctx context.Context, txID string) (time.Time, error) {
	snap, err := l.client.Collection(l.collection).Doc(txID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read claim for %s: %w", txID, err)
	}
	var doc claimDoc
	if err := snap.DataTo(&doc); err != nil {
		return time.Time{}, fmt.Errorf("failed to decode claim for %s: %w", txID, err)
	}
	return doc.FinalizedAt, nil
}
