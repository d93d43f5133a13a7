// Package store defines the durable document record store boundary
// (spec §6.3) and a PostgreSQL-backed implementation. The store knows
// nothing about operations or transforms; it persists and returns
// whole {content, version} snapshots keyed by document id.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no record exists for the id.
var ErrNotFound = errors.New("store: document not found")

// Record is a document's durable snapshot.
type Record struct {
	Content   string
	Version   int
	UpdatedAt time.Time
}

// Store is the durable document record store.
type Store interface {
	// Get fetches the record for docID, or ErrNotFound.
	Get(ctx context.Context, docID string) (Record, error)

	// UpsertByID writes rec as the record for docID, creating it if
	// absent.
	UpsertByID(ctx context.Context, docID string, rec Record) error

	// Create inserts a new record with a generated id and returns it.
	Create(ctx context.Context, rec Record) (docID string, err error)
}
