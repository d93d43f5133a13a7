// Package presence tracks which users are currently attached to a
// document and where their cursors sit. Entries are ephemeral: any
// write refreshes the whole document's TTL, and crashed clients are
// reaped by TTL expiry rather than explicit cleanup (spec §4.3).
package presence

import (
	"context"
	"time"
)

// DefaultTTL is the inactivity window after which a document's
// presence entries expire.
const DefaultTTL = 30 * time.Second

// Registry is the ephemeral presence store boundary (spec §6.3).
type Registry interface {
	// Join records userID as present on docID with an initial cursor
	// at 0, refreshing the document's TTL.
	Join(ctx context.Context, docID, userID string) error

	// Leave removes userID from docID's presence set.
	Leave(ctx context.Context, docID, userID string) error

	// UpdateCursor upserts userID's cursor position, refreshing the
	// document's TTL. It does not validate position against document
	// content; it is advisory metadata.
	UpdateCursor(ctx context.Context, docID, userID string, position int) error

	// ListUsers returns the userIDs currently present on docID.
	ListUsers(ctx context.Context, docID string) ([]string, error)

	// GetCursors returns the userID -> cursor position map for docID.
	GetCursors(ctx context.Context, docID string) (map[string]int, error)
}
