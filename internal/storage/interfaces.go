// Package storage defines persistence interfaces for ledger entries and
// provides the ClickHouse-backed implementation used by the API server.
package storage

import (
	"context"
	"io"

	"github.com/RyanBruno/arb-gnucash-importer/internal/models"
)

// EntryStore persists exported ledger entries for later querying.
type EntryStore interface {
	// InsertEntries stores a batch of ledger entries.
	InsertEntries(ctx context.Context, entries []models.LedgerEntry) error

	// RecentEntries retrieves up to limit entries, newest block first.
	RecentEntries(ctx context.Context, limit int) ([]models.LedgerEntry, error)

	// Ping checks if the store is reachable.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	io.Closer
}
