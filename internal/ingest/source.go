package ingest

import (
	"context"

	"rental-sync-backend/internal/normalize"
)

// Source delivers one feed's current set of booking observations.
// Implementations own transport and decoding; they never touch the store.
// Fetch must return an error (and no partial data) when the feed could not
// be read completely, so that absence detection never runs against a
// truncated snapshot.
type Source interface {
	ID() string
	Fetch(ctx context.Context) ([]normalize.RawObservation, error)
}
