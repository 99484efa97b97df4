package listing

import (
	"context"
	"time"
)

// Source fetches one listing page. A Blocked verification page is reported
// as an error matching ErrBlocked; every other error is a per-item failure.
// Fetching the same reference twice is harmless.
type Source interface {
	Fetch(ctx context.Context, ref TargetRef) (Listing, error)
	Close() error
}

// SourceFactory builds a Source bound to a fresh execution context (a new
// browser identity). The scheduler discards and recreates sources when the
// remote starts serving verification pages.
type SourceFactory interface {
	New(ctx context.Context) (Source, error)
}

// SnapshotStore loads and saves the reconciled view of a search. Load
// returns an empty map, not an error, when no usable prior state exists.
type SnapshotStore interface {
	Load(ctx context.Context, search string) (map[ItemID]Entry, error)
	Save(ctx context.Context, search string, snap Snapshot) error
}

// Fingerprinter computes the change-detection digest for a listing.
type Fingerprinter interface {
	Fingerprint(l Listing) string
}

// Clock returns the current time (swappable in tests).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
