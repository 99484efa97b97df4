// Package listing defines the core types shared across subsystems.
package listing

import (
	"errors"
	"time"
)

// ErrBlocked reports that the remote site detected automated access and
// served a verification challenge instead of the requested page. It is the
// only fetch error that changes scheduler control flow; everything else is
// absorbed per item.
var ErrBlocked = errors.New("blocked by remote verification")

// ItemID is the remote catalog's opaque, stable listing identifier.
type ItemID string

// Status represents the lifecycle state of a tracked listing.
type Status string

// Status values persisted in snapshot documents.
const (
	StatusNew     Status = "new"
	StatusActive  Status = "active"
	StatusUpdated Status = "updated"
	StatusRemoved Status = "removed"
)

// Statuses enumerates every lifecycle status in reporting order.
func Statuses() []Status {
	return []Status{StatusNew, StatusActive, StatusUpdated, StatusRemoved}
}

// TargetRef is one feed entry: the listing id plus the dereferenceable page
// URL and whatever summary fields the feed exposed. Feed fields act as
// fallbacks when page extraction comes up empty.
type TargetRef struct {
	ID      ItemID `json:"item_id"`
	URL     string `json:"url"`
	Title   string `json:"title,omitempty"`
	Price   int    `json:"price,omitempty"`
	Year    int    `json:"year,omitempty"`
	Hand    int    `json:"hand,omitempty"`
	Private bool   `json:"is_private,omitempty"`
}

// Listing is the best-effort field record extracted from one listing page.
// Fields may be empty; extraction never guarantees completeness.
type Listing struct {
	ItemID        ItemID            `json:"item_id"`
	URL           string            `json:"url"`
	Title         string            `json:"title,omitempty"`
	MarketingName string            `json:"marketing_name,omitempty"`
	Price         int               `json:"price,omitempty"`
	PriceText     string            `json:"price_str,omitempty"`
	Year          string            `json:"year,omitempty"`
	Hand          string            `json:"hand,omitempty"`
	Mileage       string            `json:"mileage,omitempty"`
	Location      string            `json:"location,omitempty"`
	Description   string            `json:"description,omitempty"`
	Specs         map[string]string `json:"specs,omitempty"`
	Images        []string          `json:"images,omitempty"`
}

// PriceChange records one observed before/after of the price field.
type PriceChange struct {
	At       time.Time `json:"at"`
	OldPrice int       `json:"old_price"`
	NewPrice int       `json:"new_price"`
}

// Entry is a reconciled listing as persisted in a snapshot: the raw record
// plus lifecycle metadata. Only the reconciliation engine creates or mutates
// entries.
type Entry struct {
	Listing

	Status      Status        `json:"status"`
	Fingerprint string        `json:"content_hash"`
	FirstSeen   time.Time     `json:"first_seen"`
	LastUpdate  time.Time     `json:"last_update"`
	UpdateCount int           `json:"update_count"`
	RemovedAt   *time.Time    `json:"removed_at,omitempty"`
	Changes     []PriceChange `json:"changes,omitempty"`
}

// Snapshot is the full reconciled view of one tracked search, as written to
// durable storage after each run.
type Snapshot struct {
	SearchName string         `json:"search_name,omitempty"`
	SearchURL  string         `json:"search_url"`
	LastRun    time.Time      `json:"last_run"`
	RunID      string         `json:"run_id,omitempty"`
	Complete   bool           `json:"complete"`
	Total      int            `json:"total"`
	Totals     map[Status]int `json:"totals,omitempty"`
	Entries    []Entry        `json:"listings"`
}

// ByID indexes the snapshot's entries.
func (s Snapshot) ByID() map[ItemID]Entry {
	out := make(map[ItemID]Entry, len(s.Entries))
	for _, e := range s.Entries {
		out[e.ItemID] = e
	}
	return out
}
