// Package notify emits listing lifecycle events to interested consumers.
package notify

import (
	"context"
	"time"

	"github.com/listwatch/listwatch/internal/listing"
)

// Event describes one status change observed during a run.
type Event struct {
	Search   string         `json:"search"`
	RunID    string         `json:"run_id"`
	ItemID   listing.ItemID `json:"item_id"`
	Status   listing.Status `json:"status"`
	Title    string         `json:"title"`
	Price    int            `json:"price,omitempty"`
	OldPrice int            `json:"old_price,omitempty"`
	URL      string         `json:"url,omitempty"`
	At       time.Time      `json:"at"`
}

// Publisher delivers events. Implementations must be safe for concurrent
// use.
type Publisher interface {
	// Publish sends one event and returns the broker-assigned message id.
	Publish(ctx context.Context, event Event) (string, error)
}

// FromEntry builds the event for a reconciled entry. Active entries carry no
// news and yield no event.
func FromEntry(search, runID string, e listing.Entry) (Event, bool) {
	if e.Status == listing.StatusActive {
		return Event{}, false
	}
	ev := Event{
		Search: search,
		RunID:  runID,
		ItemID: e.ItemID,
		Status: e.Status,
		Title:  e.Title,
		Price:  e.Price,
		URL:    e.URL,
		At:     e.LastUpdate,
	}
	if e.Status == listing.StatusUpdated && len(e.Changes) > 0 {
		ev.OldPrice = e.Changes[len(e.Changes)-1].OldPrice
	}
	if e.Status == listing.StatusRemoved && e.RemovedAt != nil {
		ev.At = *e.RemovedAt
	}
	return ev, true
}
