package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/listwatch/listwatch/internal/listing"
)

func TestFromEntrySkipsActive(t *testing.T) {
	t.Parallel()

	_, ok := FromEntry("corolla", "run-1", listing.Entry{
		Listing: listing.Listing{ItemID: "a"},
		Status:  listing.StatusActive,
	})
	require.False(t, ok)
}

func TestFromEntryNew(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	ev, ok := FromEntry("corolla", "run-1", listing.Entry{
		Listing:    listing.Listing{ItemID: "a", Title: "Toyota Corolla", Price: 95000, URL: "https://example.com/item/a"},
		Status:     listing.StatusNew,
		LastUpdate: now,
	})
	require.True(t, ok)
	require.Equal(t, listing.StatusNew, ev.Status)
	require.Equal(t, "corolla", ev.Search)
	require.Equal(t, "run-1", ev.RunID)
	require.Equal(t, 95000, ev.Price)
	require.Equal(t, now, ev.At)
	require.Zero(t, ev.OldPrice)
}

func TestFromEntryUpdatedCarriesOldPrice(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	ev, ok := FromEntry("corolla", "run-1", listing.Entry{
		Listing: listing.Listing{ItemID: "a", Price: 90000},
		Status:  listing.StatusUpdated,
		Changes: []listing.PriceChange{
			{At: now.Add(-time.Hour), OldPrice: 99000, NewPrice: 95000},
			{At: now, OldPrice: 95000, NewPrice: 90000},
		},
		LastUpdate: now,
	})
	require.True(t, ok)
	require.Equal(t, 95000, ev.OldPrice)
	require.Equal(t, 90000, ev.Price)
}

func TestFromEntryRemovedUsesRemovalTime(t *testing.T) {
	t.Parallel()

	removed := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	ev, ok := FromEntry("corolla", "run-1", listing.Entry{
		Listing:   listing.Listing{ItemID: "a"},
		Status:    listing.StatusRemoved,
		RemovedAt: &removed,
	})
	require.True(t, ok)
	require.Equal(t, removed, ev.At)
}
