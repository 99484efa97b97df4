package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/listwatch/listwatch/internal/fingerprint"
	"github.com/listwatch/listwatch/internal/listing"
)

var now = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func fetched(id string, price int) listing.Listing {
	return listing.Listing{
		ItemID:      listing.ItemID(id),
		URL:         "https://example.com/item/" + id,
		Title:       "listing " + id,
		Price:       price,
		Mileage:     "50,000",
		Location:    "Tel Aviv",
		Description: "well kept",
	}
}

func priorEntry(id string, price int, status listing.Status) listing.Entry {
	l := fetched(id, price)
	return listing.Entry{
		Listing:     l,
		Status:      status,
		Fingerprint: fingerprint.New().Fingerprint(l),
		FirstSeen:   now.Add(-72 * time.Hour),
		LastUpdate:  now.Add(-72 * time.Hour),
		UpdateCount: 2,
	}
}

func TestMergeFirstRunBootstrapsActive(t *testing.T) {
	t.Parallel()

	run := NewRun(map[listing.ItemID]listing.Entry{}, true, now, fingerprint.New(), nil)

	entry := run.Merge(fetched("aaa", 100))
	require.Equal(t, listing.StatusActive, entry.Status)
	require.Equal(t, 0, entry.UpdateCount)
	require.Equal(t, now, entry.FirstSeen)
}

func TestMergeUnknownIDIsNew(t *testing.T) {
	t.Parallel()

	prior := map[listing.ItemID]listing.Entry{"aaa": priorEntry("aaa", 100, listing.StatusActive)}
	run := NewRun(prior, false, now, fingerprint.New(), nil)

	entry := run.Merge(fetched("bbb", 500))
	require.Equal(t, listing.StatusNew, entry.Status)
	require.Equal(t, 0, entry.UpdateCount)
}

func TestMergeUnchangedStaysActive(t *testing.T) {
	t.Parallel()

	prior := map[listing.ItemID]listing.Entry{"aaa": priorEntry("aaa", 100, listing.StatusUpdated)}
	run := NewRun(prior, false, now, fingerprint.New(), nil)

	entry := run.Merge(fetched("aaa", 100))
	require.Equal(t, listing.StatusActive, entry.Status)
	require.Equal(t, prior["aaa"].UpdateCount, entry.UpdateCount)
	require.Equal(t, prior["aaa"].FirstSeen, entry.FirstSeen)
	require.Equal(t, prior["aaa"].LastUpdate, entry.LastUpdate)
}

func TestMergePriceChangeIsUpdated(t *testing.T) {
	t.Parallel()

	prior := map[listing.ItemID]listing.Entry{"aaa": priorEntry("aaa", 100, listing.StatusActive)}
	run := NewRun(prior, false, now, fingerprint.New(), nil)

	entry := run.Merge(fetched("aaa", 120))
	require.Equal(t, listing.StatusUpdated, entry.Status)
	require.Equal(t, prior["aaa"].UpdateCount+1, entry.UpdateCount)
	require.Equal(t, now, entry.LastUpdate)
	require.Equal(t, prior["aaa"].FirstSeen, entry.FirstSeen)
	require.NotEqual(t, prior["aaa"].Fingerprint, entry.Fingerprint)
	require.Len(t, entry.Changes, 1)
	require.Equal(t, 100, entry.Changes[0].OldPrice)
	require.Equal(t, 120, entry.Changes[0].NewPrice)
}

func TestFinalizeMarksUnseenRemoved(t *testing.T) {
	t.Parallel()

	prior := map[listing.ItemID]listing.Entry{
		"a": priorEntry("a", 1, listing.StatusActive),
		"b": priorEntry("b", 2, listing.StatusActive),
		"c": priorEntry("c", 3, listing.StatusActive),
	}
	run := NewRun(prior, false, now, fingerprint.New(), nil)
	run.Merge(fetched("a", 1))
	run.Merge(fetched("b", 2))

	entries := run.Finalize()
	require.Len(t, entries, 3)

	byID := map[listing.ItemID]listing.Entry{}
	for _, e := range entries {
		byID[e.ItemID] = e
	}
	require.Equal(t, listing.StatusActive, byID["a"].Status)
	require.Equal(t, listing.StatusActive, byID["b"].Status)
	require.Equal(t, listing.StatusRemoved, byID["c"].Status)
	require.NotNil(t, byID["c"].RemovedAt)
	require.Equal(t, now, *byID["c"].RemovedAt)
}

func TestFinalizeKeepsRemovedTimestamp(t *testing.T) {
	t.Parallel()

	removedAt := now.Add(-48 * time.Hour)
	gone := priorEntry("gone", 9, listing.StatusRemoved)
	gone.RemovedAt = &removedAt

	run := NewRun(map[listing.ItemID]listing.Entry{"gone": gone}, false, now, fingerprint.New(), nil)
	entries := run.Finalize()

	require.Len(t, entries, 1)
	require.Equal(t, listing.StatusRemoved, entries[0].Status)
	require.Equal(t, removedAt, *entries[0].RemovedAt)
}

func TestMergeReactivatesRemovedEntry(t *testing.T) {
	t.Parallel()

	removedAt := now.Add(-24 * time.Hour)
	gone := priorEntry("back", 100, listing.StatusRemoved)
	gone.RemovedAt = &removedAt

	run := NewRun(map[listing.ItemID]listing.Entry{"back": gone}, false, now, fingerprint.New(), nil)
	entry := run.Merge(fetched("back", 100))

	require.Equal(t, listing.StatusActive, entry.Status)
	require.Nil(t, entry.RemovedAt)
	require.Equal(t, gone.FirstSeen, entry.FirstSeen)
	require.Equal(t, gone.UpdateCount, entry.UpdateCount)
}

func TestReconcileIdempotent(t *testing.T) {
	t.Parallel()

	prior := map[listing.ItemID]listing.Entry{
		"a": priorEntry("a", 1, listing.StatusActive),
		"b": priorEntry("b", 2, listing.StatusUpdated),
	}

	runOnce := func() []listing.Entry {
		run := NewRun(prior, false, now, fingerprint.New(), nil)
		// Input order must not matter.
		run.Merge(fetched("b", 2))
		run.Merge(fetched("a", 1))
		return run.Finalize()
	}

	first := runOnce()
	second := runOnce()
	require.Equal(t, first, second)
	for _, e := range first {
		require.Equal(t, listing.StatusActive, e.Status)
		require.Equal(t, prior[e.ItemID].UpdateCount, e.UpdateCount)
		require.Equal(t, prior[e.ItemID].FirstSeen, e.FirstSeen)
	}
}

func TestInterimKeepsUnseenPriorEntries(t *testing.T) {
	t.Parallel()

	prior := map[listing.ItemID]listing.Entry{
		"a": priorEntry("a", 1, listing.StatusActive),
		"b": priorEntry("b", 2, listing.StatusActive),
	}
	run := NewRun(prior, false, now, fingerprint.New(), nil)
	run.Merge(fetched("a", 5))

	entries := run.Interim()
	require.Len(t, entries, 2)
	byID := map[listing.ItemID]listing.Entry{}
	for _, e := range entries {
		byID[e.ItemID] = e
	}
	// Unseen prior entry carried unchanged, not marked removed.
	require.Equal(t, listing.StatusActive, byID["b"].Status)
	require.Nil(t, byID["b"].RemovedAt)
	require.Equal(t, listing.StatusUpdated, byID["a"].Status)
}

func TestTotals(t *testing.T) {
	t.Parallel()

	entries := []listing.Entry{
		{Status: listing.StatusNew},
		{Status: listing.StatusActive},
		{Status: listing.StatusActive},
		{Status: listing.StatusRemoved},
	}
	totals := Totals(entries)
	require.Equal(t, 1, totals[listing.StatusNew])
	require.Equal(t, 2, totals[listing.StatusActive])
	require.Equal(t, 0, totals[listing.StatusUpdated])
	require.Equal(t, 1, totals[listing.StatusRemoved])
}
