// Package reconcile classifies fetched listings against the prior snapshot.
package reconcile

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/listwatch/listwatch/internal/listing"
)

// Run carries the state of one reconciliation pass: the read-only prior
// snapshot, the ids confirmed present so far, and the merged entries. Merge
// calls must be serialized by the caller; the scheduler's completion loop
// already delivers results one at a time.
type Run struct {
	prior    map[listing.ItemID]listing.Entry
	firstRun bool
	now      time.Time
	fp       listing.Fingerprinter
	logger   *zap.Logger

	seen   map[listing.ItemID]struct{}
	merged map[listing.ItemID]listing.Entry
}

// NewRun starts a reconciliation pass. firstRun marks the catalog's very
// first observed run, in which unseen listings classify as active rather
// than new so a fresh bootstrap does not report the whole catalog as noise.
func NewRun(
	prior map[listing.ItemID]listing.Entry,
	firstRun bool,
	now time.Time,
	fp listing.Fingerprinter,
	logger *zap.Logger,
) *Run {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Run{
		prior:    prior,
		firstRun: firstRun,
		now:      now,
		fp:       fp,
		logger:   logger,
		seen:     make(map[listing.ItemID]struct{}),
		merged:   make(map[listing.ItemID]listing.Entry),
	}
}

// Merge classifies one successfully fetched listing and records it as seen.
// It returns the resulting entry.
func (r *Run) Merge(l listing.Listing) listing.Entry {
	fp := r.fp.Fingerprint(l)
	prior, known := r.prior[l.ItemID]

	var entry listing.Entry
	switch {
	case !known:
		entry = r.mergeUnseen(l, fp)
	case prior.Fingerprint == fp:
		entry = r.mergeUnchanged(l, fp, prior)
	default:
		entry = r.mergeChanged(l, fp, prior)
	}

	r.seen[l.ItemID] = struct{}{}
	r.merged[l.ItemID] = entry
	return entry
}

func (r *Run) mergeUnseen(l listing.Listing, fp string) listing.Entry {
	status := listing.StatusNew
	if r.firstRun {
		status = listing.StatusActive
	}
	return listing.Entry{
		Listing:     l,
		Status:      status,
		Fingerprint: fp,
		FirstSeen:   r.now,
		LastUpdate:  r.now,
		UpdateCount: 0,
	}
}

func (r *Run) mergeUnchanged(l listing.Listing, fp string, prior listing.Entry) listing.Entry {
	return listing.Entry{
		Listing:     l,
		Status:      listing.StatusActive,
		Fingerprint: fp,
		FirstSeen:   prior.FirstSeen,
		LastUpdate:  prior.LastUpdate,
		UpdateCount: prior.UpdateCount,
		Changes:     prior.Changes,
	}
}

func (r *Run) mergeChanged(l listing.Listing, fp string, prior listing.Entry) listing.Entry {
	changes := prior.Changes
	if l.Price != prior.Price {
		changes = append(changes, listing.PriceChange{
			At:       r.now,
			OldPrice: prior.Price,
			NewPrice: l.Price,
		})
	}
	r.logger.Info("listing updated",
		zap.String("item_id", string(l.ItemID)),
		zap.Int("old_price", prior.Price),
		zap.Int("new_price", l.Price),
	)
	return listing.Entry{
		Listing:     l,
		Status:      listing.StatusUpdated,
		Fingerprint: fp,
		FirstSeen:   prior.FirstSeen,
		LastUpdate:  r.now,
		UpdateCount: prior.UpdateCount + 1,
		Changes:     changes,
	}
}

// Seen reports whether the id has been confirmed present this run.
func (r *Run) Seen(id listing.ItemID) bool {
	_, ok := r.seen[id]
	return ok
}

// Interim returns the current merged entries plus every prior entry not yet
// seen, unchanged. Used for mid-run durability; no removal marking happens
// here because the run is not finished.
func (r *Run) Interim() []listing.Entry {
	entries := make([]listing.Entry, 0, len(r.prior)+len(r.merged))
	for _, e := range r.merged {
		entries = append(entries, e)
	}
	for id, e := range r.prior {
		if _, ok := r.seen[id]; !ok {
			entries = append(entries, e)
		}
	}
	sortEntries(entries)
	return entries
}

// Finalize closes the run: prior entries never seen this run transition to
// removed (already-removed ones keep their original removal timestamp) and
// stay in the output. The result is sorted by item id so identical inputs
// produce identical snapshots.
func (r *Run) Finalize() []listing.Entry {
	entries := make([]listing.Entry, 0, len(r.prior)+len(r.merged))
	for _, e := range r.merged {
		entries = append(entries, e)
	}
	for id, e := range r.prior {
		if _, ok := r.seen[id]; ok {
			continue
		}
		if e.Status != listing.StatusRemoved {
			removedAt := r.now
			e.Status = listing.StatusRemoved
			e.RemovedAt = &removedAt
			r.logger.Info("listing removed",
				zap.String("item_id", string(id)),
				zap.String("title", e.Title),
			)
		}
		entries = append(entries, e)
	}
	sortEntries(entries)
	return entries
}

// Totals counts entries per status.
func Totals(entries []listing.Entry) map[listing.Status]int {
	totals := make(map[listing.Status]int, 4)
	for _, e := range entries {
		totals[e.Status]++
	}
	return totals
}

func sortEntries(entries []listing.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ItemID < entries[j].ItemID
	})
}
