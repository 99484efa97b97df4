// Package worker orchestrates one full synchronization of a tracked search:
// enumerate the feed, fetch every listing, reconcile against the prior
// snapshot, persist, and emit events.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/listwatch/listwatch/internal/listing"
	"github.com/listwatch/listwatch/internal/metrics"
	"github.com/listwatch/listwatch/internal/notify"
	"github.com/listwatch/listwatch/internal/reconcile"
	"github.com/listwatch/listwatch/internal/scheduler"
)

// Enumerator lists the target references of one search feed.
type Enumerator interface {
	Refs(ctx context.Context, searchURL string) ([]listing.TargetRef, error)
}

// Fetcher drives the per-listing fetch pool. *scheduler.Scheduler satisfies
// it.
type Fetcher interface {
	OnResult(fn func(listing.Listing))
	Run(ctx context.Context, refs []listing.TargetRef) (*scheduler.Result, error)
}

// FetcherFactory builds one Fetcher per run, so concurrent runs never share
// result observers.
type FetcherFactory func() Fetcher

// Archiver stores a dated copy of a finished snapshot.
type Archiver interface {
	Archive(ctx context.Context, search string, snap listing.Snapshot) (string, error)
}

// Search names one tracked feed.
type Search struct {
	Name string
	URL  string
}

// Config controls run behavior.
type Config struct {
	// SaveEvery persists the interim snapshot after this many merged
	// results. Zero disables interim saves.
	SaveEvery int
}

// Worker runs synchronizations for a fixed set of searches.
type Worker struct {
	searches   []Search
	enumerator Enumerator
	fetchers   FetcherFactory
	store      listing.SnapshotStore
	fp         listing.Fingerprinter
	clock      listing.Clock
	ids        listing.IDGenerator
	events     notify.Publisher
	archiver   Archiver
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker. events and archiver may be nil.
func New(
	searches []Search,
	enumerator Enumerator,
	fetchers FetcherFactory,
	store listing.SnapshotStore,
	fp listing.Fingerprinter,
	clock listing.Clock,
	ids listing.IDGenerator,
	events notify.Publisher,
	archiver Archiver,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		searches:   searches,
		enumerator: enumerator,
		fetchers:   fetchers,
		store:      store,
		fp:         fp,
		clock:      clock,
		ids:        ids,
		events:     events,
		archiver:   archiver,
		cfg:        cfg,
		logger:     logger,
	}
}

// Searches returns the tracked searches.
func (w *Worker) Searches() []Search {
	return w.searches
}

// Sync runs one synchronization for the named search.
func (w *Worker) Sync(ctx context.Context, name string) (listing.Snapshot, error) {
	for _, s := range w.searches {
		if s.Name == name {
			return w.SyncSearch(ctx, s)
		}
	}
	return listing.Snapshot{}, fmt.Errorf("unknown search %q", name)
}

// SyncSearch runs one synchronization end to end. On retry-budget exhaustion
// the partial snapshot is still finalized and persisted, and the returned
// error wraps scheduler.ErrRetryBudgetExhausted so callers can report an
// incomplete run without treating it as a fault.
func (w *Worker) SyncSearch(ctx context.Context, search Search) (listing.Snapshot, error) {
	start := w.clock.Now()
	runID, err := w.ids.NewID()
	if err != nil {
		return listing.Snapshot{}, fmt.Errorf("generate run id: %w", err)
	}
	logger := w.logger.With(
		zap.String("search", search.Name),
		zap.String("run_id", runID),
	)

	prior, err := w.store.Load(ctx, search.Name)
	if err != nil {
		return listing.Snapshot{}, fmt.Errorf("load prior snapshot: %w", err)
	}
	firstRun := len(prior) == 0
	if firstRun {
		logger.Info("no prior snapshot, bootstrapping")
	}

	refs, err := w.enumerator.Refs(ctx, search.URL)
	if err != nil {
		// Nothing to reconcile; the prior snapshot stays untouched as the
		// recovery point.
		metrics.Runs().WithLabelValues("failed").Inc()
		return listing.Snapshot{}, fmt.Errorf("enumerate search %s: %w", search.Name, err)
	}
	logger.Info("feed enumerated",
		zap.Int("targets", len(refs)),
		zap.Bool("first_run", firstRun),
	)

	run := reconcile.NewRun(prior, firstRun, start, w.fp, logger)
	fetcher := w.fetchers()

	merged := 0
	fetcher.OnResult(func(l listing.Listing) {
		entry := run.Merge(l)
		w.publish(ctx, search.Name, runID, entry, logger)

		merged++
		if w.cfg.SaveEvery > 0 && merged%w.cfg.SaveEvery == 0 {
			interim := w.buildSnapshot(search, runID, start, run.Interim(), false)
			if err := w.store.Save(ctx, search.Name, interim); err != nil {
				logger.Warn("interim snapshot save failed", zap.Error(err))
			}
		}
	})

	result, runErr := fetcher.Run(ctx, refs)
	switch {
	case runErr == nil:
	case errors.Is(runErr, scheduler.ErrRetryBudgetExhausted):
		// Finalization still runs: every dispatched reference has either
		// completed, failed, or been abandoned with the budget.
	default:
		// The run was cut short, so unseen prior entries cannot be trusted
		// to be gone. Persist the interim view and bail.
		interim := w.buildSnapshot(search, runID, start, run.Interim(), false)
		if saveErr := w.store.Save(ctx, search.Name, interim); saveErr != nil {
			logger.Warn("interim snapshot save failed", zap.Error(saveErr))
		}
		metrics.Runs().WithLabelValues("failed").Inc()
		return listing.Snapshot{}, fmt.Errorf("fetch search %s: %w", search.Name, runErr)
	}

	entries := run.Finalize()
	snap := w.buildSnapshot(search, runID, start, entries, result.Complete)
	for _, entry := range entries {
		if entry.Status == listing.StatusRemoved && entry.RemovedAt != nil && entry.RemovedAt.Equal(start) {
			w.publish(ctx, search.Name, runID, entry, logger)
		}
	}

	if err := w.store.Save(ctx, search.Name, snap); err != nil {
		metrics.Runs().WithLabelValues("failed").Inc()
		return listing.Snapshot{}, fmt.Errorf("save snapshot %s: %w", search.Name, err)
	}
	if w.archiver != nil {
		if _, err := w.archiver.Archive(ctx, search.Name, snap); err != nil {
			logger.Warn("snapshot archive failed", zap.Error(err))
		}
	}

	w.observe(snap, start)
	logger.Info("run finished",
		zap.Bool("complete", snap.Complete),
		zap.Int("attempts", result.Attempts),
		zap.Int("total", snap.Total),
		zap.Int("fetch_failures", len(result.Failures)),
		zap.Any("totals", snap.Totals),
	)

	if runErr != nil {
		return snap, fmt.Errorf("sync %s incomplete: %w", search.Name, runErr)
	}
	return snap, nil
}

func (w *Worker) buildSnapshot(
	search Search,
	runID string,
	start time.Time,
	entries []listing.Entry,
	complete bool,
) listing.Snapshot {
	return listing.Snapshot{
		SearchName: search.Name,
		SearchURL:  search.URL,
		LastRun:    start,
		RunID:      runID,
		Complete:   complete,
		Total:      len(entries),
		Totals:     reconcile.Totals(entries),
		Entries:    entries,
	}
}

func (w *Worker) publish(
	ctx context.Context,
	search, runID string,
	entry listing.Entry,
	logger *zap.Logger,
) {
	if w.events == nil {
		return
	}
	ev, ok := notify.FromEntry(search, runID, entry)
	if !ok {
		return
	}
	if _, err := w.events.Publish(ctx, ev); err != nil {
		logger.Warn("event publish failed",
			zap.String("item_id", string(ev.ItemID)),
			zap.String("status", string(ev.Status)),
			zap.Error(err),
		)
	}
}

func (w *Worker) observe(snap listing.Snapshot, start time.Time) {
	outcome := "complete"
	if !snap.Complete {
		outcome = "incomplete"
	}
	metrics.Runs().WithLabelValues(outcome).Inc()
	for status, count := range snap.Totals {
		metrics.Items().WithLabelValues(string(status)).Add(float64(count))
	}
	metrics.RunDuration().Observe(time.Since(start).Seconds())
}
