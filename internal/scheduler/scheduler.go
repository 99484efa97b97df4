// Package scheduler drives bounded-concurrency fetching with blocked-recovery.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/listwatch/listwatch/internal/listing"
	"github.com/listwatch/listwatch/internal/metrics"
)

// ErrRetryBudgetExhausted reports that the remote kept serving verification
// pages until the retry budget ran out. Results accumulated before the final
// attempt are still returned alongside this error.
var ErrRetryBudgetExhausted = errors.New("retry budget exhausted")

// Config controls scheduler behavior.
type Config struct {
	// Concurrency caps the number of in-flight fetches per attempt.
	Concurrency int
	// MaxRetries bounds how many times a blocked attempt may be resumed
	// with a rebuilt execution context.
	MaxRetries int
}

// Result is the outcome of one run: listings accumulated across all
// attempts, per-item failures for references that never succeeded, and
// attempt bookkeeping.
type Result struct {
	Listings map[listing.ItemID]listing.Listing
	Failures map[listing.ItemID]error
	Attempts int
	Complete bool
}

// Scheduler fans references out over a shared execution context. When a
// fetch reports a blocked verification page it cancels the in-flight pool,
// discards the source, builds a fresh one, and resubmits exactly the
// references not yet present in the accumulated result set.
type Scheduler struct {
	factory listing.SourceFactory
	cfg     Config
	logger  *zap.Logger

	// onResult, when set, observes each merged listing in completion order.
	// It runs on the merge goroutine, so calls are never concurrent.
	onResult func(listing.Listing)
}

// New constructs a Scheduler.
func New(factory listing.SourceFactory, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{factory: factory, cfg: cfg, logger: logger}
}

// OnResult registers the per-listing observer invoked as results merge.
func (s *Scheduler) OnResult(fn func(listing.Listing)) {
	s.onResult = fn
}

type outcome struct {
	ref listing.TargetRef
	l   listing.Listing
	err error
}

// Run fetches every reference, resuming across blocked interruptions until
// the set is exhausted or the retry budget is spent. Whatever accumulated is
// always returned; the error is either nil, ErrRetryBudgetExhausted, or the
// run context's own cancellation.
func (s *Scheduler) Run(ctx context.Context, refs []listing.TargetRef) (*Result, error) {
	res := &Result{
		Listings: make(map[listing.ItemID]listing.Listing, len(refs)),
		Failures: make(map[listing.ItemID]error),
	}

	for {
		pending := s.pending(refs, res)
		if len(pending) == 0 {
			res.Complete = true
			return res, nil
		}
		res.Attempts++

		src, err := s.factory.New(ctx)
		if err != nil {
			return res, fmt.Errorf("build fetch source: %w", err)
		}
		blocked, err := s.attempt(ctx, src, pending, res)
		if cerr := src.Close(); cerr != nil {
			s.logger.Warn("close fetch source", zap.Error(cerr))
		}
		if err != nil {
			return res, err
		}
		if !blocked {
			res.Complete = true
			return res, nil
		}

		metrics.BlockedRecoveries().Inc()
		retries := res.Attempts - 1
		if retries >= s.cfg.MaxRetries {
			s.logger.Warn("retry budget exhausted",
				zap.Int("attempts", res.Attempts),
				zap.Int("accumulated", len(res.Listings)),
			)
			return res, ErrRetryBudgetExhausted
		}
		s.logger.Info("blocked, rebuilding session and resuming",
			zap.Int("attempt", res.Attempts),
			zap.Int("accumulated", len(res.Listings)),
			zap.Int("remaining", len(s.pending(refs, res))),
		)
	}
}

// pending returns the references not yet present in the accumulated result
// set, preserving input order. Already-failed items are retried on resume;
// a later attempt may still recover them.
func (s *Scheduler) pending(refs []listing.TargetRef, res *Result) []listing.TargetRef {
	out := make([]listing.TargetRef, 0, len(refs))
	for _, ref := range refs {
		if _, done := res.Listings[ref.ID]; !done {
			out = append(out, ref)
		}
	}
	return out
}

// attempt runs one pool of fetches. It returns blocked=true when any fetch
// reported a verification page; in that case every other in-flight fetch has
// been cooperatively canceled and its reference left pending.
func (s *Scheduler) attempt(
	ctx context.Context,
	src listing.Source,
	pending []listing.TargetRef,
	res *Result,
) (bool, error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, s.cfg.Concurrency)
	out := make(chan outcome)

	var wg sync.WaitGroup
	for _, ref := range pending {
		wg.Add(1)
		go func(ref listing.TargetRef) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-attemptCtx.Done():
				return
			}
			defer func() { <-sem }()

			l, err := src.Fetch(attemptCtx, ref)
			// The merge loop drains until every worker is done, so this
			// send cannot block even after cancellation. A fetch that
			// completed before it observed the cancel still counts.
			out <- outcome{ref: ref, l: l, err: err}
		}(ref)
	}
	go func() {
		wg.Wait()
		close(out)
	}()

	// Results merge in completion order, one at a time; ordinals derived
	// from this order carry no meaning.
	blocked := false
	for oc := range out {
		switch {
		case oc.err == nil:
			res.Listings[oc.ref.ID] = oc.l
			delete(res.Failures, oc.ref.ID)
			metrics.Fetches().WithLabelValues("ok").Inc()
			if s.onResult != nil {
				s.onResult(oc.l)
			}
		case errors.Is(oc.err, listing.ErrBlocked):
			if !blocked {
				blocked = true
				metrics.Fetches().WithLabelValues("blocked").Inc()
				s.logger.Warn("verification page detected",
					zap.String("item_id", string(oc.ref.ID)),
					zap.String("url", oc.ref.URL),
				)
				cancel()
			}
		case errors.Is(oc.err, context.Canceled):
			// A canceled sibling of the blocked fetch; stays pending.
		default:
			res.Failures[oc.ref.ID] = oc.err
			metrics.Fetches().WithLabelValues("error").Inc()
			s.logger.Warn("fetch failed",
				zap.String("item_id", string(oc.ref.ID)),
				zap.String("url", oc.ref.URL),
				zap.Error(oc.err),
			)
		}
	}

	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("run canceled: %w", err)
	}
	return blocked, nil
}
