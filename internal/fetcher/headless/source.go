// Package headless fetches listing pages through the shared browser session.
package headless

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/listwatch/listwatch/internal/blockdetect"
	"github.com/listwatch/listwatch/internal/browser"
	"github.com/listwatch/listwatch/internal/extract"
	"github.com/listwatch/listwatch/internal/listing"
	"github.com/listwatch/listwatch/internal/metrics"
)

// Config controls the headless source.
type Config struct {
	Browser browser.Config
	// QPS throttles navigations across the session's tabs; zero disables.
	QPS float64
}

// Source implements listing.Source over one browser session. Each fetch
// opens its own tab, so concurrent fetches do not interfere with each
// other's navigation state.
type Source struct {
	session  *browser.Session
	detector *blockdetect.Detector
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewSource wraps an existing session.
func NewSource(
	session *browser.Session,
	detector *blockdetect.Detector,
	cfg Config,
	logger *zap.Logger,
) *Source {
	var limiter *rate.Limiter
	if cfg.QPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.QPS), 1)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		session:  session,
		detector: detector,
		limiter:  limiter,
		logger:   logger,
	}
}

// Fetch navigates to the ad page in a fresh tab, checks for a verification
// challenge, and extracts the field record. Feed-provided fields fill in
// anything the page did not yield. Refetching the same reference is
// harmless.
func (s *Source) Fetch(ctx context.Context, ref listing.TargetRef) (listing.Listing, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return listing.Listing{}, fmt.Errorf("politeness wait: %w", err)
		}
	}

	metrics.ActiveFetches().Inc()
	defer metrics.ActiveFetches().Dec()

	html, finalURL, err := s.navigate(ctx, ref.URL)
	if err != nil {
		return listing.Listing{}, err
	}

	// Challenge redirects are checked before parsing anything so a block
	// costs no extraction work.
	if s.detector.BlockedURL(finalURL) {
		return listing.Listing{}, fmt.Errorf("fetch %s landed on %s: %w", ref.URL, finalURL, listing.ErrBlocked)
	}
	if s.detector.BlockedPage([]byte(html)) {
		return listing.Listing{}, fmt.Errorf("fetch %s: %w", ref.URL, listing.ErrBlocked)
	}

	l, err := extract.Listing([]byte(html), ref.URL)
	if err != nil {
		return listing.Listing{}, fmt.Errorf("extract %s: %w", ref.URL, err)
	}
	mergeFeedFallbacks(&l, ref)

	s.logger.Debug("listing fetched",
		zap.String("item_id", string(l.ItemID)),
		zap.String("title", l.Title),
		zap.Int("price", l.Price),
	)
	return l, nil
}

func (s *Source) navigate(ctx context.Context, pageURL string) (html, finalURL string, err error) {
	tabCtx, cancel := s.session.NewTab(ctx)
	defer cancel()

	actions := s.session.PrepareTab()
	actions = append(actions,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return "", "", fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	return html, finalURL, nil
}

// mergeFeedFallbacks fills page-extraction gaps from the feed summary.
func mergeFeedFallbacks(l *listing.Listing, ref listing.TargetRef) {
	if l.Title == "" {
		l.Title = ref.Title
	}
	if l.Price == 0 && ref.Price > 0 {
		l.Price = ref.Price
	}
	if l.Year == "" && ref.Year > 0 {
		l.Year = fmt.Sprintf("%d", ref.Year)
	}
	if l.Hand == "" && ref.Hand > 0 {
		l.Hand = fmt.Sprintf("%d", ref.Hand)
	}
}

// Close tears down the underlying browser session.
func (s *Source) Close() error {
	return s.session.Close()
}

// Factory builds a fresh session-backed source per scheduler attempt.
type Factory struct {
	cfg      Config
	detector *blockdetect.Detector
	logger   *zap.Logger
}

// NewFactory constructs a Factory.
func NewFactory(cfg Config, detector *blockdetect.Detector, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{cfg: cfg, detector: detector, logger: logger}
}

// New launches a browser session and returns a source bound to it. The
// scheduler calls this again after every blocked interruption, which is
// what presents the remote with a fresh client identity.
func (f *Factory) New(ctx context.Context) (listing.Source, error) {
	session, err := browser.NewSession(ctx, f.cfg.Browser, f.logger)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	return NewSource(session, f.detector, f.cfg, f.logger), nil
}
