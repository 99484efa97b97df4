// Package feed enumerates ad references from paginated search feeds.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/listwatch/listwatch/internal/blockdetect"
	"github.com/listwatch/listwatch/internal/extract"
	"github.com/listwatch/listwatch/internal/listing"
)

// PageFetcher retrieves one feed page and reports the URL it finally landed
// on, which may differ from the requested one after a challenge redirect.
type PageFetcher interface {
	FetchPage(ctx context.Context, pageURL string) (body []byte, finalURL string, err error)
}

// Config controls enumeration.
type Config struct {
	// MaxPages caps how many feed pages one enumeration walks.
	MaxPages int
	// TitleMustContain keeps only refs whose feed title contains at least
	// one of these substrings. Refs without a feed title pass through.
	TitleMustContain []string
}

// Enumerator walks a search feed page by page and collects ad references.
// It starts with the cheap probe fetcher and promotes to the rendered one
// when the probe gets challenged or the page turns out to be a client-side
// shell with no server-rendered items.
type Enumerator struct {
	probe    PageFetcher
	rendered PageFetcher
	detector *blockdetect.Detector
	cfg      Config
	logger   *zap.Logger
}

// New builds an Enumerator. rendered may be nil, in which case a challenged
// probe is a hard failure.
func New(probe, rendered PageFetcher, detector *blockdetect.Detector, cfg Config, logger *zap.Logger) *Enumerator {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if detector == nil {
		detector = blockdetect.New(nil, nil, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enumerator{
		probe:    probe,
		rendered: rendered,
		detector: detector,
		cfg:      cfg,
		logger:   logger,
	}
}

// Refs enumerates the whole feed for searchURL. A failure on the first page
// aborts the run; a failure deeper in stops pagination with what was
// collected so far. Pagination also stops on the first page that yields no
// new refs.
func (e *Enumerator) Refs(ctx context.Context, searchURL string) ([]listing.TargetRef, error) {
	fetch := e.probe
	probing := true
	seen := make(map[listing.ItemID]struct{})
	var refs []listing.TargetRef

	for page := 1; page <= e.cfg.MaxPages; page++ {
		u, err := pageURL(searchURL, page)
		if err != nil {
			return nil, err
		}

		pageRefs, err := e.fetchRefs(ctx, fetch, u)
		if errors.Is(err, listing.ErrBlocked) && probing && e.rendered != nil {
			e.logger.Info("probe challenged, promoting to rendered fetch",
				zap.String("url", u),
			)
			fetch, probing = e.rendered, false
			pageRefs, err = e.fetchRefs(ctx, fetch, u)
		}
		if err != nil {
			if page == 1 {
				return nil, fmt.Errorf("enumerate %s: %w", searchURL, err)
			}
			e.logger.Warn("feed page failed, stopping pagination",
				zap.String("url", u),
				zap.Error(err),
			)
			break
		}

		// An empty first page from the probe usually means the feed is a
		// client-rendered shell, not a genuinely empty search.
		if page == 1 && len(pageRefs) == 0 && probing && e.rendered != nil {
			e.logger.Info("probe saw empty shell, promoting to rendered fetch",
				zap.String("url", u),
			)
			fetch, probing = e.rendered, false
			pageRefs, err = e.fetchRefs(ctx, fetch, u)
			if err != nil {
				return nil, fmt.Errorf("enumerate %s: %w", searchURL, err)
			}
		}

		added := 0
		for _, ref := range keepMatching(pageRefs, e.cfg.TitleMustContain) {
			if _, dup := seen[ref.ID]; dup {
				continue
			}
			seen[ref.ID] = struct{}{}
			refs = append(refs, ref)
			added++
		}
		e.logger.Debug("feed page enumerated",
			zap.Int("page", page),
			zap.Int("new_refs", added),
		)
		if len(pageRefs) == 0 || added == 0 {
			break
		}
	}
	return refs, nil
}

func (e *Enumerator) fetchRefs(ctx context.Context, fetch PageFetcher, u string) ([]listing.TargetRef, error) {
	body, finalURL, err := fetch.FetchPage(ctx, u)
	if err != nil {
		return nil, err
	}
	if e.detector.BlockedURL(finalURL) {
		return nil, fmt.Errorf("feed %s landed on %s: %w", u, finalURL, listing.ErrBlocked)
	}
	if e.detector.BlockedPage(body) {
		return nil, fmt.Errorf("feed %s: %w", u, listing.ErrBlocked)
	}
	return extract.FeedRefs(body, u)
}

// keepMatching filters refs by feed title. Refs with no feed title are kept
// so the per-ad fetch can still fill the record in.
func keepMatching(refs []listing.TargetRef, needles []string) []listing.TargetRef {
	if len(needles) == 0 {
		return refs
	}
	kept := refs[:0:0]
	for _, ref := range refs {
		if ref.Title == "" || containsAny(ref.Title, needles) {
			kept = append(kept, ref)
		}
	}
	return kept
}

func containsAny(title string, needles []string) bool {
	lower := strings.ToLower(title)
	for _, n := range needles {
		if strings.Contains(lower, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// pageURL sets the page query parameter. Page one keeps the search URL as
// given so the canonical form stays comparable across runs.
func pageURL(searchURL string, page int) (string, error) {
	if page <= 1 {
		return searchURL, nil
	}
	u, err := url.Parse(searchURL)
	if err != nil {
		return "", fmt.Errorf("parse search url %q: %w", searchURL, err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
