// Package browser manages the shared headless Chrome session.
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Config controls browser session behavior.
type Config struct {
	// Headful shows the browser window instead of running headless.
	Headful bool
	// UserAgent overrides the browser's default UA string.
	UserAgent string
	// NavigationTimeout caps one page navigation.
	NavigationTimeout time.Duration
	// BlockResources skips images, fonts, media and stylesheets to cut
	// page weight; field extraction only needs the DOM.
	BlockResources bool
}

// Resource URL patterns withheld when BlockResources is on.
var blockedResourcePatterns = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg",
	"*.woff", "*.woff2", "*.ttf", "*.otf",
	"*.mp4", "*.webm", "*.css",
}

// Session owns one browser process: the exec allocator plus the warmup
// browser context every tab derives from. Discarding a Session and creating
// a new one presents a fresh client identity to the remote site.
type Session struct {
	cfg           Config
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	logger        *zap.Logger
}

// NewSession launches a browser and warms it up.
func NewSession(ctx context.Context, cfg Config, logger *zap.Logger) (*Session, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !cfg.Headful),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("no-sandbox", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("browser warmup: %w", err)
	}

	return &Session{
		cfg:           cfg,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		logger:        logger,
	}, nil
}

// NewTab derives an independent tab context from the shared browser with the
// navigation timeout applied. The caller must invoke the returned cancel.
func (s *Session) NewTab(ctx context.Context) (context.Context, context.CancelFunc) {
	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)
	taskCtx, cancelTask := context.WithTimeout(tabCtx, s.cfg.NavigationTimeout)

	stop := forwardCancel(ctx, cancelTask)
	return taskCtx, func() {
		stop()
		cancelTask()
		cancelTab()
	}
}

// PrepareTab returns the setup actions run before navigation in a new tab.
func (s *Session) PrepareTab() []chromedp.Action {
	actions := []chromedp.Action{network.Enable()}
	if s.cfg.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(s.cfg.UserAgent))
	}
	if s.cfg.BlockResources {
		actions = append(actions, network.SetBlockedURLs(blockedResourcePatterns))
	}
	return actions
}

// Close tears down the browser process. The session is unusable afterwards.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	s.browserCancel()
	s.allocCancel()
	return nil
}

// forwardCancel propagates cancellation from an external context into a
// chromedp task context, since the tab derives from the shared browser
// context rather than the caller's.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
