package feed

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"

	"github.com/listwatch/listwatch/internal/browser"
)

// BrowserFetcher renders feed pages in the shared browser session so
// client-side feeds still yield their items.
type BrowserFetcher struct {
	session *browser.Session
}

// NewBrowserFetcher wraps an existing session.
func NewBrowserFetcher(session *browser.Session) *BrowserFetcher {
	return &BrowserFetcher{session: session}
}

// FetchPage renders pageURL in a fresh tab and returns the resulting DOM.
func (b *BrowserFetcher) FetchPage(ctx context.Context, pageURL string) ([]byte, string, error) {
	tabCtx, cancel := b.session.NewTab(ctx)
	defer cancel()

	var (
		html     string
		finalURL string
	)
	actions := b.session.PrepareTab()
	actions = append(actions,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return nil, "", fmt.Errorf("render feed %s: %w", pageURL, err)
	}
	return []byte(html), finalURL, nil
}
