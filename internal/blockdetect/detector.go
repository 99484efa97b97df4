// Package blockdetect decides whether a response is a verification challenge.
package blockdetect

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Detector inspects final URLs and page content for anti-automation
// signals. It only detects; nothing here tries to defeat the challenge.
type Detector struct {
	urlMarkers   []string
	titleMarkers []string
	selectors    []string
}

// Default markers observed on the target site's verification flows.
var (
	defaultURLMarkers   = []string{"validate.perfdrive.com", "perimeterx", "captcha"}
	defaultTitleMarkers = []string{"captcha", "validate", "access denied"}
	defaultSelectors    = []string{"#px-captcha", "iframe[src*='captcha']"}
)

// New constructs a Detector. Empty slices fall back to the defaults.
func New(urlMarkers, titleMarkers, selectors []string) *Detector {
	d := &Detector{
		urlMarkers:   normalize(urlMarkers),
		titleMarkers: normalize(titleMarkers),
		selectors:    selectors,
	}
	if len(d.urlMarkers) == 0 {
		d.urlMarkers = defaultURLMarkers
	}
	if len(d.titleMarkers) == 0 {
		d.titleMarkers = defaultTitleMarkers
	}
	if len(d.selectors) == 0 {
		d.selectors = defaultSelectors
	}
	return d
}

// BlockedURL reports whether the navigated-to URL is a challenge redirect.
// Checked before any page parsing so a block is detected cheaply.
func (d *Detector) BlockedURL(finalURL string) bool {
	if d == nil || finalURL == "" {
		return false
	}
	lower := strings.ToLower(finalURL)
	for _, marker := range d.urlMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// BlockedPage reports whether the rendered document is a challenge page.
func (d *Detector) BlockedPage(body []byte) bool {
	if d == nil || len(body) == 0 {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		// Unparseable markup is an extraction problem, not a block.
		return false
	}
	title := strings.ToLower(strings.TrimSpace(doc.Find("title").First().Text()))
	for _, marker := range d.titleMarkers {
		if title != "" && strings.Contains(title, marker) {
			return true
		}
	}
	for _, sel := range d.selectors {
		if sel == "" {
			continue
		}
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return false
}

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(strings.ToLower(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
