// Package extract pulls listing fields out of rendered ad and feed markup.
// Extraction is best effort: selectors cover several generations of the
// site's markup and missing fields stay empty.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/listwatch/listwatch/internal/listing"
)

var (
	itemIDPattern  = regexp.MustCompile(`/item/([a-zA-Z0-9]+)`)
	digitsPattern  = regexp.MustCompile(`\d+`)
	groupedDigits  = regexp.MustCompile(`[\d,]+`)
	yearPattern    = regexp.MustCompile(`^\d{4}$`)
	maxImagesKept  = 10
	imageHostMatch = "yad2"
)

// ItemID extracts the listing id from an ad URL. Empty when absent.
func ItemID(rawURL string) listing.ItemID {
	m := itemIDPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return listing.ItemID(m[1])
}

// Price parses a display price like "₪ 92,000" into an integer. Zero means
// no parseable price.
func Price(text string) int {
	if text == "" {
		return 0
	}
	m := groupedDigits.FindString(text)
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return 0
	}
	return n
}

// Listing extracts the full field record from one rendered ad page.
func Listing(body []byte, pageURL string) (listing.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return listing.Listing{}, fmt.Errorf("parse ad page: %w", err)
	}

	l := listing.Listing{
		ItemID: ItemID(pageURL),
		URL:    pageURL,
	}
	l.Title = firstText(doc,
		"h1.heading_heading__6RE1P",
		`h1[data-nagish="upper-heading-title"]`,
		"h1",
	)
	l.MarketingName = firstText(doc,
		"h2.marketing-name_marketingName__VoALw",
		`h2[data-nagish="name-section-title"]`,
	)
	l.PriceText = priceText(doc)
	l.Price = Price(l.PriceText)
	l.Location = firstText(doc,
		"span.location_location__r6h8_",
		`span[data-testid="location"]`,
	)
	l.Description = firstText(doc,
		"p.description_description__xxZXs",
		".description",
		`[data-testid="description"]`,
	)

	extractDetailItems(doc, &l)
	extractSpecs(doc, &l)
	l.Images = extractImages(doc, pageURL)
	return l, nil
}

// priceText prefers the finance box, then the plain ad price, then any
// price element that is not a monthly-payment figure.
func priceText(doc *goquery.Document) string {
	if t := text(doc.Find(`.car-finance_priceBox__VuZk3 span[data-testid="price"]`).First()); t != "" {
		return t
	}
	if t := text(doc.Find(`.ad-price_price__9rK1w span[data-testid="price"]`).First()); t != "" {
		return t
	}
	var found string
	doc.Find(`span[data-testid="price"]`).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		parent := sel.Parent()
		surrounding, _ := goquery.OuterHtml(parent)
		if strings.Contains(surrounding, "monthlyPayment") || strings.Contains(surrounding, "לחודש") {
			return true
		}
		found = text(sel)
		return found == ""
	})
	return found
}

// extractDetailItems reads the year/hand/mileage icon row. The site renders
// these as unlabeled boxes, so each is recognized by its shape: a bare
// four-digit number is the year, "יד N" is the ownership hand, and anything
// mentioning kilometers is the mileage.
func extractDetailItems(doc *goquery.Document, l *listing.Listing) {
	doc.Find(".details-item_detailsItemBox__blPEY").Each(func(_ int, sel *goquery.Selection) {
		t := text(sel)
		switch {
		case yearPattern.MatchString(t):
			l.Year = t
		case strings.Contains(t, "יד"):
			if m := digitsPattern.FindString(t); m != "" {
				l.Hand = m
			}
		case strings.Contains(t, `ק"מ`) || strings.Contains(t, "קמ"):
			if m := groupedDigits.FindString(t); m != "" {
				l.Mileage = m
			}
		}
	})
}

func extractSpecs(doc *goquery.Document, l *listing.Listing) {
	labels := doc.Find("dd.item-detail_label__FnhAu")
	values := doc.Find("dt.item-detail_value__QHPml")
	if labels.Length() == 0 {
		return
	}
	specs := make(map[string]string, labels.Length())
	labels.Each(func(i int, sel *goquery.Selection) {
		if i >= values.Length() {
			return
		}
		label := text(sel)
		value := text(values.Eq(i))
		if label == "" {
			return
		}
		specs[label] = value
		if l.Mileage == "" && strings.Contains(label, "קילומטר") {
			l.Mileage = value
		}
	})
	if len(specs) > 0 {
		l.Specs = specs
	}
}

func extractImages(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}
	seen := make(map[string]struct{})
	var images []string
	doc.Find("img").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		src, ok := sel.Attr("src")
		if !ok || src == "" {
			src, _ = sel.Attr("data-src")
		}
		if src == "" || !strings.Contains(src, imageHostMatch) {
			return true
		}
		full := src
		if base != nil {
			if ref, err := url.Parse(src); err == nil {
				full = base.ResolveReference(ref).String()
			}
		}
		if _, dup := seen[full]; dup {
			return true
		}
		seen[full] = struct{}{}
		images = append(images, full)
		return len(images) < maxImagesKept
	})
	return images
}

func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if t := text(doc.Find(sel).First()); t != "" {
			return t
		}
	}
	return ""
}

func text(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.Text())
}
