package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/listwatch/listwatch/internal/listing"
)

// FeedRefs extracts ad references from one rendered feed page, deduplicated
// by item id in document order.
func FeedRefs(body []byte, pageURL string) ([]listing.TargetRef, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed page: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}

	seen := make(map[listing.ItemID]struct{})
	var refs []listing.TargetRef
	doc.Find(`a[href*="item/"]`).Each(func(_ int, link *goquery.Selection) {
		if link.Find(`[data-testid="feed-item-info"]`).Length() == 0 {
			return
		}
		href, ok := link.Attr("href")
		if !ok || !strings.Contains(href, "item/") {
			return
		}
		full := href
		if ref, err := url.Parse(href); err == nil {
			full = base.ResolveReference(ref).String()
		}
		id := ItemID(full)
		if id == "" {
			return
		}
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		refs = append(refs, feedRef(link, id, full))
	})
	return refs, nil
}

func feedRef(link *goquery.Selection, id listing.ItemID, full string) listing.TargetRef {
	ref := listing.TargetRef{
		ID:    id,
		URL:   full,
		Title: text(link.Find(".feed-item-info-section_heading__Bp32t").First()),
		Price: Price(text(link.Find(".price_price__xQt90").First())),
	}
	ref.Year, ref.Hand = yearAndHand(text(link.Find(".feed-item-info-section_yearAndHandBox__H5oQ0").First()))

	hasPrivateTags := link.Find(".private-item_tags__BaT6z").Length() > 0
	hasAgencyName := link.Find(".feed-item-image-section_agencyName__U_wJp").Length() > 0
	ref.Private = hasPrivateTags && !hasAgencyName
	return ref
}

// yearAndHand splits the feed's "2021 • יד 2" box.
func yearAndHand(t string) (year, hand int) {
	if t == "" {
		return 0, 0
	}
	parts := strings.Split(t, "•")
	if len(parts) >= 1 {
		if y, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil {
			year = y
		}
	}
	if len(parts) >= 2 {
		if m := digitsPattern.FindString(parts[1]); m != "" {
			hand, _ = strconv.Atoi(m)
		}
	}
	return year, hand
}
