package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/listwatch/listwatch/internal/listing"
)

const adPage = `<html><head><title>ad</title></head><body>
<h1 class="heading_heading__6RE1P">יונדאי קונה היברידי 2021</h1>
<h2 class="marketing-name_marketingName__VoALw">Supreme</h2>
<div class="ad-price_price__9rK1w"><span data-testid="price">₪ 92,000</span></div>
<div><span data-testid="price">₪ 1,890</span><div>monthlyPayment לחודש</div></div>
<span class="location_location__r6h8_">חיפה</span>
<p class="description_description__xxZXs">שמורה בקפידה, טיפולים בזמן</p>
<div class="details-item_detailsItemBox__blPEY">2021</div>
<div class="details-item_detailsItemBox__blPEY">יד 2</div>
<div class="details-item_detailsItemBox__blPEY">41,000 ק"מ</div>
<dl>
  <dd class="item-detail_label__FnhAu">צבע</dd>
  <dd class="item-detail_label__FnhAu">תיבת הילוכים</dd>
</dl>
<dl>
  <dt class="item-detail_value__QHPml">לבן</dt>
  <dt class="item-detail_value__QHPml">אוטומטית</dt>
</dl>
<img src="https://img.yad2.co.il/Pic/1.jpg"/>
<img src="https://img.yad2.co.il/Pic/1.jpg"/>
<img src="https://img.yad2.co.il/Pic/2.jpg"/>
<img src="https://cdn.other.com/logo.png"/>
</body></html>`

func TestListingExtraction(t *testing.T) {
	t.Parallel()

	l, err := Listing([]byte(adPage), "https://example.com/item/a1b2c3?x=1")
	require.NoError(t, err)

	require.Equal(t, listing.ItemID("a1b2c3"), l.ItemID)
	require.Equal(t, "יונדאי קונה היברידי 2021", l.Title)
	require.Equal(t, "Supreme", l.MarketingName)
	require.Equal(t, 92000, l.Price)
	require.Equal(t, "₪ 92,000", l.PriceText)
	require.Equal(t, "חיפה", l.Location)
	require.Equal(t, "שמורה בקפידה, טיפולים בזמן", l.Description)
	require.Equal(t, "2021", l.Year)
	require.Equal(t, "2", l.Hand)
	require.Equal(t, "41,000", l.Mileage)
	require.Equal(t, "לבן", l.Specs["צבע"])
	// Deduplicated, non-site images dropped.
	require.Equal(t, []string{
		"https://img.yad2.co.il/Pic/1.jpg",
		"https://img.yad2.co.il/Pic/2.jpg",
	}, l.Images)
}

func TestListingTolerantOfSparseMarkup(t *testing.T) {
	t.Parallel()

	l, err := Listing([]byte("<html><body><h1>just a title</h1></body></html>"),
		"https://example.com/item/zz9")
	require.NoError(t, err)
	require.Equal(t, "just a title", l.Title)
	require.Zero(t, l.Price)
	require.Empty(t, l.Location)
}

func TestItemID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
		want listing.ItemID
	}{
		{name: "plain", url: "https://example.com/item/a1b2c3", want: "a1b2c3"},
		{name: "with query", url: "https://example.com/item/Xy99?opened-from=feed", want: "Xy99"},
		{name: "relative", url: "/vehicles/item/qq8", want: "qq8"},
		{name: "no id", url: "https://example.com/vehicles/cars", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ItemID(tt.url))
		})
	}
}

func TestPrice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int
	}{
		{in: "₪ 92,000", want: 92000},
		{in: "105000", want: 105000},
		{in: "לא צוין מחיר", want: 0},
		{in: "", want: 0},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Price(tt.in), "input %q", tt.in)
	}
}

const feedPage = `<html><body>
<a href="/item/aaa111?opened-from=feed">
  <div data-testid="feed-item-info"></div>
  <span class="feed-item-info-section_heading__Bp32t">קונה היברידי</span>
  <span class="price_price__xQt90">₪ 89,000</span>
  <span class="feed-item-info-section_yearAndHandBox__H5oQ0">2020 • יד 1</span>
  <div class="private-item_tags__BaT6z"></div>
</a>
<a href="/item/bbb222">
  <div data-testid="feed-item-info"></div>
  <span class="feed-item-info-section_heading__Bp32t">קונה 2022</span>
  <span class="price_price__xQt90">₪ 112,000</span>
  <div class="private-item_tags__BaT6z"></div>
  <span class="feed-item-image-section_agencyName__U_wJp">סוכנות</span>
</a>
<a href="/item/aaa111">
  <div data-testid="feed-item-info"></div>
</a>
<a href="/vehicles/cars">not an item</a>
<a href="/item/ccc333">no feed info marker</a>
</body></html>`

func TestFeedRefs(t *testing.T) {
	t.Parallel()

	refs, err := FeedRefs([]byte(feedPage), "https://example.com/vehicles/cars?manufacturer=21")
	require.NoError(t, err)
	require.Len(t, refs, 2)

	require.Equal(t, listing.ItemID("aaa111"), refs[0].ID)
	require.Equal(t, "https://example.com/item/aaa111?opened-from=feed", refs[0].URL)
	require.Equal(t, 89000, refs[0].Price)
	require.Equal(t, 2020, refs[0].Year)
	require.Equal(t, 1, refs[0].Hand)
	require.True(t, refs[0].Private)

	require.Equal(t, listing.ItemID("bbb222"), refs[1].ID)
	// Agency listing is not private even with private tags present.
	require.False(t, refs[1].Private)
}
