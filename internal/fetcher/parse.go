package fetcher

import (
	"io"
	"mime"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/hwvalue/internal/model"
)

var (
	// priceRe matches "1 500 лв." and "350,50 лв"; decimals are dropped.
	priceRe       = regexp.MustCompile(`(\d+(?: \d{3})*)(?:[.,]\d{1,2})?\s*лв`)
	pageParamRe   = regexp.MustCompile(`[?&]page=(\d+)`)
	pageOfTotalRe = regexp.MustCompile(`[Сс]траница\s+(\d+)\s+от\s+(\d+)`)
	spaceReplacer = strings.NewReplacer("\u00a0", " ", "\u202f", " ", "\u2009", " ")
)

// ParsedPage is the result of parsing one search results document.
type ParsedPage struct {
	Listings []model.RawListing
	// Anchors counts ad links found, including ones without a title or price.
	Anchors int
	HasNext bool
}

// ParsePage extracts listings from a search results document. contentType
// is the response Content-Type; its charset parameter selects the decoder.
// Listing URLs are returned as found (site-relative paths, query and
// fragment stripped).
func ParsePage(r io.Reader, contentType string) (*ParsedPage, error) {
	r, err := decodeBody(r, contentType)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse html")
	}

	out := &ParsedPage{HasNext: hasNextPage(doc)}
	seen := make(map[string]bool)

	doc.Find(`a[href^="/d/ad/"]`).Each(func(_ int, a *goquery.Selection) {
		out.Anchors++

		title := collapse(a.Find("h4, h6").First().Text())
		if title == "" {
			return
		}
		href, _ := a.Attr("href")
		link := cleanHref(href)
		if seen[link] {
			return
		}

		price, ok := listingPrice(a)
		if !ok {
			return
		}

		seen[link] = true
		out.Listings = append(out.Listings, model.RawListing{
			Title: title,
			Price: price,
			URL:   link,
		})
	})

	return out, nil
}

func decodeBody(r io.Reader, contentType string) (io.Reader, error) {
	if contentType == "" {
		return r, nil
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return r, nil
	}
	cs := params["charset"]
	if cs == "" || strings.EqualFold(cs, "utf-8") || strings.EqualFold(cs, "utf8") {
		return r, nil
	}
	enc, err := htmlindex.Get(cs)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: unsupported charset %q", cs)
	}
	return enc.NewDecoder().Reader(r), nil
}

// listingPrice finds the price of the ad card containing a.
func listingPrice(a *goquery.Selection) (float64, bool) {
	card := a.Closest(`[data-cy="l-card"]`)
	if card.Length() == 0 {
		card = a.Parent()
	}

	if p := card.Find(`p[data-testid="ad-price"]`).First(); p.Length() > 0 {
		if v, ok := parsePrice(p.Text()); ok {
			return v, true
		}
	}

	var price float64
	var found bool
	card.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		price, found = parsePrice(p.Text())
		return !found
	})
	return price, found
}

// parsePrice reads a whole-lev amount such as "1 500 лв.".
func parsePrice(text string) (float64, bool) {
	m := priceRe.FindStringSubmatch(spaceReplacer.Replace(text))
	if m == nil {
		return 0, false
	}
	v, err := strconv.Atoi(strings.ReplaceAll(m[1], " ", ""))
	if err != nil || v <= 0 {
		return 0, false
	}
	return float64(v), true
}

func hasNextPage(doc *goquery.Document) bool {
	if next := doc.Find(`a[data-testid="pagination-forward"]`).First(); next.Length() > 0 {
		if strings.Contains(strings.ToLower(next.AttrOr("class", "")), "disabled") {
			return false
		}
		href, ok := next.Attr("href")
		return ok && href != ""
	}

	if canonical, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
		if cur := pageNumber(canonical); cur > 0 {
			higher := false
			doc.Find(`a[href*="page="]`).EachWithBreak(func(_ int, a *goquery.Selection) bool {
				higher = pageNumber(a.AttrOr("href", "")) > cur
				return !higher
			})
			if higher {
				return true
			}
		}
	}

	if m := pageOfTotalRe.FindStringSubmatch(doc.Text()); m != nil {
		cur, _ := strconv.Atoi(m[1])
		total, _ := strconv.Atoi(m[2])
		return cur < total
	}

	return false
}

func pageNumber(href string) int {
	m := pageParamRe.FindStringSubmatch(href)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func cleanHref(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
