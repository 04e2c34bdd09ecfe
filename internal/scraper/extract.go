// Package scraper turns Amazon product pages into analysis input.
package scraper

import (
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/andybalholm/cascadia"
	"github.com/samber/lo"
	"golang.org/x/net/html"

	"github.com/xaenox/reviewai/internal/amazon"
	"github.com/xaenox/reviewai/internal/models"
)

const (
	// MinReviewLength drops star-only or "Read more" fragments.
	MinReviewLength = 20
	// MaxReviews caps how many review texts are sent for analysis.
	MaxReviews = 40
)

var (
	titleSelectors = []cascadia.Selector{
		cascadia.MustCompile("#productTitle"),
		cascadia.MustCompile("#title"),
		cascadia.MustCompile("h1"),
	}
	priceSelectors = []cascadia.Selector{
		cascadia.MustCompile("#corePrice_feature_div .a-offscreen"),
		cascadia.MustCompile("#corePriceDisplay_desktop_feature_div .a-offscreen"),
		cascadia.MustCompile("#priceblock_ourprice"),
		cascadia.MustCompile("#priceblock_dealprice"),
		cascadia.MustCompile(".a-price .a-offscreen"),
	}
	reviewSelectors = []cascadia.Selector{
		cascadia.MustCompile("[data-hook=review-body]"),
		cascadia.MustCompile("[data-hook=review-collapsed]"),
		cascadia.MustCompile(".review-text-content"),
	}
)

// Page is a parsed product page.
type Page struct {
	URL  string
	Root *html.Node
}

// Parse reads an HTML document served from url.
func Parse(r io.Reader, url string) (*Page, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Page{URL: url, Root: root}, nil
}

func firstText(root *html.Node, selectors []cascadia.Selector) string {
	for _, s := range selectors {
		if n := s.MatchFirst(root); n != nil {
			if text := Text(n); text != "" {
				return text
			}
		}
	}
	return ""
}

// Extract reads the visible product data from the page.
func Extract(p *Page) models.ProductInput {
	input := models.ProductInput{
		URL:          p.URL,
		ProductTitle: firstText(p.Root, titleSelectors),
		Price:        firstText(p.Root, priceSelectors),
		Reviews:      ExtractReviews(p.Root),
	}
	if asin, ok := amazon.ExtractASIN(p.URL); ok {
		input.ASIN = asin
	}
	return input
}

// ExtractReviews collects review texts in document order, deduplicated,
// filtered to MinReviewLength characters and capped at MaxReviews.
func ExtractReviews(root *html.Node) []string {
	var texts []string
	for _, s := range reviewSelectors {
		for _, n := range s.MatchAll(root) {
			texts = append(texts, Text(n))
		}
	}
	return NormalizeReviews(texts)
}

// NormalizeReviews applies the same dedup, length and cap rules to reviews
// supplied by a client.
func NormalizeReviews(texts []string) []string {
	texts = lo.Filter(texts, func(t string, _ int) bool {
		return utf8.RuneCountInString(t) >= MinReviewLength
	})
	texts = lo.Uniq(texts)
	if len(texts) > MaxReviews {
		texts = texts[:MaxReviews]
	}
	return texts
}
