package scraper

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Fetcher downloads product pages.
type Fetcher struct {
	client *resty.Client
	logger *zap.Logger
}

func NewFetcher(userAgent string, timeout time.Duration, logger *zap.Logger) *Fetcher {
	c := resty.New().
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml").
		SetHeader("Accept-Language", "en-US,en;q=0.9").
		SetTimeout(timeout)

	return &Fetcher{client: c, logger: logger}
}

// Fetch downloads and parses url.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch product page: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch product page: status %d", resp.StatusCode())
	}

	f.logger.Debug("Fetched product page",
		zap.String("url", url),
		zap.Int("bytes", len(resp.Body())))

	// Redirects (amzn.to) land on the canonical product URL.
	final := url
	if resp.RawResponse != nil && resp.RawResponse.Request != nil {
		final = resp.RawResponse.Request.URL.String()
	}
	return Parse(bytes.NewReader(resp.Body()), final)
}
