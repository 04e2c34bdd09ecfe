package extension

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/xaenox/reviewai/internal/models"
)

const (
	msgUnreachable = "Could not reach ReviewAI. Check your connection and try again."
	msgFailed      = "Analysis failed. Please try again."
)

// AnalyzeClient posts scraped product data to the web app.
type AnalyzeClient struct {
	client *resty.Client
	logger *zap.Logger
}

// NewAnalyzeClient sends the cookies in jar with every request, like a
// browser fetch with credentials included. A nil jar keeps resty's own.
func NewAnalyzeClient(webAppURL string, jar http.CookieJar, timeout time.Duration, logger *zap.Logger) *AnalyzeClient {
	c := resty.New().
		SetBaseURL(strings.TrimRight(webAppURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	if jar != nil {
		c.SetCookieJar(jar)
	}

	return &AnalyzeClient{client: c, logger: logger}
}

type analyzeBody struct {
	URL          string   `json:"url"`
	ProductTitle string   `json:"product_title,omitempty"`
	Price        string   `json:"price,omitempty"`
	Reviews      []string `json:"reviews,omitempty"`
}

// Analyze issues exactly one POST /api/amazon/analyze. accessToken may be
// empty, in which case no Authorization header is sent. The returned error
// text is safe to show to users.
func (c *AnalyzeClient) Analyze(ctx context.Context, url string, scraped *models.ProductInput, accessToken string) (json.RawMessage, error) {
	body := analyzeBody{URL: url}
	if scraped != nil {
		body.ProductTitle = scraped.ProductTitle
		body.Price = scraped.Price
		body.Reviews = scraped.Reviews
	}

	req := c.client.R().SetContext(ctx).SetBody(body)
	if accessToken != "" {
		req.SetAuthToken(accessToken)
	}

	resp, err := req.Post("/api/amazon/analyze")
	if err != nil {
		c.logger.Warn("Analyze request failed", zap.Error(err), zap.String("url", url))
		return nil, errors.New(msgUnreachable)
	}

	if resp.IsError() {
		var e ErrorResponse
		if json.Unmarshal(resp.Body(), &e) == nil && e.Error != "" {
			return nil, errors.New(e.Error)
		}
		c.logger.Warn("Analyze request rejected", zap.Int("status", resp.StatusCode()))
		return nil, fmt.Errorf("%s (status %d)", msgFailed, resp.StatusCode())
	}

	if !json.Valid(resp.Body()) {
		return nil, errors.New(msgFailed)
	}
	return json.RawMessage(resp.Body()), nil
}
