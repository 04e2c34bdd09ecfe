package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/xaenox/reviewai/internal/amazon"
	"github.com/xaenox/reviewai/internal/models"
	"github.com/xaenox/reviewai/internal/scraper"
	"github.com/xaenox/reviewai/internal/storage"
)

var analysesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "reviewai",
		Name:      "analyses_total",
		Help:      "Product analyses by outcome.",
	},
	[]string{"outcome"},
)

// PageFetcher loads a product page for server-side scraping.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*scraper.Page, error)
}

// ProductAnalyzer produces a verdict for scraped input.
type ProductAnalyzer interface {
	Analyze(ctx context.Context, input models.ProductInput) (*models.AnalysisResult, error)
}

// Pipeline is the scrape-then-complete flow behind /api/amazon/analyze and
// product-bound chats.
type Pipeline struct {
	fetcher  PageFetcher
	analyzer ProductAnalyzer
	store    storage.AnalysisStorage
	logger   *zap.Logger
}

func NewPipeline(fetcher PageFetcher, analyzer ProductAnalyzer, store storage.AnalysisStorage, logger *zap.Logger) *Pipeline {
	return &Pipeline{fetcher: fetcher, analyzer: analyzer, store: store, logger: logger}
}

// Run analyses input for userID. When input carries no reviews the page is
// fetched and scraped first. Results are persisted only for signed-in users;
// anonymous results get a fresh id and are not stored.
func (p *Pipeline) Run(ctx context.Context, userID string, input models.ProductInput) (*models.ProductAnalysis, error) {
	asin, err := amazon.ParseProductURL(input.URL)
	if err != nil {
		analysesTotal.WithLabelValues("invalid_url").Inc()
		return nil, err
	}
	input.ASIN = asin
	input.Reviews = scraper.NormalizeReviews(input.Reviews)

	if len(input.Reviews) == 0 {
		page, err := p.fetcher.Fetch(ctx, input.URL)
		if err != nil {
			analysesTotal.WithLabelValues("scrape_failed").Inc()
			return nil, fmt.Errorf("scrape product: %w", err)
		}
		scraped := scraper.Extract(page)
		input.Reviews = scraped.Reviews
		if input.ProductTitle == "" {
			input.ProductTitle = scraped.ProductTitle
		}
		if input.Price == "" {
			input.Price = scraped.Price
		}
	}

	result, err := p.analyzer.Analyze(ctx, input)
	if err != nil {
		analysesTotal.WithLabelValues("analysis_failed").Inc()
		return nil, err
	}

	analysis := &models.ProductAnalysis{
		UserID:         userID,
		ASIN:           asin,
		ProductName:    input.ProductTitle,
		Price:          input.Price,
		AnalysisResult: *result,
	}

	if userID == "" {
		analysis.ID = uuid.New().String()
		analysis.CreatedAt = time.Now().UTC()
		analysesTotal.WithLabelValues("anonymous").Inc()
		return analysis, nil
	}

	if err := p.store.CreateAnalysis(ctx, analysis); err != nil {
		analysesTotal.WithLabelValues("store_failed").Inc()
		return nil, fmt.Errorf("store analysis: %w", err)
	}

	p.logger.Info("Stored product analysis",
		zap.String("asin", asin),
		zap.String("user_id", userID),
		zap.String("verdict", result.Verdict))
	analysesTotal.WithLabelValues("stored").Inc()
	return analysis, nil
}
