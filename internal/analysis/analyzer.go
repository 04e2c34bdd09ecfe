package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"go.uber.org/zap"

	"github.com/xaenox/reviewai/internal/models"
)

// ErrNoReviews is returned when there is nothing to base a verdict on.
var ErrNoReviews = errors.New("no reviews found for this product")

const analysisSystemPrompt = `You are ReviewAI, a blunt and honest shopping analyst.
You read Amazon customer reviews and decide whether a shopper should BUY, SKIP or
approach with CAUTION. Weigh review authenticity: repetitive phrasing, vague praise
and incentivised language lower the trust score. Scores are integers from 0 to 100.
Answer with JSON only.`

// resultSchema is reflected once from AnalysisResult.
var resultSchema = func() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.Reflect(&models.AnalysisResult{})
}()

// ResultSchema exposes the response schema sent to the provider.
func ResultSchema() *jsonschema.Schema { return resultSchema }

type Analyzer struct {
	completer Completer
	logger    *zap.Logger
}

func NewAnalyzer(completer Completer, logger *zap.Logger) *Analyzer {
	return &Analyzer{completer: completer, logger: logger}
}

func buildAnalysisPrompt(input models.ProductInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Product: %s\n", fallback(input.ProductTitle, "Unknown product"))
	fmt.Fprintf(&b, "Price: %s\n", fallback(input.Price, "Unknown"))
	fmt.Fprintf(&b, "URL: %s\n\n", input.URL)
	fmt.Fprintf(&b, "Customer reviews (%d):\n", len(input.Reviews))
	for i, r := range input.Reviews {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r)
	}
	b.WriteString("\nReturn the verdict, summary, trust_score, confidence_score, perfect_for, avoid_if, " +
		"deal_breakers, buyer_psychology, persuasive_angles and honest_objections.")
	return b.String()
}

func fallback(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// Analyze runs one structured completion for input.
func (a *Analyzer) Analyze(ctx context.Context, input models.ProductInput) (*models.AnalysisResult, error) {
	if len(input.Reviews) == 0 {
		return nil, ErrNoReviews
	}

	content, err := a.completer.Complete(ctx, CompletionRequest{
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: analysisSystemPrompt},
			{Role: models.RoleUser, Content: buildAnalysisPrompt(input)},
		},
		Schema:     resultSchema,
		SchemaName: "product_analysis",
	})
	if err != nil {
		return nil, err
	}

	result, err := ParseResult(content)
	if err != nil {
		a.logger.Error("Failed to parse analysis response",
			zap.Error(err),
			zap.String("asin", input.ASIN),
			zap.String("response", content))
		return nil, err
	}
	return result, nil
}

// ParseResult decodes a completion into an AnalysisResult. Markdown code
// fences around the JSON are tolerated.
func ParseResult(content string) (*models.AnalysisResult, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var result models.AnalysisResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &result); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}

	result.Verdict = strings.ToUpper(strings.TrimSpace(result.Verdict))
	if result.Verdict == "" {
		return nil, fmt.Errorf("decode analysis: missing verdict")
	}
	result.TrustScore = clampScore(result.TrustScore)
	result.ConfidenceScore = clampScore(result.ConfidenceScore)
	return &result, nil
}

func clampScore(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
