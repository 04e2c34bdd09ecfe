package chat

import (
	"fmt"
	"strings"

	"github.com/xaenox/reviewai/internal/models"
)

const systemPrompt = `You are ReviewAI's shopping assistant. Help the user decide whether a product
is worth buying. Be direct, cite what reviewers actually said and say so when you
do not know. Keep answers short unless asked for detail.`

// buildSystemPrompt appends the bound analysis, if any, to the assistant
// framing.
func buildSystemPrompt(a *models.ProductAnalysis) string {
	if a == nil {
		return systemPrompt
	}
	r := a.AnalysisResult

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nProduct context:\n")
	fmt.Fprintf(&b, "Name: %s\n", a.ProductName)
	if a.Price != "" {
		fmt.Fprintf(&b, "Price: %s\n", a.Price)
	}
	fmt.Fprintf(&b, "Verdict: %s\n", r.Verdict)
	fmt.Fprintf(&b, "Trust score: %.0f/100\n", r.TrustScore)
	fmt.Fprintf(&b, "Confidence score: %.0f/100\n", r.ConfidenceScore)
	fmt.Fprintf(&b, "Summary: %s\n", r.Summary)
	writeList(&b, "Perfect for", r.PerfectFor)
	writeList(&b, "Avoid if", r.AvoidIf)
	writeList(&b, "Deal breakers", r.DealBreakers)
	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, strings.Join(items, "; "))
}
