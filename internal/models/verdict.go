package models

// Verdict is what the overlay shows and caches per product.
type Verdict struct {
	ASIN            string  `json:"asin"`
	Verdict         string  `json:"verdict"`
	TrustScore      float64 `json:"trust_score"`
	ConfidenceScore float64 `json:"confidence_score"`
	Summary         string  `json:"summary"`
	ID              string  `json:"id"`
	IsAnonymous     bool    `json:"is_anonymous"`
}

// CachedVerdict wraps a Verdict with the time it was stored.
type CachedVerdict struct {
	Verdict    Verdict `json:"verdict"`
	TimeString string  `json:"timeString"`
	Timestamp  int64   `json:"timestamp"`
}

// AnalyzeResponse is the body returned by POST /api/amazon/analyze.
type AnalyzeResponse struct {
	ProductAnalysis
	Verdict         string  `json:"verdict"`
	TrustScore      float64 `json:"trust_score"`
	ConfidenceScore float64 `json:"confidence_score"`
	Summary         string  `json:"summary"`
	IsAnonymous     bool    `json:"is_anonymous"`
}

// NewAnalyzeResponse flattens the headline fields of a for clients that only
// need the badge.
func NewAnalyzeResponse(a *ProductAnalysis, anonymous bool) AnalyzeResponse {
	return AnalyzeResponse{
		ProductAnalysis: *a,
		Verdict:         a.AnalysisResult.Verdict,
		TrustScore:      a.AnalysisResult.TrustScore,
		ConfidenceScore: a.AnalysisResult.ConfidenceScore,
		Summary:         a.AnalysisResult.Summary,
		IsAnonymous:     anonymous,
	}
}

// VerdictFrom extracts the cacheable part of an analyze response.
func (r AnalyzeResponse) VerdictFrom() Verdict {
	return Verdict{
		ASIN:            r.ASIN,
		Verdict:         r.Verdict,
		TrustScore:      r.TrustScore,
		ConfidenceScore: r.ConfidenceScore,
		Summary:         r.Summary,
		ID:              r.ID,
		IsAnonymous:     r.IsAnonymous,
	}
}
