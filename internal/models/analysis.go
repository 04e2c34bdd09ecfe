package models

import "time"

// Verdict values produced by the completion API. Other strings are passed
// through untouched.
const (
	VerdictBuy     = "BUY"
	VerdictSkip    = "SKIP"
	VerdictCaution = "CAUTION"
)

type BuyerPsychology struct {
	WhyTheyBuy    string `json:"why_they_buy" jsonschema:"description=What makes buyers pull the trigger"`
	WhatStopsThem string `json:"what_stops_them" jsonschema:"description=What makes buyers hesitate"`
}

// AnalysisResult is the structured completion for one product.
type AnalysisResult struct {
	Verdict          string          `json:"verdict" jsonschema:"enum=BUY,enum=SKIP,enum=CAUTION"`
	Summary          string          `json:"summary" jsonschema:"description=Two or three sentence summary of the reviews"`
	TrustScore       float64         `json:"trust_score" jsonschema:"minimum=0,maximum=100,description=How trustworthy the reviews look"`
	ConfidenceScore  float64         `json:"confidence_score" jsonschema:"minimum=0,maximum=100,description=How confident the verdict is"`
	PerfectFor       []string        `json:"perfect_for"`
	AvoidIf          []string        `json:"avoid_if"`
	DealBreakers     []string        `json:"deal_breakers"`
	BuyerPsychology  BuyerPsychology `json:"buyer_psychology"`
	PersuasiveAngles []string        `json:"persuasive_angles"`
	HonestObjections []string        `json:"honest_objections"`
}

// ProductAnalysis is immutable once stored. Re-analysing a product inserts a
// new row.
type ProductAnalysis struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id,omitempty"`
	ASIN           string         `json:"asin"`
	ProductName    string         `json:"product_name"`
	Price          string         `json:"price"`
	AnalysisResult AnalysisResult `json:"analysis_result"`
	IsPublic       bool           `json:"is_public"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ProductInput is the page data an analysis is computed from.
type ProductInput struct {
	URL          string   `json:"url"`
	ASIN         string   `json:"asin,omitempty"`
	ProductTitle string   `json:"product_title,omitempty"`
	Price        string   `json:"price,omitempty"`
	Reviews      []string `json:"reviews,omitempty"`
}
