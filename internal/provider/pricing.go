package provider

import "strings"

// ModelPricing defines per-1K-token USD rates for a model.
// Model supports a trailing-asterisk wildcard, e.g. "llama-3*".
type ModelPricing struct {
	Model           string
	InputCostPer1K  float64
	OutputCostPer1K float64
}

// DefaultPricing covers the Groq catalogue.
var DefaultPricing = []ModelPricing{
	{Model: "llama-3.1-8b-instant", InputCostPer1K: 0.00005, OutputCostPer1K: 0.00015},
	{Model: "llama-3.3-70b-versatile", InputCostPer1K: 0.00059, OutputCostPer1K: 0.00079},
	{Model: "llama-3*", InputCostPer1K: 0.0002, OutputCostPer1K: 0.0002},
	{Model: "mixtral-8x7b*", InputCostPer1K: 0.00024, OutputCostPer1K: 0.00024},
	{Model: "gemma2-9b-it", InputCostPer1K: 0.0002, OutputCostPer1K: 0.0002},
}

// fallbackPricing applies when no entry matches.
var fallbackPricing = ModelPricing{InputCostPer1K: 0.00005, OutputCostPer1K: 0.00015}

// Cost computes the deterministic USD cost for a token usage pair.
// Exact model names win over wildcard entries; table order breaks ties.
func Cost(model string, inputTokens, outputTokens int) float64 {
	p := lookupPricing(model)
	return float64(inputTokens)/1000*p.InputCostPer1K +
		float64(outputTokens)/1000*p.OutputCostPer1K
}

func lookupPricing(model string) ModelPricing {
	for _, p := range DefaultPricing {
		if p.Model == model {
			return p
		}
	}
	for _, p := range DefaultPricing {
		if prefix, ok := strings.CutSuffix(p.Model, "*"); ok && strings.HasPrefix(model, prefix) {
			return p
		}
	}
	return fallbackPricing
}
