// Package provider defines the generator abstraction and its upstream
// adapters. The orchestrator depends only on the Generator interface.
package provider

import "context"

// Request carries the generation parameters for one upstream call.
type Request struct {
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Result is a successful generation with usage and cost accounting.
type Result struct {
	Response     string
	InputTokens  int
	OutputTokens int
	TokensUsed   int
	CostUSD      float64
	LatencyMS    float64
	Provider     string
	Model        string
}

// Generator produces text for a prompt. Implementations own their retry
// policy; terminal failures surface as a typed GeneratorUnavailable error.
type Generator interface {
	// Name returns the provider identifier (e.g., "groq").
	Name() string

	// Call performs a generation, retrying transient faults internally.
	Call(ctx context.Context, req *Request) (*Result, error)
}
