// Package embedding provides clients that turn text into fixed-dimension
// vectors for semantic matching.
package embedding

import "context"

// Embedder converts text into a fixed-dimension vector.
// Implementations make a single attempt; retrying is the caller's choice.
type Embedder interface {
	// Embed returns the vector for text, or a typed EmbeddingUnavailable error.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the expected vector length.
	Dimension() int
}
