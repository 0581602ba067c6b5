package cache

import "math"

// Match is a semantic scan result at or above the caller's threshold.
type Match struct {
	Prompt     string
	Response   string
	Similarity float64
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths and zero-norm vectors yield 0, since cosine is
// undefined there and such entries must never match.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// BestMatch scans entries and returns the single best match whose similarity
// to query is >= threshold. Entries without an embedding are skipped.
// Ties keep the first-seen entry in scan order.
func BestMatch(query []float32, entries []Entry, threshold float64) (Match, bool) {
	if len(query) == 0 {
		return Match{}, false
	}

	var (
		best      Entry
		bestScore float64
		seen      bool
	)
	for _, e := range entries {
		if len(e.Embedding) == 0 {
			continue
		}
		score := CosineSimilarity(query, e.Embedding)
		if !seen || score > bestScore {
			best = e
			bestScore = score
			seen = true
		}
	}

	if !seen || bestScore < threshold {
		return Match{}, false
	}
	return Match{Prompt: best.Prompt, Response: best.Response, Similarity: bestScore}, true
}
