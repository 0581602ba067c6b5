package embedding

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memo wraps an Embedder with a short-lived in-process cache keyed by the
// exact text. Lock-losing pollers and repeated prompts re-use the vector
// instead of paying a second upstream call.
type Memo struct {
	inner Embedder
	cache *gocache.Cache
}

// NewMemo creates a memoizing wrapper. ttl bounds staleness; embeddings for
// a given text are stable, so a generous ttl is safe.
func NewMemo(inner Embedder, ttl time.Duration) *Memo {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Memo{
		inner: inner,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Embed returns the memoized vector when present, otherwise delegates.
// Failures are not memoized so a recovered upstream is retried immediately.
func (m *Memo) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := m.cache.Get(text); ok {
		return v.([]float32), nil
	}
	vec, err := m.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	m.cache.SetDefault(text, vec)
	return vec, nil
}

// Dimension returns the wrapped embedder's dimension.
func (m *Memo) Dimension() int {
	return m.inner.Dimension()
}
