package api

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sentinel-gateway/sentinel/internal/httputil"
	gwerrors "github.com/sentinel-gateway/sentinel/pkg/errors"
)

// Gate implements graceful draining: once draining starts, new requests
// are refused while in-flight ones run to completion.
type Gate struct {
	draining atomic.Bool
	inflight sync.WaitGroup
}

// NewGate creates an open gate.
func NewGate() *Gate {
	return &Gate{}
}

// Middleware tracks in-flight requests and refuses new ones while draining.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.draining.Load() {
			httputil.WriteError(w, gwerrors.NewDrainInProgress())
			return
		}
		g.inflight.Add(1)
		defer g.inflight.Done()
		next.ServeHTTP(w, r)
	})
}

// Drain flips the gate closed and waits up to timeout for in-flight
// requests to finish. Returns whether the drain completed in time.
func (g *Gate) Drain(timeout time.Duration) bool {
	g.draining.Store(true)

	done := make(chan struct{})
	go func() {
		g.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
