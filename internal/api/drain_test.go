package api

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGate_PassesWhenOpen(t *testing.T) {
	g := NewGate()
	handler := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/query", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGate_RefusesWhileDraining(t *testing.T) {
	g := NewGate()
	handler := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	assert.True(t, g.Drain(time.Second))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/query", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "drain_in_progress")
}

func TestGate_DrainWaitsForInFlight(t *testing.T) {
	g := NewGate()
	release := make(chan struct{})
	started := make(chan struct{})

	handler := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusOK)
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/query", nil))
	}()
	<-started

	// The in-flight request holds the drain open until released.
	assert.False(t, g.Drain(100*time.Millisecond))

	close(release)
	wg.Wait()
	assert.True(t, g.Drain(time.Second))
}
