package metrics

import (
	"net/http"
	"strconv"
	"time"
)

// statusRecorder captures the response status for labeling.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware records the request counter and latency histogram for every
// request. The endpoint label is the matched route pattern, not the raw
// path, to keep cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = r.URL.Path
		}
		RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(rec.status)).Inc()
		RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	})
}
