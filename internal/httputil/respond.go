// Package httputil provides helpers for HTTP payloads: JSON responses, the
// single error-to-status translation, and bounded request body reading.
package httputil

import (
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	gwerrors "github.com/sentinel-gateway/sentinel/pkg/errors"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	Retryable  *bool  `json:"retryable,omitempty"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

// WriteError translates a domain error into its HTTP response. This is the
// only place that mapping happens; handlers and middleware all route
// failures through here so clients see one consistent shape.
//
// 4xx responses carry {error, message}. 5xx responses additionally carry
// the retry hints. A Retry-After header accompanies 429 and cooldown 503s.
func WriteError(w http.ResponseWriter, err error) {
	ge := gwerrors.AsGatewayError(err)
	status := ge.HTTPStatusCode()

	if ge.RetryAfter > 0 && (status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable) {
		w.Header().Set("Retry-After", strconv.Itoa(ge.RetryAfter))
	}

	body := errorBody{
		Error:   ge.Kind,
		Message: ge.Message,
	}
	if status >= 500 {
		retryable := ge.Retryable
		body.Retryable = &retryable
		body.RetryAfter = ge.RetryAfter
	}

	WriteJSON(w, status, body)
}
