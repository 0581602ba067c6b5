package httputil

import (
	"errors"
	"io"

	"github.com/goccy/go-json"
)

const (
	// DefaultMaxRequestBodyBytes caps inbound request bodies to 1MB.
	DefaultMaxRequestBodyBytes int64 = 1 * 1024 * 1024
)

var ErrBodyTooLarge = errors.New("request body too large")

// ReadLimitedBody reads up to maxBytes from reader and returns
// ErrBodyTooLarge when exceeded.
func ReadLimitedBody(reader io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(reader)
	}

	limited := io.LimitReader(reader, maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return body, err
	}
	if int64(len(body)) > maxBytes {
		body = body[:int(maxBytes)]
		return body, ErrBodyTooLarge
	}
	return body, nil
}

// DecodeJSONBody reads a bounded request body and unmarshals it into dst.
func DecodeJSONBody(reader io.Reader, maxBytes int64, dst any) error {
	body, err := ReadLimitedBody(reader, maxBytes)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dst)
}
