// Package internal holds HTTP helpers shared by the billing providers.
package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrPayloadTooLarge is returned when the request body exceeds the size limit
var ErrPayloadTooLarge = errors.New("payload too large")

// ErrEmptyBody is returned by ReadBodyStrict for a zero-length body
var ErrEmptyBody = errors.New("empty body")

// ReadBody reads at most limit bytes from r.
// A body longer than limit yields ErrPayloadTooLarge; the bytes are discarded.
func ReadBody(r io.Reader, limit int64) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, fmt.Errorf("%w (max %d bytes)", ErrPayloadTooLarge, limit)
		}
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w (max %d bytes)", ErrPayloadTooLarge, limit)
	}
	return body, nil
}

// ReadBodyStrict is ReadBody that also rejects empty bodies.
func ReadBodyStrict(r io.Reader, limit int64) ([]byte, error) {
	body, err := ReadBody(r, limit)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}
	return body, nil
}

// WriteJSON writes a JSON response with proper headers
func WriteJSON(w http.ResponseWriter, code int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(data)
}

// SetSecurityHeaders marks a response as uncacheable and not sniffable.
func SetSecurityHeaders(h http.Header) {
	h.Set("Cache-Control", "no-store")
	h.Set("X-Content-Type-Options", "nosniff")
}
