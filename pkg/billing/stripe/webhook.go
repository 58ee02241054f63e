package stripe

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mihaimyh/subtrack/pkg/billing/internal"
)

// RequestIDHeader is read from inbound requests and echoed on responses.
const RequestIDHeader = "X-Request-ID"

// ServeHTTP adapts Process to net/http.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := EnsureRequestID(r.Header.Get(RequestIDHeader))

	resp := e.Process(r.Context(), Request{
		Method:    r.Method,
		Signature: r.Header.Get(SignatureHeader),
		RequestID: reqID,
		Body:      r.Body,
	})
	w.Header().Set(RequestIDHeader, reqID)
	WriteResponse(w, resp)
}

// EnsureRequestID returns id, or a fresh UUID when id is empty.
func EnsureRequestID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

// Header returns the headers every transport must send with resp.
func (resp Response) Header() http.Header {
	h := make(http.Header)
	internal.SetSecurityHeaders(h)
	if resp.Status == http.StatusMethodNotAllowed {
		h.Set("Allow", http.MethodPost)
	}
	if resp.ContentType != "" {
		h.Set("Content-Type", resp.ContentType)
	}
	return h
}

// WriteResponse writes resp to w.
func WriteResponse(w http.ResponseWriter, resp Response) {
	for k, v := range resp.Header() {
		w.Header()[k] = v
	}
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}
