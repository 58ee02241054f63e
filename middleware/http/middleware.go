// Package http provides net/http middleware that admits only accounts with
// lifetime access.
package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

// AccountIDExtractor extracts the account ID from an HTTP request
// Return empty string if the caller is not authenticated
type AccountIDExtractor func(r *http.Request) string

// Config holds middleware configuration
type Config struct {
	// Store is the account store (required)
	Store entitlement.Store

	// GetAccountID extracts the account ID from the request (required)
	GetAccountID AccountIDExtractor

	// OnUnauthorized is called when no account ID is present
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(w http.ResponseWriter, r *http.Request)

	// OnPaymentRequired is called when the account has not paid
	// If nil, returns 402 Payment Required
	OnPaymentRequired func(w http.ResponseWriter, r *http.Request, accountID string)

	// OnError is called when the store fails
	// If nil, returns 500 Internal Server Error
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

// Middleware creates an HTTP middleware that requires lifetime access
func Middleware(config Config) func(http.Handler) http.Handler {
	if config.Store == nil {
		panic("subtrack/http: Config.Store is required")
	}
	if config.GetAccountID == nil {
		panic("subtrack/http: Config.GetAccountID is required")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID := config.GetAccountID(r)
			if accountID == "" {
				if config.OnUnauthorized != nil {
					config.OnUnauthorized(w, r)
				} else {
					writeError(w, http.StatusUnauthorized, "Unauthorized")
				}
				return
			}

			ok, err := entitlement.HasLifetimeAccess(r.Context(), config.Store, accountID)
			if err != nil {
				if config.OnError != nil {
					config.OnError(w, r, err)
				} else {
					writeError(w, http.StatusInternalServerError, "Internal Server Error")
				}
				return
			}
			if !ok {
				if config.OnPaymentRequired != nil {
					config.OnPaymentRequired(w, r, accountID)
				} else {
					writeError(w, http.StatusPaymentRequired, "Lifetime access required")
				}
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// HandlerFunc creates the middleware for http.HandlerFunc chains
func HandlerFunc(config Config) func(http.HandlerFunc) http.HandlerFunc {
	middleware := Middleware(config)
	return func(next http.HandlerFunc) http.HandlerFunc {
		return middleware(next).ServeHTTP
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// Common extractors for convenience

// FromHeader returns an AccountIDExtractor that reads a header
func FromHeader(headerName string) AccountIDExtractor {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FromQuery returns an AccountIDExtractor that reads a query parameter
func FromQuery(name string) AccountIDExtractor {
	return func(r *http.Request) string {
		return r.URL.Query().Get(name)
	}
}

// FromContext returns an AccountIDExtractor that reads a string context value,
// typically set by an authentication middleware
func FromContext(key interface{}) AccountIDExtractor {
	return func(r *http.Request) string {
		if v, ok := r.Context().Value(key).(string); ok {
			return v
		}
		return ""
	}
}

// WithAccountID returns a copy of r carrying id under key, for use with FromContext.
func WithAccountID(r *http.Request, key interface{}, id string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), key, id))
}
