package api

import (
	"fmt"
	"net/http"

	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

// Config holds configuration for the entitlement API handler
type Config struct {
	// Store is the account store (required)
	Store entitlement.Store

	// GetAccountID extracts the account ID from the HTTP request (required)
	// Similar to middleware/http pattern
	GetAccountID func(*http.Request) string

	// OnError handles errors (auth, internal, etc.)
	// If nil, uses default error handling
	OnError func(http.ResponseWriter, *http.Request, error)

	// Logger is optional; store failures are logged here
	Logger entitlement.Logger
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Store == nil {
		return fmt.Errorf("store is required")
	}
	if c.GetAccountID == nil {
		return fmt.Errorf("getAccountID is required")
	}
	return nil
}

// NewHandler creates a new entitlement API handler with the given configuration
func NewHandler(config Config) (*Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Logger == nil {
		config.Logger = &entitlement.NoopLogger{}
	}
	return &Handler{
		config: config,
	}, nil
}

// Helper functions for common AccountID extraction patterns

// FromHeader returns a GetAccountID function that extracts the ID from a header
func FromHeader(headerName string) func(*http.Request) string {
	return func(r *http.Request) string {
		return r.Header.Get(headerName)
	}
}

// FromContext returns a GetAccountID function that extracts the ID from request context
// Uses the same context key pattern as middleware/http
func FromContext(key interface{}) func(*http.Request) string {
	return func(r *http.Request) string {
		if id, ok := r.Context().Value(key).(string); ok {
			return id
		}
		return ""
	}
}

// FromPathValue returns a GetAccountID function that reads a net/http
// ServeMux path wildcard such as {id}
func FromPathValue(name string) func(*http.Request) string {
	return func(r *http.Request) string {
		return r.PathValue(name)
	}
}
