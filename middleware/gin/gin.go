// Package gin mounts the webhook endpoint on Gin and provides middleware
// that admits only accounts with lifetime access.
package gin

import (
	"net/http"

	gongin "github.com/gin-gonic/gin"

	"github.com/mihaimyh/subtrack/pkg/billing/stripe"
	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

// AccountIDExtractor extracts the account ID from a Gin context
// Return empty string if the caller is not authenticated
type AccountIDExtractor func(c *gongin.Context) string

// Config holds middleware configuration
type Config struct {
	// Store is the account store
	Store entitlement.Store

	// GetAccountID extracts the account ID from context (required)
	GetAccountID AccountIDExtractor

	// OnUnauthorized is called when no account ID is present
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *gongin.Context)

	// OnPaymentRequired is called when the account has not paid
	// If nil, returns 402 Payment Required
	OnPaymentRequired func(c *gongin.Context, accountID string)

	// OnError is called when the store fails
	// If nil, returns 500 Internal Server Error
	OnError func(c *gongin.Context, err error)
}

// Webhook adapts the endpoint to a Gin handler. Register it for every method
// (router.Any) so non-POST requests get the endpoint's 405.
func Webhook(endpoint *stripe.Endpoint) gongin.HandlerFunc {
	return func(c *gongin.Context) {
		reqID := stripe.EnsureRequestID(c.GetHeader(stripe.RequestIDHeader))

		resp := endpoint.Process(c.Request.Context(), stripe.Request{
			Method:    c.Request.Method,
			Signature: c.GetHeader(stripe.SignatureHeader),
			RequestID: reqID,
			Body:      c.Request.Body,
		})

		for k, v := range resp.Header() {
			c.Header(k, v[0])
		}
		c.Header(stripe.RequestIDHeader, reqID)
		c.Data(resp.Status, resp.ContentType, resp.Body)
	}
}

// Middleware creates a Gin middleware that requires lifetime access
func Middleware(cfg Config) gongin.HandlerFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Store == nil {
		panic("subtrack/gin: Config.Store is required")
	}
	if cfg.GetAccountID == nil {
		panic("subtrack/gin: Config.GetAccountID is required")
	}

	return func(c *gongin.Context) {
		accountID := cfg.GetAccountID(c)
		if accountID == "" {
			if cfg.OnUnauthorized != nil {
				cfg.OnUnauthorized(c)
			} else {
				c.JSON(http.StatusUnauthorized, gongin.H{"error": "Unauthorized"})
			}
			c.Abort()
			return
		}

		ok, err := entitlement.HasLifetimeAccess(c.Request.Context(), cfg.Store, accountID)
		if err != nil {
			if cfg.OnError != nil {
				cfg.OnError(c, err)
			} else {
				c.JSON(http.StatusInternalServerError, gongin.H{"error": "Internal Server Error"})
			}
			c.Abort()
			return
		}
		if !ok {
			if cfg.OnPaymentRequired != nil {
				cfg.OnPaymentRequired(c, accountID)
			} else {
				c.JSON(http.StatusPaymentRequired, gongin.H{"error": "Lifetime access required"})
			}
			c.Abort()
			return
		}

		c.Next()
	}
}

// Convenience extractors for Account ID

// FromContext returns an AccountIDExtractor that gets the ID from Gin context values
// This is the recommended approach for integrating with auth middleware that sets
// user information via c.Set("AccountID", "...") or similar.
func FromContext(key string) AccountIDExtractor {
	return func(c *gongin.Context) string {
		if val, exists := c.Get(key); exists {
			if str, ok := val.(string); ok {
				return str
			}
		}
		return ""
	}
}

// FromHeader returns an AccountIDExtractor that gets the ID from a header
func FromHeader(headerName string) AccountIDExtractor {
	return func(c *gongin.Context) string {
		return c.GetHeader(headerName)
	}
}

// FromParam returns an AccountIDExtractor that gets the ID from a route parameter
func FromParam(paramName string) AccountIDExtractor {
	return func(c *gongin.Context) string {
		return c.Param(paramName)
	}
}
