// Package echo mounts the webhook endpoint on Echo and provides middleware
// that admits only accounts with lifetime access.
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mihaimyh/subtrack/pkg/billing/stripe"
	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

// AccountIDExtractor extracts the account ID from an Echo context
// Return empty string if the caller is not authenticated
type AccountIDExtractor func(c echo.Context) string

// Config holds middleware configuration
type Config struct {
	// Store is the account store (required)
	Store entitlement.Store

	// GetAccountID extracts the account ID from context (required)
	GetAccountID AccountIDExtractor

	// OnUnauthorized is called when no account ID is present
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c echo.Context) error

	// OnPaymentRequired is called when the account has not paid
	// If nil, returns 402 Payment Required
	OnPaymentRequired func(c echo.Context, accountID string) error

	// OnError is called when the store fails
	// If nil, returns 500 Internal Server Error
	OnError func(c echo.Context, err error) error
}

// Webhook adapts the endpoint to an Echo handler. Register it with e.Any so
// non-POST requests get the endpoint's 405.
func Webhook(endpoint *stripe.Endpoint) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		reqID := stripe.EnsureRequestID(req.Header.Get(stripe.RequestIDHeader))

		resp := endpoint.Process(req.Context(), stripe.Request{
			Method:    req.Method,
			Signature: req.Header.Get(stripe.SignatureHeader),
			RequestID: reqID,
			Body:      req.Body,
		})

		h := c.Response().Header()
		for k, v := range resp.Header() {
			h[k] = v
		}
		h.Set(stripe.RequestIDHeader, reqID)
		return c.Blob(resp.Status, resp.ContentType, resp.Body)
	}
}

// Middleware creates an Echo middleware that requires lifetime access
func Middleware(cfg Config) echo.MiddlewareFunc {
	// Validate required configuration at startup (fail fast)
	if cfg.Store == nil {
		panic("subtrack/echo: Config.Store is required")
	}
	if cfg.GetAccountID == nil {
		panic("subtrack/echo: Config.GetAccountID is required")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			accountID := cfg.GetAccountID(c)
			if accountID == "" {
				if cfg.OnUnauthorized != nil {
					return cfg.OnUnauthorized(c)
				}
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}

			ok, err := entitlement.HasLifetimeAccess(c.Request().Context(), cfg.Store, accountID)
			if err != nil {
				if cfg.OnError != nil {
					return cfg.OnError(c, err)
				}
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
			}
			if !ok {
				if cfg.OnPaymentRequired != nil {
					return cfg.OnPaymentRequired(c, accountID)
				}
				return c.JSON(http.StatusPaymentRequired, map[string]string{"error": "Lifetime access required"})
			}

			return next(c)
		}
	}
}

// Convenience extractors for Account ID

// FromContext returns an AccountIDExtractor that gets the ID from Echo context values
func FromContext(key string) AccountIDExtractor {
	return func(c echo.Context) string {
		if str, ok := c.Get(key).(string); ok {
			return str
		}
		return ""
	}
}

// FromHeader returns an AccountIDExtractor that gets the ID from a header
func FromHeader(headerName string) AccountIDExtractor {
	return func(c echo.Context) string {
		return c.Request().Header.Get(headerName)
	}
}

// FromParam returns an AccountIDExtractor that gets the ID from a route parameter
func FromParam(paramName string) AccountIDExtractor {
	return func(c echo.Context) string {
		return c.Param(paramName)
	}
}
