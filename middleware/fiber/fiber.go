// Package fiber mounts the webhook endpoint on Fiber and provides middleware
// that admits only accounts with lifetime access.
package fiber

import (
	"bytes"

	"github.com/gofiber/fiber/v2"

	"github.com/mihaimyh/subtrack/pkg/billing/stripe"
	"github.com/mihaimyh/subtrack/pkg/entitlement"
)

// AccountIDExtractor extracts the account ID from a Fiber context
// Return empty string if the caller is not authenticated
type AccountIDExtractor func(c *fiber.Ctx) string

// Config holds middleware configuration
type Config struct {
	// Store is the account store (required)
	Store entitlement.Store

	// GetAccountID extracts the account ID from context (required)
	GetAccountID AccountIDExtractor

	// OnUnauthorized is called when no account ID is present
	// If nil, returns 401 Unauthorized
	OnUnauthorized func(c *fiber.Ctx) error

	// OnPaymentRequired is called when the account has not paid
	// If nil, returns 402 Payment Required
	OnPaymentRequired func(c *fiber.Ctx, accountID string) error

	// OnError is called when the store fails
	// If nil, returns 500 Internal Server Error
	OnError func(c *fiber.Ctx, err error) error
}

// Webhook adapts the endpoint to a Fiber handler. Register it with app.All so
// non-POST requests get the endpoint's 405.
//
// Fiber buffers the body before the handler runs, so its own BodyLimit
// applies first.
func Webhook(endpoint *stripe.Endpoint) fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := stripe.EnsureRequestID(c.Get(stripe.RequestIDHeader))

		resp := endpoint.Process(c.UserContext(), stripe.Request{
			Method:    c.Method(),
			Signature: c.Get(stripe.SignatureHeader),
			RequestID: reqID,
			Body:      bytes.NewReader(c.Body()),
		})

		for k, v := range resp.Header() {
			c.Set(k, v[0])
		}
		c.Set(stripe.RequestIDHeader, reqID)
		return c.Status(resp.Status).Send(resp.Body)
	}
}

// Middleware creates a Fiber middleware that requires lifetime access
func Middleware(cfg Config) fiber.Handler {
	// Validate required configuration at startup (fail fast)
	if cfg.Store == nil {
		panic("subtrack/fiber: Config.Store is required")
	}
	if cfg.GetAccountID == nil {
		panic("subtrack/fiber: Config.GetAccountID is required")
	}

	return func(c *fiber.Ctx) error {
		accountID := cfg.GetAccountID(c)
		if accountID == "" {
			if cfg.OnUnauthorized != nil {
				return cfg.OnUnauthorized(c)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		}

		ok, err := entitlement.HasLifetimeAccess(c.UserContext(), cfg.Store, accountID)
		if err != nil {
			if cfg.OnError != nil {
				return cfg.OnError(c, err)
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
		}
		if !ok {
			if cfg.OnPaymentRequired != nil {
				return cfg.OnPaymentRequired(c, accountID)
			}
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": "Lifetime access required"})
		}

		return c.Next()
	}
}

// Convenience extractors for Account ID

// FromLocals returns an AccountIDExtractor that gets the ID from c.Locals,
// where auth middleware usually stores it
func FromLocals(key string) AccountIDExtractor {
	return func(c *fiber.Ctx) string {
		if str, ok := c.Locals(key).(string); ok {
			return str
		}
		return ""
	}
}

// FromHeader returns an AccountIDExtractor that gets the ID from a header
func FromHeader(headerName string) AccountIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Get(headerName)
	}
}

// FromParam returns an AccountIDExtractor that gets the ID from a route parameter
func FromParam(paramName string) AccountIDExtractor {
	return func(c *fiber.Ctx) string {
		return c.Params(paramName)
	}
}
