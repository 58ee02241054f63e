package billing

import "errors"

var (
	// ErrConfiguration is returned when the provider lacks a secret or collaborator it needs
	ErrConfiguration = errors.New("billing provider not configured")

	// ErrVerification is returned when a webhook signature cannot be verified.
	// The underlying cause is logged, never sent back to the caller.
	ErrVerification = errors.New("webhook verification failed")

	// ErrParse is returned when a verified payload is not a well-formed event
	ErrParse = errors.New("invalid webhook payload")

	// ErrInvalidCheckoutRequest is returned when a checkout request fails validation
	ErrInvalidCheckoutRequest = errors.New("invalid checkout request")

	// ErrProviderAPIError is returned when the provider's API returns an error
	ErrProviderAPIError = errors.New("billing provider API error")
)
