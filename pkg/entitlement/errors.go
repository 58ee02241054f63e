package entitlement

import (
	"errors"
	"fmt"
)

var (
	// ErrIdentification is returned when an event carries no usable account reference
	ErrIdentification = errors.New("no account identification in event")

	// ErrNoAccountMatched is a soft failure: the grant ran but matched no account
	ErrNoAccountMatched = errors.New("no account matched")

	// ErrAccountNotFound is returned by Store.GetAccount for unknown ids
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidMatch is returned for a Match with an unknown field or empty value
	ErrInvalidMatch = errors.New("invalid account match")

	// ErrStoreRequired is returned when an Applier is built without a Store
	ErrStoreRequired = errors.New("account store is required")

	// ErrStorageUnavailable is returned when the store is unreachable
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// StorageError is a hard failure raised by the account store during a grant.
// Callers should surface it so the provider redelivers the event later.
type StorageError struct {
	Op    string
	Match Match
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s (%s): %v", e.Op, e.Match, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
