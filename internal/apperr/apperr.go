// Package apperr defines the error categories shared across the service
// layer. Callers wrap these sentinels with fmt.Errorf("%w: ...") and the
// HTTP layer maps each category to a status code in one place.
package apperr

import "errors"

var (
	// ErrValidation marks bad client input (non-positive quantity, unknown
	// fulfillment method, malformed request fields).
	ErrValidation = errors.New("validation failed")

	// ErrForbidden marks an attempt to act on another user's resource.
	ErrForbidden = errors.New("not allowed")

	// ErrNotFound marks a missing product, cart item, slot or order.
	ErrNotFound = errors.New("not found")

	// ErrNoCapacity marks a reservation attempt against a full slot. This is
	// an expected outcome under contention, not a server fault.
	ErrNoCapacity = errors.New("no capacity left")

	// ErrConflict marks client-submitted totals that do not match the
	// server-side recomputation.
	ErrConflict = errors.New("conflict")
)
