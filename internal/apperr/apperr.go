// Package apperr defines the error taxonomy shared by every domain package.
//
// Domain sentinels wrap exactly one root so callers (the HTTP layer, the
// automation loops) can classify failures with errors.Is without knowing
// each package's sentinels:
//
//	var ErrDeviceNotFound = fmt.Errorf("%w: device not found", apperr.NotFound)
//
//	if errors.Is(err, apperr.NotFound) {
//	    // 404
//	}
package apperr

import (
	"errors"
	"fmt"
)

// Taxonomy roots.
var (
	// NotFound means the referenced entity does not exist.
	NotFound = errors.New("not found")

	// ValidationError means the input was rejected before any state changed.
	ValidationError = errors.New("validation failed")

	// TransientIOError covers broker, broadcast, and telemetry failures.
	// These are logged by the caller and never undo a committed transition.
	TransientIOError = errors.New("transient I/O failure")

	// StorageError means a transaction failed and was rolled back.
	StorageError = errors.New("storage failure")
)

// Storage marks err as a StorageError while keeping it in the chain.
// Returns nil for a nil err.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", StorageError, op, err)
}

// Transient marks err as a TransientIOError while keeping it in the chain.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", TransientIOError, op, err)
}

// Invalid returns a ValidationError carrying a user-facing message.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ValidationError, fmt.Sprintf(format, args...))
}

// Kind returns the taxonomy root err belongs to, or nil if none.
func Kind(err error) error {
	for _, root := range []error{NotFound, ValidationError, StorageError, TransientIOError} {
		if errors.Is(err, root) {
			return root
		}
	}
	return nil
}
