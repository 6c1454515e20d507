/*
errors.go - Centralized error types for the ledger core

PURPOSE:
  All error types in one place for consistency and discoverability.
  The HTTP layer maps these onto status codes without inspecting
  strings.

ERROR CATEGORIES:
  1. Validation errors - bad input, checked before any store access
  2. Store errors - persistence failures, nothing was committed
  3. Concurrency sentinels - CAS conflicts, retried by the engine

USAGE:
  var verr *ledger.ValidationError
  if errors.As(err, &verr) {
      // 400
  }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is the sentinel behind every ValidationError.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreFailure is the sentinel behind every StoreError.
	ErrStoreFailure = errors.New("store failure")

	// ErrConcurrentModification is returned by Store.WriteState and
	// Store.Apply when the expected version no longer matches. The
	// engine retries; callers should not see it.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrDuplicateTransaction is returned when appending a transaction
	// whose ID already exists. Safe to treat as already-applied.
	ErrDuplicateTransaction = errors.New("duplicate transaction id")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports malformed or out-of-range input. It is
// always produced before any store interaction: no mutation was
// attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// StoreError wraps a persistence failure. The mutation was not
// applied; the caller may retry.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStoreFailure }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsRetryable returns true if the operation might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
