/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify failures with errors.Is / errors.As; the API layer
  maps these onto HTTP status codes.

ERROR CATEGORIES:
  1. Authorization - caller is not a recognized administrator
  2. NotFound      - referenced device or withdrawal does not exist
  3. Consistency   - the operation would violate an invariant; the
                     atomic unit aborted with zero partial state

USAGE:
  var nbErr *ledger.NegativeBalanceError
  if errors.As(err, &nbErr) {
      // nbErr.Balance, nbErr.Delta carry the rejected arithmetic
  }

SEE ALSO:
  - ledger.go: Returns NegativeBalance / device NotFound
  - settlement.go: Returns AlreadyProcessed / withdrawal NotFound
  - api/handlers.go: Error-to-status mapping
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
	// ErrUnauthorized is returned when the caller is not a recognized
	// administrator. Checked before any ledger state is read.
	ErrUnauthorized = errors.New("admin access required")

	// ErrDeviceNotFound is returned when a referenced device doesn't exist.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrWithdrawalNotFound is returned when a referenced withdrawal doesn't exist.
	ErrWithdrawalNotFound = errors.New("withdrawal not found")

	// ErrNegativeBalance is returned when an adjustment would drive a
	// device balance below zero. The adjustment is rejected before commit.
	ErrNegativeBalance = errors.New("balance cannot go negative")

	// ErrAlreadyProcessed is returned when settling a withdrawal that is
	// no longer pending. Settlement is one-shot.
	ErrAlreadyProcessed = errors.New("withdrawal already processed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NegativeBalanceError details a rejected balance adjustment.
type NegativeBalanceError struct {
	DeviceID string
	Balance  int64 // balance at the time of the attempt
	Delta    int64 // rejected delta
}

func (e *NegativeBalanceError) Error() string {
	return fmt.Sprintf("balance cannot go negative: device %s has %d, delta %d",
		e.DeviceID, e.Balance, e.Delta)
}

func (e *NegativeBalanceError) Unwrap() error {
	return ErrNegativeBalance
}

// AlreadyProcessedError details a rejected re-settlement.
type AlreadyProcessedError struct {
	WithdrawalID string
	Status       WithdrawalStatus // the terminal status observed
}

func (e *AlreadyProcessedError) Error() string {
	return fmt.Sprintf("withdrawal %s already processed (status: %s)",
		e.WithdrawalID, e.Status)
}

func (e *AlreadyProcessedError) Unwrap() error {
	return ErrAlreadyProcessed
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDeviceNotFound) ||
		errors.Is(err, ErrWithdrawalNotFound)
}

// IsConsistency returns true if the error is a business-rule abort.
// These are terminal: the store was left unchanged and the platform must
// not retry them.
func IsConsistency(err error) bool {
	return errors.Is(err, ErrNegativeBalance) ||
		errors.Is(err, ErrAlreadyProcessed)
}

// IsUnauthorized returns true if the caller failed the admin gate.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
