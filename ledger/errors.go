/*
errors.go - Centralized error types for the leave ledger

PURPOSE:
  All error kinds the ledger can report, in one place. Callers branch
  with errors.Is / errors.As; the api package maps these to HTTP status
  codes via the category helpers at the bottom.

ERROR CATEGORIES:
  1. Validation errors  - rejected before any ledger write
  2. Balance/state errors - abort the whole operation, no partial writes
  3. Concurrency errors - caller should retry the same idempotent inputs

SEE ALSO:
  - allocate.go: InsufficientBalance / InvalidLedgerState producers
  - accrual.go: per-target errors collected into the run summary
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidUnit is returned when a unit or minimum unit is not one
	// of the recognized values.
	ErrInvalidUnit = errors.New("invalid unit")

	// ErrZeroDurationLine is returned when a request line rounds to zero
	// or less under the policy's minimum unit. The whole request is
	// rejected, not just the line.
	ErrZeroDurationLine = errors.New("request line rounds to zero duration")

	// ErrInsufficientBalance is returned when an allocation needs more
	// hours than the eligible grants can cover and the policy does not
	// allow negative balances.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInvalidLedgerState is returned when confirm/release/reverse is
	// attempted against a request whose ledger footprint does not permit
	// that transition.
	ErrInvalidLedgerState = errors.New("invalid ledger state for request")

	// ErrPolicyNotFound is returned when no active policy exists for a
	// (company, leave type) pair.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrEmployeeNotFound is returned when a referenced user doesn't exist.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrGrantNotFound is returned when a referenced grant doesn't exist.
	ErrGrantNotFound = errors.New("grant not found")

	// ErrGrantExpired is returned when a manual allocation targets an
	// expired grant outside of the manual-grant override.
	ErrGrantExpired = errors.New("grant expired")

	// ErrDuplicateGrant is returned by stores when an accrual grant for
	// the same (user, leave type, date) already exists. The accrual
	// engine reports this as "skipped", never as a failure.
	ErrDuplicateGrant = errors.New("grant already issued for date")

	// ErrConcurrencyConflict is returned on lock or serialization
	// failure. The operation is safe to retry with the same inputs.
	ErrConcurrencyConflict = errors.New("concurrency conflict, retry")

	// ErrInvalidRange is returned when a date range ends before it starts.
	ErrInvalidRange = errors.New("invalid range: end before start")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError reports the shortfall of a failed allocation.
type InsufficientBalanceError struct {
	UserID      UserID
	LeaveTypeID LeaveTypeID
	Available   decimal.Decimal
	Requested   decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s/%s: available %sh, requested %sh",
		e.UserID, e.LeaveTypeID, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// InvalidLedgerStateError names the rejected transition.
type InvalidLedgerStateError struct {
	RequestID RequestID
	Op        string // "confirm", "release", "reverse", "allocate"
	Reason    string
}

func (e *InvalidLedgerStateError) Error() string {
	return fmt.Sprintf("cannot %s request %s: %s", e.Op, e.RequestID, e.Reason)
}

func (e *InvalidLedgerStateError) Unwrap() error { return ErrInvalidLedgerState }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsClientError returns true if the error is due to invalid client input
// or a business rule the client can act on.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidUnit) ||
		errors.Is(err, ErrZeroDurationLine) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidLedgerState) ||
		errors.Is(err, ErrGrantExpired) ||
		errors.Is(err, ErrDuplicateGrant) ||
		errors.Is(err, ErrInvalidRange)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPolicyNotFound) ||
		errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrGrantNotFound)
}
