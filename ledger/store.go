/*
store.go - Persistence interfaces for the two ledgers

PURPOSE:
  Defines the boundary between the ledger logic and the database. The
  grant ledger is append-only; the consumption ledger is append-mostly
  (rows flip hold->confirmed, or are deleted on release/reverse - both
  always inside one transaction per request).

WRITERS:
  Accrual engine:      grants (and carry-over forfeit consumptions)
  Allocation algorithm: consumptions and their state transitions
  Nothing else writes either ledger.

IDEMPOTENCY:
  InsertGrant enforces at most one accrual grant per (user, leave type,
  granted-on date). A second insert fails with ErrDuplicateGrant, which
  the accrual engine reports as "skipped".

IMPLEMENTATIONS:
  - ledger/store: in-memory, for tests and dev
  - store/sqlite: production SQLite (same SQL shape applies to Postgres)

SEE ALSO:
  - allocate.go: runs its read-then-write sequence inside WithTx
*/
package ledger

import "context"

// Store is the persistence boundary for policies, employees, and the
// grant/consumption ledgers.
type Store interface {
	// Policies
	SavePolicy(ctx context.Context, p Policy) error
	PolicyByID(ctx context.Context, id PolicyID) (Policy, error)
	// PolicyFor returns the active policy for a (company, leave type)
	// pair, or ErrPolicyNotFound.
	PolicyFor(ctx context.Context, companyID CompanyID, leaveTypeID LeaveTypeID) (Policy, error)
	// ActivePolicies lists active policies, optionally scoped to one
	// company (empty CompanyID = all companies).
	ActivePolicies(ctx context.Context, companyID CompanyID) ([]Policy, error)

	// Employees
	SaveEmployee(ctx context.Context, e Employee) error
	EmployeeByID(ctx context.Context, id UserID) (Employee, error)
	EmployeesByCompany(ctx context.Context, companyID CompanyID) ([]Employee, error)

	// Grant ledger (append-only)
	InsertGrant(ctx context.Context, g Grant) error
	GrantByID(ctx context.Context, id GrantID) (Grant, error)
	// GrantsByUser returns all grants, including expired ones, ordered
	// by granted-on date (empty LeaveTypeID = all leave types).
	GrantsByUser(ctx context.Context, userID UserID, leaveTypeID LeaveTypeID) ([]Grant, error)
	// HasAccrualGrantOn checks the accrual idempotency key.
	HasAccrualGrantOn(ctx context.Context, userID UserID, leaveTypeID LeaveTypeID, grantedOn Date) (bool, error)

	// Consumption ledger
	InsertConsumption(ctx context.Context, c Consumption) error
	ConsumptionsByGrant(ctx context.Context, grantID GrantID) ([]Consumption, error)
	ConsumptionsByRequest(ctx context.Context, requestID RequestID) ([]Consumption, error)
	// ConfirmRequest flips every hold row of the request to confirmed
	// and returns how many rows it flipped.
	ConfirmRequest(ctx context.Context, requestID RequestID) (int, error)
	// DeleteRequestConsumptions removes the request's rows (only holds
	// when holdOnly) and returns how many rows it removed.
	DeleteRequestConsumptions(ctx context.Context, requestID RequestID, holdOnly bool) (int, error)

	// WithTx executes fn atomically. If fn returns an error the writes
	// are rolled back. Implementations must serialize conflicting
	// writers so a concurrent allocation cannot observe stale grant
	// availability.
	WithTx(ctx context.Context, fn func(Store) error) error
}
