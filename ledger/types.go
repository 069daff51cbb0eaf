/*
Package ledger implements the leave balance ledger and accrual engine.

PURPOSE:
  This package contains the core types and algorithms for tracking paid
  time off as a two-sided ledger: grant lines (leave given, with an
  expiry date) and consumption lines (leave taken, each owned by exactly
  one grant). Balance is never stored; it is always recomputed from the
  two ledgers.

KEY CONCEPTS IN THIS FILE (types.go):
  - Grant: A ledger line of leave hours given to a user
  - Consumption: A ledger line of leave hours deducted from a grant
  - Hold: A tentative consumption, created at request time and later
    confirmed (approval) or released (rejection)
  - BalanceRow / GrantRemaining: Derived balance views

DESIGN PRINCIPLES:
  1. Hours are canonical: every quantity is stored in hours, converted
     from user-facing units (day / half-day / hour) at the edge
  2. Precision: decimal.Decimal everywhere, never float64
  3. Derived balances: balance = sum(grants) - sum(consumptions), always
  4. Auditability: every mutating operation lands in the audit sink

SEE ALSO:
  - policy.go: Accrual policy definitions
  - accrual.go: Scheduled grant issuance
  - allocate.go: FIFO-by-expiry consumption allocation
  - balance.go: Derived balance views
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	UserID      string
	CompanyID   string
	LeaveTypeID string
	PolicyID    string
	GrantID     string
	RequestID   string
)

// =============================================================================
// UNITS
// =============================================================================

// Unit is the user-facing unit a leave quantity is entered in.
type Unit string

const (
	UnitHour Unit = "hour"
	UnitHalf Unit = "half"
	UnitDay  Unit = "day"
)

// MinUnit is the smallest quantity of leave a policy allows.
type MinUnit string

const (
	MinUnitHour    MinUnit = "1h"
	MinUnitHalfDay MinUnit = "0.5d"
	MinUnitFullDay MinUnit = "1d"
)

// =============================================================================
// GRANT - A ledger line of leave hours given to a user
// =============================================================================

// GrantSource records how a grant came to exist. Accrual grants are
// subject to the one-per-(user, leave type, date) idempotency key;
// manual grants are not.
type GrantSource string

const (
	SourceAccrual GrantSource = "accrual"
	SourceManual  GrantSource = "manual"
)

// Grant is immutable once created. Corrections happen through
// consumptions and reversals, never by editing the grant row.
type Grant struct {
	ID          GrantID
	UserID      UserID
	LeaveTypeID LeaveTypeID
	PolicyID    PolicyID
	Source      GrantSource

	// Quantity is in hours, the canonical unit. Never negative.
	Quantity decimal.Decimal

	GrantedOn Date
	ExpiresOn *Date // nil = never expires

	Note      string
	CreatedAt time.Time
}

// ExpiredAt reports whether the grant can no longer be allocated
// against as of the given date. The row itself persists for history.
func (g Grant) ExpiredAt(on Date) bool {
	return g.ExpiresOn != nil && g.ExpiresOn.Before(on)
}

// =============================================================================
// CONSUMPTION - A ledger line of hours deducted from one grant
// =============================================================================

// Consumption is owned by exactly one grant. A request may own many
// consumption rows across many grants when an allocation splits.
type Consumption struct {
	ID        string
	GrantID   GrantID
	RequestID RequestID

	// Quantity is in hours, always > 0.
	Quantity decimal.Decimal

	// IsHold marks a tentative consumption. Confirm flips it to false;
	// release deletes the row instead.
	IsHold bool

	ConsumedOn Date
	Note       string
	CreatedAt  time.Time
}

// =============================================================================
// EMPLOYEE - Accrual target
// =============================================================================

type Employee struct {
	ID        UserID
	CompanyID CompanyID
	Name      string

	// EligibleFrom anchors anniversary accrual and service-year lookups.
	EligibleFrom Date

	// FTEPercent scales prorated grants. 100 = full time.
	FTEPercent decimal.Decimal

	Active bool
}

// ServiceYears returns completed years of service as of a date.
func (e Employee) ServiceYears(asOf Date) int {
	years := asOf.Year() - e.EligibleFrom.Year()
	if years < 0 {
		return 0
	}
	anniversary := e.EligibleFrom.AddYears(years)
	if asOf.Before(anniversary) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// =============================================================================
// BALANCE VIEWS - Derived, never persisted
// =============================================================================

// BalanceRow is the per-leave-type balance pair.
//
// Invariant: RemainingIncludingHolds <= RemainingConfirmed. Holds only
// ever reduce the optimistic balance further.
type BalanceRow struct {
	LeaveTypeID             LeaveTypeID
	RemainingConfirmed      decimal.Decimal
	RemainingIncludingHolds decimal.Decimal
}

// GrantRemaining is the per-grant drill-down used by balance screens.
type GrantRemaining struct {
	Grant                   Grant
	RemainingConfirmed      decimal.Decimal
	RemainingIncludingHolds decimal.Decimal
}
