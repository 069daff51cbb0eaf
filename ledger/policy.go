/*
policy.go - Leave accrual policies

PURPOSE:
  A Policy is the contract between a company and its employees for one
  leave type: when leave is granted (accrual method), how much (service
  tier table, proration), how long it lives (expiry months), the
  smallest bookable unit, and how deductions behave.

ACCRUAL METHODS:
  anniversary:  grant on each anniversary of the employee's eligibility
                start date; amount from the service-year tier table
  monthly:      grant on a fixed day of every month; amount is the
                monthly slice (1/12) of the annual entitlement
  fiscal_fixed: grant once per fiscal year on a fixed calendar date,
                independent of individual anniversaries

SEE ALSO:
  - accrual.go: the engine that evaluates these policies
  - calendar.go: business-day gate inputs live on the policy
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCRUAL METHOD / DEDUCTION TIMING
// =============================================================================

type AccrualMethod string

const (
	MethodAnniversary AccrualMethod = "anniversary"
	MethodFiscalFixed AccrualMethod = "fiscal_fixed"
	MethodMonthly     AccrualMethod = "monthly"
)

// DeductionTiming controls when holds count against grant availability.
type DeductionTiming string

const (
	// DeductOnApply: holds reduce availability as soon as a request is
	// submitted. Two overlapping requests cannot spend the same hours.
	DeductOnApply DeductionTiming = "on_apply"

	// DeductOnApprove: only confirmed consumptions reduce availability.
	DeductOnApprove DeductionTiming = "on_approve"
)

// =============================================================================
// POLICY
// =============================================================================

// ServiceTier maps a minimum completed service-year count to an annual
// entitlement in days. Tiers are matched highest-first.
type ServiceTier struct {
	MinYears int             `json:"min_years"`
	Days     decimal.Decimal `json:"days"`
}

type Policy struct {
	ID          PolicyID      `json:"id"`
	CompanyID   CompanyID     `json:"company_id"`
	LeaveTypeID LeaveTypeID   `json:"leave_type_id"`
	Name        string        `json:"name"`
	Method      AccrualMethod `json:"method"`

	// BaseDaysByService is the service-years to annual-days table.
	BaseDaysByService []ServiceTier `json:"base_days_by_service"`

	// Prorate scales grants by the employee's FTE percentage.
	Prorate bool `json:"prorate"`

	// CarryoverMaxDays caps the unexpired balance carried past a new
	// grant. nil = unlimited carry-over.
	CarryoverMaxDays *decimal.Decimal `json:"carryover_max_days,omitempty"`

	// ExpireMonths is how long a grant lives. Must be > 0.
	ExpireMonths int `json:"expire_months"`

	MinUnit         MinUnit         `json:"min_unit"`
	AllowNegative   bool            `json:"allow_negative"`
	DeductionTiming DeductionTiming `json:"deduction_timing"`

	// BusinessDaysOnly skips accrual on non-business dates.
	BusinessDaysOnly   bool           `json:"business_days_only"`
	NonWorkingWeekdays []time.Weekday `json:"non_working_weekdays"`
	BlackoutDates      []Date         `json:"blackout_dates"`

	HoursPerDay decimal.Decimal `json:"hours_per_day"`

	// MonthlyGrantDay is the grant day-of-month for the monthly method.
	// Days past a month's end clamp to its last day.
	MonthlyGrantDay int `json:"monthly_grant_day,omitempty"`

	// FiscalMonth/FiscalDay is the grant date for fiscal_fixed.
	FiscalMonth time.Month `json:"fiscal_month,omitempty"`
	FiscalDay   int        `json:"fiscal_day,omitempty"`

	Active bool `json:"active"`
}

// Validate checks the policy invariants before the engine will touch it.
func (p Policy) Validate() error {
	switch p.MinUnit {
	case MinUnitHour, MinUnitHalfDay, MinUnitFullDay:
	default:
		return fmt.Errorf("policy %s: %w: min unit %q", p.ID, ErrInvalidUnit, p.MinUnit)
	}
	if p.ExpireMonths <= 0 {
		return fmt.Errorf("policy %s: expire months must be positive, got %d", p.ID, p.ExpireMonths)
	}
	if !p.HoursPerDay.IsPositive() {
		return fmt.Errorf("policy %s: hours per day must be positive, got %s", p.ID, p.HoursPerDay)
	}
	switch p.Method {
	case MethodAnniversary:
	case MethodMonthly:
		if p.MonthlyGrantDay < 1 || p.MonthlyGrantDay > 31 {
			return fmt.Errorf("policy %s: monthly grant day out of range: %d", p.ID, p.MonthlyGrantDay)
		}
	case MethodFiscalFixed:
		if p.FiscalMonth < time.January || p.FiscalMonth > time.December || p.FiscalDay < 1 || p.FiscalDay > 31 {
			return fmt.Errorf("policy %s: fiscal date out of range: %d-%d", p.ID, p.FiscalMonth, p.FiscalDay)
		}
	default:
		return fmt.Errorf("policy %s: unknown accrual method %q", p.ID, p.Method)
	}
	if len(p.BaseDaysByService) == 0 {
		return fmt.Errorf("policy %s: empty service tier table", p.ID)
	}
	return nil
}

// DaysForService looks up the annual entitlement for completed service
// years. The highest tier with MinYears <= years wins; below the lowest
// tier the entitlement is zero.
func (p Policy) DaysForService(years int) decimal.Decimal {
	best := decimal.Zero
	bestMin := -1
	for _, tier := range p.BaseDaysByService {
		if years >= tier.MinYears && tier.MinYears > bestMin {
			best = tier.Days
			bestMin = tier.MinYears
		}
	}
	return best
}

// Calendar builds the business calendar for this policy's company.
func (p Policy) Calendar() Calendar {
	return NewCalendar(p.NonWorkingWeekdays, p.BlackoutDates)
}

// expiryFor computes a grant's expiry date from its grant date.
func (p Policy) expiryFor(grantedOn Date) Date {
	return grantedOn.AddMonths(p.ExpireMonths)
}
