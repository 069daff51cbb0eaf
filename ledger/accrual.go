/*
accrual.go - Scheduled grant issuance

PURPOSE:
  Evaluates every active policy against every active employee for one
  as-of date and inserts the grants that are due, exactly once. The run
  is driven daily by an external scheduler; a back-fill date may be
  supplied explicitly.

IDEMPOTENCY CONTRACT:
  At most one accrual grant per (user, leave type, as-of date). A second
  invocation for the same date finds the existing grant and reports it
  as skipped. The store backs this with a uniqueness key, so even two
  racing runs cannot double-grant.

FAILURE SEMANTICS:
  Isolate-and-continue. A failure on one (policy, employee) target is
  collected into the run summary; the rest of the run proceeds.

CARRY-OVER:
  When a policy caps carry-over, any unexpired balance above the cap is
  forfeited at the moment the new grant is issued. Forfeiture writes
  confirmed consumption rows (never edits history), so the ledger
  identity balance = grants - consumptions keeps holding.

SEE ALSO:
  - policy.go: due-date rules per accrual method
  - api/scheduler.go: the daily invoker
*/
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	twelve  = decimal.NewFromInt(12)
	hundred = decimal.NewFromInt(100)
)

// IssueSummary is the outcome of one accrual run.
type IssueSummary struct {
	AsOf    Date          `json:"as_of"`
	Granted int           `json:"granted"`
	Skipped int           `json:"skipped"`
	Errors  []TargetError `json:"errors,omitempty"`
}

// TargetError is one isolated per-target failure inside a run.
type TargetError struct {
	PolicyID PolicyID `json:"policy_id"`
	UserID   UserID   `json:"user_id,omitempty"`
	Err      string   `json:"error"`
}

// IssueGrants runs the accrual engine for one as-of date. An empty
// companyID processes every company.
func (s *Service) IssueGrants(ctx context.Context, asOf Date, companyID CompanyID) (*IssueSummary, error) {
	if asOf.IsZero() {
		asOf = s.today()
	}
	summary := &IssueSummary{AsOf: asOf}

	policies, err := s.store.ActivePolicies(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("list active policies: %w", err)
	}

	for _, policy := range policies {
		if err := policy.Validate(); err != nil {
			summary.Errors = append(summary.Errors, TargetError{PolicyID: policy.ID, Err: err.Error()})
			continue
		}
		// Business-day gate: policies that only accrue on working days
		// skip non-business as-of dates entirely.
		if policy.BusinessDaysOnly && !policy.Calendar().IsBusinessDay(asOf) {
			continue
		}

		employees, err := s.store.EmployeesByCompany(ctx, policy.CompanyID)
		if err != nil {
			summary.Errors = append(summary.Errors, TargetError{PolicyID: policy.ID, Err: err.Error()})
			continue
		}

		for _, emp := range employees {
			if !emp.Active {
				continue
			}
			if err := s.issueOne(ctx, policy, emp, asOf, summary); err != nil {
				summary.Errors = append(summary.Errors, TargetError{
					PolicyID: policy.ID,
					UserID:   emp.ID,
					Err:      err.Error(),
				})
			}
		}
	}

	s.record(ctx, AuditAccrualRun, "run", asOf.String(), nil, map[string]any{
		"granted": summary.Granted,
		"skipped": summary.Skipped,
		"errors":  len(summary.Errors),
	}, fmt.Sprintf("accrual run for %s", asOf))
	return summary, nil
}

// issueOne processes a single (policy, employee) target atomically.
func (s *Service) issueOne(ctx context.Context, policy Policy, emp Employee, asOf Date, summary *IssueSummary) error {
	if !dueOn(policy, emp, asOf) {
		return nil
	}
	quantity := grantQuantity(policy, emp, asOf)
	if !quantity.IsPositive() {
		return nil
	}

	var issued *Grant
	var forfeits []Consumption
	err := s.store.WithTx(ctx, func(tx Store) error {
		exists, err := tx.HasAccrualGrantOn(ctx, emp.ID, policy.LeaveTypeID, asOf)
		if err != nil {
			return err
		}
		if exists {
			summary.Skipped++
			return nil
		}

		forfeits, err = s.forfeitExcessCarryover(ctx, tx, policy, emp.ID, asOf)
		if err != nil {
			return err
		}

		expiry := policy.expiryFor(asOf)
		grant := Grant{
			ID:          GrantID(uuid.NewString()),
			UserID:      emp.ID,
			LeaveTypeID: policy.LeaveTypeID,
			PolicyID:    policy.ID,
			Source:      SourceAccrual,
			Quantity:    quantity,
			GrantedOn:   asOf,
			ExpiresOn:   &expiry,
			Note:        fmt.Sprintf("%s accrual", policy.Method),
			CreatedAt:   s.now(),
		}
		if err := tx.InsertGrant(ctx, grant); err != nil {
			if errors.Is(err, ErrDuplicateGrant) {
				// A concurrent run won the race. Same outcome as the
				// existence check above.
				summary.Skipped++
				return nil
			}
			return err
		}
		issued = &grant
		return nil
	})
	if err != nil {
		return err
	}
	if issued == nil {
		return nil
	}

	summary.Granted++
	for _, f := range forfeits {
		s.record(ctx, AuditCarryoverForfeit, "grant", string(f.GrantID), nil, map[string]any{
			"user_id":  string(emp.ID),
			"quantity": f.Quantity.String(),
		}, "carry-over above policy cap forfeited at grant issuance")
	}
	s.record(ctx, AuditGrantIssued, "grant", string(issued.ID), nil, map[string]any{
		"user_id":    string(emp.ID),
		"leave_type": string(policy.LeaveTypeID),
		"quantity":   issued.Quantity.String(),
		"granted_on": asOf.String(),
		"expires_on": issued.ExpiresOn.String(),
	}, issued.Note)
	return nil
}

// dueOn decides whether the policy grants to this employee on asOf.
func dueOn(p Policy, e Employee, asOf Date) bool {
	if asOf.Before(e.EligibleFrom) {
		return false
	}
	switch p.Method {
	case MethodAnniversary:
		years := e.ServiceYears(asOf)
		return e.EligibleFrom.AddYears(years).Equal(asOf)
	case MethodMonthly:
		day := p.MonthlyGrantDay
		if dim := DaysInMonth(asOf.Year(), asOf.Month()); day > dim {
			day = dim
		}
		return asOf.Day() == day
	case MethodFiscalFixed:
		return asOf.Month() == p.FiscalMonth && asOf.Day() == p.FiscalDay
	default:
		return false
	}
}

// grantQuantity computes the hours due, prorated and rounded to the
// policy's minimum unit so granted quantities stay bookable.
func grantQuantity(p Policy, e Employee, asOf Date) decimal.Decimal {
	days := p.DaysForService(e.ServiceYears(asOf))
	if p.Method == MethodMonthly {
		// Monthly slice of the annual entitlement.
		days = days.Div(twelve)
	}
	hours := days.Mul(p.HoursPerDay)
	if p.Prorate && e.FTEPercent.IsPositive() {
		hours = hours.Mul(e.FTEPercent).Div(hundred)
	}
	rounded, err := RoundToMinUnitHours(hours, p.MinUnit, p.HoursPerDay)
	if err != nil {
		return decimal.Zero
	}
	return rounded
}

// forfeitExcessCarryover writes forfeit consumptions for any unexpired
// balance above the policy's carry-over cap. Expired hours are never
// retroactively touched; only future allocation is affected.
//
// Forfeiture walks grants in the same FIFO-by-expiry order as
// allocation, so the soonest-expiring excess is forfeited first.
func (s *Service) forfeitExcessCarryover(ctx context.Context, tx Store, p Policy, userID UserID, asOf Date) ([]Consumption, error) {
	if p.CarryoverMaxDays == nil {
		return nil, nil
	}
	capHours := p.CarryoverMaxDays.Mul(p.HoursPerDay)

	grants, err := tx.GrantsByUser(ctx, userID, p.LeaveTypeID)
	if err != nil {
		return nil, err
	}
	var live []Grant
	for _, g := range grants {
		if !g.ExpiredAt(asOf) {
			live = append(live, g)
		}
	}
	sortGrantsFIFO(live)

	remaining := make([]decimal.Decimal, len(live))
	total := decimal.Zero
	for i, g := range live {
		cons, err := tx.ConsumptionsByGrant(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		rem := g.Quantity
		for _, c := range cons {
			rem = rem.Sub(c.Quantity)
		}
		remaining[i] = rem
		total = total.Add(rem)
	}

	excess := total.Sub(capHours)
	if !excess.IsPositive() {
		return nil, nil
	}

	forfeitRef := RequestID("forfeit:" + uuid.NewString())
	var rows []Consumption
	for i, g := range live {
		if !excess.IsPositive() {
			break
		}
		if !remaining[i].IsPositive() {
			continue
		}
		take := decimal.Min(remaining[i], excess)
		row := Consumption{
			ID:         uuid.NewString(),
			GrantID:    g.ID,
			RequestID:  forfeitRef,
			Quantity:   take,
			IsHold:     false,
			ConsumedOn: asOf,
			Note:       "carry-over cap forfeiture",
			CreatedAt:  s.now(),
		}
		if err := tx.InsertConsumption(ctx, row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
		excess = excess.Sub(take)
	}
	return rows, nil
}
