/*
allocate.go - FIFO-by-expiry consumption allocation

PURPOSE:
  Given per-date hour needs, selects grant lines in a fixed order and
  writes consumption lines until the requirement is satisfied. The whole
  read-availability-then-write sequence runs inside one store
  transaction: two concurrent allocations can never both observe stale
  availability and over-consume a grant.

ORDERING (FIFO-by-expiry):
  Ascending expires-on with nulls LAST (never-expiring grants are
  consumed last), then ascending granted-on as tie-break. Soonest-to-
  expire entitlement is consumed first to minimize forfeiture.

REQUEST STATE MACHINE:
  NONE -> HOLD      (Allocate, hold=true)
  HOLD -> CONFIRMED (Confirm)
  HOLD -> NONE      (Release)
  CONFIRMED -> NONE (Reverse)
  Any other transition fails with ErrInvalidLedgerState.

SEE ALSO:
  - rounding.go: produces the per-date Needs
  - balance.go: the derived views over what this file writes
*/
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AllocateInput describes one allocation call. All resulting consumption
// rows share the RequestID and the hold flag.
type AllocateInput struct {
	UserID      UserID
	LeaveTypeID LeaveTypeID
	RequestID   RequestID
	Needs       []Need
	Hold        bool

	// ManualGrantIDs restricts candidates to exactly these grants, in
	// caller-specified order, bypassing the expiry filter. Used for
	// administrative corrections.
	ManualGrantIDs []GrantID
}

// Allocate writes hold or confirmed consumption rows for the request.
// On insufficient balance nothing is persisted.
func (s *Service) Allocate(ctx context.Context, in AllocateInput) error {
	if err := s.allocate(ctx, in); err != nil {
		s.recordFailure(ctx, "allocate", "request", string(in.RequestID), err)
		return err
	}
	s.record(ctx, AuditAllocated, "request", string(in.RequestID), nil, map[string]any{
		"user_id":     string(in.UserID),
		"leave_type":  string(in.LeaveTypeID),
		"total_hours": TotalHours(in.Needs).String(),
		"hold":        in.Hold,
	}, "")
	return nil
}

func (s *Service) allocate(ctx context.Context, in AllocateInput) error {
	if in.RequestID == "" {
		return &InvalidLedgerStateError{Op: "allocate", Reason: "empty request id"}
	}
	if len(in.Needs) == 0 {
		return &InvalidLedgerStateError{RequestID: in.RequestID, Op: "allocate", Reason: "no needs supplied"}
	}
	for _, n := range in.Needs {
		if !n.Hours.IsPositive() {
			return &zeroDurationError{date: n.Date}
		}
	}

	emp, err := s.store.EmployeeByID(ctx, in.UserID)
	if err != nil {
		return err
	}
	policy, err := s.store.PolicyFor(ctx, emp.CompanyID, in.LeaveTypeID)
	if err != nil {
		return err
	}

	asOf := s.today()
	needs := append([]Need(nil), in.Needs...)
	sort.SliceStable(needs, func(i, j int) bool { return needs[i].Date.Before(needs[j].Date) })

	return s.store.WithTx(ctx, func(tx Store) error {
		existing, err := tx.ConsumptionsByRequest(ctx, in.RequestID)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return &InvalidLedgerStateError{RequestID: in.RequestID, Op: "allocate", Reason: "request already has ledger rows"}
		}

		candidates, expiredOnly, err := s.candidateGrants(ctx, tx, in, asOf)
		if err != nil {
			return err
		}

		available, err := grantAvailability(ctx, tx, candidates, policy.DeductionTiming)
		if err != nil {
			return err
		}
		totalAvail := decimal.Zero
		for _, a := range available {
			totalAvail = totalAvail.Add(a)
		}

		rows, shortfall := planConsumptions(candidates, available, needs, in, s.now())
		if shortfall.IsPositive() {
			if !policy.AllowNegative {
				if len(candidates) == 0 && expiredOnly {
					return fmt.Errorf("%w: all grants for %s/%s expired as of %s",
						ErrGrantExpired, in.UserID, in.LeaveTypeID, asOf)
				}
				return &InsufficientBalanceError{
					UserID:      in.UserID,
					LeaveTypeID: in.LeaveTypeID,
					Available:   totalAvail,
					Requested:   TotalHours(needs),
				}
			}
			if len(candidates) == 0 {
				// Negative balance still needs a grant line to overdraw.
				return &InsufficientBalanceError{
					UserID:      in.UserID,
					LeaveTypeID: in.LeaveTypeID,
					Available:   decimal.Zero,
					Requested:   TotalHours(needs),
				}
			}
		}

		for _, row := range rows {
			if err := tx.InsertConsumption(ctx, row); err != nil {
				return err
			}
		}
		return nil
	})
}

// candidateGrants resolves the ordered grants an allocation may consume.
// expiredOnly reports that grants exist but every one of them is expired,
// which turns an insufficiency into ErrGrantExpired.
func (s *Service) candidateGrants(ctx context.Context, tx Store, in AllocateInput, asOf Date) ([]Grant, bool, error) {
	if len(in.ManualGrantIDs) > 0 {
		grants := make([]Grant, 0, len(in.ManualGrantIDs))
		for _, id := range in.ManualGrantIDs {
			g, err := tx.GrantByID(ctx, id)
			if err != nil {
				return nil, false, err
			}
			if g.UserID != in.UserID || g.LeaveTypeID != in.LeaveTypeID {
				return nil, false, fmt.Errorf("%w: grant %s does not belong to %s/%s",
					ErrGrantNotFound, id, in.UserID, in.LeaveTypeID)
			}
			grants = append(grants, g)
		}
		// Caller-specified order, no expiry filter.
		return grants, false, nil
	}

	all, err := tx.GrantsByUser(ctx, in.UserID, in.LeaveTypeID)
	if err != nil {
		return nil, false, err
	}
	var live []Grant
	for _, g := range all {
		if !g.ExpiredAt(asOf) {
			live = append(live, g)
		}
	}
	sortGrantsFIFO(live)
	return live, len(live) == 0 && len(all) > 0, nil
}

// sortGrantsFIFO orders grants by ascending expiry with never-expiring
// grants last, then by ascending grant date.
func sortGrantsFIFO(grants []Grant) {
	sort.SliceStable(grants, func(i, j int) bool {
		gi, gj := grants[i], grants[j]
		switch {
		case gi.ExpiresOn == nil && gj.ExpiresOn == nil:
			// fall through to grant-date tie-break
		case gi.ExpiresOn == nil:
			return false
		case gj.ExpiresOn == nil:
			return true
		case !gi.ExpiresOn.Equal(*gj.ExpiresOn):
			return gi.ExpiresOn.Before(*gj.ExpiresOn)
		}
		return gi.GrantedOn.Before(gj.GrantedOn)
	})
}

// grantAvailability computes each grant's currently-available hours.
// Under DeductOnApprove only confirmed consumptions reduce availability;
// otherwise holds count too.
func grantAvailability(ctx context.Context, tx Store, grants []Grant, timing DeductionTiming) ([]decimal.Decimal, error) {
	available := make([]decimal.Decimal, len(grants))
	for i, g := range grants {
		cons, err := tx.ConsumptionsByGrant(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		avail := g.Quantity
		for _, c := range cons {
			if timing == DeductOnApprove && c.IsHold {
				continue
			}
			avail = avail.Sub(c.Quantity)
		}
		available[i] = avail
	}
	return available, nil
}

// planConsumptions walks the ordered grants for each need, consuming up
// to availability and carrying the remainder forward. Any final
// shortfall is dumped on the last grant (negative-balance policies).
func planConsumptions(grants []Grant, available []decimal.Decimal, needs []Need, in AllocateInput, now time.Time) ([]Consumption, decimal.Decimal) {
	rows := make([]Consumption, 0, len(needs))
	shortfall := decimal.Zero

	add := func(grantID GrantID, qty decimal.Decimal, on Date) {
		rows = append(rows, Consumption{
			ID:         uuid.NewString(),
			GrantID:    grantID,
			RequestID:  in.RequestID,
			Quantity:   qty,
			IsHold:     in.Hold,
			ConsumedOn: on,
			CreatedAt:  now,
		})
	}

	for _, need := range needs {
		left := need.Hours
		for i := range grants {
			if !left.IsPositive() {
				break
			}
			if !available[i].IsPositive() {
				continue
			}
			take := decimal.Min(available[i], left)
			add(grants[i].ID, take, need.Date)
			available[i] = available[i].Sub(take)
			left = left.Sub(take)
		}
		if left.IsPositive() {
			if len(grants) > 0 {
				// Overdraw the last grant; only persisted when the
				// policy allows negative balances.
				last := len(grants) - 1
				add(grants[last].ID, left, need.Date)
				available[last] = available[last].Sub(left)
			}
			shortfall = shortfall.Add(left)
		}
	}
	return rows, shortfall
}

// =============================================================================
// REQUEST STATE TRANSITIONS - confirm / release / reverse
// =============================================================================

// Confirm flips every hold row of the request to confirmed. Quantities
// never change.
func (s *Service) Confirm(ctx context.Context, requestID RequestID) error {
	var flipped int
	err := s.store.WithTx(ctx, func(tx Store) error {
		rows, err := tx.ConsumptionsByRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if countHolds(rows) == 0 {
			return &InvalidLedgerStateError{RequestID: requestID, Op: "confirm", Reason: "no hold rows"}
		}
		flipped, err = tx.ConfirmRequest(ctx, requestID)
		return err
	})
	if err != nil {
		s.recordFailure(ctx, "confirm", "request", string(requestID), err)
		return err
	}
	s.record(ctx, AuditConfirmed, "request", string(requestID),
		map[string]any{"hold_rows": flipped}, map[string]any{"confirmed_rows": flipped}, "")
	return nil
}

// Release deletes every hold row of the request. Confirmed rows are
// untouched; the net ledger effect of allocate+release is zero.
func (s *Service) Release(ctx context.Context, requestID RequestID) error {
	var removed int
	err := s.store.WithTx(ctx, func(tx Store) error {
		rows, err := tx.ConsumptionsByRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if countHolds(rows) == 0 {
			return &InvalidLedgerStateError{RequestID: requestID, Op: "release", Reason: "no hold rows"}
		}
		removed, err = tx.DeleteRequestConsumptions(ctx, requestID, true)
		return err
	})
	if err != nil {
		s.recordFailure(ctx, "release", "request", string(requestID), err)
		return err
	}
	s.record(ctx, AuditReleased, "request", string(requestID),
		map[string]any{"hold_rows": removed}, map[string]any{"hold_rows": 0}, "")
	return nil
}

// Reverse deletes the confirmed rows of a previously approved request,
// restoring the pre-confirmation balance exactly.
func (s *Service) Reverse(ctx context.Context, requestID RequestID, reason string) error {
	var removed int
	var before decimal.Decimal
	err := s.store.WithTx(ctx, func(tx Store) error {
		rows, err := tx.ConsumptionsByRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return &InvalidLedgerStateError{RequestID: requestID, Op: "reverse", Reason: "no ledger rows"}
		}
		if countHolds(rows) > 0 {
			return &InvalidLedgerStateError{RequestID: requestID, Op: "reverse", Reason: "request still has hold rows"}
		}
		for _, r := range rows {
			before = before.Add(r.Quantity)
		}
		removed, err = tx.DeleteRequestConsumptions(ctx, requestID, false)
		return err
	})
	if err != nil {
		s.recordFailure(ctx, "reverse", "request", string(requestID), err)
		return err
	}
	s.record(ctx, AuditReversed, "request", string(requestID),
		map[string]any{"confirmed_rows": removed, "confirmed_hours": before.String()},
		map[string]any{"confirmed_rows": 0}, reason)
	return nil
}

func countHolds(rows []Consumption) int {
	n := 0
	for _, r := range rows {
		if r.IsHold {
			n++
		}
	}
	return n
}
