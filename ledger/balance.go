/*
balance.go - Derived balance views

PURPOSE:
  Computes the two balance views by aggregating the grant and
  consumption ledgers. Balances are never stored: any caller-side cache
  must be invalidated on every ledger mutation.

  remaining_confirmed       = sum(grants) - sum(confirmed consumptions)
  remaining_including_holds = sum(grants) - sum(all consumptions)

  Invariant: including-holds <= confirmed, always.
*/
package ledger

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// GrantsWithRemaining returns every grant with its remaining pair,
// ordered by the FIFO-by-expiry allocation rule. Expired grants are
// included; they persist for history even though allocation skips them.
// An empty leaveTypeID returns all leave types.
func (s *Service) GrantsWithRemaining(ctx context.Context, userID UserID, leaveTypeID LeaveTypeID) ([]GrantRemaining, error) {
	grants, err := s.store.GrantsByUser(ctx, userID, leaveTypeID)
	if err != nil {
		return nil, err
	}
	sortGrantsFIFO(grants)

	out := make([]GrantRemaining, 0, len(grants))
	for _, g := range grants {
		cons, err := s.store.ConsumptionsByGrant(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		confirmed := g.Quantity
		all := g.Quantity
		for _, c := range cons {
			all = all.Sub(c.Quantity)
			if !c.IsHold {
				confirmed = confirmed.Sub(c.Quantity)
			}
		}
		out = append(out, GrantRemaining{
			Grant:                   g,
			RemainingConfirmed:      confirmed,
			RemainingIncludingHolds: all,
		})
	}
	return out, nil
}

// Balance aggregates the per-grant remainders into one row per leave
// type. An empty leaveTypeID returns all leave types the user holds
// grants for.
func (s *Service) Balance(ctx context.Context, userID UserID, leaveTypeID LeaveTypeID) ([]BalanceRow, error) {
	grants, err := s.GrantsWithRemaining(ctx, userID, leaveTypeID)
	if err != nil {
		return nil, err
	}

	byType := make(map[LeaveTypeID]*BalanceRow)
	var order []LeaveTypeID
	for _, g := range grants {
		lt := g.Grant.LeaveTypeID
		row, ok := byType[lt]
		if !ok {
			row = &BalanceRow{
				LeaveTypeID:             lt,
				RemainingConfirmed:      decimal.Zero,
				RemainingIncludingHolds: decimal.Zero,
			}
			byType[lt] = row
			order = append(order, lt)
		}
		row.RemainingConfirmed = row.RemainingConfirmed.Add(g.RemainingConfirmed)
		row.RemainingIncludingHolds = row.RemainingIncludingHolds.Add(g.RemainingIncludingHolds)
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	rows := make([]BalanceRow, 0, len(order))
	for _, lt := range order {
		rows = append(rows, *byType[lt])
	}
	return rows, nil
}
