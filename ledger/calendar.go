/*
calendar.go - Business-day calendar

PURPOSE:
  Decides whether a date is a working day for a company: a date is a
  business day iff its weekday is not a non-working weekday AND it is
  not an explicit blackout/holiday date. Pure, deterministic, no I/O.

  Used in two places:
  - validating that a requested range contains allocatable days
  - gating accrual dates when a policy is business-days-only

SEE ALSO:
  - policy.go: policies carry the calendar inputs
  - accrual.go: business-day gate on accrual dates
*/
package ledger

import (
	"time"
)

// Calendar answers business-day questions for one company.
type Calendar struct {
	nonWorking map[time.Weekday]struct{}
	blackouts  map[string]struct{} // keyed by YYYY-MM-DD
}

// NewCalendar builds a calendar from a company's non-working weekdays
// and explicit blackout dates (holidays, company closures, overrides).
func NewCalendar(nonWorkingWeekdays []time.Weekday, blackoutDates []Date) Calendar {
	c := Calendar{
		nonWorking: make(map[time.Weekday]struct{}, len(nonWorkingWeekdays)),
		blackouts:  make(map[string]struct{}, len(blackoutDates)),
	}
	for _, wd := range nonWorkingWeekdays {
		c.nonWorking[wd] = struct{}{}
	}
	for _, d := range blackoutDates {
		c.blackouts[d.String()] = struct{}{}
	}
	return c
}

// IsBusinessDay reports whether the date is a working day.
func (c Calendar) IsBusinessDay(d Date) bool {
	if _, off := c.nonWorking[d.Weekday()]; off {
		return false
	}
	if _, off := c.blackouts[d.String()]; off {
		return false
	}
	return true
}

// ExpandRangeToBusinessDates returns the ordered business-day dates in
// [start, end] inclusive. An inverted range fails with ErrInvalidRange.
func (c Calendar) ExpandRangeToBusinessDates(start, end Date) ([]Date, error) {
	if end.Before(start) {
		return nil, &invalidRangeError{start: start, end: end}
	}
	var days []Date
	for d := start; d.BeforeOrEqual(end); d = d.AddDays(1) {
		if c.IsBusinessDay(d) {
			days = append(days, d)
		}
	}
	return days, nil
}

type invalidRangeError struct{ start, end Date }

func (e *invalidRangeError) Error() string {
	return "invalid range: " + e.end.String() + " before " + e.start.String()
}
func (e *invalidRangeError) Unwrap() error { return ErrInvalidRange }
