/*
rounding.go - Unit conversion and minimum-unit rounding

PURPOSE:
  Converts user-entered leave quantities (day / half-day / hour) into
  canonical hours and rounds them to a policy's minimum allocation unit.
  These values are money-like: the rounding rule is value-bearing and is
  pinned down here and in rounding_test.go.

ROUNDING RULE:
  Round half away from zero, to the nearest multiple of the minimum
  unit. 4.5h under a 1h unit rounds to 5h; 3.9h under a 4h half-day
  unit rounds to 4h. This matches decimal.Decimal's Round behavior.

SEE ALSO:
  - allocate.go: consumes the rounded per-date hour needs
*/
package ledger

import (
	"github.com/shopspring/decimal"
)

var two = decimal.NewFromInt(2)

// NormalizeToHours converts a quantity in the given unit to hours.
// No rounding happens at this stage.
func NormalizeToHours(unit Unit, quantity, hoursPerDay decimal.Decimal) (decimal.Decimal, error) {
	switch unit {
	case UnitHour:
		return quantity, nil
	case UnitHalf:
		return hoursPerDay.Div(two).Mul(quantity), nil
	case UnitDay:
		return hoursPerDay.Mul(quantity), nil
	default:
		return decimal.Zero, &unitError{unit: string(unit)}
	}
}

// minUnitStep returns the rounding step in hours for a minimum unit.
func minUnitStep(minUnit MinUnit, hoursPerDay decimal.Decimal) (decimal.Decimal, error) {
	switch minUnit {
	case MinUnitHour:
		return decimal.NewFromInt(1), nil
	case MinUnitHalfDay:
		return hoursPerDay.Div(two), nil
	case MinUnitFullDay:
		return hoursPerDay, nil
	default:
		return decimal.Zero, &unitError{unit: string(minUnit)}
	}
}

// RoundToMinUnitHours rounds hours to the nearest multiple of the
// policy's minimum unit, half away from zero.
func RoundToMinUnitHours(hours decimal.Decimal, minUnit MinUnit, hoursPerDay decimal.Decimal) (decimal.Decimal, error) {
	step, err := minUnitStep(minUnit, hoursPerDay)
	if err != nil {
		return decimal.Zero, err
	}
	// decimal.Round is round-half-away-from-zero.
	return hours.Div(step).Round(0).Mul(step), nil
}

// RequestLine is one user-entered line of a leave request.
type RequestLine struct {
	Date     Date
	Unit     Unit
	Quantity decimal.Decimal
}

// Need is one rounded per-date hour requirement fed to the allocator.
type Need struct {
	Date  Date
	Hours decimal.Decimal
}

// RoundLines converts and rounds every request line. If any line rounds
// to zero or less, the whole request is rejected with ErrZeroDurationLine.
func RoundLines(lines []RequestLine, minUnit MinUnit, hoursPerDay decimal.Decimal) ([]Need, error) {
	needs := make([]Need, 0, len(lines))
	for _, line := range lines {
		hours, err := NormalizeToHours(line.Unit, line.Quantity, hoursPerDay)
		if err != nil {
			return nil, err
		}
		rounded, err := RoundToMinUnitHours(hours, minUnit, hoursPerDay)
		if err != nil {
			return nil, err
		}
		if !rounded.IsPositive() {
			return nil, &zeroDurationError{date: line.Date}
		}
		needs = append(needs, Need{Date: line.Date, Hours: rounded})
	}
	return needs, nil
}

// TotalHours sums the rounded needs of a request.
func TotalHours(needs []Need) decimal.Decimal {
	total := decimal.Zero
	for _, n := range needs {
		total = total.Add(n.Hours)
	}
	return total
}

type unitError struct{ unit string }

func (e *unitError) Error() string { return "invalid unit: " + e.unit }
func (e *unitError) Unwrap() error { return ErrInvalidUnit }

type zeroDurationError struct{ date Date }

func (e *zeroDurationError) Error() string {
	return "request line on " + e.date.String() + " rounds to zero duration"
}
func (e *zeroDurationError) Unwrap() error { return ErrZeroDurationLine }
