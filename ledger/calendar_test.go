package ledger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendly/leave-ledger/ledger"
)

func weekendCalendar(blackouts ...ledger.Date) ledger.Calendar {
	return ledger.NewCalendar([]time.Weekday{time.Saturday, time.Sunday}, blackouts)
}

func TestCalendar_IsBusinessDay(t *testing.T) {
	cal := weekendCalendar(ledger.MustDate("2026-01-01"))

	// 2026-01-01 is a Thursday but a blackout date
	assert.False(t, cal.IsBusinessDay(ledger.MustDate("2026-01-01")))
	// Friday
	assert.True(t, cal.IsBusinessDay(ledger.MustDate("2026-01-02")))
	// Saturday and Sunday
	assert.False(t, cal.IsBusinessDay(ledger.MustDate("2026-01-03")))
	assert.False(t, cal.IsBusinessDay(ledger.MustDate("2026-01-04")))
	// Monday
	assert.True(t, cal.IsBusinessDay(ledger.MustDate("2026-01-05")))
}

func TestCalendar_ExpandRangeToBusinessDates(t *testing.T) {
	// GIVEN: a week containing a weekend and one holiday (Tue Jan 6)
	cal := weekendCalendar(ledger.MustDate("2026-01-06"))

	// WHEN: expanding Friday through the following Wednesday
	days, err := cal.ExpandRangeToBusinessDates(
		ledger.MustDate("2026-01-02"), ledger.MustDate("2026-01-07"))
	require.NoError(t, err)

	// THEN: only Friday, Monday and Wednesday remain, in order
	want := []ledger.Date{
		ledger.MustDate("2026-01-02"),
		ledger.MustDate("2026-01-05"),
		ledger.MustDate("2026-01-07"),
	}
	assert.Equal(t, want, days)
}

func TestCalendar_ExpandRange_SingleDay(t *testing.T) {
	cal := weekendCalendar()
	days, err := cal.ExpandRangeToBusinessDates(
		ledger.MustDate("2026-01-05"), ledger.MustDate("2026-01-05"))
	require.NoError(t, err)
	assert.Equal(t, []ledger.Date{ledger.MustDate("2026-01-05")}, days)
}

func TestCalendar_ExpandRange_Inverted(t *testing.T) {
	cal := weekendCalendar()
	_, err := cal.ExpandRangeToBusinessDates(
		ledger.MustDate("2026-01-07"), ledger.MustDate("2026-01-02"))
	assert.ErrorIs(t, err, ledger.ErrInvalidRange)
}
