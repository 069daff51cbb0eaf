package ledger_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendly/leave-ledger/ledger"
)

func TestDate_Arithmetic(t *testing.T) {
	d := ledger.MustDate("2026-01-31")

	// AddDate normalization: Jan 31 + 1 month = Mar 3 (Feb has 28 days
	// in 2026), which is why the accrual engine clamps explicitly via
	// DaysInMonth instead of relying on AddMonths.
	assert.Equal(t, "2026-03-03", d.AddMonths(1).String())
	assert.Equal(t, "2026-02-01", d.AddDays(1).String())
	assert.Equal(t, "2027-01-31", d.AddYears(1).String())
}

func TestDaysInMonth(t *testing.T) {
	assert.Equal(t, 28, ledger.DaysInMonth(2026, time.February))
	assert.Equal(t, 29, ledger.DaysInMonth(2028, time.February))
	assert.Equal(t, 30, ledger.DaysInMonth(2026, time.April))
	assert.Equal(t, 31, ledger.DaysInMonth(2026, time.December))
}

func TestDate_JSONRoundTrip(t *testing.T) {
	d := ledger.MustDate("2026-06-30")
	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2026-06-30"`, string(b))

	var back ledger.Date
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.Equal(d))
}

func TestDateOf_Timezone(t *testing.T) {
	// 2026-01-01 03:00 UTC is still 2025-12-31 in New York
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	at := time.Date(2026, time.January, 1, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-01-01", ledger.DateOf(at, time.UTC).String())
	assert.Equal(t, "2025-12-31", ledger.DateOf(at, ny).String())
}
