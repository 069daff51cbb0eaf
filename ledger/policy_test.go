package ledger_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/attendly/leave-ledger/ledger"
)

func validPolicy() ledger.Policy {
	return ledger.Policy{
		ID:          "pol-1",
		CompanyID:   "acme",
		LeaveTypeID: "vacation",
		Method:      ledger.MethodAnniversary,
		BaseDaysByService: []ledger.ServiceTier{
			{MinYears: 0, Days: decimal.NewFromInt(10)},
			{MinYears: 2, Days: decimal.NewFromInt(12)},
			{MinYears: 5, Days: decimal.NewFromInt(15)},
		},
		ExpireMonths:    24,
		MinUnit:         ledger.MinUnitHour,
		DeductionTiming: ledger.DeductOnApply,
		HoursPerDay:     decimal.NewFromInt(8),
		Active:          true,
	}
}

func TestPolicy_Validate(t *testing.T) {
	assert.NoError(t, validPolicy().Validate())

	t.Run("bad min unit", func(t *testing.T) {
		p := validPolicy()
		p.MinUnit = "15m"
		assert.ErrorIs(t, p.Validate(), ledger.ErrInvalidUnit)
	})

	t.Run("non-positive expiry", func(t *testing.T) {
		p := validPolicy()
		p.ExpireMonths = 0
		assert.Error(t, p.Validate())
	})

	t.Run("monthly needs grant day", func(t *testing.T) {
		p := validPolicy()
		p.Method = ledger.MethodMonthly
		assert.Error(t, p.Validate())
		p.MonthlyGrantDay = 31
		assert.NoError(t, p.Validate())
	})

	t.Run("fiscal needs a date", func(t *testing.T) {
		p := validPolicy()
		p.Method = ledger.MethodFiscalFixed
		assert.Error(t, p.Validate())
		p.FiscalMonth = time.April
		p.FiscalDay = 1
		assert.NoError(t, p.Validate())
	})

	t.Run("empty tier table", func(t *testing.T) {
		p := validPolicy()
		p.BaseDaysByService = nil
		assert.Error(t, p.Validate())
	})
}

func TestPolicy_DaysForService(t *testing.T) {
	p := validPolicy()

	tests := []struct {
		years int
		want  int64
	}{
		{0, 10},
		{1, 10},
		{2, 12},
		{4, 12},
		{5, 15},
		{30, 15},
	}
	for _, tt := range tests {
		got := p.DaysForService(tt.years)
		assert.True(t, got.Equal(decimal.NewFromInt(tt.want)),
			"years=%d: got %s, want %d", tt.years, got, tt.want)
	}
}

func TestPolicy_DaysForService_BelowLowestTier(t *testing.T) {
	p := validPolicy()
	p.BaseDaysByService = []ledger.ServiceTier{{MinYears: 1, Days: decimal.NewFromInt(10)}}
	assert.True(t, p.DaysForService(0).IsZero())
}

func TestEmployee_ServiceYears(t *testing.T) {
	e := ledger.Employee{EligibleFrom: ledger.MustDate("2021-03-15")}

	assert.Equal(t, 0, e.ServiceYears(ledger.MustDate("2021-03-15")))
	assert.Equal(t, 0, e.ServiceYears(ledger.MustDate("2022-03-14")))
	assert.Equal(t, 1, e.ServiceYears(ledger.MustDate("2022-03-15")))
	assert.Equal(t, 3, e.ServiceYears(ledger.MustDate("2024-06-01")))
	// Before eligibility: clamped to zero
	assert.Equal(t, 0, e.ServiceYears(ledger.MustDate("2020-01-01")))
}
