package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendly/leave-ledger/ledger"
	"github.com/attendly/leave-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestService(t *testing.T, opts ...ledger.Option) (*ledger.Service, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	fixed := time.Date(2026, time.March, 16, 12, 0, 0, 0, time.UTC)
	base := []ledger.Option{ledger.WithClock(func() time.Time { return fixed })}
	return ledger.NewService(st, append(base, opts...)...), st
}

func saveEmployee(t *testing.T, st *store.Memory, id, company, eligibleFrom string, fte int64) {
	t.Helper()
	require.NoError(t, st.SaveEmployee(context.Background(), ledger.Employee{
		ID:           ledger.UserID(id),
		CompanyID:    ledger.CompanyID(company),
		Name:         id,
		EligibleFrom: ledger.MustDate(eligibleFrom),
		FTEPercent:   decimal.NewFromInt(fte),
		Active:       true,
	}))
}

func totalConfirmed(t *testing.T, svc *ledger.Service, user, leaveType string) decimal.Decimal {
	t.Helper()
	rows, err := svc.Balance(context.Background(), ledger.UserID(user), ledger.LeaveTypeID(leaveType))
	require.NoError(t, err)
	total := decimal.Zero
	for _, r := range rows {
		total = total.Add(r.RemainingConfirmed)
	}
	return total
}

// =============================================================================
// DUE DATES AND AMOUNTS
// =============================================================================

func TestIssueGrants_Anniversary(t *testing.T) {
	// GIVEN: an employee eligible since 2021-03-15, on a tiered policy
	// WHEN: the accrual runs on their third anniversary
	// THEN: one grant of tier-days x hours-per-day is issued, expiring
	//       expire_months later

	svc, st := newTestService(t)
	ctx := context.Background()
	require.NoError(t, st.SavePolicy(ctx, validPolicy()))
	saveEmployee(t, st, "emp-1", "acme", "2021-03-15", 100)

	summary, err := svc.IssueGrants(ctx, ledger.MustDate("2024-03-15"), "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Granted)
	assert.Empty(t, summary.Errors)

	grants, err := st.GrantsByUser(ctx, "emp-1", "vacation")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	// 3 completed years -> 12-day tier -> 96h
	assert.True(t, grants[0].Quantity.Equal(decimal.NewFromInt(96)), "got %s", grants[0].Quantity)
	assert.Equal(t, ledger.SourceAccrual, grants[0].Source)
	require.NotNil(t, grants[0].ExpiresOn)
	assert.Equal(t, "2026-03-15", grants[0].ExpiresOn.String())
}

func TestIssueGrants_NotDueOffAnniversary(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	require.NoError(t, st.SavePolicy(ctx, validPolicy()))
	saveEmployee(t, st, "emp-1", "acme", "2021-03-15", 100)

	summary, err := svc.IssueGrants(ctx, ledger.MustDate("2024-03-16"), "acme")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Granted)
}

func TestIssueGrants_MonthlyDayClamped(t *testing.T) {
	// GIVEN: a monthly policy granting on day 31
	// WHEN: the run lands on April 30 (April has no day 31)
	// THEN: the grant is due, and is the 1/12 monthly slice

	svc, st := newTestService(t)
	ctx := context.Background()

	p := validPolicy()
	p.Method = ledger.MethodMonthly
	p.MonthlyGrantDay = 31
	p.BaseDaysByService = []ledger.ServiceTier{{MinYears: 0, Days: decimal.NewFromInt(12)}}
	require.NoError(t, st.SavePolicy(ctx, p))
	saveEmployee(t, st, "emp-1", "acme", "2020-01-01", 100)

	summary, err := svc.IssueGrants(ctx, ledger.MustDate("2026-04-30"), "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Granted)

	grants, err := st.GrantsByUser(ctx, "emp-1", "vacation")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	// 12 days / 12 months * 8h = 8h
	assert.True(t, grants[0].Quantity.Equal(decimal.NewFromInt(8)), "got %s", grants[0].Quantity)

	// Not due a day earlier
	summary, err = svc.IssueGrants(ctx, ledger.MustDate("2026-04-29"), "acme")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Granted)
}

func TestIssueGrants_FiscalFixed(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	p := validPolicy()
	p.Method = ledger.MethodFiscalFixed
	p.FiscalMonth = time.April
	p.FiscalDay = 1
	require.NoError(t, st.SavePolicy(ctx, p))
	saveEmployee(t, st, "emp-1", "acme", "2025-06-01", 100)

	summary, err := svc.IssueGrants(ctx, ledger.MustDate("2026-04-01"), "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Granted)

	summary, err = svc.IssueGrants(ctx, ledger.MustDate("2026-04-02"), "acme")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Granted)
}

func TestIssueGrants_ProratedByFTE(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	p := validPolicy()
	p.Prorate = true
	require.NoError(t, st.SavePolicy(ctx, p))
	saveEmployee(t, st, "emp-half", "acme", "2025-03-15", 50)

	summary, err := svc.IssueGrants(ctx, ledger.MustDate("2026-03-15"), "acme")
	require.NoError(t, err)
	require.Equal(t, 1, summary.Granted)

	grants, err := st.GrantsByUser(ctx, "emp-half", "vacation")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	// 1 year of service -> 10 days -> 80h * 50% = 40h
	assert.True(t, grants[0].Quantity.Equal(decimal.NewFromInt(40)), "got %s", grants[0].Quantity)
}

// =============================================================================
// IDEMPOTENCY
// =============================================================================

func TestIssueGrants_SecondRunSkips(t *testing.T) {
	// GIVEN: a completed accrual run for a date
	// WHEN: the same run executes again (restart, back-fill, race)
	// THEN: nothing is double-granted; the duplicate is reported as skipped

	svc, st := newTestService(t)
	ctx := context.Background()
	require.NoError(t, st.SavePolicy(ctx, validPolicy()))
	saveEmployee(t, st, "emp-1", "acme", "2021-03-15", 100)

	first, err := svc.IssueGrants(ctx, ledger.MustDate("2024-03-15"), "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Granted)

	second, err := svc.IssueGrants(ctx, ledger.MustDate("2024-03-15"), "acme")
	require.NoError(t, err)
	assert.Equal(t, 0, second.Granted)
	assert.Equal(t, 1, second.Skipped)

	grants, err := st.GrantsByUser(ctx, "emp-1", "vacation")
	require.NoError(t, err)
	assert.Len(t, grants, 1)
}

// =============================================================================
// CARRY-OVER FORFEITURE
// =============================================================================

func TestIssueGrants_CarryoverForfeiture(t *testing.T) {
	// GIVEN: a 5-day (40h) carry-over cap and 48 unexpired hours on the
	//        books
	// WHEN: a new accrual grant is issued
	// THEN: the 8h excess is forfeited as a confirmed consumption row on
	//       the old grant, and the ledger identity still holds

	svc, st := newTestService(t)
	ctx := context.Background()

	cap5 := decimal.NewFromInt(5)
	p := validPolicy()
	p.CarryoverMaxDays = &cap5
	require.NoError(t, st.SavePolicy(ctx, p))
	saveEmployee(t, st, "emp-1", "acme", "2021-03-15", 100)

	never := ledger.MustDate("2027-12-31")
	old := ledger.Grant{
		ID: "grant-old", UserID: "emp-1", LeaveTypeID: "vacation", PolicyID: p.ID,
		Source: ledger.SourceManual, Quantity: decimal.NewFromInt(48),
		GrantedOn: ledger.MustDate("2023-03-15"), ExpiresOn: &never,
	}
	require.NoError(t, st.InsertGrant(ctx, old))

	summary, err := svc.IssueGrants(ctx, ledger.MustDate("2024-03-15"), "acme")
	require.NoError(t, err)
	require.Equal(t, 1, summary.Granted)

	cons, err := st.ConsumptionsByGrant(ctx, "grant-old")
	require.NoError(t, err)
	require.Len(t, cons, 1)
	assert.True(t, cons[0].Quantity.Equal(decimal.NewFromInt(8)), "got %s", cons[0].Quantity)
	assert.False(t, cons[0].IsHold)

	// 48 - 8 forfeited + 96 new = 136
	assert.True(t, totalConfirmed(t, svc, "emp-1", "vacation").Equal(decimal.NewFromInt(136)))
}

func TestIssueGrants_NoForfeitureUnderCap(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	cap5 := decimal.NewFromInt(5)
	p := validPolicy()
	p.CarryoverMaxDays = &cap5
	require.NoError(t, st.SavePolicy(ctx, p))
	saveEmployee(t, st, "emp-1", "acme", "2021-03-15", 100)

	never := ledger.MustDate("2027-12-31")
	require.NoError(t, st.InsertGrant(ctx, ledger.Grant{
		ID: "grant-old", UserID: "emp-1", LeaveTypeID: "vacation", PolicyID: p.ID,
		Source: ledger.SourceManual, Quantity: decimal.NewFromInt(40),
		GrantedOn: ledger.MustDate("2023-03-15"), ExpiresOn: &never,
	}))

	_, err := svc.IssueGrants(ctx, ledger.MustDate("2024-03-15"), "acme")
	require.NoError(t, err)

	cons, err := st.ConsumptionsByGrant(ctx, "grant-old")
	require.NoError(t, err)
	assert.Empty(t, cons)
}

// =============================================================================
// FAILURE ISOLATION AND GATES
// =============================================================================

func TestIssueGrants_InvalidPolicyIsolated(t *testing.T) {
	// GIVEN: one broken policy and one valid one
	// WHEN: the run executes
	// THEN: the broken policy lands in the error list; the valid one
	//       still grants

	svc, st := newTestService(t)
	ctx := context.Background()

	bad := validPolicy()
	bad.ID = "pol-broken"
	bad.LeaveTypeID = "sick"
	bad.ExpireMonths = 0
	require.NoError(t, st.SavePolicy(ctx, bad))
	require.NoError(t, st.SavePolicy(ctx, validPolicy()))
	saveEmployee(t, st, "emp-1", "acme", "2021-03-15", 100)

	summary, err := svc.IssueGrants(ctx, ledger.MustDate("2024-03-15"), "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Granted)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, ledger.PolicyID("pol-broken"), summary.Errors[0].PolicyID)
}

func TestIssueGrants_BusinessDayGate(t *testing.T) {
	// 2026-03-14 is a Saturday
	svc, st := newTestService(t)
	ctx := context.Background()

	p := validPolicy()
	p.Method = ledger.MethodMonthly
	p.MonthlyGrantDay = 14
	p.BusinessDaysOnly = true
	p.NonWorkingWeekdays = []time.Weekday{time.Saturday, time.Sunday}
	require.NoError(t, st.SavePolicy(ctx, p))
	saveEmployee(t, st, "emp-1", "acme", "2020-01-01", 100)

	summary, err := svc.IssueGrants(ctx, ledger.MustDate("2026-03-14"), "acme")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Granted)
	assert.Empty(t, summary.Errors)
}

func TestIssueGrants_InactiveEmployeeSkipped(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	require.NoError(t, st.SavePolicy(ctx, validPolicy()))

	require.NoError(t, st.SaveEmployee(ctx, ledger.Employee{
		ID: "emp-gone", CompanyID: "acme", Name: "Former Employee",
		EligibleFrom: ledger.MustDate("2021-03-15"),
		FTEPercent:   decimal.NewFromInt(100),
		Active:       false,
	}))

	summary, err := svc.IssueGrants(ctx, ledger.MustDate("2024-03-15"), "acme")
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Granted)
}

// =============================================================================
// MANUAL GRANTS
// =============================================================================

func TestGrantManual(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	saveEmployee(t, st, "emp-1", "acme", "2021-03-15", 100)

	expires := ledger.MustDate("2026-12-31")
	grant, err := svc.GrantManual(ctx, ledger.ManualGrantInput{
		UserID:      "emp-1",
		LeaveTypeID: "vacation",
		Quantity:    decimal.NewFromInt(16),
		GrantedOn:   ledger.MustDate("2026-01-10"),
		ExpiresOn:   &expires,
		Note:        "relocation bonus",
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.SourceManual, grant.Source)

	// Manual grants bypass the accrual idempotency key: same date twice
	// is fine.
	_, err = svc.GrantManual(ctx, ledger.ManualGrantInput{
		UserID:      "emp-1",
		LeaveTypeID: "vacation",
		Quantity:    decimal.NewFromInt(8),
		GrantedOn:   ledger.MustDate("2026-01-10"),
	})
	require.NoError(t, err)

	assert.True(t, totalConfirmed(t, svc, "emp-1", "vacation").Equal(decimal.NewFromInt(24)))
}

func TestGrantManual_Validation(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	saveEmployee(t, st, "emp-1", "acme", "2021-03-15", 100)

	_, err := svc.GrantManual(ctx, ledger.ManualGrantInput{
		UserID: "emp-missing", LeaveTypeID: "vacation",
		Quantity: decimal.NewFromInt(8), GrantedOn: ledger.MustDate("2026-01-10"),
	})
	assert.ErrorIs(t, err, ledger.ErrEmployeeNotFound)

	_, err = svc.GrantManual(ctx, ledger.ManualGrantInput{
		UserID: "emp-1", LeaveTypeID: "vacation",
		Quantity: decimal.NewFromInt(-8), GrantedOn: ledger.MustDate("2026-01-10"),
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidLedgerState)

	before := ledger.MustDate("2026-01-01")
	_, err = svc.GrantManual(ctx, ledger.ManualGrantInput{
		UserID: "emp-1", LeaveTypeID: "vacation",
		Quantity: decimal.NewFromInt(8), GrantedOn: ledger.MustDate("2026-01-10"),
		ExpiresOn: &before,
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidRange)
}
