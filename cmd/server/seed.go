/*
seed.go - Demo data for development runs

PURPOSE:
  Loads one company with a vacation policy and a handful of employees so
  a fresh database has something to accrue and allocate against. Only
  invoked behind the -seed flag; never in normal startup.
*/
package main

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/attendly/leave-ledger/ledger"
)

func seedDemoData(ctx context.Context, store ledger.Store) error {
	carryover := decimal.NewFromInt(5)
	policy := ledger.Policy{
		ID:          "pol-vacation-acme",
		CompanyID:   "acme",
		LeaveTypeID: "vacation",
		Name:        "Acme Vacation",
		Method:      ledger.MethodAnniversary,
		BaseDaysByService: []ledger.ServiceTier{
			{MinYears: 0, Days: decimal.NewFromInt(10)},
			{MinYears: 2, Days: decimal.NewFromInt(12)},
			{MinYears: 5, Days: decimal.NewFromInt(15)},
		},
		Prorate:          true,
		CarryoverMaxDays: &carryover,
		ExpireMonths:     24,
		MinUnit:          ledger.MinUnitHour,
		DeductionTiming:  ledger.DeductOnApply,
		NonWorkingWeekdays: []time.Weekday{
			time.Saturday, time.Sunday,
		},
		HoursPerDay: decimal.NewFromInt(8),
		Active:      true,
	}
	if err := store.SavePolicy(ctx, policy); err != nil {
		return err
	}

	sick := ledger.Policy{
		ID:          "pol-sick-acme",
		CompanyID:   "acme",
		LeaveTypeID: "sick",
		Name:        "Acme Sick Leave",
		Method:      ledger.MethodFiscalFixed,
		BaseDaysByService: []ledger.ServiceTier{
			{MinYears: 0, Days: decimal.NewFromInt(5)},
		},
		ExpireMonths:    12,
		MinUnit:         ledger.MinUnitHalfDay,
		DeductionTiming: ledger.DeductOnApprove,
		HoursPerDay:     decimal.NewFromInt(8),
		FiscalMonth:     time.April,
		FiscalDay:       1,
		Active:          true,
	}
	if err := store.SavePolicy(ctx, sick); err != nil {
		return err
	}

	employees := []ledger.Employee{
		{ID: "emp-alice", CompanyID: "acme", Name: "Alice Johnson",
			EligibleFrom: ledger.MustDate("2021-03-15"), FTEPercent: decimal.NewFromInt(100), Active: true},
		{ID: "emp-bob", CompanyID: "acme", Name: "Bob Rivera",
			EligibleFrom: ledger.MustDate("2023-07-01"), FTEPercent: decimal.NewFromInt(80), Active: true},
		{ID: "emp-carol", CompanyID: "acme", Name: "Carol Nguyen",
			EligibleFrom: ledger.MustDate("2019-01-06"), FTEPercent: decimal.NewFromInt(100), Active: true},
	}
	for _, e := range employees {
		if err := store.SaveEmployee(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
