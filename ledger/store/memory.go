// Package store provides an in-memory ledger.Store implementation used
// by tests and local development. Transactions are simulated with a
// snapshot-and-restore under one mutex, which also gives the writer
// serialization the Store contract requires.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/attendly/leave-ledger/ledger"
)

type Memory struct {
	mu           sync.RWMutex
	policies     map[ledger.PolicyID]ledger.Policy
	employees    map[ledger.UserID]ledger.Employee
	grants       map[ledger.GrantID]ledger.Grant
	consumptions map[string]ledger.Consumption
	accrualKeys  map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		policies:     make(map[ledger.PolicyID]ledger.Policy),
		employees:    make(map[ledger.UserID]ledger.Employee),
		grants:       make(map[ledger.GrantID]ledger.Grant),
		consumptions: make(map[string]ledger.Consumption),
		accrualKeys:  make(map[string]struct{}),
	}
}

func accrualKey(userID ledger.UserID, leaveTypeID ledger.LeaveTypeID, on ledger.Date) string {
	return string(userID) + "|" + string(leaveTypeID) + "|" + on.String()
}

// =============================================================================
// POLICIES
// =============================================================================

func (m *Memory) SavePolicy(_ context.Context, p ledger.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policies[p.ID] = p
	return nil
}

func (m *Memory) PolicyByID(_ context.Context, id ledger.PolicyID) (ledger.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.policies[id]
	if !ok {
		return ledger.Policy{}, ledger.ErrPolicyNotFound
	}
	return p, nil
}

func (m *Memory) PolicyFor(_ context.Context, companyID ledger.CompanyID, leaveTypeID ledger.LeaveTypeID) (ledger.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policyForLocked(companyID, leaveTypeID)
}

func (m *Memory) policyForLocked(companyID ledger.CompanyID, leaveTypeID ledger.LeaveTypeID) (ledger.Policy, error) {
	for _, p := range m.policies {
		if p.Active && p.CompanyID == companyID && p.LeaveTypeID == leaveTypeID {
			return p, nil
		}
	}
	return ledger.Policy{}, ledger.ErrPolicyNotFound
}

func (m *Memory) ActivePolicies(_ context.Context, companyID ledger.CompanyID) ([]ledger.Policy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Policy
	for _, p := range m.policies {
		if !p.Active {
			continue
		}
		if companyID != "" && p.CompanyID != companyID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (m *Memory) SaveEmployee(_ context.Context, e ledger.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[e.ID] = e
	return nil
}

func (m *Memory) EmployeeByID(_ context.Context, id ledger.UserID) (ledger.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.employeeByIDLocked(id)
}

func (m *Memory) employeeByIDLocked(id ledger.UserID) (ledger.Employee, error) {
	e, ok := m.employees[id]
	if !ok {
		return ledger.Employee{}, ledger.ErrEmployeeNotFound
	}
	return e, nil
}

func (m *Memory) EmployeesByCompany(_ context.Context, companyID ledger.CompanyID) ([]ledger.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Employee
	for _, e := range m.employees {
		if e.CompanyID == companyID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// GRANT LEDGER
// =============================================================================

func (m *Memory) InsertGrant(_ context.Context, g ledger.Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertGrantLocked(g)
}

func (m *Memory) insertGrantLocked(g ledger.Grant) error {
	if g.Source == ledger.SourceAccrual {
		key := accrualKey(g.UserID, g.LeaveTypeID, g.GrantedOn)
		if _, dup := m.accrualKeys[key]; dup {
			return ledger.ErrDuplicateGrant
		}
		m.accrualKeys[key] = struct{}{}
	}
	m.grants[g.ID] = g
	return nil
}

func (m *Memory) GrantByID(_ context.Context, id ledger.GrantID) (ledger.Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.grantByIDLocked(id)
}

func (m *Memory) grantByIDLocked(id ledger.GrantID) (ledger.Grant, error) {
	g, ok := m.grants[id]
	if !ok {
		return ledger.Grant{}, ledger.ErrGrantNotFound
	}
	return g, nil
}

func (m *Memory) GrantsByUser(_ context.Context, userID ledger.UserID, leaveTypeID ledger.LeaveTypeID) ([]ledger.Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.grantsByUserLocked(userID, leaveTypeID)
}

func (m *Memory) grantsByUserLocked(userID ledger.UserID, leaveTypeID ledger.LeaveTypeID) ([]ledger.Grant, error) {
	var out []ledger.Grant
	for _, g := range m.grants {
		if g.UserID != userID {
			continue
		}
		if leaveTypeID != "" && g.LeaveTypeID != leaveTypeID {
			continue
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].GrantedOn.Equal(out[j].GrantedOn) {
			return out[i].GrantedOn.Before(out[j].GrantedOn)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) HasAccrualGrantOn(_ context.Context, userID ledger.UserID, leaveTypeID ledger.LeaveTypeID, on ledger.Date) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.accrualKeys[accrualKey(userID, leaveTypeID, on)]
	return ok, nil
}

// =============================================================================
// CONSUMPTION LEDGER
// =============================================================================

func (m *Memory) InsertConsumption(_ context.Context, c ledger.Consumption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumptions[c.ID] = c
	return nil
}

func (m *Memory) ConsumptionsByGrant(_ context.Context, grantID ledger.GrantID) ([]ledger.Consumption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.consumptionsByGrantLocked(grantID)
}

func (m *Memory) consumptionsByGrantLocked(grantID ledger.GrantID) ([]ledger.Consumption, error) {
	var out []ledger.Consumption
	for _, c := range m.consumptions {
		if c.GrantID == grantID {
			out = append(out, c)
		}
	}
	sortConsumptions(out)
	return out, nil
}

func (m *Memory) ConsumptionsByRequest(_ context.Context, requestID ledger.RequestID) ([]ledger.Consumption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.consumptionsByRequestLocked(requestID)
}

func (m *Memory) consumptionsByRequestLocked(requestID ledger.RequestID) ([]ledger.Consumption, error) {
	var out []ledger.Consumption
	for _, c := range m.consumptions {
		if c.RequestID == requestID {
			out = append(out, c)
		}
	}
	sortConsumptions(out)
	return out, nil
}

func (m *Memory) ConfirmRequest(_ context.Context, requestID ledger.RequestID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.confirmRequestLocked(requestID)
}

func (m *Memory) confirmRequestLocked(requestID ledger.RequestID) (int, error) {
	n := 0
	for id, c := range m.consumptions {
		if c.RequestID == requestID && c.IsHold {
			c.IsHold = false
			m.consumptions[id] = c
			n++
		}
	}
	return n, nil
}

func (m *Memory) DeleteRequestConsumptions(_ context.Context, requestID ledger.RequestID, holdOnly bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteRequestConsumptionsLocked(requestID, holdOnly)
}

func (m *Memory) deleteRequestConsumptionsLocked(requestID ledger.RequestID, holdOnly bool) (int, error) {
	n := 0
	for id, c := range m.consumptions {
		if c.RequestID != requestID {
			continue
		}
		if holdOnly && !c.IsHold {
			continue
		}
		delete(m.consumptions, id)
		n++
	}
	return n, nil
}

func sortConsumptions(rows []ledger.Consumption) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].ConsumedOn.Equal(rows[j].ConsumedOn) {
			return rows[i].ConsumedOn.Before(rows[j].ConsumedOn)
		}
		return rows[i].ID < rows[j].ID
	})
}

// =============================================================================
// TRANSACTIONS - snapshot and restore on error
// =============================================================================

func (m *Memory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	grants       map[ledger.GrantID]ledger.Grant
	consumptions map[string]ledger.Consumption
	accrualKeys  map[string]struct{}
}

func (m *Memory) snapshot() memorySnapshot {
	grants := make(map[ledger.GrantID]ledger.Grant, len(m.grants))
	for k, v := range m.grants {
		grants[k] = v
	}
	cons := make(map[string]ledger.Consumption, len(m.consumptions))
	for k, v := range m.consumptions {
		cons[k] = v
	}
	keys := make(map[string]struct{}, len(m.accrualKeys))
	for k := range m.accrualKeys {
		keys[k] = struct{}{}
	}
	return memorySnapshot{grants: grants, consumptions: cons, accrualKeys: keys}
}

func (m *Memory) restore(s memorySnapshot) {
	m.grants = s.grants
	m.consumptions = s.consumptions
	m.accrualKeys = s.accrualKeys
}

// txView exposes the parent's state without re-locking; the parent
// mutex is held for the whole transaction.
type txView struct {
	parent *Memory
}

func (tv *txView) SavePolicy(_ context.Context, p ledger.Policy) error {
	tv.parent.policies[p.ID] = p
	return nil
}

func (tv *txView) PolicyByID(_ context.Context, id ledger.PolicyID) (ledger.Policy, error) {
	p, ok := tv.parent.policies[id]
	if !ok {
		return ledger.Policy{}, ledger.ErrPolicyNotFound
	}
	return p, nil
}

func (tv *txView) PolicyFor(_ context.Context, companyID ledger.CompanyID, leaveTypeID ledger.LeaveTypeID) (ledger.Policy, error) {
	return tv.parent.policyForLocked(companyID, leaveTypeID)
}

func (tv *txView) ActivePolicies(_ context.Context, companyID ledger.CompanyID) ([]ledger.Policy, error) {
	var out []ledger.Policy
	for _, p := range tv.parent.policies {
		if p.Active && (companyID == "" || p.CompanyID == companyID) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tv *txView) SaveEmployee(_ context.Context, e ledger.Employee) error {
	tv.parent.employees[e.ID] = e
	return nil
}

func (tv *txView) EmployeeByID(_ context.Context, id ledger.UserID) (ledger.Employee, error) {
	return tv.parent.employeeByIDLocked(id)
}

func (tv *txView) EmployeesByCompany(_ context.Context, companyID ledger.CompanyID) ([]ledger.Employee, error) {
	var out []ledger.Employee
	for _, e := range tv.parent.employees {
		if e.CompanyID == companyID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tv *txView) InsertGrant(_ context.Context, g ledger.Grant) error {
	return tv.parent.insertGrantLocked(g)
}

func (tv *txView) GrantByID(_ context.Context, id ledger.GrantID) (ledger.Grant, error) {
	return tv.parent.grantByIDLocked(id)
}

func (tv *txView) GrantsByUser(_ context.Context, userID ledger.UserID, leaveTypeID ledger.LeaveTypeID) ([]ledger.Grant, error) {
	return tv.parent.grantsByUserLocked(userID, leaveTypeID)
}

func (tv *txView) HasAccrualGrantOn(_ context.Context, userID ledger.UserID, leaveTypeID ledger.LeaveTypeID, on ledger.Date) (bool, error) {
	_, ok := tv.parent.accrualKeys[accrualKey(userID, leaveTypeID, on)]
	return ok, nil
}

func (tv *txView) InsertConsumption(_ context.Context, c ledger.Consumption) error {
	tv.parent.consumptions[c.ID] = c
	return nil
}

func (tv *txView) ConsumptionsByGrant(_ context.Context, grantID ledger.GrantID) ([]ledger.Consumption, error) {
	return tv.parent.consumptionsByGrantLocked(grantID)
}

func (tv *txView) ConsumptionsByRequest(_ context.Context, requestID ledger.RequestID) ([]ledger.Consumption, error) {
	return tv.parent.consumptionsByRequestLocked(requestID)
}

func (tv *txView) ConfirmRequest(_ context.Context, requestID ledger.RequestID) (int, error) {
	return tv.parent.confirmRequestLocked(requestID)
}

func (tv *txView) DeleteRequestConsumptions(_ context.Context, requestID ledger.RequestID, holdOnly bool) (int, error) {
	return tv.parent.deleteRequestConsumptionsLocked(requestID, holdOnly)
}

func (tv *txView) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	// Nested transactions share the outer one.
	return fn(tv)
}

// =============================================================================
// AUDIT LOG - in-memory, append-only
// =============================================================================

type MemoryAudit struct {
	mu      sync.RWMutex
	entries []ledger.AuditEntry
}

func NewMemoryAudit() *MemoryAudit {
	return &MemoryAudit{}
}

func (a *MemoryAudit) Record(_ context.Context, entry ledger.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

func (a *MemoryAudit) Query(_ context.Context, filter ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []ledger.AuditEntry
	for _, e := range a.entries {
		if filter.TargetID != "" && e.TargetID != filter.TargetID {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
