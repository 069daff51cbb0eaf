/*
service.go - Ledger service construction and shared plumbing

PURPOSE:
  Service is the single entry point callers (HTTP layer, scheduler) use.
  It owns the store, the audit sink, the clock, and the operational
  timezone - everything that used to be ambient becomes explicit here.

OPERATIONS (implemented across accrual.go / allocate.go / balance.go):
  IssueGrants(asOf, companyID)   -> granted/skipped/per-target errors
  GrantManual(input)             -> back-fill or bonus grant
  Allocate(input)                -> hold or confirmed consumption rows
  Confirm(requestID)             -> hold -> confirmed
  Release(requestID)             -> hold -> gone
  Reverse(requestID, reason)     -> confirmed -> gone
  Balance(userID, leaveTypeID)   -> confirmed / including-holds pair
  GrantsWithRemaining(...)       -> per-grant drill-down, FIFO order
*/
package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Service struct {
	store Store
	audit AuditSink
	log   *slog.Logger
	now   func() time.Time
	loc   *time.Location
}

type Option func(*Service)

// WithAuditSink sets the audit sink. Defaults to NopAuditSink.
func WithAuditSink(sink AuditSink) Option {
	return func(s *Service) { s.audit = sink }
}

// WithClock overrides the clock. Tests pin it to a fixed instant.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTimezone sets the company's operational timezone, which decides
// what "today" means for accrual and allocation dates.
func WithTimezone(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		audit: NopAuditSink{},
		log:   slog.Default(),
		now:   time.Now,
		loc:   time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// today is the current date in the company's operational timezone.
func (s *Service) today() Date {
	return DateOf(s.now(), s.loc)
}

// record writes an audit entry. A sink failure is logged, never fatal:
// the ledger write already committed and must not be undone by a
// failing observer.
func (s *Service) record(ctx context.Context, action AuditAction, targetType, targetID string, before, after map[string]any, details string) {
	entry := AuditEntry{
		ID:         uuid.NewString(),
		At:         s.now(),
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Before:     before,
		After:      after,
		Details:    details,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.log.Warn("audit record failed", "action", action, "target", targetID, "err", err)
	}
}

// recordFailure audits a rejected mutating operation.
func (s *Service) recordFailure(ctx context.Context, op, targetType, targetID string, opErr error) {
	s.record(ctx, AuditOperationFailed, targetType, targetID, nil,
		map[string]any{"op": op}, opErr.Error())
}

// EmployeeByID looks up one employee.
func (s *Service) EmployeeByID(ctx context.Context, id UserID) (Employee, error) {
	return s.store.EmployeeByID(ctx, id)
}

// PolicyFor resolves the active policy for a (company, leave type) pair.
func (s *Service) PolicyFor(ctx context.Context, companyID CompanyID, leaveTypeID LeaveTypeID) (Policy, error) {
	return s.store.PolicyFor(ctx, companyID, leaveTypeID)
}

// ManualGrantInput is an administrator back-fill or bonus grant.
type ManualGrantInput struct {
	UserID      UserID
	LeaveTypeID LeaveTypeID
	PolicyID    PolicyID
	Quantity    decimal.Decimal // hours
	GrantedOn   Date
	ExpiresOn   *Date // nil = never expires
	Note        string
}

// GrantManual inserts a grant outside the accrual schedule. The explicit
// date is required; manual grants bypass the accrual idempotency key.
func (s *Service) GrantManual(ctx context.Context, in ManualGrantInput) (Grant, error) {
	if in.Quantity.IsNegative() {
		return Grant{}, &InvalidLedgerStateError{Op: "grant", Reason: "manual grant quantity must not be negative"}
	}
	if in.ExpiresOn != nil && in.ExpiresOn.Before(in.GrantedOn) {
		return Grant{}, &invalidRangeError{start: in.GrantedOn, end: *in.ExpiresOn}
	}
	if _, err := s.store.EmployeeByID(ctx, in.UserID); err != nil {
		return Grant{}, err
	}

	grant := Grant{
		ID:          GrantID(uuid.NewString()),
		UserID:      in.UserID,
		LeaveTypeID: in.LeaveTypeID,
		PolicyID:    in.PolicyID,
		Source:      SourceManual,
		Quantity:    in.Quantity,
		GrantedOn:   in.GrantedOn,
		ExpiresOn:   in.ExpiresOn,
		Note:        in.Note,
		CreatedAt:   s.now(),
	}
	if err := s.store.InsertGrant(ctx, grant); err != nil {
		s.recordFailure(ctx, "grant_manual", "user", string(in.UserID), err)
		return Grant{}, err
	}

	s.record(ctx, AuditGrantManual, "grant", string(grant.ID), nil, map[string]any{
		"user_id":    string(grant.UserID),
		"leave_type": string(grant.LeaveTypeID),
		"quantity":   grant.Quantity.String(),
		"granted_on": grant.GrantedOn.String(),
	}, in.Note)
	return grant, nil
}
