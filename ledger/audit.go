/*
audit.go - Append-only audit sink

PURPOSE:
  Every mutating ledger operation, including failed ones, is recorded
  with enough before/after detail to reconstruct history. The sink is a
  write-only collaborator; a full AuditLog additionally supports queries
  for the read-side endpoint.
*/
package ledger

import (
	"context"
	"time"
)

type AuditAction string

const (
	AuditGrantIssued      AuditAction = "grant_issued"
	AuditGrantManual      AuditAction = "grant_manual"
	AuditCarryoverForfeit AuditAction = "carryover_forfeited"
	AuditAccrualRun       AuditAction = "accrual_run"
	AuditAllocated        AuditAction = "allocated"
	AuditConfirmed        AuditAction = "confirmed"
	AuditReleased         AuditAction = "released"
	AuditReversed         AuditAction = "reversed"
	AuditOperationFailed  AuditAction = "operation_failed"
)

// AuditEntry is one append-only audit record.
type AuditEntry struct {
	ID         string
	At         time.Time
	Action     AuditAction
	TargetType string // "grant", "request", "run", "user"
	TargetID   string
	Before     map[string]any
	After      map[string]any
	Details    string
}

// AuditSink accepts audit writes. Implementations must be append-only.
type AuditSink interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// AuditLog extends the sink with the query side used by audit viewers.
type AuditLog interface {
	AuditSink
	Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	TargetID string
	Action   AuditAction
	Limit    int
}

// NopAuditSink discards entries. Used when no sink is configured.
type NopAuditSink struct{}

func (NopAuditSink) Record(ctx context.Context, entry AuditEntry) error { return nil }
