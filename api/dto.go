/*
dto.go - Data transfer objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupled from the domain model
  so field names can evolve without touching the ledger package.

NAMING CONVENTION:
  - *DTO: response types returned to clients
  - *Request: request body types from clients

VALIDATION:
  Validation is done in handlers; DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: uses these types
  - ledger/types.go: the domain types these mirror
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/attendly/leave-ledger/ledger"
)

// =============================================================================
// RESPONSE ENVELOPE
// =============================================================================

// Envelope is the uniform response wrapper. Success responses carry
// data; error responses carry a stable machine code plus a message.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// =============================================================================
// REQUESTS
// =============================================================================

// IssueGrantsRequest triggers one accrual run. Both fields optional:
// an empty as_of means today, an empty company_id means all companies.
type IssueGrantsRequest struct {
	AsOf      string `json:"as_of,omitempty"`
	CompanyID string `json:"company_id,omitempty"`
}

// AllocationLine is one user-entered line of a leave request.
type AllocationLine struct {
	Date     string          `json:"date"`
	Unit     string          `json:"unit"` // "hour" | "half" | "day"
	Quantity decimal.Decimal `json:"quantity"`
}

// AllocateRequest books leave against the caller's grants.
type AllocateRequest struct {
	UserID      string           `json:"user_id"`
	LeaveTypeID string           `json:"leave_type_id"`
	RequestID   string           `json:"request_id"`
	Lines       []AllocationLine `json:"lines"`
	Hold        bool             `json:"hold"`

	// GrantIDs restricts the allocation to exactly these grants, in
	// order, bypassing the expiry filter. Administrative use only.
	GrantIDs []string `json:"grant_ids,omitempty"`
}

// ReverseRequest carries the mandatory reason for undoing an approval.
type ReverseRequest struct {
	Reason string `json:"reason"`
}

// ManualGrantRequest back-fills or bonuses leave outside the schedule.
type ManualGrantRequest struct {
	UserID      string          `json:"user_id"`
	LeaveTypeID string          `json:"leave_type_id"`
	PolicyID    string          `json:"policy_id,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"` // hours
	GrantedOn   string          `json:"granted_on"`
	ExpiresOn   string          `json:"expires_on,omitempty"` // empty = never
	Note        string          `json:"note,omitempty"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// BalanceDTO is the per-leave-type balance pair.
type BalanceDTO struct {
	LeaveTypeID             string          `json:"leave_type_id"`
	RemainingConfirmed      decimal.Decimal `json:"remaining_confirmed"`
	RemainingIncludingHolds decimal.Decimal `json:"remaining_including_holds"`
}

// GrantDTO is one grant line with its remaining pair, in allocation
// order.
type GrantDTO struct {
	ID                      string          `json:"id"`
	LeaveTypeID             string          `json:"leave_type_id"`
	Source                  string          `json:"source"`
	Quantity                decimal.Decimal `json:"quantity"`
	GrantedOn               string          `json:"granted_on"`
	ExpiresOn               *string         `json:"expires_on,omitempty"`
	RemainingConfirmed      decimal.Decimal `json:"remaining_confirmed"`
	RemainingIncludingHolds decimal.Decimal `json:"remaining_including_holds"`
	Note                    string          `json:"note,omitempty"`
}

// AuditEntryDTO is one audit record.
type AuditEntryDTO struct {
	ID         string         `json:"id"`
	At         string         `json:"at"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id"`
	Before     map[string]any `json:"before,omitempty"`
	After      map[string]any `json:"after,omitempty"`
	Details    string         `json:"details,omitempty"`
}

func grantDTO(g ledger.GrantRemaining) GrantDTO {
	dto := GrantDTO{
		ID:                      string(g.Grant.ID),
		LeaveTypeID:             string(g.Grant.LeaveTypeID),
		Source:                  string(g.Grant.Source),
		Quantity:                g.Grant.Quantity,
		GrantedOn:               g.Grant.GrantedOn.String(),
		RemainingConfirmed:      g.RemainingConfirmed,
		RemainingIncludingHolds: g.RemainingIncludingHolds,
		Note:                    g.Grant.Note,
	}
	if g.Grant.ExpiresOn != nil {
		s := g.Grant.ExpiresOn.String()
		dto.ExpiresOn = &s
	}
	return dto
}

func auditEntryDTO(e ledger.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:         e.ID,
		At:         e.At.UTC().Format(time.RFC3339),
		Action:     string(e.Action),
		TargetType: e.TargetType,
		TargetID:   e.TargetID,
		Before:     e.Before,
		After:      e.After,
		Details:    e.Details,
	}
}
