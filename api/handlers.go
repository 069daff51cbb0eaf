/*
handlers.go - HTTP handlers for the leave ledger

PURPOSE:
  Exposes the ledger service via REST. Handles HTTP request/response,
  JSON serialization, and delegates all ledger logic to ledger.Service.

ENDPOINTS:
  Accrual:
    POST /api/grants/issue          Run the accrual engine (scheduler-only)
    POST /api/grants/manual         Manual / back-fill grant

  Requests:
    POST /api/allocations           Book leave (hold or confirmed)
    POST /api/requests/{id}/confirm Approve a held request
    POST /api/requests/{id}/release Withdraw/reject a held request
    POST /api/requests/{id}/reverse Undo an approved request

  Read side:
    GET  /api/users/{id}/balance    Balance pair per leave type
    GET  /api/users/{id}/grants     Per-grant drill-down, allocation order
    GET  /api/audit                 Audit trail query

ERROR HANDLING:
  ledger sentinel categories map to HTTP status:
  - 400: validation / unit errors
  - 404: missing policy/employee/grant
  - 409: insufficient balance, invalid state, duplicates, retryable
  - 500: everything else

SECURITY NOTE:
  /api/grants/issue requires the X-Scheduler-Secret header so only the
  in-process scheduler (or an operator who knows the secret) can trigger
  runs. Everything else is unauthenticated; put this behind a gateway.

SEE ALSO:
  - dto.go: request/response shapes
  - server.go: router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/attendly/leave-ledger/ledger"
)

// Handler holds the dependencies every endpoint needs.
type Handler struct {
	Service *ledger.Service
	Audit   ledger.AuditLog

	// SchedulerSecret guards POST /api/grants/issue. Empty disables the
	// check (dev mode).
	SchedulerSecret string
}

func NewHandler(svc *ledger.Service, audit ledger.AuditLog, schedulerSecret string) *Handler {
	return &Handler{Service: svc, Audit: audit, SchedulerSecret: schedulerSecret}
}

// =============================================================================
// ACCRUAL
// =============================================================================

// IssueGrants runs the accrual engine for one as-of date.
func (h *Handler) IssueGrants(w http.ResponseWriter, r *http.Request) {
	if h.SchedulerSecret != "" && r.Header.Get("X-Scheduler-Secret") != h.SchedulerSecret {
		writeError(w, http.StatusUnauthorized, "invalid scheduler secret", nil)
		return
	}

	var req IssueGrantsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	var asOf ledger.Date
	if req.AsOf != "" {
		var err error
		if asOf, err = ledger.ParseDate(req.AsOf); err != nil {
			writeError(w, http.StatusBadRequest, "invalid as_of date", err)
			return
		}
	}

	summary, err := h.Service.IssueGrants(r.Context(), asOf, ledger.CompanyID(req.CompanyID))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ManualGrant inserts a grant outside the accrual schedule.
func (h *Handler) ManualGrant(w http.ResponseWriter, r *http.Request) {
	var req ManualGrantRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.UserID == "" || req.LeaveTypeID == "" || req.GrantedOn == "" {
		writeError(w, http.StatusBadRequest, "user_id, leave_type_id and granted_on are required", nil)
		return
	}

	grantedOn, err := ledger.ParseDate(req.GrantedOn)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid granted_on date", err)
		return
	}
	var expiresOn *ledger.Date
	if req.ExpiresOn != "" {
		d, err := ledger.ParseDate(req.ExpiresOn)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid expires_on date", err)
			return
		}
		expiresOn = &d
	}

	grant, err := h.Service.GrantManual(r.Context(), ledger.ManualGrantInput{
		UserID:      ledger.UserID(req.UserID),
		LeaveTypeID: ledger.LeaveTypeID(req.LeaveTypeID),
		PolicyID:    ledger.PolicyID(req.PolicyID),
		Quantity:    req.Quantity,
		GrantedOn:   grantedOn,
		ExpiresOn:   expiresOn,
		Note:        req.Note,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, grantDTO(ledger.GrantRemaining{
		Grant:                   grant,
		RemainingConfirmed:      grant.Quantity,
		RemainingIncludingHolds: grant.Quantity,
	}))
}

// =============================================================================
// ALLOCATION AND REQUEST TRANSITIONS
// =============================================================================

// Allocate books leave for a request, as holds or directly confirmed.
func (h *Handler) Allocate(w http.ResponseWriter, r *http.Request) {
	var req AllocateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.UserID == "" || req.LeaveTypeID == "" || req.RequestID == "" {
		writeError(w, http.StatusBadRequest, "user_id, leave_type_id and request_id are required", nil)
		return
	}
	if len(req.Lines) == 0 {
		writeError(w, http.StatusBadRequest, "at least one line is required", nil)
		return
	}

	emp, err := h.Service.EmployeeByID(r.Context(), ledger.UserID(req.UserID))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	policy, err := h.Service.PolicyFor(r.Context(), emp.CompanyID, ledger.LeaveTypeID(req.LeaveTypeID))
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	lines := make([]ledger.RequestLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		d, err := ledger.ParseDate(l.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid line date", err)
			return
		}
		lines = append(lines, ledger.RequestLine{
			Date:     d,
			Unit:     ledger.Unit(l.Unit),
			Quantity: l.Quantity,
		})
	}
	needs, err := ledger.RoundLines(lines, policy.MinUnit, policy.HoursPerDay)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	grantIDs := make([]ledger.GrantID, 0, len(req.GrantIDs))
	for _, id := range req.GrantIDs {
		grantIDs = append(grantIDs, ledger.GrantID(id))
	}

	err = h.Service.Allocate(r.Context(), ledger.AllocateInput{
		UserID:         ledger.UserID(req.UserID),
		LeaveTypeID:    ledger.LeaveTypeID(req.LeaveTypeID),
		RequestID:      ledger.RequestID(req.RequestID),
		Needs:          needs,
		Hold:           req.Hold,
		ManualGrantIDs: grantIDs,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"request_id":  req.RequestID,
		"total_hours": ledger.TotalHours(needs),
		"hold":        req.Hold,
	})
}

// Confirm approves a held request.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	requestID := ledger.RequestID(chi.URLParam(r, "id"))
	if err := h.Service.Confirm(r.Context(), requestID); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request_id": requestID, "state": "confirmed"})
}

// Release withdraws or rejects a held request.
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	requestID := ledger.RequestID(chi.URLParam(r, "id"))
	if err := h.Service.Release(r.Context(), requestID); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request_id": requestID, "state": "released"})
}

// Reverse undoes an approved request.
func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	requestID := ledger.RequestID(chi.URLParam(r, "id"))
	var req ReverseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.Service.Reverse(r.Context(), requestID, req.Reason); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"request_id": requestID, "state": "reversed"})
}

// =============================================================================
// READ SIDE
// =============================================================================

// GetBalance returns the per-leave-type balance pair for a user.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "id"))
	leaveType := ledger.LeaveTypeID(r.URL.Query().Get("leave_type_id"))

	rows, err := h.Service.Balance(r.Context(), userID, leaveType)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	dtos := make([]BalanceDTO, len(rows))
	for i, row := range rows {
		dtos[i] = BalanceDTO{
			LeaveTypeID:             string(row.LeaveTypeID),
			RemainingConfirmed:      row.RemainingConfirmed,
			RemainingIncludingHolds: row.RemainingIncludingHolds,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetGrants returns the user's grants with remaining amounts, in the
// order the allocator would consume them.
func (h *Handler) GetGrants(w http.ResponseWriter, r *http.Request) {
	userID := ledger.UserID(chi.URLParam(r, "id"))
	leaveType := ledger.LeaveTypeID(r.URL.Query().Get("leave_type_id"))

	grants, err := h.Service.GrantsWithRemaining(r.Context(), userID, leaveType)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	dtos := make([]GrantDTO, len(grants))
	for i, g := range grants {
		dtos[i] = grantDTO(g)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// QueryAudit returns audit entries, optionally filtered.
func (h *Handler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	if h.Audit == nil {
		writeError(w, http.StatusNotFound, "audit log not configured", nil)
		return
	}
	filter := ledger.AuditFilter{
		TargetID: r.URL.Query().Get("target_id"),
		Action:   ledger.AuditAction(r.URL.Query().Get("action")),
		Limit:    200,
	}
	entries, err := h.Audit.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audit query failed", err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = auditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(Envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := Envelope{Success: false, Error: msg}
	if err != nil {
		body.Code = err.Error()
	}
	json.NewEncoder(w).Encode(body)
}

// writeLedgerError maps ledger error categories onto HTTP status codes.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case ledger.IsRetryable(err):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case ledger.IsClientError(err):
		// Balance and state conflicts are 409; pure input errors 400.
		if isConflict(err) {
			writeError(w, http.StatusConflict, err.Error(), nil)
			return
		}
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func isConflict(err error) bool {
	for _, target := range []error{
		ledger.ErrInsufficientBalance,
		ledger.ErrInvalidLedgerState,
		ledger.ErrDuplicateGrant,
		ledger.ErrGrantExpired,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
