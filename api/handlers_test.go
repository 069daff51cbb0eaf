package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendly/leave-ledger/api"
	"github.com/attendly/leave-ledger/ledger"
	"github.com/attendly/leave-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const testSecret = "sched-secret"

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	audit := store.NewMemoryAudit()
	fixed := time.Date(2026, time.March, 16, 12, 0, 0, 0, time.UTC)

	svc := ledger.NewService(st,
		ledger.WithAuditSink(audit),
		ledger.WithClock(func() time.Time { return fixed }),
	)
	h := api.NewHandler(svc, audit, testSecret)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(api.NewRouter(h, logger, []string{"*"}))
	t.Cleanup(srv.Close)
	return srv, st
}

func seedVacation(t *testing.T, st *store.Memory) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.SavePolicy(ctx, ledger.Policy{
		ID:          "pol-1",
		CompanyID:   "acme",
		LeaveTypeID: "vacation",
		Method:      ledger.MethodAnniversary,
		BaseDaysByService: []ledger.ServiceTier{
			{MinYears: 0, Days: decimal.NewFromInt(10)},
		},
		ExpireMonths:    24,
		MinUnit:         ledger.MinUnitHour,
		DeductionTiming: ledger.DeductOnApply,
		HoursPerDay:     decimal.NewFromInt(8),
		Active:          true,
	}))
	require.NoError(t, st.SaveEmployee(ctx, ledger.Employee{
		ID: "emp-1", CompanyID: "acme", Name: "Alice Johnson",
		EligibleFrom: ledger.MustDate("2021-03-15"),
		FTEPercent:   decimal.NewFromInt(100),
		Active:       true,
	}))
	exp := ledger.MustDate("2026-12-31")
	require.NoError(t, st.InsertGrant(ctx, ledger.Grant{
		ID: "grant-1", UserID: "emp-1", LeaveTypeID: "vacation", PolicyID: "pol-1",
		Source: ledger.SourceManual, Quantity: decimal.NewFromInt(16),
		GrantedOn: ledger.MustDate("2026-01-01"), ExpiresOn: &exp,
	}))
}

func postJSON(t *testing.T, url string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeEnvelope(t *testing.T, resp *http.Response) api.Envelope {
	t.Helper()
	defer resp.Body.Close()
	var env api.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

// =============================================================================
// ALLOCATION FLOW
// =============================================================================

func TestHTTP_AllocateConfirmBalance(t *testing.T) {
	srv, st := newTestServer(t)
	seedVacation(t, st)

	// Hold one day
	resp := postJSON(t, srv.URL+"/api/allocations", api.AllocateRequest{
		UserID:      "emp-1",
		LeaveTypeID: "vacation",
		RequestID:   "req-1",
		Lines: []api.AllocationLine{
			{Date: "2026-03-20", Unit: "day", Quantity: decimal.NewFromInt(1)},
		},
		Hold: true,
	}, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	assert.True(t, env.Success)

	// Approve it
	resp = postJSON(t, srv.URL+"/api/requests/req-1/confirm", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Balance shows 8h consumed
	getResp, err := http.Get(srv.URL + "/api/users/emp-1/balance?leave_type_id=vacation")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, getResp.StatusCode)

	var balanceEnv struct {
		Success bool             `json:"success"`
		Data    []api.BalanceDTO `json:"data"`
	}
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&balanceEnv))
	getResp.Body.Close()
	require.Len(t, balanceEnv.Data, 1)
	assert.True(t, balanceEnv.Data[0].RemainingConfirmed.Equal(decimal.NewFromInt(8)))
	assert.True(t, balanceEnv.Data[0].RemainingIncludingHolds.Equal(decimal.NewFromInt(8)))
}

func TestHTTP_InsufficientBalanceIsConflict(t *testing.T) {
	srv, st := newTestServer(t)
	seedVacation(t, st)

	resp := postJSON(t, srv.URL+"/api/allocations", api.AllocateRequest{
		UserID:      "emp-1",
		LeaveTypeID: "vacation",
		RequestID:   "req-big",
		Lines: []api.AllocationLine{
			{Date: "2026-03-20", Unit: "day", Quantity: decimal.NewFromInt(3)},
		},
	}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	env := decodeEnvelope(t, resp)
	assert.False(t, env.Success)
}

func TestHTTP_ZeroDurationLineIsBadRequest(t *testing.T) {
	srv, st := newTestServer(t)
	seedVacation(t, st)

	resp := postJSON(t, srv.URL+"/api/allocations", api.AllocateRequest{
		UserID:      "emp-1",
		LeaveTypeID: "vacation",
		RequestID:   "req-zero",
		Lines: []api.AllocationLine{
			{Date: "2026-03-20", Unit: "hour", Quantity: decimal.Zero},
		},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestHTTP_ConfirmUnknownRequestIsConflict(t *testing.T) {
	srv, st := newTestServer(t)
	seedVacation(t, st)

	resp := postJSON(t, srv.URL+"/api/requests/req-ghost/confirm", nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestHTTP_UnknownUserIsNotFound(t *testing.T) {
	srv, st := newTestServer(t)
	seedVacation(t, st)

	resp := postJSON(t, srv.URL+"/api/allocations", api.AllocateRequest{
		UserID:      "emp-ghost",
		LeaveTypeID: "vacation",
		RequestID:   "req-1",
		Lines: []api.AllocationLine{
			{Date: "2026-03-20", Unit: "day", Quantity: decimal.NewFromInt(1)},
		},
	}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

// =============================================================================
// ACCRUAL ENDPOINT
// =============================================================================

func TestHTTP_IssueGrantsRequiresSecret(t *testing.T) {
	srv, st := newTestServer(t)
	seedVacation(t, st)

	resp := postJSON(t, srv.URL+"/api/grants/issue", api.IssueGrantsRequest{AsOf: "2026-03-15"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/grants/issue", api.IssueGrantsRequest{AsOf: "2026-03-15"},
		map[string]string{"X-Scheduler-Secret": testSecret})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var env struct {
		Success bool                `json:"success"`
		Data    ledger.IssueSummary `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	resp.Body.Close()
	assert.Equal(t, 1, env.Data.Granted)
}

func TestHTTP_ManualGrant(t *testing.T) {
	srv, st := newTestServer(t)
	seedVacation(t, st)

	resp := postJSON(t, srv.URL+"/api/grants/manual", api.ManualGrantRequest{
		UserID:      "emp-1",
		LeaveTypeID: "vacation",
		Quantity:    decimal.NewFromInt(8),
		GrantedOn:   "2026-03-01",
		Note:        "service award",
	}, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	grants, err := st.GrantsByUser(context.Background(), "emp-1", "vacation")
	require.NoError(t, err)
	assert.Len(t, grants, 2)
}

// =============================================================================
// READ SIDE
// =============================================================================

func TestHTTP_GrantsEndpointFIFOOrder(t *testing.T) {
	srv, st := newTestServer(t)
	seedVacation(t, st)

	ctx := context.Background()
	soon := ledger.MustDate("2026-06-30")
	require.NoError(t, st.InsertGrant(ctx, ledger.Grant{
		ID: "grant-2", UserID: "emp-1", LeaveTypeID: "vacation", PolicyID: "pol-1",
		Source: ledger.SourceManual, Quantity: decimal.NewFromInt(8),
		GrantedOn: ledger.MustDate("2026-02-01"), ExpiresOn: &soon,
	}))

	resp, err := http.Get(srv.URL + "/api/users/emp-1/grants?leave_type_id=vacation")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env struct {
		Success bool           `json:"success"`
		Data    []api.GrantDTO `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	resp.Body.Close()

	require.Len(t, env.Data, 2)
	// grant-2 expires 2026-06-30, before grant-1's 2026-12-31
	assert.Equal(t, "grant-2", env.Data[0].ID)
	assert.Equal(t, "grant-1", env.Data[1].ID)
}

func TestHTTP_AuditQuery(t *testing.T) {
	srv, st := newTestServer(t)
	seedVacation(t, st)

	resp := postJSON(t, srv.URL+"/api/allocations", api.AllocateRequest{
		UserID:      "emp-1",
		LeaveTypeID: "vacation",
		RequestID:   "req-1",
		Lines: []api.AllocationLine{
			{Date: "2026-03-20", Unit: "hour", Quantity: decimal.NewFromInt(4)},
		},
		Hold: true,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	getResp, err := http.Get(srv.URL + "/api/audit?target_id=req-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)

	var env struct {
		Success bool                `json:"success"`
		Data    []api.AuditEntryDTO `json:"data"`
	}
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&env))
	getResp.Body.Close()
	require.NotEmpty(t, env.Data)
	assert.Equal(t, "allocated", env.Data[0].Action)
}

func TestHTTP_Healthz(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}
