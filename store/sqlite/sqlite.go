/*
Package sqlite provides the SQLite-backed implementation of the ledger
storage interfaces.

PURPOSE:
  Implements ledger.Store and ledger.AuditLog over SQLite. The same
  schema and SQL shape apply to PostgreSQL with minor dialect changes.

KEY TABLES:
  policies:     policy definitions (rules as JSON config)
  employees:    accrual targets
  grants:       the grant ledger (append-only)
  consumptions: the consumption ledger (hold flag flips; rows removed
                only by release/reverse inside a request transaction)
  audit_log:    append-only audit trail

IDEMPOTENCY:
  ux_grants_accrual enforces at most one accrual grant per
  (user, leave type, granted-on date) at the database level, so even
  two racing scheduler runs cannot double-grant. The violation surfaces
  as ledger.ErrDuplicateGrant.

CONCURRENCY:
  WithTx serializes writers with a mutex on top of a database/sql
  transaction. SQLite allows a single writer anyway; with PostgreSQL
  the mutex would be replaced by SELECT ... FOR UPDATE on grant rows.

WAL MODE:
  Opened with WAL so readers don't block behind the writer.

USAGE:
  st, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

  svc := ledger.NewService(st, ledger.WithAuditSink(st.Audit()))

SEE ALSO:
  - ledger/store.go: interface contracts
  - ledger/store/memory.go: in-memory implementation used in tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/attendly/leave-ledger/ledger"
)

// Store implements ledger.Store and ledger.AuditLog using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New opens (and migrates) a SQLite store. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases coherent and
	// matches SQLite's single-writer model.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		config_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_policies_company
		ON policies(company_id, leave_type_id);

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		name TEXT NOT NULL,
		eligible_from TEXT NOT NULL,
		fte_percent TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_employees_company
		ON employees(company_id);

	-- Grant ledger (append-only)
	CREATE TABLE IF NOT EXISTS grants (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		policy_id TEXT NOT NULL,
		source TEXT NOT NULL,
		quantity TEXT NOT NULL,
		granted_on TEXT NOT NULL,
		expires_on TEXT,
		note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_grants_user
		ON grants(user_id, leave_type_id);

	-- CRITICAL: accrual idempotency. At most one accrual grant per
	-- (user, leave type, date), enforced by the database.
	CREATE UNIQUE INDEX IF NOT EXISTS ux_grants_accrual
		ON grants(user_id, leave_type_id, granted_on)
		WHERE source = 'accrual';

	-- Consumption ledger
	CREATE TABLE IF NOT EXISTS consumptions (
		id TEXT PRIMARY KEY,
		grant_id TEXT NOT NULL REFERENCES grants(id),
		request_id TEXT NOT NULL,
		quantity TEXT NOT NULL,
		is_hold INTEGER NOT NULL,
		consumed_on TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_consumptions_grant
		ON consumptions(grant_id);
	CREATE INDEX IF NOT EXISTS idx_consumptions_request
		ON consumptions(request_id);

	-- Audit trail (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		at TEXT NOT NULL,
		action TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_id TEXT NOT NULL,
		before_json TEXT,
		after_json TEXT,
		details TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_audit_target
		ON audit_log(target_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// dbtx abstracts *sql.DB and *sql.Tx so the same queries serve both.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// POLICIES
// =============================================================================

func (s *Store) SavePolicy(ctx context.Context, p ledger.Policy) error {
	return savePolicy(ctx, s.db, p)
}

func savePolicy(ctx context.Context, db dbtx, p ledger.Policy) error {
	config, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal policy config: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = db.ExecContext(ctx, `
		INSERT INTO policies (id, company_id, leave_type_id, active, config_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			company_id = excluded.company_id,
			leave_type_id = excluded.leave_type_id,
			active = excluded.active,
			config_json = excluded.config_json,
			updated_at = excluded.updated_at`,
		string(p.ID), string(p.CompanyID), string(p.LeaveTypeID),
		boolToInt(p.Active), string(config), now, now)
	return err
}

func (s *Store) PolicyByID(ctx context.Context, id ledger.PolicyID) (ledger.Policy, error) {
	return policyByID(ctx, s.db, id)
}

func policyByID(ctx context.Context, db dbtx, id ledger.PolicyID) (ledger.Policy, error) {
	row := db.QueryRowContext(ctx, `SELECT config_json FROM policies WHERE id = ?`, string(id))
	return scanPolicy(row)
}

func (s *Store) PolicyFor(ctx context.Context, companyID ledger.CompanyID, leaveTypeID ledger.LeaveTypeID) (ledger.Policy, error) {
	return policyFor(ctx, s.db, companyID, leaveTypeID)
}

func policyFor(ctx context.Context, db dbtx, companyID ledger.CompanyID, leaveTypeID ledger.LeaveTypeID) (ledger.Policy, error) {
	row := db.QueryRowContext(ctx, `
		SELECT config_json FROM policies
		WHERE company_id = ? AND leave_type_id = ? AND active = 1
		ORDER BY id LIMIT 1`,
		string(companyID), string(leaveTypeID))
	return scanPolicy(row)
}

func scanPolicy(row *sql.Row) (ledger.Policy, error) {
	var config string
	if err := row.Scan(&config); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Policy{}, ledger.ErrPolicyNotFound
		}
		return ledger.Policy{}, err
	}
	var p ledger.Policy
	if err := json.Unmarshal([]byte(config), &p); err != nil {
		return ledger.Policy{}, fmt.Errorf("unmarshal policy config: %w", err)
	}
	return p, nil
}

func (s *Store) ActivePolicies(ctx context.Context, companyID ledger.CompanyID) ([]ledger.Policy, error) {
	return activePolicies(ctx, s.db, companyID)
}

func activePolicies(ctx context.Context, db dbtx, companyID ledger.CompanyID) ([]ledger.Policy, error) {
	query := `SELECT config_json FROM policies WHERE active = 1`
	var args []any
	if companyID != "" {
		query += ` AND company_id = ?`
		args = append(args, string(companyID))
	}
	query += ` ORDER BY id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Policy
	for rows.Next() {
		var config string
		if err := rows.Scan(&config); err != nil {
			return nil, err
		}
		var p ledger.Policy
		if err := json.Unmarshal([]byte(config), &p); err != nil {
			return nil, fmt.Errorf("unmarshal policy config: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, e ledger.Employee) error {
	return saveEmployee(ctx, s.db, e)
}

func saveEmployee(ctx context.Context, db dbtx, e ledger.Employee) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO employees (id, company_id, name, eligible_from, fte_percent, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			company_id = excluded.company_id,
			name = excluded.name,
			eligible_from = excluded.eligible_from,
			fte_percent = excluded.fte_percent,
			active = excluded.active`,
		string(e.ID), string(e.CompanyID), e.Name, e.EligibleFrom.String(),
		e.FTEPercent.String(), boolToInt(e.Active), time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *Store) EmployeeByID(ctx context.Context, id ledger.UserID) (ledger.Employee, error) {
	return employeeByID(ctx, s.db, id)
}

func employeeByID(ctx context.Context, db dbtx, id ledger.UserID) (ledger.Employee, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, company_id, name, eligible_from, fte_percent, active
		FROM employees WHERE id = ?`, string(id))
	e, err := scanEmployee(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Employee{}, ledger.ErrEmployeeNotFound
	}
	return e, err
}

func (s *Store) EmployeesByCompany(ctx context.Context, companyID ledger.CompanyID) ([]ledger.Employee, error) {
	return employeesByCompany(ctx, s.db, companyID)
}

func employeesByCompany(ctx context.Context, db dbtx, companyID ledger.CompanyID) ([]ledger.Employee, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, company_id, name, eligible_from, fte_percent, active
		FROM employees WHERE company_id = ? ORDER BY id`, string(companyID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Employee
	for rows.Next() {
		e, err := scanEmployee(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEmployee(scan func(...any) error) (ledger.Employee, error) {
	var (
		e             ledger.Employee
		id, company   string
		eligible, fte string
		active        int
	)
	if err := scan(&id, &company, &e.Name, &eligible, &fte, &active); err != nil {
		return ledger.Employee{}, err
	}
	e.ID = ledger.UserID(id)
	e.CompanyID = ledger.CompanyID(company)
	e.Active = active != 0

	var err error
	if e.EligibleFrom, err = ledger.ParseDate(eligible); err != nil {
		return ledger.Employee{}, err
	}
	if e.FTEPercent, err = decimal.NewFromString(fte); err != nil {
		return ledger.Employee{}, err
	}
	return e, nil
}

// =============================================================================
// GRANT LEDGER
// =============================================================================

func (s *Store) InsertGrant(ctx context.Context, g ledger.Grant) error {
	return insertGrant(ctx, s.db, g)
}

func insertGrant(ctx context.Context, db dbtx, g ledger.Grant) error {
	var expires any
	if g.ExpiresOn != nil {
		expires = g.ExpiresOn.String()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO grants (id, user_id, leave_type_id, policy_id, source, quantity, granted_on, expires_on, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(g.ID), string(g.UserID), string(g.LeaveTypeID), string(g.PolicyID),
		string(g.Source), g.Quantity.String(), g.GrantedOn.String(), expires, g.Note,
		g.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return ledger.ErrDuplicateGrant
		}
		return err
	}
	return nil
}

func (s *Store) GrantByID(ctx context.Context, id ledger.GrantID) (ledger.Grant, error) {
	return grantByID(ctx, s.db, id)
}

func grantByID(ctx context.Context, db dbtx, id ledger.GrantID) (ledger.Grant, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, user_id, leave_type_id, policy_id, source, quantity, granted_on, expires_on, note, created_at
		FROM grants WHERE id = ?`, string(id))
	g, err := scanGrant(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Grant{}, ledger.ErrGrantNotFound
	}
	return g, err
}

func (s *Store) GrantsByUser(ctx context.Context, userID ledger.UserID, leaveTypeID ledger.LeaveTypeID) ([]ledger.Grant, error) {
	return grantsByUser(ctx, s.db, userID, leaveTypeID)
}

func grantsByUser(ctx context.Context, db dbtx, userID ledger.UserID, leaveTypeID ledger.LeaveTypeID) ([]ledger.Grant, error) {
	query := `
		SELECT id, user_id, leave_type_id, policy_id, source, quantity, granted_on, expires_on, note, created_at
		FROM grants WHERE user_id = ?`
	args := []any{string(userID)}
	if leaveTypeID != "" {
		query += ` AND leave_type_id = ?`
		args = append(args, string(leaveTypeID))
	}
	query += ` ORDER BY granted_on, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Grant
	for rows.Next() {
		g, err := scanGrant(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) HasAccrualGrantOn(ctx context.Context, userID ledger.UserID, leaveTypeID ledger.LeaveTypeID, on ledger.Date) (bool, error) {
	return hasAccrualGrantOn(ctx, s.db, userID, leaveTypeID, on)
}

func hasAccrualGrantOn(ctx context.Context, db dbtx, userID ledger.UserID, leaveTypeID ledger.LeaveTypeID, on ledger.Date) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM grants
		WHERE user_id = ? AND leave_type_id = ? AND granted_on = ? AND source = 'accrual'`,
		string(userID), string(leaveTypeID), on.String()).Scan(&n)
	return n > 0, err
}

func scanGrant(scan func(...any) error) (ledger.Grant, error) {
	var (
		g                           ledger.Grant
		id, user, leaveType, policy string
		source, quantity, granted   string
		expires                     sql.NullString
		createdAt                   string
	)
	if err := scan(&id, &user, &leaveType, &policy, &source, &quantity, &granted, &expires, &g.Note, &createdAt); err != nil {
		return ledger.Grant{}, err
	}
	g.ID = ledger.GrantID(id)
	g.UserID = ledger.UserID(user)
	g.LeaveTypeID = ledger.LeaveTypeID(leaveType)
	g.PolicyID = ledger.PolicyID(policy)
	g.Source = ledger.GrantSource(source)

	var err error
	if g.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return ledger.Grant{}, err
	}
	if g.GrantedOn, err = ledger.ParseDate(granted); err != nil {
		return ledger.Grant{}, err
	}
	if expires.Valid {
		d, err := ledger.ParseDate(expires.String)
		if err != nil {
			return ledger.Grant{}, err
		}
		g.ExpiresOn = &d
	}
	if g.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return ledger.Grant{}, err
	}
	return g, nil
}

// =============================================================================
// CONSUMPTION LEDGER
// =============================================================================

func (s *Store) InsertConsumption(ctx context.Context, c ledger.Consumption) error {
	return insertConsumption(ctx, s.db, c)
}

func insertConsumption(ctx context.Context, db dbtx, c ledger.Consumption) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO consumptions (id, grant_id, request_id, quantity, is_hold, consumed_on, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, string(c.GrantID), string(c.RequestID), c.Quantity.String(),
		boolToInt(c.IsHold), c.ConsumedOn.String(), c.Note,
		c.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func (s *Store) ConsumptionsByGrant(ctx context.Context, grantID ledger.GrantID) ([]ledger.Consumption, error) {
	return consumptionsWhere(ctx, s.db, `grant_id = ?`, string(grantID))
}

func (s *Store) ConsumptionsByRequest(ctx context.Context, requestID ledger.RequestID) ([]ledger.Consumption, error) {
	return consumptionsWhere(ctx, s.db, `request_id = ?`, string(requestID))
}

func consumptionsWhere(ctx context.Context, db dbtx, where string, args ...any) ([]ledger.Consumption, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, grant_id, request_id, quantity, is_hold, consumed_on, note, created_at
		FROM consumptions WHERE `+where+` ORDER BY consumed_on, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Consumption
	for rows.Next() {
		var (
			c                    ledger.Consumption
			grant, request       string
			quantity, consumedOn string
			isHold               int
			createdAt            string
		)
		if err := rows.Scan(&c.ID, &grant, &request, &quantity, &isHold, &consumedOn, &c.Note, &createdAt); err != nil {
			return nil, err
		}
		c.GrantID = ledger.GrantID(grant)
		c.RequestID = ledger.RequestID(request)
		c.IsHold = isHold != 0
		if c.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, err
		}
		if c.ConsumedOn, err = ledger.ParseDate(consumedOn); err != nil {
			return nil, err
		}
		if c.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) ConfirmRequest(ctx context.Context, requestID ledger.RequestID) (int, error) {
	return confirmRequest(ctx, s.db, requestID)
}

func confirmRequest(ctx context.Context, db dbtx, requestID ledger.RequestID) (int, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE consumptions SET is_hold = 0 WHERE request_id = ? AND is_hold = 1`,
		string(requestID))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) DeleteRequestConsumptions(ctx context.Context, requestID ledger.RequestID, holdOnly bool) (int, error) {
	return deleteRequestConsumptions(ctx, s.db, requestID, holdOnly)
}

func deleteRequestConsumptions(ctx context.Context, db dbtx, requestID ledger.RequestID, holdOnly bool) (int, error) {
	query := `DELETE FROM consumptions WHERE request_id = ?`
	if holdOnly {
		query += ` AND is_hold = 1`
	}
	res, err := db.ExecContext(ctx, query, string(requestID))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn inside one database transaction. The store mutex
// serializes writers so a concurrent allocation cannot read stale grant
// availability (SQLite is single-writer regardless; the mutex avoids
// SQLITE_BUSY churn).
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ledger.ErrConcurrencyConflict, err)
	}
	if err := fn(&txStore{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ledger.ErrConcurrencyConflict, err)
	}
	return nil
}

// txStore is the transactional view of the store.
type txStore struct {
	tx *sql.Tx
}

func (t *txStore) SavePolicy(ctx context.Context, p ledger.Policy) error {
	return savePolicy(ctx, t.tx, p)
}

func (t *txStore) PolicyByID(ctx context.Context, id ledger.PolicyID) (ledger.Policy, error) {
	return policyByID(ctx, t.tx, id)
}

func (t *txStore) PolicyFor(ctx context.Context, companyID ledger.CompanyID, leaveTypeID ledger.LeaveTypeID) (ledger.Policy, error) {
	return policyFor(ctx, t.tx, companyID, leaveTypeID)
}

func (t *txStore) ActivePolicies(ctx context.Context, companyID ledger.CompanyID) ([]ledger.Policy, error) {
	return activePolicies(ctx, t.tx, companyID)
}

func (t *txStore) SaveEmployee(ctx context.Context, e ledger.Employee) error {
	return saveEmployee(ctx, t.tx, e)
}

func (t *txStore) EmployeeByID(ctx context.Context, id ledger.UserID) (ledger.Employee, error) {
	return employeeByID(ctx, t.tx, id)
}

func (t *txStore) EmployeesByCompany(ctx context.Context, companyID ledger.CompanyID) ([]ledger.Employee, error) {
	return employeesByCompany(ctx, t.tx, companyID)
}

func (t *txStore) InsertGrant(ctx context.Context, g ledger.Grant) error {
	return insertGrant(ctx, t.tx, g)
}

func (t *txStore) GrantByID(ctx context.Context, id ledger.GrantID) (ledger.Grant, error) {
	return grantByID(ctx, t.tx, id)
}

func (t *txStore) GrantsByUser(ctx context.Context, userID ledger.UserID, leaveTypeID ledger.LeaveTypeID) ([]ledger.Grant, error) {
	return grantsByUser(ctx, t.tx, userID, leaveTypeID)
}

func (t *txStore) HasAccrualGrantOn(ctx context.Context, userID ledger.UserID, leaveTypeID ledger.LeaveTypeID, on ledger.Date) (bool, error) {
	return hasAccrualGrantOn(ctx, t.tx, userID, leaveTypeID, on)
}

func (t *txStore) InsertConsumption(ctx context.Context, c ledger.Consumption) error {
	return insertConsumption(ctx, t.tx, c)
}

func (t *txStore) ConsumptionsByGrant(ctx context.Context, grantID ledger.GrantID) ([]ledger.Consumption, error) {
	return consumptionsWhere(ctx, t.tx, `grant_id = ?`, string(grantID))
}

func (t *txStore) ConsumptionsByRequest(ctx context.Context, requestID ledger.RequestID) ([]ledger.Consumption, error) {
	return consumptionsWhere(ctx, t.tx, `request_id = ?`, string(requestID))
}

func (t *txStore) ConfirmRequest(ctx context.Context, requestID ledger.RequestID) (int, error) {
	return confirmRequest(ctx, t.tx, requestID)
}

func (t *txStore) DeleteRequestConsumptions(ctx context.Context, requestID ledger.RequestID, holdOnly bool) (int, error) {
	return deleteRequestConsumptions(ctx, t.tx, requestID, holdOnly)
}

// Nested transactions share the outer one.
func (t *txStore) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return fn(t)
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// Audit exposes the store as a ledger.AuditLog backed by the same
// database file.
func (s *Store) Audit() ledger.AuditLog { return (*auditLog)(s) }

type auditLog Store

func (a *auditLog) Record(ctx context.Context, entry ledger.AuditEntry) error {
	before, err := marshalNullable(entry.Before)
	if err != nil {
		return err
	}
	after, err := marshalNullable(entry.After)
	if err != nil {
		return err
	}
	_, err = a.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, at, action, target_type, target_id, before_json, after_json, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.At.UTC().Format(time.RFC3339), string(entry.Action),
		entry.TargetType, entry.TargetID, before, after, entry.Details)
	return err
}

func (a *auditLog) Query(ctx context.Context, filter ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	query := `SELECT id, at, action, target_type, target_id, before_json, after_json, details FROM audit_log WHERE 1=1`
	var args []any
	if filter.TargetID != "" {
		query += ` AND target_id = ?`
		args = append(args, filter.TargetID)
	}
	if filter.Action != "" {
		query += ` AND action = ?`
		args = append(args, string(filter.Action))
	}
	query += ` ORDER BY at, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.AuditEntry
	for rows.Next() {
		var (
			e             ledger.AuditEntry
			at, action    string
			before, after sql.NullString
		)
		if err := rows.Scan(&e.ID, &at, &action, &e.TargetType, &e.TargetID, &before, &after, &e.Details); err != nil {
			return nil, err
		}
		e.Action = ledger.AuditAction(action)
		if e.At, err = time.Parse(time.RFC3339, at); err != nil {
			return nil, err
		}
		if before.Valid {
			if err := json.Unmarshal([]byte(before.String), &e.Before); err != nil {
				return nil, err
			}
		}
		if after.Valid {
			if err := json.Unmarshal([]byte(after.String), &e.After); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalNullable(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
