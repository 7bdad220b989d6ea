/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

INTERFACES IMPLEMENTED:
  leave.TxStore:        employees and leave requests   (via Store.Leaves())
  treatment.TxStore:    treatment executions           (via Store.Executions())
  generic.AuditLog:     append-only audit trail        (Store)
  leave.SnapshotStore:  daily balance snapshots        (Store)

  Leaves() and Executions() are thin views over the same database so that
  each domain gets its own WithTx signature.

KEY TABLES:
  employees:             staff records with their leave policy
  leave_requests:        vacation / sick / unpaid requests
  treatment_executions:  append-only "treatment executed" log
  audit_log:             append-only who-did-what
  balance_snapshots:     one row per employee per day

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE is ever issued against treatment_executions or
  audit_log (Reset excepted).

INDEXES:
  - idx_leave_requests_employee_status: balance history lookup (hot path)
  - idx_executions_key: cooldown check for one instruction
  - idx_snapshots_employee_day: one snapshot per employee per day

CONCURRENCY:
  sync.RWMutex serializes writers; WithTx holds the write lock for the whole
  transaction so a cooldown check and its insert cannot interleave with
  another. Inside a transaction every query goes through the *sql.Tx.

USAGE:
  store, err := sqlite.New("./data/clinic.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  leaves := leave.NewService(store.Leaves(), clock, loc, store, logger)

MIGRATION:
  Schema is auto-migrated on New().
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/vetclinic/practice-engine/generic"
	"github.com/vetclinic/practice-engine/leave"
	"github.com/vetclinic/practice-engine/treatment"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A ":memory:" database exists per connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		hire_date TEXT NOT NULL,
		annual_vacation_days INTEGER NOT NULL,
		sick_leave_days INTEGER NOT NULL,
		vacation_accumulation_years INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		vacation_type TEXT NOT NULL,
		total_days INTEGER NOT NULL,
		unpaid_days INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		medical_document TEXT,
		reason TEXT,
		reviewed_by TEXT,
		reviewed_at TEXT,
		rejection_reason TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leave_requests_employee_status
		ON leave_requests(employee_id, status, start_date);
	CREATE INDEX IF NOT EXISTS idx_leave_requests_status
		ON leave_requests(status);

	-- Append-only. key_* columns hold the normalized instruction key.
	CREATE TABLE IF NOT EXISTS treatment_executions (
		id TEXT PRIMARY KEY,
		animal_id TEXT NOT NULL,
		medication_name TEXT NOT NULL,
		dosage TEXT NOT NULL,
		key_animal TEXT NOT NULL,
		key_medication TEXT NOT NULL,
		key_dosage TEXT NOT NULL,
		executed_by TEXT NOT NULL,
		execution_date TEXT NOT NULL,
		execution_time TEXT NOT NULL,
		executed_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_executions_key
		ON treatment_executions(key_animal, key_medication, key_dosage, executed_at DESC);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		ts TEXT NOT NULL,
		actor_id TEXT,
		action TEXT NOT NULL,
		subject_id TEXT,
		reference TEXT,
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_subject ON audit_log(subject_id, ts);

	CREATE TABLE IF NOT EXISTS balance_snapshots (
		id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		as_of TEXT NOT NULL,
		tenure_years TEXT NOT NULL,
		years_employed INTEGER NOT NULL,
		window_years INTEGER NOT NULL,
		vacation_allowance INTEGER NOT NULL,
		vacation_used INTEGER NOT NULL,
		vacation_remaining INTEGER NOT NULL,
		sick_allowance INTEGER NOT NULL,
		sick_used INTEGER NOT NULL,
		sick_remaining INTEGER NOT NULL,
		taken_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshots_employee_day
		ON balance_snapshots(employee_id, as_of);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Leaves returns the leave.TxStore view.
func (s *Store) Leaves() *LeaveStore { return &LeaveStore{parent: s} }

// Executions returns the treatment.TxStore view.
func (s *Store) Executions() *ExecutionStore { return &ExecutionStore{parent: s} }

// withTx runs fn inside a database transaction under the write lock.
func (s *Store) withTx(ctx context.Context, fn func(q querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// read runs fn against the database under the read lock.
func (s *Store) read(fn func(q querier) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.db)
}

// write runs fn against the database under the write lock.
func (s *Store) write(fn func(q querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.db)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func saveEmployee(ctx context.Context, q querier, emp leave.Employee) error {
	query := `
		INSERT INTO employees (id, name, email, hire_date, annual_vacation_days,
			sick_leave_days, vacation_accumulation_years, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			hire_date = excluded.hire_date,
			annual_vacation_days = excluded.annual_vacation_days,
			sick_leave_days = excluded.sick_leave_days,
			vacation_accumulation_years = excluded.vacation_accumulation_years
	`
	createdAt := emp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := q.ExecContext(ctx, query,
		emp.ID, emp.Name, nullString(emp.Email),
		emp.Policy.HireDate.String(),
		emp.Policy.AnnualVacationDays,
		emp.Policy.SickLeaveDays,
		emp.Policy.VacationAccumulationYears,
		formatTime(createdAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

const employeeColumns = `id, name, email, hire_date, annual_vacation_days,
	sick_leave_days, vacation_accumulation_years, created_at`

func scanEmployee(row scanner) (leave.Employee, error) {
	var (
		emp       leave.Employee
		email     sql.NullString
		hireDate  string
		createdAt string
	)
	err := row.Scan(&emp.ID, &emp.Name, &email, &hireDate,
		&emp.Policy.AnnualVacationDays, &emp.Policy.SickLeaveDays,
		&emp.Policy.VacationAccumulationYears, &createdAt)
	if err != nil {
		return emp, err
	}
	emp.Email = email.String
	emp.Policy.HireDate, err = generic.ParseDate(hireDate)
	if err != nil {
		return emp, fmt.Errorf("employee %s: bad hire_date: %w", emp.ID, err)
	}
	emp.CreatedAt = parseTime(createdAt)
	return emp, nil
}

func getEmployee(ctx context.Context, q querier, id string) (*leave.Employee, error) {
	row := q.QueryRowContext(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = ?", id)
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrEmployeeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load employee: %w", err)
	}
	return &emp, nil
}

func listEmployees(ctx context.Context, q querier) ([]leave.Employee, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+employeeColumns+" FROM employees ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var employees []leave.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

const requestColumns = `id, employee_id, start_date, end_date, vacation_type, total_days,
	unpaid_days, status, medical_document, reason, reviewed_by, reviewed_at,
	rejection_reason, created_at, updated_at`

func insertRequest(ctx context.Context, q querier, r leave.Request) error {
	query := `INSERT INTO leave_requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := q.ExecContext(ctx, query, requestArgs(r)...)
	if err != nil {
		if isForeignKeyError(err) {
			return generic.ErrEmployeeNotFound
		}
		return fmt.Errorf("failed to insert leave request: %w", err)
	}
	return nil
}

func updateRequest(ctx context.Context, q querier, r leave.Request) error {
	query := `
		UPDATE leave_requests SET
			start_date = ?, end_date = ?, vacation_type = ?, total_days = ?,
			unpaid_days = ?, status = ?, medical_document = ?, reason = ?,
			reviewed_by = ?, reviewed_at = ?, rejection_reason = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := q.ExecContext(ctx, query,
		r.StartDate.String(), r.EndDate.String(), string(r.VacationType), r.TotalDays,
		r.UnpaidDays, string(r.Status), nullString(r.MedicalDocument), nullString(r.Reason),
		nullString(r.ReviewedBy), nullTime(r.ReviewedAt), nullString(r.RejectionReason),
		formatTime(r.UpdatedAt), r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update leave request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.ErrRequestNotFound
	}
	return nil
}

func requestArgs(r leave.Request) []any {
	return []any{
		r.ID, r.EmployeeID, r.StartDate.String(), r.EndDate.String(),
		string(r.VacationType), r.TotalDays, r.UnpaidDays, string(r.Status),
		nullString(r.MedicalDocument), nullString(r.Reason),
		nullString(r.ReviewedBy), nullTime(r.ReviewedAt), nullString(r.RejectionReason),
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	}
}

func scanRequest(row scanner) (leave.Request, error) {
	var (
		r                              leave.Request
		start, end, typ, status        string
		medicalDoc, reason, reviewedBy sql.NullString
		reviewedAt, rejection          sql.NullString
		createdAt, updatedAt           string
	)
	err := row.Scan(&r.ID, &r.EmployeeID, &start, &end, &typ, &r.TotalDays,
		&r.UnpaidDays, &status, &medicalDoc, &reason, &reviewedBy, &reviewedAt,
		&rejection, &createdAt, &updatedAt)
	if err != nil {
		return r, err
	}
	if r.StartDate, err = generic.ParseDate(start); err != nil {
		return r, err
	}
	if r.EndDate, err = generic.ParseDate(end); err != nil {
		return r, err
	}
	r.VacationType = leave.VacationType(typ)
	r.Status = leave.Status(status)
	r.MedicalDocument = medicalDoc.String
	r.Reason = reason.String
	r.ReviewedBy = reviewedBy.String
	r.RejectionReason = rejection.String
	if reviewedAt.Valid {
		t := parseTime(reviewedAt.String)
		r.ReviewedAt = &t
	}
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return r, nil
}

func getRequest(ctx context.Context, q querier, id string) (*leave.Request, error) {
	row := q.QueryRowContext(ctx, "SELECT "+requestColumns+" FROM leave_requests WHERE id = ?", id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load leave request: %w", err)
	}
	return &r, nil
}

func listRequests(ctx context.Context, q querier, f leave.RequestFilter) ([]leave.Request, error) {
	var (
		where []string
		args  []any
	)
	if f.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, f.EmployeeID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.VacationType != "" {
		where = append(where, "vacation_type = ?")
		args = append(args, string(f.VacationType))
	}

	query := "SELECT " + requestColumns + " FROM leave_requests"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_date, id"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave requests: %w", err)
	}
	defer rows.Close()

	var requests []leave.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leave request: %w", err)
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// =============================================================================
// LEAVE STORE (leave.TxStore)
// =============================================================================

type LeaveStore struct {
	parent *Store
}

var _ leave.TxStore = (*LeaveStore)(nil)

func (l *LeaveStore) SaveEmployee(ctx context.Context, emp leave.Employee) error {
	return l.parent.write(func(q querier) error { return saveEmployee(ctx, q, emp) })
}

func (l *LeaveStore) GetEmployee(ctx context.Context, id string) (emp *leave.Employee, err error) {
	err = l.parent.read(func(q querier) error {
		emp, err = getEmployee(ctx, q, id)
		return err
	})
	return emp, err
}

func (l *LeaveStore) ListEmployees(ctx context.Context) (emps []leave.Employee, err error) {
	err = l.parent.read(func(q querier) error {
		emps, err = listEmployees(ctx, q)
		return err
	})
	return emps, err
}

func (l *LeaveStore) GetLeaveRequest(ctx context.Context, id string) (r *leave.Request, err error) {
	err = l.parent.read(func(q querier) error {
		r, err = getRequest(ctx, q, id)
		return err
	})
	return r, err
}

func (l *LeaveStore) ListLeaveRequests(ctx context.Context, f leave.RequestFilter) (rs []leave.Request, err error) {
	err = l.parent.read(func(q querier) error {
		rs, err = listRequests(ctx, q, f)
		return err
	})
	return rs, err
}

func (l *LeaveStore) CreateLeaveRequest(ctx context.Context, r leave.Request) error {
	return l.parent.write(func(q querier) error { return insertRequest(ctx, q, r) })
}

func (l *LeaveStore) UpdateLeaveRequest(ctx context.Context, r leave.Request) error {
	return l.parent.write(func(q querier) error { return updateRequest(ctx, q, r) })
}

// WithTx executes fn within a database transaction.
func (l *LeaveStore) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	return l.parent.withTx(ctx, func(q querier) error {
		return fn(&leaveTx{q: q})
	})
}

// leaveTx routes every call through the open transaction.
type leaveTx struct {
	q querier
}

func (t *leaveTx) SaveEmployee(ctx context.Context, emp leave.Employee) error {
	return saveEmployee(ctx, t.q, emp)
}

func (t *leaveTx) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	return getEmployee(ctx, t.q, id)
}

func (t *leaveTx) ListEmployees(ctx context.Context) ([]leave.Employee, error) {
	return listEmployees(ctx, t.q)
}

func (t *leaveTx) GetLeaveRequest(ctx context.Context, id string) (*leave.Request, error) {
	return getRequest(ctx, t.q, id)
}

func (t *leaveTx) ListLeaveRequests(ctx context.Context, f leave.RequestFilter) ([]leave.Request, error) {
	return listRequests(ctx, t.q, f)
}

func (t *leaveTx) CreateLeaveRequest(ctx context.Context, r leave.Request) error {
	return insertRequest(ctx, t.q, r)
}

func (t *leaveTx) UpdateLeaveRequest(ctx context.Context, r leave.Request) error {
	return updateRequest(ctx, t.q, r)
}

// =============================================================================
// TREATMENT EXECUTIONS (treatment.TxStore)
// =============================================================================

const executionColumns = `id, animal_id, medication_name, dosage, executed_by,
	execution_date, execution_time, executed_at, created_at`

func insertExecution(ctx context.Context, q querier, e treatment.ExecutionEvent) error {
	key := e.Key().Normalize()
	query := `
		INSERT INTO treatment_executions (id, animal_id, medication_name, dosage,
			key_animal, key_medication, key_dosage, executed_by,
			execution_date, execution_time, executed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		e.ID, e.AnimalID, e.MedicationName, e.Dosage,
		key.AnimalID, key.MedicationName, key.Dosage, e.ExecutedBy,
		e.ExecutionDate, e.ExecutionTime, formatTime(e.ExecutedAt), formatTime(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution: %w", err)
	}
	return nil
}

func listExecutions(ctx context.Context, q querier, key treatment.InstructionKey) ([]treatment.ExecutionEvent, error) {
	k := key.Normalize()
	rows, err := q.QueryContext(ctx, `
		SELECT `+executionColumns+`
		FROM treatment_executions
		WHERE key_animal = ? AND key_medication = ? AND key_dosage = ?
		ORDER BY executed_at DESC
	`, k.AnimalID, k.MedicationName, k.Dosage)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var events []treatment.ExecutionEvent
	for rows.Next() {
		var (
			e                     treatment.ExecutionEvent
			executedAt, createdAt string
		)
		if err := rows.Scan(&e.ID, &e.AnimalID, &e.MedicationName, &e.Dosage, &e.ExecutedBy,
			&e.ExecutionDate, &e.ExecutionTime, &executedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		e.ExecutedAt = parseTime(executedAt)
		e.CreatedAt = parseTime(createdAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

type ExecutionStore struct {
	parent *Store
}

var _ treatment.TxStore = (*ExecutionStore)(nil)

func (x *ExecutionStore) ListExecutions(ctx context.Context, key treatment.InstructionKey) (events []treatment.ExecutionEvent, err error) {
	err = x.parent.read(func(q querier) error {
		events, err = listExecutions(ctx, q, key)
		return err
	})
	return events, err
}

func (x *ExecutionStore) CreateExecution(ctx context.Context, e treatment.ExecutionEvent) error {
	return x.parent.write(func(q querier) error { return insertExecution(ctx, q, e) })
}

func (x *ExecutionStore) WithTx(ctx context.Context, fn func(treatment.Store) error) error {
	return x.parent.withTx(ctx, func(q querier) error {
		return fn(&executionTx{q: q})
	})
}

type executionTx struct {
	q querier
}

func (t *executionTx) ListExecutions(ctx context.Context, key treatment.InstructionKey) ([]treatment.ExecutionEvent, error) {
	return listExecutions(ctx, t.q, key)
}

func (t *executionTx) CreateExecution(ctx context.Context, e treatment.ExecutionEvent) error {
	return insertExecution(ctx, t.q, e)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Children before parents for the foreign key.
	tables := []string{"leave_requests", "balance_snapshots", "treatment_executions", "audit_log", "employees"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// timeLayout has a fixed-width fraction so stored instants sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
