// Package memory provides an in-memory store (for testing/dev) implementing
// the same contracts as store/sqlite.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vetclinic/practice-engine/generic"
	"github.com/vetclinic/practice-engine/leave"
	"github.com/vetclinic/practice-engine/treatment"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Store struct {
	mu         sync.RWMutex
	employees  map[string]leave.Employee
	requests   map[string]leave.Request
	executions []treatment.ExecutionEvent
	audit      []generic.AuditEntry
	snapshots  map[snapshotKey]leave.Snapshot
}

type snapshotKey struct {
	EmployeeID string
	AsOf       string
}

func New() *Store {
	s := &Store{}
	s.reset()
	return s
}

// Reset drops all data.
func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	return nil
}

func (s *Store) reset() {
	s.employees = make(map[string]leave.Employee)
	s.requests = make(map[string]leave.Request)
	s.executions = nil
	s.audit = nil
	s.snapshots = make(map[snapshotKey]leave.Snapshot)
}

// Leaves returns the leave.TxStore view.
func (s *Store) Leaves() *LeaveStore { return &LeaveStore{s: s} }

// Executions returns the treatment.TxStore view.
func (s *Store) Executions() *ExecutionStore { return &ExecutionStore{s: s} }

// =============================================================================
// SNAPSHOT + ROLLBACK
// =============================================================================

// state is a copy of everything a transaction may touch.
type state struct {
	employees  map[string]leave.Employee
	requests   map[string]leave.Request
	executions []treatment.ExecutionEvent
}

func (s *Store) save() state {
	st := state{
		employees:  make(map[string]leave.Employee, len(s.employees)),
		requests:   make(map[string]leave.Request, len(s.requests)),
		executions: append([]treatment.ExecutionEvent{}, s.executions...),
	}
	for k, v := range s.employees {
		st.employees[k] = v
	}
	for k, v := range s.requests {
		st.requests[k] = v
	}
	return st
}

func (s *Store) restore(st state) {
	s.employees = st.employees
	s.requests = st.requests
	s.executions = st.executions
}

// withTx runs fn under the write lock and restores state if fn fails.
func (s *Store) withTx(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := s.save()
	if err := fn(); err != nil {
		s.restore(saved)
		return err
	}
	return nil
}

// =============================================================================
// LOCKED HELPERS - caller holds s.mu
// =============================================================================

func (s *Store) saveEmployeeLocked(emp leave.Employee) {
	s.employees[emp.ID] = emp
}

func (s *Store) getEmployeeLocked(id string) (*leave.Employee, error) {
	emp, ok := s.employees[id]
	if !ok {
		return nil, generic.ErrEmployeeNotFound
	}
	return &emp, nil
}

func (s *Store) listEmployeesLocked() []leave.Employee {
	out := make([]leave.Employee, 0, len(s.employees))
	for _, e := range s.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) getRequestLocked(id string) (*leave.Request, error) {
	r, ok := s.requests[id]
	if !ok {
		return nil, generic.ErrRequestNotFound
	}
	return &r, nil
}

func (s *Store) listRequestsLocked(f leave.RequestFilter) []leave.Request {
	var out []leave.Request
	for _, r := range s.requests {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) createRequestLocked(r leave.Request) error {
	if _, ok := s.employees[r.EmployeeID]; !ok {
		return generic.ErrEmployeeNotFound
	}
	s.requests[r.ID] = r
	return nil
}

func (s *Store) updateRequestLocked(r leave.Request) error {
	if _, ok := s.requests[r.ID]; !ok {
		return generic.ErrRequestNotFound
	}
	s.requests[r.ID] = r
	return nil
}

func (s *Store) listExecutionsLocked(key treatment.InstructionKey) []treatment.ExecutionEvent {
	var out []treatment.ExecutionEvent
	for _, e := range s.executions {
		if key.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// =============================================================================
// LEAVE STORE
// =============================================================================

// LeaveStore implements leave.TxStore.
type LeaveStore struct {
	s *Store
}

var _ leave.TxStore = (*LeaveStore)(nil)

func (l *LeaveStore) SaveEmployee(_ context.Context, emp leave.Employee) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	l.s.saveEmployeeLocked(emp)
	return nil
}

func (l *LeaveStore) GetEmployee(_ context.Context, id string) (*leave.Employee, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	return l.s.getEmployeeLocked(id)
}

func (l *LeaveStore) ListEmployees(_ context.Context) ([]leave.Employee, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	return l.s.listEmployeesLocked(), nil
}

func (l *LeaveStore) GetLeaveRequest(_ context.Context, id string) (*leave.Request, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	return l.s.getRequestLocked(id)
}

func (l *LeaveStore) ListLeaveRequests(_ context.Context, f leave.RequestFilter) ([]leave.Request, error) {
	l.s.mu.RLock()
	defer l.s.mu.RUnlock()
	return l.s.listRequestsLocked(f), nil
}

func (l *LeaveStore) CreateLeaveRequest(_ context.Context, r leave.Request) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.createRequestLocked(r)
}

func (l *LeaveStore) UpdateLeaveRequest(_ context.Context, r leave.Request) error {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	return l.s.updateRequestLocked(r)
}

// WithTx executes fn with exclusive access, rolling back on error.
func (l *LeaveStore) WithTx(_ context.Context, fn func(leave.Store) error) error {
	return l.s.withTx(func() error {
		return fn(&leaveTx{s: l.s})
	})
}

// leaveTx is the view handed to a transaction; the lock is already held.
type leaveTx struct {
	s *Store
}

func (t *leaveTx) SaveEmployee(_ context.Context, emp leave.Employee) error {
	t.s.saveEmployeeLocked(emp)
	return nil
}

func (t *leaveTx) GetEmployee(_ context.Context, id string) (*leave.Employee, error) {
	return t.s.getEmployeeLocked(id)
}

func (t *leaveTx) ListEmployees(_ context.Context) ([]leave.Employee, error) {
	return t.s.listEmployeesLocked(), nil
}

func (t *leaveTx) GetLeaveRequest(_ context.Context, id string) (*leave.Request, error) {
	return t.s.getRequestLocked(id)
}

func (t *leaveTx) ListLeaveRequests(_ context.Context, f leave.RequestFilter) ([]leave.Request, error) {
	return t.s.listRequestsLocked(f), nil
}

func (t *leaveTx) CreateLeaveRequest(_ context.Context, r leave.Request) error {
	return t.s.createRequestLocked(r)
}

func (t *leaveTx) UpdateLeaveRequest(_ context.Context, r leave.Request) error {
	return t.s.updateRequestLocked(r)
}

// =============================================================================
// EXECUTION STORE
// =============================================================================

// ExecutionStore implements treatment.TxStore.
type ExecutionStore struct {
	s *Store
}

var _ treatment.TxStore = (*ExecutionStore)(nil)

func (x *ExecutionStore) ListExecutions(_ context.Context, key treatment.InstructionKey) ([]treatment.ExecutionEvent, error) {
	x.s.mu.RLock()
	defer x.s.mu.RUnlock()
	return x.s.listExecutionsLocked(key), nil
}

func (x *ExecutionStore) CreateExecution(_ context.Context, e treatment.ExecutionEvent) error {
	x.s.mu.Lock()
	defer x.s.mu.Unlock()
	x.s.executions = append(x.s.executions, e)
	return nil
}

func (x *ExecutionStore) WithTx(_ context.Context, fn func(treatment.Store) error) error {
	return x.s.withTx(func() error {
		return fn(&executionTx{s: x.s})
	})
}

type executionTx struct {
	s *Store
}

func (t *executionTx) ListExecutions(_ context.Context, key treatment.InstructionKey) ([]treatment.ExecutionEvent, error) {
	return t.s.listExecutionsLocked(key), nil
}

func (t *executionTx) CreateExecution(_ context.Context, e treatment.ExecutionEvent) error {
	t.s.executions = append(t.s.executions, e)
	return nil
}

// =============================================================================
// AUDIT LOG + SNAPSHOTS
// =============================================================================

var (
	_ generic.AuditLog    = (*Store)(nil)
	_ leave.SnapshotStore = (*Store)(nil)
)

func (s *Store) Append(_ context.Context, entry generic.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
	return nil
}

func (s *Store) Query(_ context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []generic.AuditEntry
	for _, e := range s.audit {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) SaveSnapshot(_ context.Context, snap leave.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshotKey{EmployeeID: snap.EmployeeID, AsOf: snap.AsOf.String()}] = snap
	return nil
}

func (s *Store) ListSnapshots(_ context.Context, employeeID string) ([]leave.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []leave.Snapshot
	for k, v := range s.snapshots {
		if k.EmployeeID == employeeID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AsOf.Before(out[j].AsOf) })
	return out, nil
}
