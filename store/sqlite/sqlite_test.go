package sqlite_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetclinic/practice-engine/generic"
	"github.com/vetclinic/practice-engine/leave"
	"github.com/vetclinic/practice-engine/store/sqlite"
	"github.com/vetclinic/practice-engine/treatment"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func employee(id string) leave.Employee {
	return leave.Employee{
		ID:        id,
		Name:      "Dana " + id,
		Email:     id + "@clinic.example",
		Policy:    leave.StatutoryPolicy(generic.MustParseDate("2022-06-01")),
		CreatedAt: time.Date(2025, time.January, 1, 8, 0, 0, 0, time.UTC),
	}
}

func request(id, employeeID, start, end string, status leave.Status) leave.Request {
	r := leave.Request{
		ID:           id,
		EmployeeID:   employeeID,
		StartDate:    generic.MustParseDate(start),
		EndDate:      generic.MustParseDate(end),
		VacationType: leave.TypeRegular,
		Status:       status,
		CreatedAt:    time.Date(2025, time.January, 2, 8, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2025, time.January, 2, 8, 0, 0, 0, time.UTC),
	}
	r.TotalDays = r.BusinessDays()
	return r
}

// =============================================================================
// EMPLOYEES AND LEAVE REQUESTS
// =============================================================================

func TestLeaveStore_EmployeeRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	leaves := store.Leaves()

	require.NoError(t, leaves.SaveEmployee(ctx, employee("emp-1")))

	got, err := leaves.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "Dana emp-1", got.Name)
	assert.Equal(t, "2022-06-01", got.Policy.HireDate.String())
	assert.Equal(t, 12, got.Policy.AnnualVacationDays)
	assert.Equal(t, 18, got.Policy.SickLeaveDays)
	assert.Equal(t, 3, got.Policy.VacationAccumulationYears)

	_, err = leaves.GetEmployee(ctx, "ghost")
	assert.ErrorIs(t, err, generic.ErrEmployeeNotFound)

	// Upsert keeps one row.
	emp := employee("emp-1")
	emp.Name = "Dana R."
	require.NoError(t, leaves.SaveEmployee(ctx, emp))
	all, err := leaves.ListEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Dana R.", all[0].Name)
}

func TestLeaveStore_RequestsFilterAndUpdate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	leaves := store.Leaves()
	require.NoError(t, leaves.SaveEmployee(ctx, employee("emp-1")))
	require.NoError(t, leaves.SaveEmployee(ctx, employee("emp-2")))

	require.NoError(t, leaves.CreateLeaveRequest(ctx, request("lr-b", "emp-1", "2025-03-02", "2025-03-06", leave.StatusApproved)))
	require.NoError(t, leaves.CreateLeaveRequest(ctx, request("lr-a", "emp-1", "2025-01-05", "2025-01-09", leave.StatusPending)))
	require.NoError(t, leaves.CreateLeaveRequest(ctx, request("lr-c", "emp-2", "2025-02-02", "2025-02-02", leave.StatusApproved)))

	mine, err := leaves.ListLeaveRequests(ctx, leave.RequestFilter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "lr-a", mine[0].ID, "ordered by start date")

	approved, err := leaves.ListLeaveRequests(ctx, leave.RequestFilter{Status: leave.StatusApproved})
	require.NoError(t, err)
	assert.Len(t, approved, 2)

	r, err := leaves.GetLeaveRequest(ctx, "lr-a")
	require.NoError(t, err)
	reviewed := time.Date(2025, time.January, 3, 10, 0, 0, 0, time.UTC)
	r.Status = leave.StatusRejected
	r.ReviewedBy = "manager-1"
	r.ReviewedAt = &reviewed
	r.RejectionReason = "short-staffed"
	require.NoError(t, leaves.UpdateLeaveRequest(ctx, *r))

	got, err := leaves.GetLeaveRequest(ctx, "lr-a")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, got.Status)
	assert.Equal(t, "short-staffed", got.RejectionReason)
	require.NotNil(t, got.ReviewedAt)
	assert.True(t, got.ReviewedAt.Equal(reviewed))
	assert.Equal(t, 5, got.TotalDays)

	missing := request("lr-zzz", "emp-1", "2025-01-05", "2025-01-09", leave.StatusPending)
	assert.ErrorIs(t, leaves.UpdateLeaveRequest(ctx, missing), generic.ErrRequestNotFound)
	_, err = leaves.GetLeaveRequest(ctx, "lr-zzz")
	assert.ErrorIs(t, err, generic.ErrRequestNotFound)
}

func TestLeaveStore_RequestForUnknownEmployee(t *testing.T) {
	store := newTestStore(t)
	err := store.Leaves().CreateLeaveRequest(context.Background(),
		request("lr-1", "ghost", "2025-01-05", "2025-01-09", leave.StatusPending))
	assert.ErrorIs(t, err, generic.ErrEmployeeNotFound)
}

func TestLeaveStore_WithTx_RollbackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	leaves := store.Leaves()
	require.NoError(t, leaves.SaveEmployee(ctx, employee("emp-1")))

	boom := errors.New("boom")
	err := leaves.WithTx(ctx, func(tx leave.Store) error {
		require.NoError(t, tx.CreateLeaveRequest(ctx, request("lr-1", "emp-1", "2025-01-05", "2025-01-09", leave.StatusPending)))
		// Visible inside the transaction.
		rs, err := tx.ListLeaveRequests(ctx, leave.RequestFilter{EmployeeID: "emp-1"})
		require.NoError(t, err)
		require.Len(t, rs, 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	rs, err := leaves.ListLeaveRequests(ctx, leave.RequestFilter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	assert.Empty(t, rs)
}

// =============================================================================
// EXECUTIONS
// =============================================================================

func TestExecutionStore_KeyNormalizedAndLatestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	execs := store.Executions()

	base := time.Date(2024, time.March, 5, 6, 0, 0, 0, time.UTC)
	for i, med := range []string{"Amoxicillin", " amoxicillin", "AMOXICILLIN "} {
		require.NoError(t, execs.CreateExecution(ctx, treatment.ExecutionEvent{
			ID:             "exec-" + string(rune('a'+i)),
			AnimalID:       "dog-7",
			MedicationName: med,
			Dosage:         "250 mg",
			ExecutedBy:     "nurse-1",
			ExecutionDate:  "2024-03-05",
			ExecutionTime:  "08:00",
			ExecutedAt:     base.Add(time.Duration(i) * 5 * time.Hour),
			CreatedAt:      base,
		}))
	}
	require.NoError(t, execs.CreateExecution(ctx, treatment.ExecutionEvent{
		ID: "exec-other", AnimalID: "dog-7", MedicationName: "Meloxicam", Dosage: "1 ml",
		ExecutedBy: "nurse-1", ExecutionDate: "2024-03-05", ExecutionTime: "08:00",
		ExecutedAt: base, CreatedAt: base,
	}))

	got, err := execs.ListExecutions(ctx, treatment.InstructionKey{AnimalID: "dog-7", MedicationName: "amoxicillin", Dosage: "250 MG"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "exec-c", got[0].ID)
	assert.True(t, got[0].ExecutedAt.Equal(base.Add(10*time.Hour)))
	assert.Equal(t, "AMOXICILLIN ", got[0].MedicationName, "original spelling kept")
}

func TestTreatmentService_OnSQLite_ConcurrentRecordsSerialized(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	clock := generic.FixedClock{At: time.Date(2024, time.March, 5, 8, 0, 0, 0, time.UTC)}
	svc := treatment.NewService(store.Executions(), clock, time.UTC, treatment.DefaultCooldown, store, nil)

	in := treatment.RecordInput{AnimalID: "dog-7", MedicationName: "Amoxicillin", Dosage: "250 mg", ExecutedBy: "nurse-1"}

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Record(ctx, in)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, generic.ErrExecutionLocked)
	}
	assert.Equal(t, 1, succeeded)

	done, err := store.Query(ctx, generic.AuditFilter{Actions: []generic.AuditAction{generic.AuditTreatmentDone}})
	require.NoError(t, err)
	assert.Len(t, done, 1)
}

// =============================================================================
// AUDIT AND SNAPSHOTS
// =============================================================================

func TestAuditLog_AppendAndQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)

	entries := []generic.AuditEntry{
		{ID: "a1", Timestamp: t0, ActorID: "emp-1", Action: generic.AuditRequestSubmitted, SubjectID: "emp-1", Reference: "lr-1", Payload: map[string]any{"total_days": 5}},
		{ID: "a2", Timestamp: t0.Add(time.Hour), ActorID: "manager-1", Action: generic.AuditRequestApproved, SubjectID: "emp-1", Reference: "lr-1"},
		{ID: "a3", Timestamp: t0.Add(2 * time.Hour), ActorID: "nurse-1", Action: generic.AuditTreatmentDone, SubjectID: "dog-7/amoxicillin/250 mg"},
	}
	for _, e := range entries {
		require.NoError(t, store.Append(ctx, e))
	}

	got, err := store.Query(ctx, generic.AuditFilter{SubjectID: "emp-1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a1", got[0].ID)
	assert.EqualValues(t, 5, got[0].Payload["total_days"])

	from := t0.Add(30 * time.Minute)
	got, err = store.Query(ctx, generic.AuditFilter{From: &from})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = store.Query(ctx, generic.AuditFilter{Actions: []generic.AuditAction{generic.AuditRequestApproved, generic.AuditTreatmentDone}})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSnapshots_OnePerEmployeePerDay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Leaves().SaveEmployee(ctx, employee("emp-1")))

	day := generic.MustParseDate("2025-06-15")
	emp := employee("emp-1")
	b := leave.ComputeBalances(emp.Policy, nil, day)

	require.NoError(t, store.SaveSnapshot(ctx, leave.Snapshot{ID: "s1", EmployeeID: "emp-1", AsOf: day, Balances: b, TakenAt: time.Now()}))
	b.VacationUsed = 3
	b.VacationRemaining = 33
	require.NoError(t, store.SaveSnapshot(ctx, leave.Snapshot{ID: "s2", EmployeeID: "emp-1", AsOf: day, Balances: b, TakenAt: time.Now()}))
	require.NoError(t, store.SaveSnapshot(ctx, leave.Snapshot{ID: "s3", EmployeeID: "emp-1", AsOf: day.AddDays(1), Balances: b, TakenAt: time.Now()}))

	snaps, err := store.ListSnapshots(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "s2", snaps[0].ID)
	assert.Equal(t, 33, snaps[0].Balances.VacationRemaining)
	assert.True(t, b.TenureYears.Equal(snaps[0].Balances.TenureYears))
}

func TestReset_ClearsEverything(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	leaves := store.Leaves()
	require.NoError(t, leaves.SaveEmployee(ctx, employee("emp-1")))
	require.NoError(t, leaves.CreateLeaveRequest(ctx, request("lr-1", "emp-1", "2025-01-05", "2025-01-09", leave.StatusPending)))
	require.NoError(t, store.Append(ctx, generic.AuditEntry{ID: "a1", Timestamp: time.Now(), Action: generic.AuditRequestSubmitted}))

	require.NoError(t, store.Reset(ctx))

	emps, err := leaves.ListEmployees(ctx)
	require.NoError(t, err)
	assert.Empty(t, emps)
	entries, err := store.Query(ctx, generic.AuditFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// =============================================================================
// SERVICE ON SQLITE
// =============================================================================

func TestLeaveService_OnSQLite_EndToEnd(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	clock := generic.FixedClock{At: time.Date(2025, time.June, 15, 9, 0, 0, 0, time.UTC)}
	svc := leave.NewService(store.Leaves(), clock, time.UTC, store, nil)

	_, err := svc.CreateEmployee(ctx, employee("emp-1"))
	require.NoError(t, err)

	sub, err := svc.Submit(ctx, leave.SubmitInput{
		EmployeeID:   "emp-1",
		StartDate:    generic.MustParseDate("2025-01-05"),
		EndDate:      generic.MustParseDate("2025-01-16"),
		VacationType: leave.TypeRegular,
	})
	require.NoError(t, err)
	_, err = svc.Approve(ctx, sub.Request.ID, "manager-1")
	require.NoError(t, err)

	sub, err = svc.Submit(ctx, leave.SubmitInput{
		EmployeeID:   "emp-1",
		StartDate:    generic.MustParseDate("2025-07-06"),
		EndDate:      generic.MustParseDate("2025-08-16"),
		VacationType: leave.TypeRegular,
	})
	require.NoError(t, err)
	assert.Equal(t, leave.OutcomeUnpaidSplitRequired, sub.Outcome.Kind)
	assert.Equal(t, 4, sub.Outcome.ExcessDays)

	b, err := svc.Balances(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, 26, b.VacationRemaining)

	entries, err := store.Query(ctx, generic.AuditFilter{SubjectID: "emp-1"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
