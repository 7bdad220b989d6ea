package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetclinic/practice-engine/api"
	"github.com/vetclinic/practice-engine/generic"
	"github.com/vetclinic/practice-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var clinic = time.FixedZone("IDT", 3*60*60)

// Sunday 2025-06-15 09:00 clinic time.
var testNow = time.Date(2025, time.June, 15, 9, 0, 0, 0, clinic)

type testEnv struct {
	store   *memory.Store
	handler *api.Handler
	router  *chi.Mux
}

func newEnv(t *testing.T, opts api.RouterOptions) *testEnv {
	t.Helper()
	store := memory.New()
	h := api.NewHandler(store, store.Leaves(), store.Executions(), api.Options{
		Clock:    generic.FixedClock{At: testNow},
		Location: clinic,
		Cooldown: 4 * time.Hour,
	})
	return &testEnv{store: store, handler: h, router: api.NewRouter(h, opts)}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// createEmployee adds emp-1 hired exactly three years before testNow on
// the statutory policy (12 days/year, 3 years, 18 sick days).
func (e *testEnv) createEmployee(t *testing.T) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/employees", map[string]any{
		"id":    "emp-1",
		"name":  "Dana Levi",
		"email": "dana@clinic.example",
		"policy": map[string]any{
			"preset":    "statutory",
			"hire_date": "2022-06-15",
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func leaveBody(start, end, typ string) map[string]any {
	return map[string]any{
		"start_date":       start,
		"end_date":         end,
		"vacation_type":    typ,
		"medical_document": "docs/note.pdf",
		"actor_id":         "emp-1",
	}
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func TestCreateAndGetEmployee(t *testing.T) {
	env := newEnv(t, api.RouterOptions{})
	env.createEmployee(t)

	rec := env.do(t, http.MethodGet, "/api/employees/emp-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	emp := decode[api.EmployeeDTO](t, rec)
	assert.Equal(t, "Dana Levi", emp.Name)
	assert.Equal(t, "2022-06-15", emp.Policy.HireDate)
	require.NotNil(t, emp.Policy.AnnualVacationDays)
	assert.Equal(t, 12, *emp.Policy.AnnualVacationDays)

	rec = env.do(t, http.MethodGet, "/api/employees", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.EmployeeDTO](t, rec), 1)
}

func TestCreateEmployee_Validation(t *testing.T) {
	env := newEnv(t, api.RouterOptions{})

	tests := []struct {
		name  string
		body  any
		code  int
		field string
	}{
		{"missing name", map[string]any{"policy": map[string]any{"preset": "statutory", "hire_date": "2022-06-15"}}, http.StatusBadRequest, "name"},
		{"bad email", map[string]any{"name": "A", "email": "nope", "policy": map[string]any{"preset": "statutory", "hire_date": "2022-06-15"}}, http.StatusBadRequest, "email"},
		{"unknown preset", map[string]any{"name": "A", "policy": map[string]any{"preset": "gold", "hire_date": "2022-06-15"}}, http.StatusBadRequest, "preset"},
		{"missing hire date", map[string]any{"name": "A", "policy": map[string]any{"preset": "statutory"}}, http.StatusBadRequest, "hire_date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/employees", tt.body)
			require.Equal(t, tt.code, rec.Code, rec.Body.String())

			var resp struct {
				Code    string `json:"code"`
				Details []struct {
					Field string `json:"field"`
				} `json:"details"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, api.CodeValidation, resp.Code)
			require.NotEmpty(t, resp.Details)
			assert.Equal(t, tt.field, resp.Details[0].Field)
		})
	}
}

func TestInvalidJSON(t *testing.T) {
	env := newEnv(t, api.RouterOptions{})
	rec := env.do(t, http.MethodPost, "/api/employees", `{"name": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, api.CodeInvalidJSON, decode[api.ErrorResponse](t, rec).Code)
}

func TestOversizedBody_Rejected(t *testing.T) {
	env := newEnv(t, api.RouterOptions{})
	body := `{"name": "` + string(bytes.Repeat([]byte("a"), api.MaxBodyBytes)) + `"}`

	rec := env.do(t, http.MethodPost, "/api/employees", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, api.CodeBodyTooLarge, decode[api.ErrorResponse](t, rec).Code)

	rec = env.do(t, http.MethodGet, "/api/employees", nil)
	assert.Empty(t, decode[[]api.EmployeeDTO](t, rec))
}

func TestGetEmployee_NotFound(t *testing.T) {
	env := newEnv(t, api.RouterOptions{})

	for _, path := range []string{
		"/api/employees/ghost",
		"/api/employees/ghost/balances",
		"/api/employees/ghost/balance-history",
		"/api/employees/ghost/leave-requests",
	} {
		rec := env.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
		assert.Equal(t, api.CodeNotFound, decode[api.ErrorResponse](t, rec).Code, path)
	}
}

// =============================================================================
// BALANCES AND SUBMISSION
// =============================================================================

func TestSubmit_UnpaidSplitFlow(t *testing.T) {
	// GIVEN: allowance 36, one approved 10-day request
	env := newEnv(t, api.RouterOptions{})
	env.createEmployee(t)

	rec := env.do(t, http.MethodPost, "/api/employees/emp-1/leave-requests", leaveBody("2025-05-04", "2025-05-15", "regular"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[api.SubmissionDTO](t, rec)
	assert.Equal(t, 10, first.Request.TotalDays)

	rec = env.do(t, http.MethodPost, "/api/leave-requests/"+first.Request.ID+"/approve", map[string]any{"approver_id": "mgr-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/employees/emp-1/balances", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	b := decode[api.BalancesDTO](t, rec)
	assert.Equal(t, 36, b.Vacation.Allowance)
	assert.Equal(t, 10, b.Vacation.Used)
	assert.Equal(t, 26, b.Vacation.Remaining)
	assert.Equal(t, 3, b.YearsEmployed)

	// WHEN: a 30-day request without confirmation
	body := leaveBody("2025-07-06", "2025-08-14", "regular")
	rec = env.do(t, http.MethodPost, "/api/employees/emp-1/leave-requests", body)

	// THEN: not saved, split required with 4 excess days
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sub := decode[api.SubmissionDTO](t, rec)
	assert.False(t, sub.Saved)
	assert.Equal(t, "unpaid_split_required", sub.Outcome.Kind)
	assert.Equal(t, 30, sub.Outcome.RequestedDays)
	assert.Equal(t, 26, sub.Outcome.Available)
	assert.Equal(t, 4, sub.Outcome.ExcessDays)

	// WHEN: resubmitted with confirmation
	body["confirm_unpaid_split"] = true
	rec = env.do(t, http.MethodPost, "/api/employees/emp-1/leave-requests", body)

	// THEN: saved as one pending record with 4 unpaid days
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sub = decode[api.SubmissionDTO](t, rec)
	assert.True(t, sub.Saved)
	assert.Equal(t, "accepted_with_unpaid_split", sub.Outcome.Kind)
	assert.Equal(t, 30, sub.Request.TotalDays)
	assert.Equal(t, 4, sub.Request.UnpaidDays)
	assert.Equal(t, "pending", sub.Request.Status)

	rec = env.do(t, http.MethodGet, "/api/leave-requests?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.LeaveRequestDTO](t, rec), 1)
}

func TestSubmit_SickLeave(t *testing.T) {
	env := newEnv(t, api.RouterOptions{})
	env.createEmployee(t)

	t.Run("missing medical document", func(t *testing.T) {
		body := leaveBody("2025-06-15", "2025-06-16", "sick_leave")
		delete(body, "medical_document")
		rec := env.do(t, http.MethodPost, "/api/employees/emp-1/leave-requests", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	})

	t.Run("above allowance", func(t *testing.T) {
		// Four full weeks: 20 business days against 18
		rec := env.do(t, http.MethodPost, "/api/employees/emp-1/leave-requests", leaveBody("2025-06-15", "2025-07-10", "sick_leave"))
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

		var resp struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, api.CodeInsufficientBalance, resp.Code)
		assert.Equal(t, "sick", resp.Details["kind"])
		assert.EqualValues(t, 18, resp.Details["available"])
		assert.EqualValues(t, 20, resp.Details["requested"])
	})

	t.Run("within allowance", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/employees/emp-1/leave-requests", leaveBody("2025-06-15", "2025-06-17", "sick_leave"))
		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})
}

func TestSubmit_BodyValidation(t *testing.T) {
	env := newEnv(t, api.RouterOptions{})
	env.createEmployee(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"unknown type", leaveBody("2025-06-15", "2025-06-16", "sabbatical")},
		{"bad date", leaveBody("15/06/2025", "2025-06-16", "regular")},
		{"end before start", leaveBody("2025-06-16", "2025-06-15", "regular")},
		{"only weekend", leaveBody("2025-06-20", "2025-06-21", "regular")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/employees/emp-1/leave-requests", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}

	rec := env.do(t, http.MethodPost, "/api/employees/ghost/leave-requests", leaveBody("2025-06-15", "2025-06-16", "regular"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBalances_AsOf(t *testing.T) {
	env := newEnv(t, api.RouterOptions{})
	env.createEmployee(t)

	// A year after hire: one year employed, window of two years
	rec := env.do(t, http.MethodGet, "/api/employees/emp-1/balances?as_of=2023-06-16", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	b := decode[api.BalancesDTO](t, rec)
	assert.Equal(t, 1, b.YearsEmployed)
	assert.Equal(t, 24, b.Vacation.Allowance)

	rec = env.do(t, http.MethodGet, "/api/employees/emp-1/balances?as_of=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// REVIEW AND EDIT
// =============================================================================

func TestReview(t *testing.T) {
	env := newEnv(t, api.RouterOptions{})
	env.createEmployee(t)

	rec := env.do(t, http.MethodPost, "/api/employees/emp-1/leave-requests", leaveBody("2025-07-06", "2025-07-08", "regular"))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[api.SubmissionDTO](t, rec).Request.ID

	rec = env.do(t, http.MethodPost, "/api/leave-requests/"+id+"/reject", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "approver is required")

	rec = env.do(t, http.MethodPost, "/api/leave-requests/"+id+"/reject", map[string]any{"approver_id": "mgr-1", "reason": "clinic short-staffed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	lr := decode[api.LeaveRequestDTO](t, rec)
	assert.Equal(t, "rejected", lr.Status)
	assert.Equal(t, "mgr-1", lr.ReviewedBy)
	assert.Equal(t, "clinic short-staffed", lr.RejectionReason)
	assert.NotEmpty(t, lr.ReviewedAt)

	rec = env.do(t, http.MethodPost, "/api/leave-requests/"+id+"/approve", map[string]any{"approver_id": "mgr-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, api.CodeInvalidTransition, decode[api.ErrorResponse](t, rec).Code)

	rec = env.do(t, http.MethodPost, "/api/leave-requests/lr-ghost/approve", map[string]any{"approver_id": "mgr-1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEdit_ResetsToPending(t *testing.T) {
	env := newEnv(t, api.RouterOptions{})
	env.createEmployee(t)

	rec := env.do(t, http.MethodPost, "/api/employees/emp-1/leave-requests", leaveBody("2025-07-06", "2025-07-08", "regular"))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[api.SubmissionDTO](t, rec).Request.ID
	rec = env.do(t, http.MethodPost, "/api/leave-requests/"+id+"/approve", map[string]any{"approver_id": "mgr-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	// WHEN: the dates are widened to a full week
	rec = env.do(t, http.MethodPut, "/api/leave-requests/"+id, leaveBody("2025-07-06", "2025-07-12", "regular"))

	// THEN: day count recomputed, back to pending, review cleared
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	sub := decode[api.SubmissionDTO](t, rec)
	assert.True(t, sub.Saved)
	assert.Equal(t, 5, sub.Request.TotalDays)
	assert.Equal(t, "pending", sub.Request.Status)
	assert.Empty(t, sub.Request.ReviewedBy)

	rec = env.do(t, http.MethodGet, "/api/leave-requests/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-07-12", decode[api.LeaveRequestDTO](t, rec).EndDate)
}

func TestListRequests_Filters(t *testing.T) {
	env := newEnv(t, api.RouterOptions{})
	env.createEmployee(t)

	env.do(t, http.MethodPost, "/api/employees/emp-1/leave-requests", leaveBody("2025-07-06", "2025-07-08", "regular"))
	env.do(t, http.MethodPost, "/api/employees/emp-1/leave-requests", leaveBody("2025-07-13", "2025-07-13", "unpaid_leave"))

	rec := env.do(t, http.MethodGet, "/api/employees/emp-1/leave-requests", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.LeaveRequestDTO](t, rec), 2)

	rec = env.do(t, http.MethodGet, "/api/leave-requests?vacation_type=unpaid_leave", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]api.LeaveRequestDTO](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, 0, got[0].UnpaidDays)

	rec = env.do(t, http.MethodGet, "/api/leave-requests?status=cancelled", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// BUSINESS DAYS
// =============================================================================

func TestBusinessDays(t *testing.T) {
	env := newEnv(t, api.RouterOptions{})

	rec := env.do(t, http.MethodGet, "/api/business-days?start=2024-01-07&end=2024-01-13", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[api.BusinessDaysDTO](t, rec)
	assert.Equal(t, 5, got.BusinessDays)
	assert.Equal(t, 7, got.CalendarDays)

	for _, q := range []string{
		"start=2024-01-13&end=2024-01-07",
		"end=2024-01-07",
		"start=2024-01-07",
		"start=2024-1-7x&end=2024-01-13",
	} {
		rec := env.do(t, http.MethodGet, "/api/business-days?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

// =============================================================================
// TREATMENTS
// =============================================================================

func TestTreatment_CooldownEnforced(t *testing.T) {
	env := newEnv(t, api.RouterOptions{})
	body := map[string]any{
		"animal_id":       "dog-7",
		"medication_name": "Amoxicillin",
		"dosage":          "250 mg",
		"executed_by":     "nurse-1",
	}

	rec := env.do(t, http.MethodPost, "/api/treatments/executions", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	exec := decode[api.ExecutionDTO](t, rec)
	assert.Equal(t, "2025-06-15", exec.ExecutionDate)
	assert.Equal(t, "09:00:00", exec.ExecutionTime)

	// Same instruction, different case: locked
	body["medication_name"] = "AMOXICILLIN"
	rec = env.do(t, http.MethodPost, "/api/treatments/executions", body)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	var locked struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &locked))
	assert.Equal(t, api.CodeExecutionLocked, locked.Code)
	assert.Equal(t, "4:00", locked.Details["remaining"])

	// Another dosage is another instruction
	body["dosage"] = "500 mg"
	rec = env.do(t, http.MethodPost, "/api/treatments/executions", body)
	assert.Equal(t, http.StatusCreated, rec.Code)

	q := url.Values{"animal_id": {"dog-7"}, "medication": {"amoxicillin"}, "dosage": {"250 mg"}}
	rec = env.do(t, http.MethodGet, "/api/treatments/executions?"+q.Encode(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[api.TreatmentStatusDTO](t, rec)
	assert.True(t, st.Locked)
	assert.Equal(t, "4:00", st.Remaining)
	assert.EqualValues(t, 4*60*60, st.RemainingSeconds)
	assert.Len(t, st.History, 1)
}

func TestTreatment_DatedRecordsKeepTheGap(t *testing.T) {
	env := newEnv(t, api.RouterOptions{})
	record := func(date, clock string) *httptest.ResponseRecorder {
		return env.do(t, http.MethodPost, "/api/treatments/executions", map[string]any{
			"animal_id": "dog-7", "medication_name": "Amoxicillin", "dosage": "250 mg",
			"executed_by": "nurse-1", "execution_date": date, "execution_time": clock,
		})
	}

	rec := record("2025-06-15", "03:00")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// 30 minutes before the stored dose
	rec = record("2025-06-15", "02:30")
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	var locked struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &locked))
	assert.Equal(t, api.CodeExecutionLocked, locked.Code)
	assert.Equal(t, "3:30", locked.Details["remaining"])
	assert.NotEmpty(t, locked.Details["execution_at"])

	// days ahead of the clock
	rec = record("2025-06-19", "09:00")
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestTreatment_Validation(t *testing.T) {
	env := newEnv(t, api.RouterOptions{})

	rec := env.do(t, http.MethodPost, "/api/treatments/executions", map[string]any{
		"animal_id": "dog-7", "medication_name": "Amoxicillin", "dosage": "250 mg",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "executed_by is required")

	rec = env.do(t, http.MethodPost, "/api/treatments/executions", map[string]any{
		"animal_id": "dog-7", "medication_name": "Amoxicillin", "dosage": "250 mg",
		"executed_by": "nurse-1", "execution_date": "2025-06-15",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "date without time")

	rec = env.do(t, http.MethodPost, "/api/treatments/executions", map[string]any{
		"animal_id": "dog-7", "medication_name": "Amoxicillin", "dosage": "250 mg",
		"executed_by": "nurse-1", "execution_date": "2025-06-15", "execution_time": "25:99",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "bad clock")

	rec = env.do(t, http.MethodGet, "/api/treatments/executions?animal_id=dog-7", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "incomplete key")
}

// =============================================================================
// AUDIT / RATE LIMIT
// =============================================================================

func TestAudit(t *testing.T) {
	env := newEnv(t, api.RouterOptions{})
	env.createEmployee(t)

	rec := env.do(t, http.MethodPost, "/api/employees/emp-1/leave-requests", leaveBody("2025-07-06", "2025-07-08", "regular"))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[api.SubmissionDTO](t, rec).Request.ID
	env.do(t, http.MethodPost, "/api/leave-requests/"+id+"/approve", map[string]any{"approver_id": "mgr-1"})

	rec = env.do(t, http.MethodGet, "/api/audit?subject_id=emp-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]api.AuditEntryDTO](t, rec)
	require.Len(t, entries, 2)
	assert.Equal(t, string(generic.AuditRequestSubmitted), entries[0].Action)
	assert.Equal(t, string(generic.AuditRequestApproved), entries[1].Action)
	assert.Equal(t, "mgr-1", entries[1].ActorID)
	assert.Equal(t, id, entries[1].Reference)

	rec = env.do(t, http.MethodGet, "/api/audit?action=request_approved", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]api.AuditEntryDTO](t, rec), 1)
}

func TestRateLimit(t *testing.T) {
	env := newEnv(t, api.RouterOptions{RateLimit: 0.001, RateBurst: 2})

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/employees", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/employees", nil).Code)

	rec := env.do(t, http.MethodGet, "/api/employees", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, api.CodeRateLimited, decode[api.ErrorResponse](t, rec).Code)

	// health checks are outside /api
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", nil).Code)
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func TestBalanceHistory(t *testing.T) {
	env := newEnv(t, api.RouterOptions{})
	env.createEmployee(t)

	sched := api.NewSnapshotScheduler(env.handler.Leave, env.store, time.Hour, nil)
	assert.Equal(t, 1, sched.RunOnce(context.Background()))
	// same day again replaces the snapshot
	assert.Equal(t, 1, sched.RunOnce(context.Background()))

	rec := env.do(t, http.MethodGet, "/api/employees/emp-1/balance-history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snaps := decode[[]api.SnapshotDTO](t, rec)
	require.Len(t, snaps, 1)
	assert.Equal(t, "2025-06-15", snaps[0].AsOf)
	assert.Equal(t, 36, snaps[0].Balances.Vacation.Remaining)
	assert.Equal(t, 18, snaps[0].Balances.Sick.Remaining)
}

func TestSnapshotScheduler_StartStop(t *testing.T) {
	env := newEnv(t, api.RouterOptions{})

	disabled := api.NewSnapshotScheduler(env.handler.Leave, env.store, 0, nil)
	assert.False(t, disabled.Enabled)
	disabled.Start()
	disabled.Stop()

	sched := api.NewSnapshotScheduler(env.handler.Leave, env.store, time.Hour, nil)
	sched.Start()
	sched.Start()
	sched.Stop()
	sched.Stop()
}
