/*
handlers.go - HTTP API handlers for the clinic practice engine

PURPOSE:
  Exposes leave administration and treatment execution over REST. Handles
  HTTP request/response, JSON serialization and body validation, and
  delegates to leave.Service and treatment.Service.

ENDPOINTS:
  Employees:
    GET    /api/employees                        List employees
    POST   /api/employees                        Create employee with policy
    GET    /api/employees/{id}                   Employee + policy
    GET    /api/employees/{id}/balances          Balances (?as_of=YYYY-MM-DD)
    GET    /api/employees/{id}/balance-history   Stored snapshots
    GET    /api/employees/{id}/leave-requests    Requests (?status=)
    POST   /api/employees/{id}/leave-requests    Submit request

  Leave requests:
    GET    /api/leave-requests                   List (?status=&vacation_type=&employee_id=)
    GET    /api/leave-requests/{id}              One request
    PUT    /api/leave-requests/{id}              Edit, back to pending
    POST   /api/leave-requests/{id}/approve      Approve
    POST   /api/leave-requests/{id}/reject       Reject

  Treatments:
    GET    /api/treatments/executions            History + lock (?animal_id=&medication=&dosage=)
    POST   /api/treatments/executions            Record execution (409 when locked)

  Other:
    GET    /api/business-days                    Count (?start=&end=)
    GET    /api/audit                            Audit log (?subject_id=&actor_id=&action=)
    GET    /api/scenarios                        List demo scenarios
    POST   /api/scenarios/load                   Reset + load a scenario

SUBMIT RESPONSES:
  201  saved (accepted, accepted_with_unpaid_split)
  200  not saved, outcome unpaid_split_required: resubmit with
       confirm_unpaid_split=true
  400/404/422  rejected, see errors.go

SECURITY NOTE:
  No authentication. Actor and approver IDs are taken from the body.
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/vetclinic/practice-engine/factory"
	"github.com/vetclinic/practice-engine/generic"
	"github.com/vetclinic/practice-engine/leave"
	"github.com/vetclinic/practice-engine/treatment"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence surface beyond the two service stores.
type Store interface {
	generic.AuditLog
	leave.SnapshotStore
	Reset(ctx context.Context) error
}

type Options struct {
	Clock    generic.Clock
	Location *time.Location
	Cooldown time.Duration
	Logger   *zap.Logger
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store         Store
	Leave         *leave.Service
	Treatment     *treatment.Service
	PolicyFactory *factory.PolicyFactory
	Logger        *zap.Logger

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires both services over the given stores.
func NewHandler(store Store, leaves leave.TxStore, executions treatment.TxStore, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = treatment.DefaultCooldown
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		Store:         store,
		Leave:         leave.NewService(leaves, opts.Clock, opts.Location, store, logger),
		Treatment:     treatment.NewService(executions, opts.Clock, opts.Location, opts.Cooldown, store, logger),
		PolicyFactory: factory.NewPolicyFactory(),
		Logger:        logger.Named("api"),
		validate:      v,
	}
}

// decode reads a JSON body into dst and runs its validate tags. On failure
// it writes the response and returns false.
// MaxBodyBytes caps every JSON request body.
const MaxBodyBytes = 1 << 20

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
				Error:   "request body too large",
				Code:    CodeBodyTooLarge,
				Details: map[string]any{"limit_bytes": tooLarge.Limit},
			})
			return false
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid JSON body",
			Code:    CodeInvalidJSON,
			Details: err.Error(),
		})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeError(w, r, err)
		return false
	}
	return true
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Leave.ListEmployees(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Leave.GetEmployee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp))
}

func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}

	policy, err := h.PolicyFactory.FromJSON(req.Policy)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	emp, err := h.Leave.CreateEmployee(r.Context(), leave.Employee{
		ID:     req.ID,
		Name:   strings.TrimSpace(req.Name),
		Email:  req.Email,
		Policy: policy,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(*emp))
}

// GetBalances computes balances today, or on ?as_of=.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	day := h.Leave.Today()
	if s := r.URL.Query().Get("as_of"); s != "" {
		d, err := generic.ParseDate(s)
		if err != nil {
			h.writeError(w, r, &generic.ValidationError{Field: "as_of", Message: "must be YYYY-MM-DD", Err: err})
			return
		}
		day = d
	}

	b, err := h.Leave.BalancesAsOf(r.Context(), id, day)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalancesDTO(id, *b))
}

func (h *Handler) GetBalanceHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Leave.GetEmployee(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	snaps, err := h.Store.ListSnapshots(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]SnapshotDTO, len(snaps))
	for i, s := range snaps {
		dtos[i] = toSnapshotDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// LEAVE REQUEST HANDLERS
// =============================================================================

func (h *Handler) ListEmployeeRequests(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Leave.GetEmployee(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	filter, err := requestFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	filter.EmployeeID = id
	h.listRequests(w, r, filter)
}

func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	filter, err := requestFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	filter.EmployeeID = r.URL.Query().Get("employee_id")
	h.listRequests(w, r, filter)
}

func (h *Handler) listRequests(w http.ResponseWriter, r *http.Request, filter leave.RequestFilter) {
	reqs, err := h.Leave.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]LeaveRequestDTO, len(reqs))
	for i, lr := range reqs {
		dtos[i] = toLeaveRequestDTO(lr)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func requestFilter(r *http.Request) (leave.RequestFilter, error) {
	var f leave.RequestFilter
	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		f.Status = leave.Status(s)
		if !f.Status.Valid() {
			return f, &generic.ValidationError{Field: "status", Message: "must be pending, approved or rejected"}
		}
	}
	if s := q.Get("vacation_type"); s != "" {
		f.VacationType = leave.VacationType(s)
		if !f.VacationType.Valid() {
			return f, &generic.ValidationError{Field: "vacation_type", Message: "must be regular, sick_leave or unpaid_leave"}
		}
	}
	return f, nil
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	lr, err := h.Leave.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(*lr))
}

// SubmitRequest classifies and, when accepted, saves a new request.
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var body SubmitLeaveRequest
	if !h.decode(w, r, &body) {
		return
	}
	start, end, err := parseRange(body.StartDate, body.EndDate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	sub, err := h.Leave.Submit(r.Context(), leave.SubmitInput{
		EmployeeID:         chi.URLParam(r, "id"),
		StartDate:          start,
		EndDate:            end,
		VacationType:       leave.VacationType(body.VacationType),
		MedicalDocument:    body.MedicalDocument,
		Reason:             body.Reason,
		ActorID:            body.ActorID,
		ConfirmUnpaidSplit: body.ConfirmUnpaidSplit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if sub.Saved {
		status = http.StatusCreated
	}
	writeJSON(w, status, toSubmissionDTO(sub))
}

// EditRequest changes a request and puts it back to pending.
func (h *Handler) EditRequest(w http.ResponseWriter, r *http.Request) {
	var body SubmitLeaveRequest
	if !h.decode(w, r, &body) {
		return
	}
	start, end, err := parseRange(body.StartDate, body.EndDate)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	sub, err := h.Leave.Edit(r.Context(), chi.URLParam(r, "id"), leave.EditInput{
		StartDate:          start,
		EndDate:            end,
		VacationType:       leave.VacationType(body.VacationType),
		MedicalDocument:    body.MedicalDocument,
		Reason:             body.Reason,
		ActorID:            body.ActorID,
		ConfirmUnpaidSplit: body.ConfirmUnpaidSplit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionDTO(sub))
}

func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	var body ReviewRequest
	if !h.decode(w, r, &body) {
		return
	}
	lr, err := h.Leave.Approve(r.Context(), chi.URLParam(r, "id"), body.ApproverID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(*lr))
}

func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	var body ReviewRequest
	if !h.decode(w, r, &body) {
		return
	}
	lr, err := h.Leave.Reject(r.Context(), chi.URLParam(r, "id"), body.ApproverID, body.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveRequestDTO(*lr))
}

// BusinessDays counts Sunday-Thursday days in [start, end].
func (h *Handler) BusinessDays(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("start") == "" {
		h.writeError(w, r, generic.Required("start"))
		return
	}
	if q.Get("end") == "" {
		h.writeError(w, r, generic.Required("end"))
		return
	}
	start, end, err := parseRange(q.Get("start"), q.Get("end"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p := generic.Period{Start: start, End: end}
	if err := p.Validate(); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, BusinessDaysDTO{
		Start:        start.String(),
		End:          end.String(),
		BusinessDays: generic.CountBusinessDays(start, end),
		CalendarDays: generic.DaysBetween(start, end) + 1,
	})
}

func parseRange(startStr, endStr string) (generic.Date, generic.Date, error) {
	start, err := generic.ParseDate(startStr)
	if err != nil {
		return generic.Date{}, generic.Date{}, &generic.ValidationError{Field: "start_date", Message: "must be YYYY-MM-DD", Err: err}
	}
	end, err := generic.ParseDate(endStr)
	if err != nil {
		return generic.Date{}, generic.Date{}, &generic.ValidationError{Field: "end_date", Message: "must be YYYY-MM-DD", Err: err}
	}
	return start, end, nil
}

// =============================================================================
// TREATMENT HANDLERS
// =============================================================================

// TreatmentStatus reports an instruction's history and lock state.
func (h *Handler) TreatmentStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := treatment.InstructionKey{
		AnimalID:       q.Get("animal_id"),
		MedicationName: q.Get("medication"),
		Dosage:         q.Get("dosage"),
	}
	st, err := h.Treatment.Status(r.Context(), key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTreatmentStatusDTO(st))
}

// RecordExecution marks an instruction executed. 409 while in cooldown.
func (h *Handler) RecordExecution(w http.ResponseWriter, r *http.Request) {
	var body RecordExecutionRequest
	if !h.decode(w, r, &body) {
		return
	}
	event, err := h.Treatment.Record(r.Context(), treatment.RecordInput{
		AnimalID:       body.AnimalID,
		MedicationName: body.MedicationName,
		Dosage:         body.Dosage,
		ExecutedBy:     body.ExecutedBy,
		ExecutionDate:  body.ExecutionDate,
		ExecutionTime:  body.ExecutionTime,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExecutionDTO(*event))
}

// =============================================================================
// AUDIT
// =============================================================================

func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := generic.AuditFilter{
		SubjectID: q.Get("subject_id"),
		ActorID:   q.Get("actor_id"),
	}
	for _, a := range q["action"] {
		filter.Actions = append(filter.Actions, generic.AuditAction(a))
	}

	entries, err := h.Store.Query(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}
