/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model (leave, treatment) from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request bodies carry `validate` tags checked by go-playground/validator
  before the handler calls the domain layer. Domain rules that depend on
  more than one field (date order, medical document for sick leave) stay
  in the domain.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: PolicyJSON type
*/
package api

import (
	"time"

	"github.com/vetclinic/practice-engine/factory"
	"github.com/vetclinic/practice-engine/generic"
	"github.com/vetclinic/practice-engine/leave"
	"github.com/vetclinic/practice-engine/treatment"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

type EmployeeDTO struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Email     string             `json:"email,omitempty"`
	Policy    factory.PolicyJSON `json:"policy"`
	CreatedAt string             `json:"created_at,omitempty"`
}

type CreateEmployeeRequest struct {
	ID     string             `json:"id" validate:"omitempty,max=64"`
	Name   string             `json:"name" validate:"required,max=200"`
	Email  string             `json:"email" validate:"omitempty,email"`
	Policy factory.PolicyJSON `json:"policy"`
}

// BalancesDTO is the computed leave position of one employee.
type BalancesDTO struct {
	EmployeeID              string `json:"employee_id"`
	AsOf                    string `json:"as_of"`
	TenureYears             string `json:"tenure_years"`
	YearsEmployed           int    `json:"years_employed"`
	AccumulationWindowYears int    `json:"accumulation_window_years"`
	Vacation                struct {
		Allowance int `json:"allowance"`
		Used      int `json:"used"`
		Remaining int `json:"remaining"`
	} `json:"vacation"`
	Sick struct {
		Allowance int `json:"allowance"`
		Used      int `json:"used"`
		Remaining int `json:"remaining"`
	} `json:"sick"`
}

type SnapshotDTO struct {
	ID       string      `json:"id"`
	AsOf     string      `json:"as_of"`
	TakenAt  string      `json:"taken_at"`
	Balances BalancesDTO `json:"balances"`
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

type LeaveRequestDTO struct {
	ID              string `json:"id,omitempty"`
	EmployeeID      string `json:"employee_id"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	VacationType    string `json:"vacation_type"`
	TotalDays       int    `json:"total_days"`
	UnpaidDays      int    `json:"unpaid_days"`
	Status          string `json:"status,omitempty"`
	MedicalDocument string `json:"medical_document,omitempty"`
	Reason          string `json:"reason,omitempty"`
	ReviewedBy      string `json:"reviewed_by,omitempty"`
	ReviewedAt      string `json:"reviewed_at,omitempty"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

// SubmitLeaveRequest is the body of submit and edit.
type SubmitLeaveRequest struct {
	StartDate          string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate            string `json:"end_date" validate:"required,datetime=2006-01-02"`
	VacationType       string `json:"vacation_type" validate:"required,oneof=regular sick_leave unpaid_leave"`
	MedicalDocument    string `json:"medical_document" validate:"max=2048"`
	Reason             string `json:"reason" validate:"max=1000"`
	ActorID            string `json:"actor_id" validate:"max=64"`
	ConfirmUnpaidSplit bool   `json:"confirm_unpaid_split"`
}

type ReviewRequest struct {
	ApproverID string `json:"approver_id" validate:"required,max=64"`
	Reason     string `json:"reason" validate:"max=1000"`
}

type OutcomeDTO struct {
	Kind          string `json:"kind"`
	RequestedDays int    `json:"requested_days"`
	Available     int    `json:"available"`
	ExcessDays    int    `json:"excess_days,omitempty"`
}

// SubmissionDTO answers submit and edit. When Saved is false and the
// outcome is unpaid_split_required, the client resubmits with
// confirm_unpaid_split set.
type SubmissionDTO struct {
	Saved   bool            `json:"saved"`
	Outcome OutcomeDTO      `json:"outcome"`
	Request LeaveRequestDTO `json:"request"`
}

type BusinessDaysDTO struct {
	Start        string `json:"start"`
	End          string `json:"end"`
	BusinessDays int    `json:"business_days"`
	CalendarDays int    `json:"calendar_days"`
}

// =============================================================================
// TREATMENTS
// =============================================================================

type ExecutionDTO struct {
	ID             string `json:"id"`
	AnimalID       string `json:"animal_id"`
	MedicationName string `json:"medication_name"`
	Dosage         string `json:"dosage"`
	ExecutedBy     string `json:"executed_by"`
	ExecutionDate  string `json:"execution_date"`
	ExecutionTime  string `json:"execution_time"`
	ExecutedAt     string `json:"executed_at"`
}

type RecordExecutionRequest struct {
	AnimalID       string `json:"animal_id" validate:"required,max=64"`
	MedicationName string `json:"medication_name" validate:"required,max=200"`
	Dosage         string `json:"dosage" validate:"required,max=100"`
	ExecutedBy     string `json:"executed_by" validate:"required,max=64"`
	ExecutionDate  string `json:"execution_date" validate:"required_with=ExecutionTime"`
	ExecutionTime  string `json:"execution_time" validate:"required_with=ExecutionDate"`
}

// TreatmentStatusDTO is the lock state of one instruction.
type TreatmentStatusDTO struct {
	AnimalID         string         `json:"animal_id"`
	MedicationName   string         `json:"medication_name"`
	Dosage           string         `json:"dosage"`
	Locked           bool           `json:"locked"`
	LastExecutedAt   string         `json:"last_executed_at,omitempty"`
	UnlockAt         string         `json:"unlock_at,omitempty"`
	RemainingSeconds int64          `json:"remaining_seconds,omitempty"`
	Remaining        string         `json:"remaining,omitempty"`
	History          []ExecutionDTO `json:"history"`
}

// =============================================================================
// AUDIT / SCENARIOS / ERRORS
// =============================================================================

type AuditEntryDTO struct {
	ID        string         `json:"id"`
	Timestamp string         `json:"timestamp"`
	ActorID   string         `json:"actor_id,omitempty"`
	Action    string         `json:"action"`
	SubjectID string         `json:"subject_id,omitempty"`
	Reference string         `json:"reference,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

var policyFactory = factory.NewPolicyFactory()

func toEmployeeDTO(e leave.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:        e.ID,
		Name:      e.Name,
		Email:     e.Email,
		Policy:    policyFactory.ToJSON(e.Policy),
		CreatedAt: formatTimestamp(e.CreatedAt),
	}
}

func toBalancesDTO(employeeID string, b leave.Balances) BalancesDTO {
	dto := BalancesDTO{
		EmployeeID:              employeeID,
		AsOf:                    b.AsOf.String(),
		TenureYears:             b.TenureYears.StringFixed(2),
		YearsEmployed:           b.YearsEmployed,
		AccumulationWindowYears: b.AccumulationWindowYears,
	}
	dto.Vacation.Allowance = b.VacationAllowance
	dto.Vacation.Used = b.VacationUsed
	dto.Vacation.Remaining = b.VacationRemaining
	dto.Sick.Allowance = b.SickAllowance
	dto.Sick.Used = b.SickUsed
	dto.Sick.Remaining = b.SickRemaining
	return dto
}

func toSnapshotDTO(s leave.Snapshot) SnapshotDTO {
	return SnapshotDTO{
		ID:       s.ID,
		AsOf:     s.AsOf.String(),
		TakenAt:  formatTimestamp(s.TakenAt),
		Balances: toBalancesDTO(s.EmployeeID, s.Balances),
	}
}

func toLeaveRequestDTO(r leave.Request) LeaveRequestDTO {
	dto := LeaveRequestDTO{
		ID:              r.ID,
		EmployeeID:      r.EmployeeID,
		StartDate:       r.StartDate.String(),
		EndDate:         r.EndDate.String(),
		VacationType:    string(r.VacationType),
		TotalDays:       r.TotalDays,
		UnpaidDays:      r.UnpaidDays,
		Status:          string(r.Status),
		MedicalDocument: r.MedicalDocument,
		Reason:          r.Reason,
		ReviewedBy:      r.ReviewedBy,
		RejectionReason: r.RejectionReason,
		CreatedAt:       formatTimestamp(r.CreatedAt),
		UpdatedAt:       formatTimestamp(r.UpdatedAt),
	}
	if r.ReviewedAt != nil {
		dto.ReviewedAt = formatTimestamp(*r.ReviewedAt)
	}
	return dto
}

func toSubmissionDTO(sub *leave.Submission) SubmissionDTO {
	return SubmissionDTO{
		Saved: sub.Saved,
		Outcome: OutcomeDTO{
			Kind:          string(sub.Outcome.Kind),
			RequestedDays: sub.Outcome.RequestedDays,
			Available:     sub.Outcome.Available,
			ExcessDays:    sub.Outcome.ExcessDays,
		},
		Request: toLeaveRequestDTO(*sub.Request),
	}
}

func toExecutionDTO(e treatment.ExecutionEvent) ExecutionDTO {
	return ExecutionDTO{
		ID:             e.ID,
		AnimalID:       e.AnimalID,
		MedicationName: e.MedicationName,
		Dosage:         e.Dosage,
		ExecutedBy:     e.ExecutedBy,
		ExecutionDate:  e.ExecutionDate,
		ExecutionTime:  e.ExecutionTime,
		ExecutedAt:     formatTimestamp(e.ExecutedAt),
	}
}

func toTreatmentStatusDTO(st *treatment.Status) TreatmentStatusDTO {
	dto := TreatmentStatusDTO{
		AnimalID:       st.Key.AnimalID,
		MedicationName: st.Key.MedicationName,
		Dosage:         st.Key.Dosage,
		Locked:         st.Locked,
		History:        make([]ExecutionDTO, len(st.History)),
	}
	for i, e := range st.History {
		dto.History[i] = toExecutionDTO(e)
	}
	if st.Last != nil {
		dto.LastExecutedAt = formatTimestamp(st.Last.ExecutedAt)
	}
	if st.UnlockAt != nil {
		dto.UnlockAt = formatTimestamp(*st.UnlockAt)
		dto.RemainingSeconds = int64(st.Remaining / time.Second)
		dto.Remaining = st.RemainingText
	}
	return dto
}

func toAuditEntryDTO(e generic.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:        e.ID,
		Timestamp: formatTimestamp(e.Timestamp),
		ActorID:   e.ActorID,
		Action:    string(e.Action),
		SubjectID: e.SubjectID,
		Reference: e.Reference,
		Payload:   e.Payload,
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
