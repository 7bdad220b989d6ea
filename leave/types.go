// Package leave implements vacation and sick-leave accounting for clinic staff.
// It computes balances from approved request history and classifies new
// requests as accepted, accepted with an unpaid split, or rejected.
package leave

import (
	"time"

	"github.com/vetclinic/practice-engine/generic"
)

// =============================================================================
// VACATION TYPES AND STATUS
// =============================================================================

type VacationType string

const (
	TypeRegular VacationType = "regular"
	TypeSick    VacationType = "sick_leave"
	TypeUnpaid  VacationType = "unpaid_leave"
)

func (t VacationType) Valid() bool {
	switch t {
	case TypeRegular, TypeSick, TypeUnpaid:
		return true
	}
	return false
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

// Request is one leave record. TotalDays is derived from the date span and
// is recomputed whenever the dates change; it is never set independently.
type Request struct {
	ID           string
	EmployeeID   string
	StartDate    generic.Date
	EndDate      generic.Date
	VacationType VacationType
	TotalDays    int
	// UnpaidDays is the part of a regular request above the remaining
	// balance, accepted after explicit confirmation.
	UnpaidDays      int
	Status          Status
	MedicalDocument string // required for sick leave (document reference/URL)
	Reason          string

	ReviewedBy      string
	ReviewedAt      *time.Time
	RejectionReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r Request) Period() generic.Period {
	return generic.Period{Start: r.StartDate, End: r.EndDate}
}

// BusinessDays recomputes the derived day count from the dates.
func (r Request) BusinessDays() int {
	return r.Period().BusinessDays(generic.SundayToThursday)
}

// PaidDays is the part of the request counted against paid balance,
// recomputed from the dates. Unpaid leave has none.
func (r Request) PaidDays() int {
	if r.VacationType == TypeUnpaid {
		return 0
	}
	if paid := r.BusinessDays() - r.UnpaidDays; paid > 0 {
		return paid
	}
	return 0
}

// =============================================================================
// EMPLOYEE AND POLICY
// =============================================================================

// Policy is the per-employee leave configuration. Read-only for the engine.
type Policy struct {
	HireDate                  generic.Date
	AnnualVacationDays        int
	SickLeaveDays             int
	VacationAccumulationYears int
}

// Validate checks the policy can drive balance arithmetic.
func (p Policy) Validate() error {
	if p.HireDate.IsZero() {
		return generic.Required("hire_date")
	}
	if p.AnnualVacationDays < 0 {
		return &generic.ValidationError{Field: "annual_vacation_days", Message: "must not be negative"}
	}
	if p.SickLeaveDays < 0 {
		return &generic.ValidationError{Field: "sick_leave_days", Message: "must not be negative"}
	}
	if p.VacationAccumulationYears < 1 {
		return &generic.ValidationError{Field: "vacation_accumulation_years", Message: "must be at least 1"}
	}
	return nil
}

type Employee struct {
	ID        string
	Name      string
	Email     string
	Policy    Policy
	CreatedAt time.Time
}
