package leave

import (
	"strings"

	"github.com/vetclinic/practice-engine/generic"
)

// =============================================================================
// OUTCOMES - Three-way result of checking a request against balances
// =============================================================================

type OutcomeKind string

const (
	// OutcomeAccepted: fits in balance (or is unpaid leave).
	OutcomeAccepted OutcomeKind = "accepted"
	// OutcomeUnpaidSplitRequired: regular request above remaining balance;
	// the caller must confirm before it is saved.
	OutcomeUnpaidSplitRequired OutcomeKind = "unpaid_split_required"
	// OutcomeAcceptedWithUnpaidSplit: the confirmed form of the above.
	OutcomeAcceptedWithUnpaidSplit OutcomeKind = "accepted_with_unpaid_split"
	// OutcomeRejected: validation failure or insufficient sick balance.
	OutcomeRejected OutcomeKind = "rejected"
)

type Outcome struct {
	Kind          OutcomeKind
	RequestedDays int
	Available     int // remaining balance consulted; 0 for unpaid leave
	ExcessDays    int // unpaid part for split outcomes
	Err           error
}

func (o Outcome) Accepted() bool {
	return o.Kind == OutcomeAccepted || o.Kind == OutcomeAcceptedWithUnpaidSplit
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidateRequest checks required fields, date order, and the medical
// document rule. It does not look at balances.
func ValidateRequest(r Request) error {
	if strings.TrimSpace(r.EmployeeID) == "" {
		return generic.Required("employee_id")
	}
	if r.VacationType == "" {
		return generic.Required("vacation_type")
	}
	if !r.VacationType.Valid() {
		return &generic.ValidationError{Field: "vacation_type", Message: "must be regular, sick_leave or unpaid_leave"}
	}
	if err := r.Period().Validate(); err != nil {
		return err
	}
	if r.BusinessDays() == 0 {
		return &generic.ValidationError{Field: "end_date", Message: "range contains no business days"}
	}
	if r.VacationType == TypeSick && strings.TrimSpace(r.MedicalDocument) == "" {
		return &generic.ValidationError{Field: "medical_document", Message: "is required for sick leave"}
	}
	return nil
}

// Classify decides what happens to a request given the employee's balances.
//
//	unpaid_leave: always accepted, balances not consulted
//	sick_leave:   requested > remaining  -> rejected (InsufficientBalanceError)
//	regular:      requested > remaining  -> unpaid split required
func Classify(r Request, b Balances) Outcome {
	if err := ValidateRequest(r); err != nil {
		return Outcome{Kind: OutcomeRejected, Err: err}
	}
	requested := r.BusinessDays()

	switch r.VacationType {
	case TypeUnpaid:
		return Outcome{Kind: OutcomeAccepted, RequestedDays: requested}

	case TypeSick:
		if requested > b.SickRemaining {
			return Outcome{
				Kind:          OutcomeRejected,
				RequestedDays: requested,
				Available:     b.SickRemaining,
				Err: &generic.InsufficientBalanceError{
					EmployeeID: r.EmployeeID,
					Kind:       "sick",
					Available:  b.SickRemaining,
					Requested:  requested,
				},
			}
		}
		return Outcome{Kind: OutcomeAccepted, RequestedDays: requested, Available: b.SickRemaining}

	default: // TypeRegular
		if requested <= b.VacationRemaining {
			return Outcome{Kind: OutcomeAccepted, RequestedDays: requested, Available: b.VacationRemaining}
		}
		// A negative balance cannot make the unpaid part larger than the request.
		available := b.VacationRemaining
		if available < 0 {
			available = 0
		}
		return Outcome{
			Kind:          OutcomeUnpaidSplitRequired,
			RequestedDays: requested,
			Available:     b.VacationRemaining,
			ExcessDays:    requested - available,
		}
	}
}
