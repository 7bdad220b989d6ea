/*
errors.go - Centralized error types for the clinic engine

PURPOSE:
  All error kinds in one place. Domain packages return these (or wrap them)
  so the API layer can map them with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Validation  - malformed or missing input (date order, medical document)
  2. Balance     - sick leave exceeding what is left (hard stop)
  3. Cooldown    - treatment executed again inside the lock window
  4. Lookup      - unknown employee / request
  5. Workflow    - status transition not allowed

NOTE:
  Regular-vacation overage is NOT an error. It is an outcome that needs
  confirmation (see leave.OutcomeUnpaidSplitRequired).
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of every input validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientBalance is returned when a sick-leave request exceeds
	// the remaining allowance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrExecutionLocked is returned when a treatment is executed again
	// before the cooldown elapsed.
	ErrExecutionLocked = errors.New("execution locked by cooldown")

	ErrEmployeeNotFound = errors.New("employee not found")
	ErrRequestNotFound  = errors.New("leave request not found")

	// ErrInvalidPeriod is returned when a period ends before it starts.
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrInvalidTransition is returned for status changes the workflow forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
	Err     error // optional more specific cause
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + " " + e.Message
}

func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}
	return []error{ErrValidation}
}

// Required is shorthand for a missing mandatory field.
func Required(field string) *ValidationError {
	return &ValidationError{Field: field, Message: "is required"}
}

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	EmployeeID string
	Kind       string // "sick"
	Available  int
	Requested  int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: available %d, requested %d",
		e.Kind, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// TransitionError describes a refused status change.
type TransitionError struct {
	From string
	To   string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move request from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrExecutionLocked) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrRequestNotFound)
}
