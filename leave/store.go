package leave

import "context"

// RequestFilter selects leave requests. Zero fields match everything.
type RequestFilter struct {
	EmployeeID   string
	Status       Status
	VacationType VacationType
}

func (f RequestFilter) Matches(r Request) bool {
	if f.EmployeeID != "" && r.EmployeeID != f.EmployeeID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.VacationType != "" && r.VacationType != f.VacationType {
		return false
	}
	return true
}

// Store persists employees and their leave requests.
// Lookups of missing records return generic.ErrEmployeeNotFound or
// generic.ErrRequestNotFound.
type Store interface {
	SaveEmployee(ctx context.Context, emp Employee) error
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	ListEmployees(ctx context.Context) ([]Employee, error)

	GetLeaveRequest(ctx context.Context, id string) (*Request, error)
	ListLeaveRequests(ctx context.Context, filter RequestFilter) ([]Request, error)
	CreateLeaveRequest(ctx context.Context, r Request) error
	UpdateLeaveRequest(ctx context.Context, r Request) error
}

// TxStore runs a read-check-write sequence atomically.
// If fn returns an error nothing it wrote is kept.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
