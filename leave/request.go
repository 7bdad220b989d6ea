/*
request.go - Leave request lifecycle

PURPOSE:
  Orchestrates submit / edit / approve / reject on top of the pure balance
  and classification functions, inside a store transaction so the balance
  read and the write cannot interleave with another submission.

REQUEST FLOW:

  Employee submits ──▶ validate ──▶ balances ──▶ classify
                                                   │
                 ┌─────────────────┬───────────────┼─────────────────────┐
                 ▼                 ▼               ▼                     ▼
             accepted      unpaid split      unpaid split            rejected
           (saved, pending)  required        confirmed          (validation or
                           (not saved,    (saved, pending,      sick balance)
                            ask caller)    UnpaidDays set)

  Manager: pending ──▶ approved | rejected
  Edit:    any status ──▶ pending (dates/type changed, TotalDays recomputed)

AUDIT:
  Entries are appended after the transaction commits. An audit failure is
  logged and does not undo the business change.
*/
package leave

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vetclinic/practice-engine/generic"
)

// Service handles the leave request lifecycle.
type Service struct {
	Store    TxStore
	Clock    generic.Clock
	Location *time.Location
	Audit    generic.AuditLog // optional
	Logger   *zap.Logger
}

func NewService(store TxStore, clock generic.Clock, loc *time.Location, audit generic.AuditLog, logger *zap.Logger) *Service {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Store:    store,
		Clock:    clock,
		Location: loc,
		Audit:    audit,
		Logger:   logger.Named("leave.service"),
	}
}

// Today is the civil date of the service clock in the clinic's zone.
func (s *Service) Today() generic.Date {
	return generic.DateIn(s.Clock.Now(), s.Location)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

// CreateEmployee validates the policy and stores the employee.
func (s *Service) CreateEmployee(ctx context.Context, emp Employee) (*Employee, error) {
	if strings.TrimSpace(emp.Name) == "" {
		return nil, generic.Required("name")
	}
	if err := emp.Policy.Validate(); err != nil {
		return nil, err
	}
	if emp.ID == "" {
		emp.ID = generic.NewID("emp")
	}
	emp.CreatedAt = s.Clock.Now().UTC()

	if err := s.Store.SaveEmployee(ctx, emp); err != nil {
		s.Logger.Error("save employee failed", zap.String("employee_id", emp.ID), zap.Error(err))
		return nil, fmt.Errorf("failed to save employee: %w", err)
	}
	s.Logger.Info("employee created", zap.String("employee_id", emp.ID))
	return &emp, nil
}

func (s *Service) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	return s.Store.GetEmployee(ctx, id)
}

func (s *Service) ListEmployees(ctx context.Context) ([]Employee, error) {
	return s.Store.ListEmployees(ctx)
}

// =============================================================================
// BALANCES
// =============================================================================

// Balances computes the employee's balances as of today.
func (s *Service) Balances(ctx context.Context, employeeID string) (*Balances, error) {
	return s.BalancesAsOf(ctx, employeeID, s.Today())
}

// BalancesAsOf computes balances for an arbitrary day.
func (s *Service) BalancesAsOf(ctx context.Context, employeeID string, day generic.Date) (*Balances, error) {
	emp, err := s.Store.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	history, err := s.Store.ListLeaveRequests(ctx, RequestFilter{EmployeeID: employeeID, Status: StatusApproved})
	if err != nil {
		return nil, fmt.Errorf("failed to load leave history: %w", err)
	}
	b := ComputeBalances(emp.Policy, history, day)
	return &b, nil
}

// =============================================================================
// SUBMIT / EDIT
// =============================================================================

type SubmitInput struct {
	EmployeeID      string
	StartDate       generic.Date
	EndDate         generic.Date
	VacationType    VacationType
	MedicalDocument string
	Reason          string
	ActorID         string

	// ConfirmUnpaidSplit accepts a regular request above balance, saving
	// the excess as unpaid days.
	ConfirmUnpaidSplit bool
}

type EditInput struct {
	StartDate          generic.Date
	EndDate            generic.Date
	VacationType       VacationType
	MedicalDocument    string
	Reason             string
	ActorID            string
	ConfirmUnpaidSplit bool
}

// Submission reports what happened to a submit or edit.
// Saved is false when the outcome is unpaid_split_required and the caller
// has not confirmed yet, or when the request was rejected.
type Submission struct {
	Request *Request
	Outcome Outcome
	Saved   bool
}

// Submit classifies a new request and saves it as pending when accepted.
// A rejected outcome is returned together with its error.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Submission, error) {
	s.Logger.Debug("submit leave requested",
		zap.String("employee_id", in.EmployeeID),
		zap.String("vacation_type", string(in.VacationType)),
		zap.String("start_date", in.StartDate.String()),
		zap.String("end_date", in.EndDate.String()),
	)

	req := Request{
		EmployeeID:      in.EmployeeID,
		StartDate:       in.StartDate,
		EndDate:         in.EndDate,
		VacationType:    in.VacationType,
		MedicalDocument: in.MedicalDocument,
		Reason:          in.Reason,
	}
	if err := ValidateRequest(req); err != nil {
		s.Logger.Warn("submit leave validation failed", zap.String("employee_id", in.EmployeeID), zap.Error(err))
		return &Submission{Request: &req, Outcome: Outcome{Kind: OutcomeRejected, Err: err}}, err
	}

	var sub *Submission
	err := s.Store.WithTx(ctx, func(tx Store) error {
		emp, err := tx.GetEmployee(ctx, in.EmployeeID)
		if err != nil {
			return err
		}
		out, err := s.decide(ctx, tx, emp, &req, "", in.ConfirmUnpaidSplit)
		sub = &Submission{Request: &req, Outcome: out}
		if err != nil || out.Kind == OutcomeUnpaidSplitRequired {
			return err
		}

		now := s.Clock.Now().UTC()
		req.ID = generic.NewID("lr")
		req.Status = StatusPending
		req.CreatedAt = now
		req.UpdatedAt = now
		if err := tx.CreateLeaveRequest(ctx, req); err != nil {
			return fmt.Errorf("failed to save leave request: %w", err)
		}
		sub.Saved = true
		return nil
	})
	if err != nil {
		s.logFailure("submit leave", in.EmployeeID, err)
		return sub, err
	}

	s.Logger.Info("submit leave done",
		zap.String("employee_id", in.EmployeeID),
		zap.String("outcome", string(sub.Outcome.Kind)),
		zap.Int("requested_days", sub.Outcome.RequestedDays),
		zap.Int("excess_days", sub.Outcome.ExcessDays),
		zap.Bool("saved", sub.Saved),
	)
	if sub.Saved {
		s.audit(ctx, in.ActorID, generic.AuditRequestSubmitted, req, map[string]any{
			"outcome":     string(sub.Outcome.Kind),
			"total_days":  req.TotalDays,
			"unpaid_days": req.UnpaidDays,
		})
	}
	return sub, nil
}

// Edit changes a request's dates, type or document, recomputes its day
// count, reclassifies it and puts it back to pending.
func (s *Service) Edit(ctx context.Context, id string, in EditInput) (*Submission, error) {
	var sub *Submission
	err := s.Store.WithTx(ctx, func(tx Store) error {
		existing, err := tx.GetLeaveRequest(ctx, id)
		if err != nil {
			return err
		}
		req := *existing
		req.StartDate = in.StartDate
		req.EndDate = in.EndDate
		req.VacationType = in.VacationType
		req.MedicalDocument = in.MedicalDocument
		req.Reason = in.Reason
		req.UnpaidDays = 0

		if err := ValidateRequest(req); err != nil {
			sub = &Submission{Request: &req, Outcome: Outcome{Kind: OutcomeRejected, Err: err}}
			return err
		}
		emp, err := tx.GetEmployee(ctx, req.EmployeeID)
		if err != nil {
			return err
		}
		out, err := s.decide(ctx, tx, emp, &req, req.ID, in.ConfirmUnpaidSplit)
		sub = &Submission{Request: &req, Outcome: out}
		if err != nil || out.Kind == OutcomeUnpaidSplitRequired {
			return err
		}

		req.Status = StatusPending
		req.ReviewedBy = ""
		req.ReviewedAt = nil
		req.RejectionReason = ""
		req.UpdatedAt = s.Clock.Now().UTC()
		if err := tx.UpdateLeaveRequest(ctx, req); err != nil {
			return fmt.Errorf("failed to update leave request: %w", err)
		}
		sub.Saved = true
		return nil
	})
	if err != nil {
		s.logFailure("edit leave", id, err)
		return sub, err
	}
	if sub.Saved {
		s.audit(ctx, in.ActorID, generic.AuditRequestEdited, *sub.Request, map[string]any{
			"outcome":     string(sub.Outcome.Kind),
			"total_days":  sub.Request.TotalDays,
			"unpaid_days": sub.Request.UnpaidDays,
		})
	}
	return sub, nil
}

// decide computes balances (excluding excludeID), classifies req and
// fills TotalDays/UnpaidDays. The returned error is the rejection cause.
func (s *Service) decide(ctx context.Context, tx Store, emp *Employee, req *Request, excludeID string, confirm bool) (Outcome, error) {
	approved, err := tx.ListLeaveRequests(ctx, RequestFilter{EmployeeID: emp.ID, Status: StatusApproved})
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to load leave history: %w", err)
	}
	history := approved[:0:0]
	for _, r := range approved {
		if r.ID != excludeID {
			history = append(history, r)
		}
	}

	b := ComputeBalances(emp.Policy, history, s.Today())
	out := Classify(*req, b)
	req.TotalDays = req.BusinessDays()

	switch out.Kind {
	case OutcomeRejected:
		return out, out.Err
	case OutcomeUnpaidSplitRequired:
		if !confirm {
			return out, nil
		}
		out.Kind = OutcomeAcceptedWithUnpaidSplit
		req.UnpaidDays = out.ExcessDays
	}
	return out, nil
}

// =============================================================================
// APPROVE / REJECT
// =============================================================================

// Approve moves a pending request to approved. Balances are not rechecked;
// an approval that leaves a balance negative is logged and flagged in the audit.
func (s *Service) Approve(ctx context.Context, id, approverID string) (*Request, error) {
	return s.review(ctx, id, approverID, StatusApproved, "")
}

// Reject moves a pending request to rejected.
func (s *Service) Reject(ctx context.Context, id, approverID, reason string) (*Request, error) {
	return s.review(ctx, id, approverID, StatusRejected, reason)
}

func (s *Service) review(ctx context.Context, id, approverID string, to Status, reason string) (*Request, error) {
	if strings.TrimSpace(approverID) == "" {
		return nil, generic.Required("approver_id")
	}

	var (
		updated   Request
		overdrawn *Balances
	)
	err := s.Store.WithTx(ctx, func(tx Store) error {
		req, err := tx.GetLeaveRequest(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return &generic.TransitionError{From: string(req.Status), To: string(to)}
		}
		now := s.Clock.Now().UTC()
		req.Status = to
		req.ReviewedBy = approverID
		req.ReviewedAt = &now
		req.RejectionReason = reason
		req.UpdatedAt = now
		if err := tx.UpdateLeaveRequest(ctx, *req); err != nil {
			return fmt.Errorf("failed to update leave request: %w", err)
		}
		updated = *req
		if to != StatusApproved {
			return nil
		}
		after, err := s.balancesAfter(ctx, tx, req.EmployeeID)
		if err != nil {
			return err
		}
		if after.VacationRemaining < 0 || after.SickRemaining < 0 {
			overdrawn = after
		}
		return nil
	})
	if err != nil {
		s.logFailure("review leave", id, err)
		return nil, err
	}

	payload := map[string]any{"reason": reason}
	if overdrawn != nil {
		// Allowed: the outcome was settled on submit. Flag it for HR.
		s.Logger.Warn("approval overdraws balance",
			zap.String("request_id", id),
			zap.String("employee_id", updated.EmployeeID),
			zap.Int("vacation_remaining", overdrawn.VacationRemaining),
			zap.Int("sick_remaining", overdrawn.SickRemaining),
		)
		payload["overdrawn"] = true
	}

	action := generic.AuditRequestApproved
	if to == StatusRejected {
		action = generic.AuditRequestRejected
	}
	s.audit(ctx, approverID, action, updated, payload)
	s.Logger.Info("review leave done", zap.String("request_id", id), zap.String("status", string(to)))
	return &updated, nil
}

// balancesAfter computes today's balances from the approved history as the
// transaction sees it.
func (s *Service) balancesAfter(ctx context.Context, tx Store, employeeID string) (*Balances, error) {
	emp, err := tx.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	history, err := tx.ListLeaveRequests(ctx, RequestFilter{EmployeeID: employeeID, Status: StatusApproved})
	if err != nil {
		return nil, fmt.Errorf("failed to load leave history: %w", err)
	}
	b := ComputeBalances(emp.Policy, history, s.Today())
	return &b, nil
}

// List returns requests matching filter.
func (s *Service) List(ctx context.Context, filter RequestFilter) ([]Request, error) {
	return s.Store.ListLeaveRequests(ctx, filter)
}

func (s *Service) Get(ctx context.Context, id string) (*Request, error) {
	return s.Store.GetLeaveRequest(ctx, id)
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) audit(ctx context.Context, actorID string, action generic.AuditAction, r Request, payload map[string]any) {
	if s.Audit == nil {
		return
	}
	if actorID == "" {
		actorID = r.EmployeeID
	}
	entry := generic.AuditEntry{
		ID:        generic.NewID("audit"),
		Timestamp: s.Clock.Now().UTC(),
		ActorID:   actorID,
		Action:    action,
		SubjectID: r.EmployeeID,
		Reference: r.ID,
		Payload:   payload,
	}
	if err := s.Audit.Append(ctx, entry); err != nil {
		s.Logger.Warn("audit append failed", zap.String("request_id", r.ID), zap.Error(err))
	}
}

func (s *Service) logFailure(op, subject string, err error) {
	if generic.IsClientError(err) || generic.IsNotFound(err) {
		s.Logger.Warn(op+" refused", zap.String("subject", subject), zap.Error(err))
		return
	}
	s.Logger.Error(op+" failed", zap.String("subject", subject), zap.Error(err))
}
