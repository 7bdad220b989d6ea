/*
store.go - Persistence contracts shared by every domain

PURPOSE:
  Domain packages define their own record stores (leave.Store,
  treatment.Store). What they share is the audit trail: every state change
  (request submitted, approved, treatment executed) is appended here.

APPEND-ONLY CONTRACT:
  The audit log has no Update or Delete. Corrections are new entries.

IMPLEMENTATIONS:
  - store/sqlite: audit_log table
  - store/memory: slice guarded by a mutex
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// AUDIT LOG - Tracks who did what when
// =============================================================================

// AuditEntry records who did what when.
type AuditEntry struct {
	ID        string
	Timestamp time.Time
	ActorID   string // who performed the action
	Action    AuditAction
	SubjectID string // employee ID or instruction key
	Reference string // request ID or execution ID
	Payload   map[string]any
}

type AuditAction string

const (
	AuditRequestSubmitted AuditAction = "request_submitted"
	AuditRequestEdited    AuditAction = "request_edited"
	AuditRequestApproved  AuditAction = "request_approved"
	AuditRequestRejected  AuditAction = "request_rejected"
	AuditTreatmentDone    AuditAction = "treatment_executed"
	AuditTreatmentBlocked AuditAction = "treatment_blocked"
)

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	SubjectID string
	ActorID   string
	Actions   []AuditAction
	From      *time.Time
	To        *time.Time
}

// Matches reports whether e passes every set criterion.
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.SubjectID != "" && e.SubjectID != f.SubjectID {
		return false
	}
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if a == e.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && e.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Timestamp.After(*f.To) {
		return false
	}
	return true
}
