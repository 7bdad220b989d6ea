package leave

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vetclinic/practice-engine/generic"
)

// Snapshot is a persisted copy of an employee's balances on one day.
// There is at most one snapshot per employee per AsOf day; a later one
// replaces it.
type Snapshot struct {
	ID         string
	EmployeeID string
	AsOf       generic.Date
	Balances   Balances
	TakenAt    time.Time
}

type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	// ListSnapshots returns an employee's snapshots, oldest first.
	ListSnapshots(ctx context.Context, employeeID string) ([]Snapshot, error)
}

// TakeSnapshots stores today's balances for every employee and returns how
// many were written. It keeps going past individual failures.
func (s *Service) TakeSnapshots(ctx context.Context, store SnapshotStore) (int, error) {
	employees, err := s.Store.ListEmployees(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list employees: %w", err)
	}

	day := s.Today()
	now := s.Clock.Now().UTC()
	written := 0
	var firstErr error
	for _, emp := range employees {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		b, err := s.BalancesAsOf(ctx, emp.ID, day)
		if err == nil {
			err = store.SaveSnapshot(ctx, Snapshot{
				ID:         generic.NewID("snap"),
				EmployeeID: emp.ID,
				AsOf:       day,
				Balances:   *b,
				TakenAt:    now,
			})
		}
		if err != nil {
			s.Logger.Error("snapshot failed", zap.String("employee_id", emp.ID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		written++
	}
	return written, firstErr
}
