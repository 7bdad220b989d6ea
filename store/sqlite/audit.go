package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vetclinic/practice-engine/generic"
	"github.com/vetclinic/practice-engine/leave"
)

var (
	_ generic.AuditLog    = (*Store)(nil)
	_ leave.SnapshotStore = (*Store)(nil)
)

// =============================================================================
// AUDIT LOG (generic.AuditLog)
// =============================================================================

// Append adds an audit entry. Append-only.
func (s *Store) Append(ctx context.Context, entry generic.AuditEntry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, ts, actor_id, action, subject_id, reference, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID, formatTime(entry.Timestamp), nullString(entry.ActorID), string(entry.Action),
		nullString(entry.SubjectID), nullString(entry.Reference), string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Query returns entries matching filter, oldest first.
func (s *Store) Query(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if filter.SubjectID != "" {
		where = append(where, "subject_id = ?")
		args = append(args, filter.SubjectID)
	}
	if filter.ActorID != "" {
		where = append(where, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if len(filter.Actions) > 0 {
		marks := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			marks[i] = "?"
			args = append(args, string(a))
		}
		where = append(where, "action IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.From != nil {
		where = append(where, "ts >= ?")
		args = append(args, formatTime(*filter.From))
	}
	if filter.To != nil {
		where = append(where, "ts <= ?")
		args = append(args, formatTime(*filter.To))
	}

	query := "SELECT id, ts, actor_id, action, subject_id, reference, payload_json FROM audit_log"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts, rowid"

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []generic.AuditEntry
	for rows.Next() {
		var (
			e                         generic.AuditEntry
			ts, action                string
			actor, subject, reference sql.NullString
			payload                   sql.NullString
		)
		if err := rows.Scan(&e.ID, &ts, &actor, &action, &subject, &reference, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Timestamp = parseTime(ts)
		e.Action = generic.AuditAction(action)
		e.ActorID = actor.String
		e.SubjectID = subject.String
		e.Reference = reference.String
		if payload.Valid && payload.String != "" && payload.String != "null" {
			if err := json.Unmarshal([]byte(payload.String), &e.Payload); err != nil {
				return nil, fmt.Errorf("failed to decode audit payload: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// BALANCE SNAPSHOTS (leave.SnapshotStore)
// =============================================================================

// SaveSnapshot upserts the employee's snapshot for snap.AsOf.
func (s *Store) SaveSnapshot(ctx context.Context, snap leave.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := snap.Balances
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO balance_snapshots (id, employee_id, as_of, tenure_years, years_employed,
			window_years, vacation_allowance, vacation_used, vacation_remaining,
			sick_allowance, sick_used, sick_remaining, taken_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, as_of) DO UPDATE SET
			id = excluded.id,
			tenure_years = excluded.tenure_years,
			years_employed = excluded.years_employed,
			window_years = excluded.window_years,
			vacation_allowance = excluded.vacation_allowance,
			vacation_used = excluded.vacation_used,
			vacation_remaining = excluded.vacation_remaining,
			sick_allowance = excluded.sick_allowance,
			sick_used = excluded.sick_used,
			sick_remaining = excluded.sick_remaining,
			taken_at = excluded.taken_at
	`,
		snap.ID, snap.EmployeeID, snap.AsOf.String(), b.TenureYears.String(), b.YearsEmployed,
		b.AccumulationWindowYears, b.VacationAllowance, b.VacationUsed, b.VacationRemaining,
		b.SickAllowance, b.SickUsed, b.SickRemaining, formatTime(snap.TakenAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns an employee's snapshots, oldest first.
func (s *Store) ListSnapshots(ctx context.Context, employeeID string) ([]leave.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, employee_id, as_of, tenure_years, years_employed, window_years,
			vacation_allowance, vacation_used, vacation_remaining,
			sick_allowance, sick_used, sick_remaining, taken_at
		FROM balance_snapshots
		WHERE employee_id = ?
		ORDER BY as_of
	`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []leave.Snapshot
	for rows.Next() {
		var (
			snap          leave.Snapshot
			asOf, takenAt string
			tenure        string
		)
		b := &snap.Balances
		if err := rows.Scan(&snap.ID, &snap.EmployeeID, &asOf, &tenure, &b.YearsEmployed,
			&b.AccumulationWindowYears, &b.VacationAllowance, &b.VacationUsed, &b.VacationRemaining,
			&b.SickAllowance, &b.SickUsed, &b.SickRemaining, &takenAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if snap.AsOf, err = generic.ParseDate(asOf); err != nil {
			return nil, fmt.Errorf("snapshot %s: bad as_of: %w", snap.ID, err)
		}
		b.AsOf = snap.AsOf
		b.TenureYears = parseDecimal(tenure)
		snap.TakenAt = parseTime(takenAt)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
