package treatment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vetclinic/practice-engine/generic"
)

// Store persists execution events.
type Store interface {
	// ListExecutions returns every event of the instruction, any order.
	ListExecutions(ctx context.Context, key InstructionKey) ([]ExecutionEvent, error)
	CreateExecution(ctx context.Context, e ExecutionEvent) error
}

// TxStore lets the cooldown check and the insert share one transaction.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

// MaxClockSkew is how far past the service clock a recorded time may lie.
const MaxClockSkew = 5 * time.Minute

// CooldownError is returned when an execution is refused by the guard.
// For a dated record that collides with a stored execution, ExecutionAt is
// set and Remaining is how much the gap falls short of the window.
type CooldownError struct {
	Key            InstructionKey
	LastExecutedAt time.Time
	UnlockAt       time.Time
	Remaining      time.Duration
	ExecutionAt    time.Time
}

func (e *CooldownError) Error() string {
	if !e.ExecutionAt.IsZero() {
		return fmt.Sprintf("%s at %s is within %s of the execution at %s",
			e.Key, e.ExecutionAt.Format(time.RFC3339), FormatRemaining(e.UnlockAt.Sub(e.LastExecutedAt)),
			e.LastExecutedAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("%s executed at %s, locked for %s",
		e.Key, e.LastExecutedAt.Format(time.RFC3339), FormatRemaining(e.Remaining))
}

func (e *CooldownError) Unwrap() error {
	return generic.ErrExecutionLocked
}

// Service records executions and enforces the cooldown authoritatively.
type Service struct {
	Store    TxStore
	Guard    Guard
	Clock    generic.Clock
	Location *time.Location
	Audit    generic.AuditLog // optional
	Logger   *zap.Logger
}

func NewService(store TxStore, clock generic.Clock, loc *time.Location, cooldown time.Duration, audit generic.AuditLog, logger *zap.Logger) *Service {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	guard := NewGuard(cooldown, loc)
	return &Service{
		Store:    store,
		Guard:    guard,
		Clock:    clock,
		Location: guard.Location,
		Audit:    audit,
		Logger:   logger.Named("treatment.service"),
	}
}

// RecordInput describes a "mark as executed" action. Empty date and time
// default to the service clock.
type RecordInput struct {
	AnimalID       string
	MedicationName string
	Dosage         string
	ExecutedBy     string
	ExecutionDate  string
	ExecutionTime  string
}

// Record validates the event, then checks the cooldown and inserts within
// one transaction. The instruction must be unlocked at the service clock and
// the recorded instant must keep the window to every stored execution.
// Either failure yields *CooldownError. Times past the clock are rejected.
func (s *Service) Record(ctx context.Context, in RecordInput) (*ExecutionEvent, error) {
	key := InstructionKey{AnimalID: in.AnimalID, MedicationName: in.MedicationName, Dosage: in.Dosage}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.ExecutedBy) == "" {
		return nil, generic.Required("executed_by")
	}

	now := s.Clock.Now()
	date, clock := in.ExecutionDate, in.ExecutionTime
	if date == "" && clock == "" {
		date, clock = FormatDateTime(now, s.Location)
	}
	at, err := ParseInstant(date, clock, s.Location)
	if err != nil {
		return nil, err
	}
	if at.After(now.Add(MaxClockSkew)) {
		return nil, &generic.ValidationError{Field: "execution_time", Message: "execution cannot be in the future"}
	}

	event := ExecutionEvent{
		ID:             generic.NewID("exec"),
		AnimalID:       strings.TrimSpace(in.AnimalID),
		MedicationName: strings.TrimSpace(in.MedicationName),
		Dosage:         strings.TrimSpace(in.Dosage),
		ExecutedBy:     in.ExecutedBy,
		ExecutionDate:  date,
		ExecutionTime:  clock,
		ExecutedAt:     at,
		CreatedAt:      now.UTC(),
	}

	s.Logger.Debug("record execution requested",
		zap.String("instruction", key.String()),
		zap.Time("executed_at", at),
	)

	var cooldown *CooldownError
	err = s.Store.WithTx(ctx, func(tx Store) error {
		history, err := tx.ListExecutions(ctx, key)
		if err != nil {
			return fmt.Errorf("failed to load execution history: %w", err)
		}
		if lock := s.Guard.Check(history, now); lock.Locked {
			cooldown = &CooldownError{
				Key:            key,
				LastExecutedAt: lock.LastAt,
				UnlockAt:       lock.UnlockAt,
				Remaining:      lock.Remaining,
			}
			return cooldown
		}
		if _, conflictAt, gap, ok := s.Guard.Conflict(history, at); ok {
			cooldown = &CooldownError{
				Key:            key,
				LastExecutedAt: conflictAt,
				UnlockAt:       conflictAt.Add(s.Guard.Window),
				Remaining:      s.Guard.Window - gap,
				ExecutionAt:    at,
			}
			return cooldown
		}
		if err := tx.CreateExecution(ctx, event); err != nil {
			return fmt.Errorf("failed to save execution: %w", err)
		}
		return nil
	})
	if cooldown != nil {
		s.Logger.Warn("record execution blocked",
			zap.String("instruction", key.String()),
			zap.String("remaining", FormatRemaining(cooldown.Remaining)),
		)
		s.audit(ctx, in.ExecutedBy, generic.AuditTreatmentBlocked, key, "", map[string]any{
			"unlock_at": cooldown.UnlockAt.Format(time.RFC3339),
		})
		return nil, cooldown
	}
	if err != nil {
		s.Logger.Error("record execution failed", zap.String("instruction", key.String()), zap.Error(err))
		return nil, err
	}

	s.Logger.Info("record execution done",
		zap.String("execution_id", event.ID),
		zap.String("instruction", key.String()),
	)
	s.audit(ctx, in.ExecutedBy, generic.AuditTreatmentDone, key, event.ID, map[string]any{
		"executed_at": at.Format(time.RFC3339),
	})
	return &event, nil
}

// Status is the lock state of one instruction.
type Status struct {
	Key           InstructionKey
	Locked        bool
	Last          *ExecutionEvent
	UnlockAt      *time.Time
	Remaining     time.Duration
	RemainingText string // H:MM, empty when unlocked
	History       []ExecutionEvent
}

// Status reports the lock state and history (latest first) at the service clock.
func (s *Service) Status(ctx context.Context, key InstructionKey) (*Status, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	history, err := s.Store.ListExecutions(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution history: %w", err)
	}
	SortLatestFirst(history, s.Location)

	lock := s.Guard.Check(history, s.Clock.Now())
	st := &Status{Key: key, Locked: lock.Locked, Last: lock.Last, History: history}
	if lock.Locked {
		unlock := lock.UnlockAt
		st.UnlockAt = &unlock
		st.Remaining = lock.Remaining
		st.RemainingText = FormatRemaining(lock.Remaining)
	}
	return st, nil
}

func (s *Service) audit(ctx context.Context, actorID string, action generic.AuditAction, key InstructionKey, ref string, payload map[string]any) {
	if s.Audit == nil {
		return
	}
	entry := generic.AuditEntry{
		ID:        generic.NewID("audit"),
		Timestamp: s.Clock.Now().UTC(),
		ActorID:   actorID,
		Action:    action,
		SubjectID: key.String(),
		Reference: ref,
		Payload:   payload,
	}
	if err := s.Audit.Append(ctx, entry); err != nil {
		s.Logger.Warn("audit append failed", zap.String("instruction", key.String()), zap.Error(err))
	}
}
