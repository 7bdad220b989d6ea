/*
cooldown.go - Re-execution lock for treatment instructions

RULE:
  Find the latest execution of the instruction (by combined date+time
  instant, never by string order). Locked iff now - latest < Window.

      latest              latest + 4h
        │◀──── locked ────▶│◀──── unlocked ────
                           ^ exactly 4h0m0s is unlocked

  Remaining time is shown as H:MM, rounded down to the minute.

  A dated record must also keep the gap to every stored execution:
  Conflict finds the nearest one closer than Window on either side.

PURE:
  The guard reads no clock; now is passed in. Recording with enforcement
  lives in service.go.
*/
package treatment

import (
	"fmt"
	"sort"
	"time"
)

// DefaultCooldown is the minimum gap between executions of one instruction.
const DefaultCooldown = 4 * time.Hour

// Guard decides whether an instruction may be executed again.
type Guard struct {
	Window   time.Duration
	Location *time.Location // zone of ExecutionDate/ExecutionTime strings
}

func NewGuard(window time.Duration, loc *time.Location) Guard {
	if window <= 0 {
		window = DefaultCooldown
	}
	if loc == nil {
		loc = time.UTC
	}
	return Guard{Window: window, Location: loc}
}

// Lock is the guard's verdict for one history at one instant.
type Lock struct {
	Locked    bool
	Last      *ExecutionEvent
	LastAt    time.Time
	UnlockAt  time.Time
	Remaining time.Duration // zero when unlocked
}

// Latest returns the execution with the greatest instant. Events whose
// date/time cannot be parsed are skipped.
func (g Guard) Latest(executions []ExecutionEvent) (ExecutionEvent, time.Time, bool) {
	var (
		latest   ExecutionEvent
		latestAt time.Time
		found    bool
	)
	for _, e := range executions {
		at, err := e.Instant(g.Location)
		if err != nil {
			continue
		}
		if !found || at.After(latestAt) {
			latest, latestAt, found = e, at, true
		}
	}
	return latest, latestAt, found
}

// SortLatestFirst orders executions by instant, newest first.
// Unparsable events sort last.
func SortLatestFirst(executions []ExecutionEvent, loc *time.Location) {
	type timed struct {
		e  ExecutionEvent
		at time.Time
	}
	items := make([]timed, len(executions))
	for i, e := range executions {
		at, _ := e.Instant(loc)
		items[i] = timed{e: e, at: at}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].at.After(items[j].at)
	})
	for i := range items {
		executions[i] = items[i].e
	}
}

// Check evaluates the history against now.
func (g Guard) Check(executions []ExecutionEvent, now time.Time) Lock {
	last, at, ok := g.Latest(executions)
	if !ok {
		return Lock{}
	}
	unlockAt := at.Add(g.Window)
	lock := Lock{Last: &last, LastAt: at, UnlockAt: unlockAt}
	if now.Sub(at) < g.Window {
		lock.Locked = true
		lock.Remaining = unlockAt.Sub(now)
	}
	return lock
}

// Conflict returns the stored execution nearest to at when it lies closer
// than Window on either side, and how close it is.
func (g Guard) Conflict(executions []ExecutionEvent, at time.Time) (ExecutionEvent, time.Time, time.Duration, bool) {
	var (
		nearest   ExecutionEvent
		nearestAt time.Time
		gap       time.Duration
		found     bool
	)
	for _, e := range executions {
		t, err := e.Instant(g.Location)
		if err != nil {
			continue
		}
		d := at.Sub(t)
		if d < 0 {
			d = -d
		}
		if d >= g.Window {
			continue
		}
		if !found || d < gap {
			nearest, nearestAt, gap, found = e, t, d, true
		}
	}
	return nearest, nearestAt, gap, found
}

// IsLocked reports whether a new execution is blocked at now.
func (g Guard) IsLocked(executions []ExecutionEvent, now time.Time) bool {
	return g.Check(executions, now).Locked
}

// TimeUntilUnlock returns the remaining lock and true, or false when unlocked.
func (g Guard) TimeUntilUnlock(executions []ExecutionEvent, now time.Time) (time.Duration, bool) {
	lock := g.Check(executions, now)
	return lock.Remaining, lock.Locked
}

// FormatRemaining renders d as H:MM, flooring to whole minutes.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("%d:%02d", h, m)
}
