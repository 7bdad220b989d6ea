package treatment_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vetclinic/practice-engine/generic"
	"github.com/vetclinic/practice-engine/treatment"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// Fixed +02:00 zone so tests do not depend on the host tz database.
var clinic = time.FixedZone("clinic", 2*60*60)

func at(date, clock string) time.Time {
	t, err := treatment.ParseInstant(date, clock, clinic)
	if err != nil {
		panic(err)
	}
	return t
}

func event(id, date, clock string) treatment.ExecutionEvent {
	return treatment.ExecutionEvent{
		ID:             id,
		AnimalID:       "dog-7",
		MedicationName: "Amoxicillin",
		Dosage:         "250 mg",
		ExecutedBy:     "nurse-1",
		ExecutionDate:  date,
		ExecutionTime:  clock,
	}
}

func guard() treatment.Guard {
	return treatment.NewGuard(treatment.DefaultCooldown, clinic)
}

// =============================================================================
// LOCK DECISION
// =============================================================================

func TestGuard_EmptyHistory_NotLocked(t *testing.T) {
	g := guard()
	now := at("2024-03-05", "12:00")

	assert.False(t, g.IsLocked(nil, now))
	_, locked := g.TimeUntilUnlock(nil, now)
	assert.False(t, locked)
}

func TestGuard_ExecutedJustNow_LockedForFullWindow(t *testing.T) {
	g := guard()
	history := []treatment.ExecutionEvent{event("e1", "2024-03-05", "12:00")}
	now := at("2024-03-05", "12:00")

	require.True(t, g.IsLocked(history, now))
	remaining, locked := g.TimeUntilUnlock(history, now)
	require.True(t, locked)
	assert.Equal(t, 4*time.Hour, remaining)
	assert.Equal(t, "4:00", treatment.FormatRemaining(remaining))
}

func TestGuard_Boundaries(t *testing.T) {
	g := guard()
	history := []treatment.ExecutionEvent{event("e1", "2024-03-05", "08:00")}
	last := at("2024-03-05", "08:00")

	tests := []struct {
		name    string
		elapsed time.Duration
		locked  bool
	}{
		{"one second later", time.Second, true},
		{"3h59m59s later", 3*time.Hour + 59*time.Minute + 59*time.Second, true},
		{"exactly 4h later", 4 * time.Hour, false},
		{"4h and a second later", 4*time.Hour + time.Second, false},
		{"a day later", 24 * time.Hour, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.locked, g.IsLocked(history, last.Add(tt.elapsed)))
		})
	}
}

func TestGuard_LastSecondOfLock_RemainingFlooredToZeroMinutes(t *testing.T) {
	g := guard()
	history := []treatment.ExecutionEvent{event("e1", "2024-03-05", "08:00")}
	now := at("2024-03-05", "11:59:59")

	remaining, locked := g.TimeUntilUnlock(history, now)
	require.True(t, locked)
	assert.Equal(t, time.Second, remaining)
	assert.Equal(t, "0:00", treatment.FormatRemaining(remaining))
}

func TestGuard_LatestChosenByInstantNotString(t *testing.T) {
	// GIVEN: "9:30" sorts after "10:15" as a string
	// THEN: 10:15 is still the latest execution
	g := guard()
	history := []treatment.ExecutionEvent{
		event("late", "2024-03-05", "10:15"),
		event("early", "2024-03-05", "9:30"),
	}
	now := at("2024-03-05", "13:00")

	latest, _, ok := g.Latest(history)
	require.True(t, ok)
	assert.Equal(t, "late", latest.ID)

	remaining, locked := g.TimeUntilUnlock(history, now)
	require.True(t, locked)
	assert.Equal(t, "1:15", treatment.FormatRemaining(remaining))
}

func TestGuard_LatestAcrossDays(t *testing.T) {
	g := guard()
	history := []treatment.ExecutionEvent{
		event("yesterday", "2024-03-04", "23:30"),
		event("today", "2024-3-5", "1:00"),
	}

	latest, _, ok := g.Latest(history)
	require.True(t, ok)
	assert.Equal(t, "today", latest.ID)
	assert.True(t, g.IsLocked(history, at("2024-03-05", "04:59")))
	assert.False(t, g.IsLocked(history, at("2024-03-05", "05:00")))
}

func TestGuard_StoredInstantWinsOverStrings(t *testing.T) {
	g := guard()
	e := event("e1", "garbage", "garbage")
	e.ExecutedAt = at("2024-03-05", "08:00")

	assert.True(t, g.IsLocked([]treatment.ExecutionEvent{e}, at("2024-03-05", "09:00")))
}

func TestGuard_UnparsableEventsIgnored(t *testing.T) {
	g := guard()
	history := []treatment.ExecutionEvent{event("bad", "05/03/2024", "8am")}
	assert.False(t, g.IsLocked(history, at("2024-03-05", "09:00")))
}

func TestGuard_Idempotent(t *testing.T) {
	g := guard()
	history := []treatment.ExecutionEvent{
		event("a", "2024-03-05", "08:00"),
		event("b", "2024-03-05", "10:00"),
	}
	before := append([]treatment.ExecutionEvent{}, history...)
	now := at("2024-03-05", "11:00")

	first := g.Check(history, now)
	second := g.Check(history, now)

	assert.Equal(t, first, second)
	assert.Equal(t, before, history, "input must not be mutated")
}

func TestGuard_CustomWindow(t *testing.T) {
	g := treatment.NewGuard(30*time.Minute, clinic)
	history := []treatment.ExecutionEvent{event("e1", "2024-03-05", "08:00")}

	assert.True(t, g.IsLocked(history, at("2024-03-05", "08:29")))
	assert.False(t, g.IsLocked(history, at("2024-03-05", "08:30")))
}

// =============================================================================
// FORMATTING AND PARSING
// =============================================================================

func TestGuard_Conflict_NearestWithinWindowEitherSide(t *testing.T) {
	g := guard()
	history := []treatment.ExecutionEvent{
		event("e1", "2024-03-05", "03:00"),
		event("e2", "2024-03-05", "09:00"),
		event("bad", "2024-03-05", "nope"),
	}

	e, when, gap, ok := g.Conflict(history, at("2024-03-05", "07:30"))
	require.True(t, ok)
	assert.Equal(t, "e2", e.ID, "09:00 is nearer than 03:00")
	assert.True(t, when.Equal(at("2024-03-05", "09:00")))
	assert.Equal(t, 90*time.Minute, gap)

	e, _, _, ok = g.Conflict(history, at("2024-03-05", "00:30"))
	require.True(t, ok)
	assert.Equal(t, "e1", e.ID)

	_, _, _, ok = g.Conflict(history, at("2024-03-04", "23:00"))
	assert.False(t, ok, "exactly one window before e1")

	_, _, _, ok = g.Conflict(nil, at("2024-03-05", "07:30"))
	assert.False(t, ok)
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{4 * time.Hour, "4:00"},
		{time.Hour + 5*time.Minute + 59*time.Second, "1:05"},
		{59 * time.Second, "0:00"},
		{0, "0:00"},
		{-time.Minute, "0:00"},
		{12*time.Hour + 30*time.Minute, "12:30"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, treatment.FormatRemaining(tt.d))
		})
	}
}

func TestParseInstant(t *testing.T) {
	got, err := treatment.ParseInstant("2024-3-5", "8:05:30", clinic)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 5, 8, 5, 30, 0, clinic), got)

	for _, bad := range [][2]string{
		{"2024-13-01", "08:00"},
		{"2024-03-05", "24:00"},
		{"2024-03-05", "08:60"},
		{"2024-03-05", "8"},
		{"", "08:00"},
	} {
		_, err := treatment.ParseInstant(bad[0], bad[1], clinic)
		assert.ErrorIs(t, err, generic.ErrValidation, "%v", bad)
	}
}

func TestInstructionKey_MatchesIgnoringCaseAndSpaces(t *testing.T) {
	key := treatment.InstructionKey{AnimalID: "dog-7", MedicationName: " amoxicillin ", Dosage: "250  MG"}

	assert.True(t, key.Matches(event("e1", "2024-03-05", "08:00")))

	other := event("e2", "2024-03-05", "08:00")
	other.Dosage = "500 mg"
	assert.False(t, key.Matches(other))

	other = event("e3", "2024-03-05", "08:00")
	other.AnimalID = "cat-2"
	assert.False(t, key.Matches(other))
}

func TestSortLatestFirst(t *testing.T) {
	history := []treatment.ExecutionEvent{
		event("b", "2024-03-05", "9:00"),
		event("c", "2024-03-05", "10:00"),
		event("a", "2024-03-04", "23:00"),
	}
	treatment.SortLatestFirst(history, clinic)

	ids := []string{history[0].ID, history[1].ID, history[2].ID}
	assert.Equal(t, []string{"c", "b", "a"}, ids)
}
