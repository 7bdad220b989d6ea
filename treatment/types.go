// Package treatment records medication executions for hospitalized animals
// and blocks a repeat execution of the same instruction inside the cooldown
// window.
package treatment

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vetclinic/practice-engine/generic"
)

// ExecutionEvent is one "treatment executed" record. The log is append-only;
// an instruction may have many executions.
type ExecutionEvent struct {
	ID             string
	AnimalID       string
	MedicationName string
	Dosage         string
	ExecutedBy     string

	// ExecutionDate and ExecutionTime are the civil date and time-of-day as
	// entered by staff, interpreted in the clinic's zone.
	ExecutionDate string
	ExecutionTime string

	// ExecutedAt is the combined instant. Set when the event is recorded.
	ExecutedAt time.Time
	CreatedAt  time.Time
}

// Key returns the instruction the event belongs to.
func (e ExecutionEvent) Key() InstructionKey {
	return InstructionKey{AnimalID: e.AnimalID, MedicationName: e.MedicationName, Dosage: e.Dosage}
}

// Instant combines date and time into one instant. A stored ExecutedAt wins.
func (e ExecutionEvent) Instant(loc *time.Location) (time.Time, error) {
	if !e.ExecutedAt.IsZero() {
		return e.ExecutedAt, nil
	}
	return ParseInstant(e.ExecutionDate, e.ExecutionTime, loc)
}

// =============================================================================
// INSTRUCTION KEY
// =============================================================================

// InstructionKey identifies a treatment instruction: which animal, which
// medication, what dosage. Comparison ignores case and surrounding spaces.
type InstructionKey struct {
	AnimalID       string
	MedicationName string
	Dosage         string
}

// Normalize returns the canonical form used for matching and storage.
func (k InstructionKey) Normalize() InstructionKey {
	return InstructionKey{
		AnimalID:       strings.TrimSpace(k.AnimalID),
		MedicationName: normalizeName(k.MedicationName),
		Dosage:         normalizeName(k.Dosage),
	}
}

func (k InstructionKey) Matches(e ExecutionEvent) bool {
	return k.Normalize() == e.Key().Normalize()
}

func (k InstructionKey) Validate() error {
	n := k.Normalize()
	if n.AnimalID == "" {
		return generic.Required("animal_id")
	}
	if n.MedicationName == "" {
		return generic.Required("medication_name")
	}
	if n.Dosage == "" {
		return generic.Required("dosage")
	}
	return nil
}

func (k InstructionKey) String() string {
	n := k.Normalize()
	return n.AnimalID + "/" + n.MedicationName + "/" + n.Dosage
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// =============================================================================
// DATE + TIME PARSING
// =============================================================================

var dateLayouts = []string{generic.DateLayout, "2006-1-2"}

// ParseInstant combines a civil date ("2024-03-05" or "2024-3-5") and a
// time of day ("08:30", "8:30", "08:30:15") into an instant in loc.
// Strings are never compared lexically.
func ParseInstant(date, clock string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	date = strings.TrimSpace(date)
	var day time.Time
	var err error
	for _, layout := range dateLayouts {
		if day, err = time.Parse(layout, date); err == nil {
			break
		}
	}
	if err != nil {
		return time.Time{}, &generic.ValidationError{Field: "execution_date", Message: fmt.Sprintf("invalid date %q", date)}
	}

	h, m, s, err := parseClock(clock)
	if err != nil {
		return time.Time{}, &generic.ValidationError{Field: "execution_time", Message: fmt.Sprintf("invalid time %q", clock)}
	}
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, s, 0, loc), nil
}

func parseClock(clock string) (h, m, s int, err error) {
	parts := strings.Split(strings.TrimSpace(clock), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, 0, 0, fmt.Errorf("want H:MM or H:MM:SS")
	}
	limits := []int{23, 59, 59}
	vals := make([]int, 3)
	for i, p := range parts {
		v, convErr := strconv.Atoi(p)
		if convErr != nil || v < 0 || v > limits[i] {
			return 0, 0, 0, fmt.Errorf("component %d out of range", i)
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], nil
}

// FormatDateTime splits an instant into the date and time strings stored
// on an event.
func FormatDateTime(t time.Time, loc *time.Location) (date, clock string) {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(generic.DateLayout), t.Format("15:04:05")
}
