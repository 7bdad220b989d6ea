package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Civil calendar date (no time-of-day, no zone)
// =============================================================================

// DateLayout is the wire and storage format for civil dates.
const DateLayout = "2006-01-02"

// Date is a calendar day. The wrapped time is always midnight UTC so that
// arithmetic and comparison never see DST or zone offsets.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the civil date of t as observed in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// DateIn returns the civil date of t as observed in loc.
func DateIn(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(t.In(loc))
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

// MustParseDate is for fixtures and tests.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date  { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) AddYears(n int) Date { return Date{Time: d.Time.AddDate(n, 0, 0)} }

// Properties
func (d Date) Year() int             { return d.Time.Year() }
func (d Date) Month() time.Month     { return d.Time.Month() }
func (d Date) Day() int              { return d.Time.Day() }
func (d Date) Weekday() time.Weekday { return d.Time.Weekday() }
func (d Date) IsZero() bool          { return d.Time.IsZero() }
func (d Date) String() string        { return d.Time.Format(DateLayout) }

// DaysBetween returns the signed number of calendar days from -> to.
func DaysBetween(from, to Date) int {
	return int(to.Time.Sub(from.Time).Hours() / 24)
}

func StartOfYear(year int) Date { return NewDate(year, time.January, 1) }
func EndOfYear(year int) Date   { return NewDate(year, time.December, 31) }

// =============================================================================
// CLOCK - Injectable "now"
// =============================================================================

// Clock supplies the current instant. Calculators never read the global clock;
// services receive a Clock so tests can pin time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }

// =============================================================================
// WORK WEEK - Which weekdays count as business days
// =============================================================================

// WorkWeek marks working weekdays, indexed by time.Weekday.
type WorkWeek [7]bool

// SundayToThursday is the clinic's (Israeli) work week: Friday and Saturday off.
var SundayToThursday = WorkWeek{
	time.Sunday:    true,
	time.Monday:    true,
	time.Tuesday:   true,
	time.Wednesday: true,
	time.Thursday:  true,
	time.Friday:    false,
	time.Saturday:  false,
}

func (w WorkWeek) IsWorkday(d Date) bool { return w[d.Weekday()] }

func (w WorkWeek) daysPerWeek() int {
	n := 0
	for _, on := range w {
		if on {
			n++
		}
	}
	return n
}

// CountBusinessDays counts working days in [start, end], both inclusive.
// Returns 0 when end is before start; callers validate ordering first.
func (w WorkWeek) CountBusinessDays(start, end Date) int {
	if end.Before(start) {
		return 0
	}
	total := DaysBetween(start, end) + 1
	count := (total / 7) * w.daysPerWeek()

	// Remainder days start on the same weekday as start.
	rest := total % 7
	for i := 0; i < rest; i++ {
		if w.IsWorkday(start.AddDays(i)) {
			count++
		}
	}
	return count
}

// CountBusinessDays counts Sunday-Thursday days in [start, end], inclusive.
func CountBusinessDays(start, end Date) int {
	return SundayToThursday.CountBusinessDays(start, end)
}
