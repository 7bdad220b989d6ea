package generic

// =============================================================================
// PERIOD - Inclusive civil date range
// =============================================================================

// Period is a closed range of days [Start, End]. A leave request spans one;
// the sick-leave year is another.
type Period struct {
	Start Date
	End   Date
}

// Validate rejects missing endpoints and End before Start.
func (p Period) Validate() error {
	if p.Start.IsZero() {
		return &ValidationError{Field: "start_date", Message: "is required"}
	}
	if p.End.IsZero() {
		return &ValidationError{Field: "end_date", Message: "is required"}
	}
	if p.End.Before(p.Start) {
		return &ValidationError{Field: "end_date", Message: "must not be before start_date", Err: ErrInvalidPeriod}
	}
	return nil
}

// Contains returns true if d is within [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// BusinessDays counts working days of the given week in the period.
func (p Period) BusinessDays(w WorkWeek) int {
	return w.CountBusinessDays(p.Start, p.End)
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// CalendarYear returns Jan 1 - Dec 31 of year.
func CalendarYear(year int) Period {
	return Period{Start: StartOfYear(year), End: EndOfYear(year)}
}
