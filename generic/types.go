/*
Package generic provides the domain-agnostic core of the clinic engine.

PURPOSE:
  Calendar and clock primitives shared by the leave and treatment domains.
  Nothing in here knows about vacations or medications; it only knows about
  civil dates, work weeks, periods, and the error taxonomy.

KEY CONCEPTS:
  - Date: a civil calendar day, comparable and zone-free
  - Clock: injectable "now" so every calculation is deterministic in tests
  - WorkWeek: which weekdays are business days (clinic: Sunday-Thursday)
  - Period: inclusive [Start, End] range of dates
  - AuditLog: append-only record of who did what

USAGE:
  days := generic.CountBusinessDays(
      generic.NewDate(2024, time.January, 7),
      generic.NewDate(2024, time.January, 13),
  ) // 5

SEE ALSO:
  - time.go: Date, Clock, WorkWeek
  - period.go: Period
  - errors.go: sentinel and structured errors
  - store.go: audit log contract
*/
package generic

import "github.com/google/uuid"

// NewID returns a prefixed random identifier, e.g. "lr-3f2c...".
func NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
