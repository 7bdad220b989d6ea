/*
balance.go - Vacation and sick-leave balance computation

PURPOSE:
  Answers "how many days does this employee have left?" from the policy and
  the approved request history. Pure functions: today is passed in.

REGULAR VACATION (rolling accumulation):
  yearsEmployed  = floor(daysSinceHire / 365.25)
  windowYears    = min(yearsEmployed + 1, policy.VacationAccumulationYears)
  allowance      = windowYears * policy.AnnualVacationDays
  used           = paid days of approved regular requests starting on or
                   after today - VacationAccumulationYears
  remaining      = allowance - used

  The allowance is scaled by elapsed years (capped at the window). Days are
  not expired oldest-first; there are no per-year buckets.

SICK LEAVE (calendar-year reset):
  used      = days of approved sick requests starting this calendar year
  remaining = policy.SickLeaveDays - used

ONLY APPROVED REQUESTS COUNT:
  Pending and rejected requests never affect a balance. Unpaid leave is
  outside balance accounting altogether.
*/
package leave

import (
	"github.com/shopspring/decimal"

	"github.com/vetclinic/practice-engine/generic"
)

var daysPerYear = decimal.RequireFromString("365.25")

// TenureYears is the exact elapsed tenure in years of 365.25 days.
// Returns zero for hire dates in the future.
func TenureYears(hireDate, today generic.Date) decimal.Decimal {
	days := generic.DaysBetween(hireDate, today)
	if days <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(days)).Div(daysPerYear)
}

// YearsEmployed is TenureYears floored to whole years.
func YearsEmployed(hireDate, today generic.Date) int {
	return int(TenureYears(hireDate, today).Floor().IntPart())
}

// AccumulationWindowYears is how many annual allowances the employee holds.
func AccumulationWindowYears(p Policy, today generic.Date) int {
	years := YearsEmployed(p.HireDate, today) + 1
	if years > p.VacationAccumulationYears {
		return p.VacationAccumulationYears
	}
	return years
}

// Balances is the computed leave position of one employee on one day.
type Balances struct {
	AsOf                    generic.Date
	TenureYears             decimal.Decimal
	YearsEmployed           int
	AccumulationWindowYears int

	VacationAllowance int
	VacationUsed      int
	VacationRemaining int

	SickAllowance int
	SickUsed      int
	SickRemaining int
}

// ComputeBalances derives both balances from policy and history as of today.
func ComputeBalances(p Policy, history []Request, today generic.Date) Balances {
	window := AccumulationWindowYears(p, today)
	allowance := window * p.AnnualVacationDays
	usedVacation := UsedVacationDays(p, history, today)

	usedSick := UsedSickDays(history, today)

	return Balances{
		AsOf:                    today,
		TenureYears:             TenureYears(p.HireDate, today).Round(2),
		YearsEmployed:           YearsEmployed(p.HireDate, today),
		AccumulationWindowYears: window,
		VacationAllowance:       allowance,
		VacationUsed:            usedVacation,
		VacationRemaining:       allowance - usedVacation,
		SickAllowance:           p.SickLeaveDays,
		SickUsed:                usedSick,
		SickRemaining:           p.SickLeaveDays - usedSick,
	}
}

// UsedVacationDays sums paid days of approved regular requests starting
// within the last VacationAccumulationYears years.
func UsedVacationDays(p Policy, history []Request, today generic.Date) int {
	cutoff := today.AddYears(-p.VacationAccumulationYears)
	used := 0
	for _, r := range history {
		if r.Status != StatusApproved || r.VacationType != TypeRegular {
			continue
		}
		if r.StartDate.Before(cutoff) {
			continue
		}
		used += r.PaidDays()
	}
	return used
}

// UsedSickDays sums days of approved sick requests starting in the
// current calendar year.
func UsedSickDays(history []Request, today generic.Date) int {
	year := generic.CalendarYear(today.Year())
	used := 0
	for _, r := range history {
		if r.Status != StatusApproved || r.VacationType != TypeSick {
			continue
		}
		if !year.Contains(r.StartDate) {
			continue
		}
		used += r.BusinessDays()
	}
	return used
}
