package leave

import "github.com/vetclinic/practice-engine/generic"

// Preset names understood by the policy factory.
const (
	PresetStatutory = "statutory"
	PresetSenior    = "senior"
)

// StatutoryPolicy is the clinic default: 12 vacation days a year that may
// accumulate for 3 years, and 18 sick days per calendar year.
func StatutoryPolicy(hireDate generic.Date) Policy {
	return Policy{
		HireDate:                  hireDate,
		AnnualVacationDays:        12,
		SickLeaveDays:             18,
		VacationAccumulationYears: 3,
	}
}

// SeniorPolicy is used for veterinarians on extended contracts.
func SeniorPolicy(hireDate generic.Date) Policy {
	return Policy{
		HireDate:                  hireDate,
		AnnualVacationDays:        18,
		SickLeaveDays:             18,
		VacationAccumulationYears: 4,
	}
}

// PresetPolicy returns the named preset and whether it exists.
func PresetPolicy(name string, hireDate generic.Date) (Policy, bool) {
	switch name {
	case PresetStatutory:
		return StatutoryPolicy(hireDate), true
	case PresetSenior:
		return SeniorPolicy(hireDate), true
	}
	return Policy{}, false
}
