/*
Package factory provides JSON/YAML to Go leave-policy conversion.

PURPOSE:
  Converts policy definitions (API payloads, policy files) into leave.Policy.
  HR can start from a named preset and override individual numbers.

SCHEMA (JSON or YAML, same keys):
  {
    "preset": "statutory",            // optional: statutory | senior
    "hire_date": "2022-06-01",        // required
    "annual_vacation_days": 12,       // overrides preset
    "sick_leave_days": 18,            // overrides preset
    "vacation_accumulation_years": 3  // overrides preset, >= 1
  }

  Without a preset every number must be given.

USAGE:
  f := factory.NewPolicyFactory()
  policy, err := f.ParsePolicy(jsonString)
  policy, err = f.ParsePolicyFile("policies/nurse.yaml")

SEE ALSO:
  - leave/policies.go: preset definitions
  - leave/types.go: Policy type and validation
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vetclinic/practice-engine/generic"
	"github.com/vetclinic/practice-engine/leave"
)

// =============================================================================
// SCHEMA TYPES
// =============================================================================

// PolicyJSON is the serialized form of a leave policy.
type PolicyJSON struct {
	Preset                    string `json:"preset,omitempty" yaml:"preset,omitempty"`
	HireDate                  string `json:"hire_date" yaml:"hire_date"`
	AnnualVacationDays        *int   `json:"annual_vacation_days,omitempty" yaml:"annual_vacation_days,omitempty"`
	SickLeaveDays             *int   `json:"sick_leave_days,omitempty" yaml:"sick_leave_days,omitempty"`
	VacationAccumulationYears *int   `json:"vacation_accumulation_years,omitempty" yaml:"vacation_accumulation_years,omitempty"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts serialized policies to leave.Policy.
type PolicyFactory struct{}

func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParsePolicy parses a JSON document.
func (f *PolicyFactory) ParsePolicy(jsonStr string) (leave.Policy, error) {
	var pj PolicyJSON
	dec := json.NewDecoder(strings.NewReader(jsonStr))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&pj); err != nil {
		return leave.Policy{}, &generic.ValidationError{Field: "policy", Message: "invalid JSON", Err: err}
	}
	return f.FromJSON(pj)
}

// ParsePolicyYAML parses a YAML document.
func (f *PolicyFactory) ParsePolicyYAML(data []byte) (leave.Policy, error) {
	var pj PolicyJSON
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&pj); err != nil {
		return leave.Policy{}, &generic.ValidationError{Field: "policy", Message: "invalid YAML", Err: err}
	}
	return f.FromJSON(pj)
}

// ParsePolicyFile reads a .json, .yaml or .yml policy file.
func (f *PolicyFactory) ParsePolicyFile(path string) (leave.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return leave.Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return f.ParsePolicy(string(data))
	case ".yaml", ".yml":
		return f.ParsePolicyYAML(data)
	default:
		return leave.Policy{}, fmt.Errorf("unsupported policy file extension %q", filepath.Ext(path))
	}
}

// FromJSON resolves the preset, applies overrides and validates.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (leave.Policy, error) {
	if strings.TrimSpace(pj.HireDate) == "" {
		return leave.Policy{}, generic.Required("hire_date")
	}
	hire, err := generic.ParseDate(strings.TrimSpace(pj.HireDate))
	if err != nil {
		return leave.Policy{}, &generic.ValidationError{Field: "hire_date", Message: "must be YYYY-MM-DD", Err: err}
	}

	var policy leave.Policy
	if pj.Preset != "" {
		var ok bool
		if policy, ok = leave.PresetPolicy(pj.Preset, hire); !ok {
			return leave.Policy{}, &generic.ValidationError{Field: "preset", Message: fmt.Sprintf("unknown preset %q", pj.Preset)}
		}
	} else {
		switch {
		case pj.AnnualVacationDays == nil:
			return leave.Policy{}, generic.Required("annual_vacation_days")
		case pj.SickLeaveDays == nil:
			return leave.Policy{}, generic.Required("sick_leave_days")
		case pj.VacationAccumulationYears == nil:
			return leave.Policy{}, generic.Required("vacation_accumulation_years")
		}
		policy.HireDate = hire
	}

	if pj.AnnualVacationDays != nil {
		policy.AnnualVacationDays = *pj.AnnualVacationDays
	}
	if pj.SickLeaveDays != nil {
		policy.SickLeaveDays = *pj.SickLeaveDays
	}
	if pj.VacationAccumulationYears != nil {
		policy.VacationAccumulationYears = *pj.VacationAccumulationYears
	}

	if err := policy.Validate(); err != nil {
		return leave.Policy{}, err
	}
	return policy, nil
}

// ToJSON converts a Policy to its explicit (preset-free) form.
func (f *PolicyFactory) ToJSON(p leave.Policy) PolicyJSON {
	annual, sick, years := p.AnnualVacationDays, p.SickLeaveDays, p.VacationAccumulationYears
	return PolicyJSON{
		HireDate:                  p.HireDate.String(),
		AnnualVacationDays:        &annual,
		SickLeaveDays:             &sick,
		VacationAccumulationYears: &years,
	}
}
