/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	clinic data. Each scenario goes through the same services as the API,
	so balances, unpaid splits and cooldowns come out exactly as they would
	for real submissions. Dates are relative to the service clock.

AVAILABLE SCENARIOS:

	vacation-split:        3-year employee, 10 days used, 30-day request split 4 unpaid
	sick-leave-exhaustion: sick allowance used up this calendar year
	treatment-cooldown:    one locked and one unlocked medication instruction

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "vacation-split"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add it to scenarioLoaders

NOTE:

	Scenarios reset the database. Only use in development/demo environments.
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vetclinic/practice-engine/generic"
	"github.com/vetclinic/practice-engine/leave"
	"github.com/vetclinic/practice-engine/treatment"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "vacation-split",
		Name:        "Vacation Split",
		Description: "Hired 3 years ago, 12 days/year over 3 years: 10 days taken, a 30-day request is saved with 4 unpaid days",
		Category:    "leave",
	},
	{
		ID:          "sick-leave-exhaustion",
		Name:        "Sick Leave Exhaustion",
		Description: "All 18 sick days of the current year approved; further sick leave is refused",
		Category:    "leave",
	},
	{
		ID:          "treatment-cooldown",
		Name:        "Treatment Cooldown",
		Description: "Amoxicillin for Rex given an hour ago (locked), Meloxicam for Luna five hours ago (free)",
		Category:    "treatment",
	},
}

func (h *Handler) scenarioLoaders() map[string]func(context.Context) error {
	return map[string]func(context.Context) error{
		"vacation-split":        h.loadVacationSplitScenario,
		"sick-leave-exhaustion": h.loadSickLeaveExhaustionScenario,
		"treatment-cooldown":    h.loadTreatmentCooldownScenario,
	}
}

// =============================================================================
// HANDLERS
// =============================================================================

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	load, ok := h.scenarioLoaders()[req.ScenarioID]
	if !ok {
		h.writeError(w, r, &generic.ValidationError{Field: "scenario_id", Message: fmt.Sprintf("unknown scenario %q", req.ScenarioID)})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		h.writeError(w, r, fmt.Errorf("failed to reset database: %w", err))
		return
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		h.writeError(w, r, fmt.Errorf("failed to load scenario %s: %w", req.ScenarioID, err))
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		h.writeError(w, r, fmt.Errorf("failed to reset database: %w", err))
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

const scenarioManager = "mgr-orly"

func (h *Handler) loadVacationSplitScenario(ctx context.Context) error {
	today := h.Leave.Today()

	dana, err := h.Leave.CreateEmployee(ctx, leave.Employee{
		ID:     "emp-dana",
		Name:   "Dana Levi",
		Email:  "dana@clinic.example",
		Policy: leave.StatutoryPolicy(today.AddYears(-3)),
	})
	if err != nil {
		return err
	}

	// Two full Sunday-Thursday weeks: 10 business days, approved.
	past := sundayOnOrBefore(today.AddDays(-60))
	if err := h.submitAndApprove(ctx, leave.SubmitInput{
		EmployeeID:   dana.ID,
		StartDate:    past,
		EndDate:      past.AddDays(11),
		VacationType: leave.TypeRegular,
		Reason:       "Family trip",
	}); err != nil {
		return err
	}

	// Six weeks: 30 business days against 26 remaining, confirmed split.
	next := sundayOnOrBefore(today.AddDays(30))
	sub, err := h.Leave.Submit(ctx, leave.SubmitInput{
		EmployeeID:         dana.ID,
		StartDate:          next,
		EndDate:            next.AddDays(39),
		VacationType:       leave.TypeRegular,
		Reason:             "Sabbatical abroad",
		ConfirmUnpaidSplit: true,
	})
	if err != nil {
		return err
	}
	if sub.Outcome.Kind != leave.OutcomeAcceptedWithUnpaidSplit {
		return fmt.Errorf("vacation-split: unexpected outcome %s", sub.Outcome.Kind)
	}

	// A new hire in the first year: window of one year.
	_, err = h.Leave.CreateEmployee(ctx, leave.Employee{
		ID:     "emp-yossi",
		Name:   "Yossi Cohen",
		Email:  "yossi@clinic.example",
		Policy: leave.StatutoryPolicy(today.AddDays(-240)),
	})
	return err
}

func (h *Handler) loadSickLeaveExhaustionScenario(ctx context.Context) error {
	today := h.Leave.Today()

	noa, err := h.Leave.CreateEmployee(ctx, leave.Employee{
		ID:     "emp-noa",
		Name:   "Noa Friedman",
		Email:  "noa@clinic.example",
		Policy: leave.StatutoryPolicy(today.AddYears(-2)),
	})
	if err != nil {
		return err
	}

	// First Sunday of the year through the Tuesday of its fourth week:
	// 5+5+5+3 = 18 business days, the whole sick allowance.
	start := generic.StartOfYear(today.Year())
	start = start.AddDays((7 - int(start.Weekday())) % 7)
	return h.submitAndApprove(ctx, leave.SubmitInput{
		EmployeeID:      noa.ID,
		StartDate:       start,
		EndDate:         start.AddDays(23),
		VacationType:    leave.TypeSick,
		MedicalDocument: "docs/sick-note-noa.pdf",
		Reason:          "Surgery and recovery",
	})
}

func (h *Handler) loadTreatmentCooldownScenario(ctx context.Context) error {
	now := h.Treatment.Clock.Now()

	record := func(animal, med, dosage, nurse string, ago time.Duration) error {
		date, clock := treatment.FormatDateTime(now.Add(-ago), h.Treatment.Location)
		_, err := h.Treatment.Record(ctx, treatment.RecordInput{
			AnimalID:       animal,
			MedicationName: med,
			Dosage:         dosage,
			ExecutedBy:     nurse,
			ExecutionDate:  date,
			ExecutionTime:  clock,
		})
		return err
	}

	steps := []struct {
		animal, med, dosage, nurse string
		ago                        time.Duration
	}{
		{"dog-rex", "Amoxicillin", "250 mg", "nurse-maya", 9 * time.Hour},
		{"dog-rex", "Amoxicillin", "250 mg", "nurse-maya", 1 * time.Hour},
		{"cat-luna", "Meloxicam", "0.1 ml", "nurse-avi", 5 * time.Hour},
	}
	for _, s := range steps {
		if err := record(s.animal, s.med, s.dosage, s.nurse, s.ago); err != nil {
			return err
		}
	}
	return nil
}

// submitAndApprove saves a request and approves it as the scenario manager.
func (h *Handler) submitAndApprove(ctx context.Context, in leave.SubmitInput) error {
	sub, err := h.Leave.Submit(ctx, in)
	if err != nil {
		return err
	}
	if !sub.Saved {
		return fmt.Errorf("request for %s not saved: %s", in.EmployeeID, sub.Outcome.Kind)
	}
	_, err = h.Leave.Approve(ctx, sub.Request.ID, scenarioManager)
	return err
}

func sundayOnOrBefore(d generic.Date) generic.Date {
	return d.AddDays(-int(d.Weekday()))
}
