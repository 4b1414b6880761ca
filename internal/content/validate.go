package content

import (
	"fmt"
	"log/slog"
	"strings"
)

// Finding is one structural problem discovered by Validate. StepID is empty
// for scenario-level findings. Curriculum cross-reference findings use a
// synthetic "curriculum:<moduleID>" scenario key.
type Finding struct {
	ScenarioID string
	StepID     string
	Message    string
}

func (f Finding) String() string {
	if f.StepID != "" {
		return fmt.Sprintf("[%s] Step %q → %s", f.ScenarioID, f.StepID, f.Message)
	}
	return fmt.Sprintf("[%s] → %s", f.ScenarioID, f.Message)
}

// Validate runs every structural check over the authored content and
// returns all findings. It has no side effects; checks accumulate rather
// than short-circuit, and the result is order-independent in meaning.
func Validate(scenarios []Scenario, courses []Course, characters map[string]Character) []Finding {
	var findings []Finding

	allModuleIDs := make(map[string]bool)
	for _, course := range courses {
		for _, mod := range course.Modules {
			allModuleIDs[mod.ID] = true
		}
	}

	scenarioIDs := make(map[string]bool, len(scenarios))
	for _, s := range scenarios {
		scenarioIDs[s.ID] = true
	}

	for i := range scenarios {
		findings = append(findings, validateScenario(&scenarios[i], scenarioIDs, allModuleIDs, characters)...)
	}

	// Curriculum → scenario cross-references.
	for _, course := range courses {
		for _, mod := range course.Modules {
			for _, sid := range mod.ScenarioIDs {
				if !scenarioIDs[sid] {
					findings = append(findings, Finding{
						ScenarioID: "curriculum:" + mod.ID,
						Message:    fmt.Sprintf("scenarioId %q not found in scenarios", sid),
					})
				}
			}
		}
	}

	return findings
}

func validateScenario(s *Scenario, scenarioIDs, moduleIDs map[string]bool, characters map[string]Character) []Finding {
	var findings []Finding

	prefix := s.ID
	if prefix == "" {
		prefix = "(unnamed)"
	}
	add := func(stepID, msg string) {
		findings = append(findings, Finding{ScenarioID: prefix, StepID: stepID, Message: msg})
	}

	if s.ID == "" {
		add("", "missing scenario id")
	}
	if s.Description == "" {
		add("", "missing description")
	}
	if len(s.Steps) == 0 {
		add("", "no steps defined")
	}

	// Ticket fields are only required outside onboarding chat mode.
	if !s.ChatMode {
		if s.TicketSubject == "" {
			add("", "missing ticketSubject")
		}
		if s.TicketMessage == "" {
			add("", "missing ticketMessage")
		}
	}
	if s.CustomerID == "" {
		add("", "missing customerId")
	} else if _, ok := characters[s.CustomerID]; !ok {
		add("", fmt.Sprintf("customerId %q not found in character registry", s.CustomerID))
	}
	if s.ModuleID == "" {
		add("", "missing moduleId")
	} else if !moduleIDs[s.ModuleID] {
		add("", fmt.Sprintf("moduleId %q not found in courses", s.ModuleID))
	}
	if s.NextScenario != "" && !scenarioIDs[s.NextScenario] {
		add("", fmt.Sprintf("nextScenario %q does not exist", s.NextScenario))
	}

	stepIDs := make(map[string]bool, len(s.Steps))
	for _, step := range s.Steps {
		stepIDs[step.ID] = true
	}

	for i := range s.Steps {
		findings = append(findings, validateStep(&s.Steps[i], prefix, stepIDs)...)
	}

	return findings
}

func validateStep(step *Step, scenarioID string, stepIDs map[string]bool) []Finding {
	var findings []Finding
	add := func(msg string) {
		findings = append(findings, Finding{ScenarioID: scenarioID, StepID: step.ID, Message: msg})
	}

	cat, known := StepCategory(step.Type)
	if step.Type != "" && !known {
		add(fmt.Sprintf("unknown step type %q", step.Type))
	}

	// Non-fatal: the normalizer falls back to a generic label.
	if step.ChecklistLabel == "" {
		add("missing checklistLabel (will fall back to generic)")
	}

	if step.NextStep != "" && !stepIDs[step.NextStep] {
		add(fmt.Sprintf("nextStep %q does not exist", step.NextStep))
	}
	if step.SuccessStep != "" && !stepIDs[step.SuccessStep] {
		add(fmt.Sprintf("successStep %q does not exist", step.SuccessStep))
	}

	// A hint with no target key is valid (text-only). Only an explicitly
	// empty target is an error.
	if step.Hint != nil && step.Hint.Target != nil && *step.Hint.Target == "" {
		add("hint.target is empty")
	}

	norm := NormalizeStep(step)
	choices := norm.Choices

	for i, choice := range choices {
		if choice.NextStep != "" && !stepIDs[choice.NextStep] {
			add(fmt.Sprintf("choices[%d].nextStep %q does not exist", i, choice.NextStep))
		}
		if choice.UnguidedNextStep != "" && !stepIDs[choice.UnguidedNextStep] {
			add(fmt.Sprintf("choices[%d].unguidedNextStep %q does not exist", i, choice.UnguidedNextStep))
		}
	}

	// An authored-but-empty choice list is still checked: it can never
	// carry a correct choice, which is exactly the mistake to report.
	scored := step.Scored == nil || *step.Scored
	if choices != nil && scored && cat == CategoryChoice {
		hasCorrect := false
		for _, c := range choices {
			if c.Correct != nil && *c.Correct {
				hasCorrect = true
				break
			}
		}
		if !hasCorrect {
			add("choice step has no choice with correct: true")
		}
	}

	if step.Type == "resolution" && len(choices) > 0 {
		hasTerminal := false
		for _, c := range choices {
			if c.NextStep == "" && c.UnguidedNextStep == "" {
				hasTerminal = true
				break
			}
		}
		if !hasTerminal {
			add("resolution step has no terminal choice (scenario can never complete)")
		}
	}

	if cat == CategoryGoal && step.GoalRoute == "" && step.GoalAction == "" {
		add("goal step needs goalRoute or goalAction")
	}

	if cat == CategoryFreetext && step.CorrectAnswer == nil {
		add("freetext step missing correctAnswer")
	}

	return findings
}

// Enforce applies the posture rule to a validation result: in development
// a non-empty finding list is fatal, in production it degrades to a logged
// warning so a content bug never takes down a live session.
func Enforce(findings []Finding, development bool) error {
	if len(findings) == 0 {
		return nil
	}

	lines := make([]string, len(findings))
	for i, f := range findings {
		lines[i] = f.String()
	}
	summary := strings.Join(lines, "\n")

	if development {
		return fmt.Errorf("scenario validation failed with %d finding(s):\n%s", len(findings), summary)
	}
	slog.Warn("scenario validation findings", "count", len(findings), "summary", summary)
	return nil
}
