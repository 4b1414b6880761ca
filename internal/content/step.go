package content

// Category is the internal processing category a step type maps to.
type Category string

const (
	// CategoryChoice steps render choices and advance on click.
	CategoryChoice Category = "choice"
	// CategoryFreetext steps validate a typed answer.
	CategoryFreetext Category = "freetext"
	// CategoryGoal steps wait for an external navigation/action signal.
	CategoryGoal Category = "goal"
)

// stepCategories maps every known step type (legacy and current names) to
// its processing category. The table is closed: an unrecognized type is a
// validation error, never a silent default.
var stepCategories = map[string]Category{
	"message":    CategoryChoice, // legacy
	"action":     CategoryChoice, // legacy
	"input":      CategoryFreetext,
	"task":       CategoryGoal,
	"observe":    CategoryFreetext, // alias for input
	"checkpoint": CategoryChoice,   // alias for message
	"resolution": CategoryChoice,   // alias for message (terminal)
}

// StepCategory returns the processing category for a step type.
func StepCategory(stepType string) (Category, bool) {
	c, ok := stepCategories[stepType]
	return c, ok
}

// NormalizedStep is the canonical view of a step: the prompt, choices and
// checklist label resolved across the legacy and current field names.
// The original step stays untouched inside it.
type NormalizedStep struct {
	Step
	Question       string   `json:"question"`
	Choices        []Choice `json:"choices"`
	ChecklistLabel string   `json:"checklistLabel"`
}

// Category returns the step's processing category, or "" for unknown types.
func (n *NormalizedStep) Category() Category {
	c, _ := StepCategory(n.Type)
	return c
}

// NormalizeStep maps a raw step onto the canonical view. The current field
// names win over the legacy ones; the checklist label falls back to a
// type-derived generic. The input is never mutated; nil in, nil out.
func NormalizeStep(step *Step) *NormalizedStep {
	if step == nil {
		return nil
	}

	n := &NormalizedStep{Step: *step}

	n.Question = step.Question
	if n.Question == "" {
		n.Question = step.Text
	}

	n.Choices = step.Choices
	if n.Choices == nil {
		n.Choices = step.Actions
	}

	n.ChecklistLabel = step.ChecklistLabel
	if n.ChecklistLabel == "" {
		n.ChecklistLabel = defaultChecklistLabel(step)
	}

	return n
}

func defaultChecklistLabel(step *Step) string {
	switch cat, _ := StepCategory(step.Type); cat {
	case CategoryGoal:
		if step.GuideMessage != "" {
			return step.GuideMessage
		}
		return "Complete this step"
	case CategoryFreetext:
		return "Answer a question"
	default:
		return "Continue"
	}
}
