// Package content holds the authored training content: scenarios, courses
// and the character registry, plus the loader and structural validator
// that run once at startup.
package content

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Scenario is one authored training ticket: a directed graph of steps the
// trainee works through, plus the ticket metadata shown in the inbox.
type Scenario struct {
	ID            string    `yaml:"id" json:"id"`
	Title         string    `yaml:"title" json:"title"`
	Description   string    `yaml:"description" json:"description"`
	TicketSubject string    `yaml:"ticketSubject" json:"ticketSubject,omitempty"`
	TicketMessage string    `yaml:"ticketMessage" json:"ticketMessage,omitempty"`
	TicketNumber  string    `yaml:"ticketNumber" json:"ticketNumber,omitempty"`
	CustomerID    string    `yaml:"customerId" json:"customerId"`
	ModuleID      string    `yaml:"moduleId" json:"moduleId"`
	ChatMode      bool      `yaml:"chatMode" json:"chatMode,omitempty"`
	Steps         []Step    `yaml:"steps" json:"steps"`
	Settings      *Settings `yaml:"settings" json:"settings,omitempty"`
	NextScenario  string    `yaml:"nextScenario" json:"nextScenario,omitempty"`
}

// Settings carries optional per-scenario behavior flags.
type Settings struct {
	// ClearWizardState wipes the external provisioning-wizard state when the
	// scenario is accepted, so it can simulate a fresh setup.
	ClearWizardState bool `yaml:"clearWizardState" json:"clearWizardState,omitempty"`
	// DataOverrides are shallow-merge overrides applied to the baseline
	// display dataset while this scenario is active.
	DataOverrides map[string]any `yaml:"dataOverrides" json:"dataOverrides,omitempty"`
}

// Step is one node in a scenario's step graph. Legacy content uses
// text/actions, current content uses question/choices; NormalizeStep
// resolves both onto one canonical view.
type Step struct {
	ID             string   `yaml:"id" json:"id"`
	Type           string   `yaml:"type" json:"type"`
	Text           string   `yaml:"text" json:"text,omitempty"`
	Question       string   `yaml:"question" json:"question,omitempty"`
	Sender         string   `yaml:"sender" json:"sender,omitempty"`
	Actions        []Choice `yaml:"actions" json:"actions,omitempty"`
	Choices        []Choice `yaml:"choices" json:"choices,omitempty"`
	CorrectAnswer  *Answer  `yaml:"correctAnswer" json:"correctAnswer,omitempty"`
	MatchMode      string   `yaml:"matchMode" json:"matchMode,omitempty"`
	SuccessStep    string   `yaml:"successStep" json:"successStep,omitempty"`
	NextStep       string   `yaml:"nextStep" json:"nextStep,omitempty"`
	GoalRoute      string   `yaml:"goalRoute" json:"goalRoute,omitempty"`
	GoalAction     string   `yaml:"goalAction" json:"goalAction,omitempty"`
	GuideMessage   string   `yaml:"guideMessage" json:"guideMessage,omitempty"`
	ChecklistLabel string   `yaml:"checklistLabel" json:"checklistLabel,omitempty"`
	Hint           *Hint    `yaml:"hint" json:"hint,omitempty"`
	AutoShowHint   bool     `yaml:"autoShowHint" json:"autoShowHint,omitempty"`
	// Scored opts a choice step out of the "at least one correct choice"
	// validation rule when explicitly set to false.
	Scored *bool `yaml:"scored" json:"scored,omitempty"`
}

// Choice is one selectable option on a choice-category step.
type Choice struct {
	Label            string `yaml:"label" json:"label"`
	Correct          *bool  `yaml:"correct" json:"correct,omitempty"`
	NextStep         string `yaml:"nextStep" json:"nextStep,omitempty"`
	UnguidedNextStep string `yaml:"unguidedNextStep" json:"unguidedNextStep,omitempty"`
}

// Hint anchors a coaching message to a UI element. Target distinguishes
// "key absent" (text-only hint, valid) from "key present but empty"
// (a validation error), so it is a pointer.
type Hint struct {
	Target  *string `yaml:"target" json:"target,omitempty"`
	Message string  `yaml:"message" json:"message"`
}

// Answer is a freetext step's expected answer: either a single string or a
// list of acceptable strings (for the oneOf match mode).
type Answer struct {
	values []string
	list   bool
}

// NewAnswer returns a single-valued answer.
func NewAnswer(v string) *Answer {
	return &Answer{values: []string{v}}
}

// NewAnswerList returns a list-valued answer.
func NewAnswerList(vs ...string) *Answer {
	return &Answer{values: vs, list: true}
}

// IsList reports whether the answer was authored as a list.
func (a *Answer) IsList() bool { return a != nil && a.list }

// Values returns all acceptable answers.
func (a *Answer) Values() []string {
	if a == nil {
		return nil
	}
	return a.values
}

// Single returns the first (or only) acceptable answer.
func (a *Answer) Single() string {
	if a == nil || len(a.values) == 0 {
		return ""
	}
	return a.values[0]
}

// UnmarshalYAML accepts both a scalar and a sequence of scalars.
func (a *Answer) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var vs []string
		if err := value.Decode(&vs); err != nil {
			return fmt.Errorf("decoding answer list: %w", err)
		}
		a.values = vs
		a.list = true
		return nil
	case yaml.ScalarNode:
		var v string
		if err := value.Decode(&v); err != nil {
			return fmt.Errorf("decoding answer: %w", err)
		}
		a.values = []string{v}
		a.list = false
		return nil
	default:
		return fmt.Errorf("correctAnswer must be a string or a list of strings")
	}
}

// MarshalYAML renders the answer back in its authored shape.
func (a *Answer) MarshalYAML() (any, error) {
	if a.list {
		return a.values, nil
	}
	return a.Single(), nil
}

// Module groups scenario ids into one pedagogical unit with prerequisites
// and the boss character's narration.
type Module struct {
	ID             string   `yaml:"id" json:"id"`
	Title          string   `yaml:"title" json:"title"`
	Description    string   `yaml:"description" json:"description"`
	Prerequisites  []string `yaml:"prerequisites" json:"prerequisites"`
	ScenarioIDs    []string `yaml:"scenarioIds" json:"scenarioIds"`
	BossIntro      string   `yaml:"bossIntro" json:"bossIntro,omitempty"`
	BossCompletion string   `yaml:"bossCompletion" json:"bossCompletion,omitempty"`
}

// Course is an ordered list of modules.
type Course struct {
	ID          string   `yaml:"id" json:"id"`
	Title       string   `yaml:"title" json:"title"`
	Description string   `yaml:"description" json:"description"`
	Modules     []Module `yaml:"modules" json:"modules"`
}

// Character is an entry in the character registry referenced by
// scenario customerId fields.
type Character struct {
	Name   string `yaml:"name" json:"name"`
	Role   string `yaml:"role" json:"role"`
	School string `yaml:"school" json:"school,omitempty"`
	Avatar string `yaml:"avatar" json:"avatar,omitempty"`
}

// Library is the immutable content registry built once at startup and
// passed by reference into the engine.
type Library struct {
	Scenarios  []Scenario
	Courses    []Course
	Characters map[string]Character

	scenarioByID map[string]*Scenario
}

// NewLibrary indexes the given content.
func NewLibrary(scenarios []Scenario, courses []Course, characters map[string]Character) *Library {
	l := &Library{
		Scenarios:    scenarios,
		Courses:      courses,
		Characters:   characters,
		scenarioByID: make(map[string]*Scenario, len(scenarios)),
	}
	for i := range l.Scenarios {
		l.scenarioByID[l.Scenarios[i].ID] = &l.Scenarios[i]
	}
	return l
}

// Scenario returns a scenario by id.
func (l *Library) Scenario(id string) (*Scenario, bool) {
	s, ok := l.scenarioByID[id]
	return s, ok
}

// Step returns a step by scenario and step id.
func (l *Library) Step(scenarioID, stepID string) (*Step, bool) {
	s, ok := l.scenarioByID[scenarioID]
	if !ok {
		return nil, false
	}
	for i := range s.Steps {
		if s.Steps[i].ID == stepID {
			return &s.Steps[i], true
		}
	}
	return nil, false
}
