package progress

import "encoding/json"

// Wire shapes for the persistence endpoints: snake_case field names with
// defaulted-missing semantics, keyed server-side by an opaque user id.

// ProgressRecord is the progress row on the wire. The pointer fields
// distinguish "absent" from "false"/"zero" so decoding can apply the
// contract defaults.
type ProgressRecord struct {
	CompletedScenarios []string              `json:"completed_scenarios"`
	CompletedModules   []string              `json:"completed_modules"`
	Scores             map[string]ScoreEntry `json:"scores"`
	CoachMarksEnabled  *bool                 `json:"coach_marks_enabled"`
	IdmSetupComplete   *bool                 `json:"idm_setup_complete"`
	StateVersion       *int                  `json:"state_version"`
}

// ToState applies the defaulted-missing rules: absent arrays become empty,
// absent maps become empty, coach_marks_enabled defaults true,
// idm_setup_complete defaults false, state_version defaults current.
func (r *ProgressRecord) ToState() *State {
	s := NewState()
	if r == nil {
		return s
	}
	if r.CompletedScenarios != nil {
		s.CompletedScenarios = r.CompletedScenarios
	}
	if r.CompletedModules != nil {
		s.CompletedModules = r.CompletedModules
	}
	if r.Scores != nil {
		s.Scores = r.Scores
	}
	if r.CoachMarksEnabled != nil {
		s.CoachMarksEnabled = *r.CoachMarksEnabled
	}
	if r.IdmSetupComplete != nil {
		s.IdmSetupComplete = *r.IdmSetupComplete
	}
	if r.StateVersion != nil {
		s.Version = *r.StateVersion
	}
	return s
}

// ToWire converts state to the wire shape, stamping the current version
// and materializing empty collections.
func (s *State) ToWire() *ProgressRecord {
	completed := s.CompletedScenarios
	if completed == nil {
		completed = []string{}
	}
	modules := s.CompletedModules
	if modules == nil {
		modules = []string{}
	}
	scores := s.Scores
	if scores == nil {
		scores = map[string]ScoreEntry{}
	}
	version := StateVersion
	return &ProgressRecord{
		CompletedScenarios: completed,
		CompletedModules:   modules,
		Scores:             scores,
		CoachMarksEnabled:  boolPtr(s.CoachMarksEnabled),
		IdmSetupComplete:   boolPtr(s.IdmSetupComplete),
		StateVersion:       &version,
	}
}

// SessionRecord is the active-session-position row on the wire. Nulls mean
// no scenario is in flight.
type SessionRecord struct {
	ActiveScenarioID *string `json:"active_scenario_id"`
	CurrentStepID    *string `json:"current_step_id"`
}

// NewSessionRecord builds a session record from plain ids; empty strings
// become nulls on the wire.
func NewSessionRecord(activeScenarioID, currentStepID string) *SessionRecord {
	return &SessionRecord{
		ActiveScenarioID: stringPtrOrNil(activeScenarioID),
		CurrentStepID:    stringPtrOrNil(currentStepID),
	}
}

// Position returns the ids, empty when null.
func (r *SessionRecord) Position() (activeScenarioID, currentStepID string) {
	if r == nil {
		return "", ""
	}
	if r.ActiveScenarioID != nil {
		activeScenarioID = *r.ActiveScenarioID
	}
	if r.CurrentStepID != nil {
		currentStepID = *r.CurrentStepID
	}
	return activeScenarioID, currentStepID
}

// WizardRecord carries the opaque external-wizard blob. The engine neither
// validates nor interprets it.
type WizardRecord struct {
	WizardData json.RawMessage `json:"wizard_data"`
}

func boolPtr(b bool) *bool { return &b }

func stringPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
