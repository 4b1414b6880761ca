package engine

import (
	"github.com/cedarridge/idm-trainer/internal/content"
	"github.com/cedarridge/idm-trainer/internal/progress"
)

// Ticket is one inbox entry: an authored scenario of an unlocked module
// that the trainee has not completed yet.
type Ticket struct {
	ScenarioID    string `json:"scenarioId"`
	Title         string `json:"title"`
	TicketSubject string `json:"ticketSubject"`
	TicketNumber  string `json:"ticketNumber,omitempty"`
	CustomerID    string `json:"customerId"`
	ModuleID      string `json:"moduleId"`
	ChatMode      bool   `json:"chatMode,omitempty"`
}

// Snapshot is a consistent read of the full engine state, safe to render
// or serialize after the call returns.
type Snapshot struct {
	ActiveScenarioID   string                          `json:"activeScenarioId"`
	CurrentStepID      string                          `json:"currentStepId"`
	Step               *content.NormalizedStep         `json:"step,omitempty"`
	VisitedStepIDs     []string                        `json:"visitedStepIds"`
	CoachMarksEnabled  bool                            `json:"coachMarksEnabled"`
	ShowHint           bool                            `json:"showHint"`
	IdmSetupComplete   bool                            `json:"idmSetupComplete"`
	GlobalScore        int                             `json:"globalScore"`
	Scores             map[string]progress.ScoreEntry  `json:"scores"`
	CompletedScenarios []string                        `json:"completedScenarios"`
	CompletedModules   []string                        `json:"completedModules"`
	JustCompleted      *Completion                     `json:"justCompleted,omitempty"`
	Notifications      []Notification                  `json:"notifications"`
	CurrentModuleID    string                          `json:"currentModuleId,omitempty"`
	AvailableTickets   []Ticket                        `json:"availableTickets"`
	// WaitingForTicket is true when no scenario is active and at least one
	// ticket is available to accept.
	WaitingForTicket bool `json:"waitingForTicket"`
}

// Snapshot returns a deep-copied view of the engine state.
func (e *Engine) Snapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := &Snapshot{
		ActiveScenarioID:   e.activeScenarioID,
		CurrentStepID:      e.currentStepID,
		CoachMarksEnabled:  e.coachMarks,
		ShowHint:           e.showHint,
		IdmSetupComplete:   e.idmSetupComplete,
		GlobalScore:        GlobalScore(e.scores),
		Scores:             make(map[string]progress.ScoreEntry, len(e.scores)),
		CompletedScenarios: sortedKeys(e.completedScenarios),
		CompletedModules:   sortedKeys(e.completedModules),
		VisitedStepIDs:     e.visitedInOrderLocked(),
		Notifications:      append([]Notification(nil), e.notifications...),
		AvailableTickets:   e.availableTicketsLocked(),
	}

	for id, entry := range e.scores {
		copied := progress.ScoreEntry{
			Guided:   copyBucket(entry.Guided),
			Unguided: copyBucket(entry.Unguided),
		}
		snap.Scores[id] = copied
	}

	if e.justCompleted != nil {
		c := *e.justCompleted
		snap.JustCompleted = &c
	}

	if e.activeScenarioID != "" {
		if step, ok := e.library.Step(e.activeScenarioID, e.currentStepID); ok {
			snap.Step = content.NormalizeStep(step)
		}
	}

	if mod, ok := e.graph.CurrentModule(e.completedModules, e.completedScenarios); ok {
		snap.CurrentModuleID = mod.ID
	}

	snap.WaitingForTicket = e.activeScenarioID == "" && len(snap.AvailableTickets) > 0
	return snap
}

// ConsumeCompletion returns and clears the pending completion record, so
// the post-scenario summary renders exactly once.
func (e *Engine) ConsumeCompletion() *Completion {
	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.justCompleted
	e.justCompleted = nil
	return c
}

// visitedInOrderLocked returns the visited steps of the active scenario in
// authored order. A stable order keeps checklist rendering deterministic.
func (e *Engine) visitedInOrderLocked() []string {
	if e.activeScenarioID == "" {
		return sortedKeys(e.visited)
	}
	scenario, ok := e.library.Scenario(e.activeScenarioID)
	if !ok {
		return sortedKeys(e.visited)
	}
	out := make([]string, 0, len(e.visited))
	for _, s := range scenario.Steps {
		if e.visited[s.ID] {
			out = append(out, s.ID)
		}
	}
	return out
}

// availableTicketsLocked lists every authored, incomplete scenario whose
// module is unlocked, in course order.
func (e *Engine) availableTicketsLocked() []Ticket {
	var out []Ticket
	seen := make(map[string]bool)

	for _, course := range e.graph.Courses() {
		for _, mod := range course.Modules {
			if e.graph.IsModuleLocked(mod, e.completedModules, e.completedScenarios) {
				continue
			}
			for _, sid := range e.graph.AuthoredScenarios(mod) {
				if seen[sid] || e.completedScenarios[sid] {
					continue
				}
				seen[sid] = true
				scenario, ok := e.library.Scenario(sid)
				if !ok {
					continue
				}
				out = append(out, Ticket{
					ScenarioID:    sid,
					Title:         scenario.Title,
					TicketSubject: scenario.TicketSubject,
					TicketNumber:  scenario.TicketNumber,
					CustomerID:    scenario.CustomerID,
					ModuleID:      mod.ID,
					ChatMode:      scenario.ChatMode,
				})
			}
		}
	}
	return out
}
