// Package engine implements the instructional state machine that drives a
// trainee through branching ticket scenarios: step advancement, guided and
// unguided scoring, completion detection, module unlocking and the
// notification surface consumed by presentation code.
package engine

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cedarridge/idm-trainer/internal/content"
	"github.com/cedarridge/idm-trainer/internal/curriculum"
	"github.com/cedarridge/idm-trainer/internal/progress"
)

const (
	defaultStepDelay    = 600 * time.Millisecond
	defaultCascadeDelay = 800 * time.Millisecond

	resetTimeout = 10 * time.Second
)

// WizardStore clears the external provisioning-wizard state the engine
// neither validates nor interprets.
type WizardStore interface {
	ClearWizard()
}

// NopWizardStore ignores wizard resets.
type NopWizardStore struct{}

func (NopWizardStore) ClearWizard() {}

// Config holds dependencies for the engine.
type Config struct {
	Library  *content.Library
	Graph    *curriculum.Graph
	Progress *progress.Manager // optional; nil disables persistence
	Wizard   WizardStore       // optional
	// StepDelay paces advancement after an action (default 600ms);
	// CascadeDelay paces the goal auto-cascade (default 800ms). A negative
	// value advances synchronously, which tests rely on.
	StepDelay    time.Duration
	CascadeDelay time.Duration
	Now          func() time.Time
}

// Action is one trainee interaction: a submitted freetext answer
// (Type "submitted_answer") or a choice click carrying the choice's fields.
type Action struct {
	Type             string
	Text             string
	Label            string
	Correct          *bool
	NextStep         string
	UnguidedNextStep string
}

// ActionSubmittedAnswer is the Action.Type for freetext submissions.
const ActionSubmittedAnswer = "submitted_answer"

// Completion is the pending "just completed" record, published exactly once
// per scenario completion and consumed by presentation.
type Completion struct {
	ScenarioID   string `json:"scenarioId"`
	Mode         string `json:"mode"`
	Correct      int    `json:"correct"`
	Total        int    `json:"total"`
	TimeMs       int64  `json:"timeMs"`
	NextScenario string `json:"nextScenario,omitempty"`
}

// Notification announces a newly unlocked ticket.
type Notification struct {
	ID         string `json:"id"`
	ScenarioID string `json:"scenarioId"`
	CustomerID string `json:"customerId"`
	Subject    string `json:"subject"`
	ModuleID   string `json:"moduleId"`
}

// Engine is the stateful orchestrator. All transitions run to completion
// under one mutex; deferred advances re-acquire it and read the current
// step at fire time, so a late timer acts on whatever step is actually
// active, never on a stale capture.
type Engine struct {
	mu sync.Mutex

	library *content.Library
	graph   *curriculum.Graph
	persist *progress.Manager
	wizard  WizardStore

	stepDelay    time.Duration
	cascadeDelay time.Duration
	now          func() time.Time

	// Session state.
	activeScenarioID string
	currentStepID    string
	visited          map[string]bool
	showHint         bool
	coachMarks       bool
	currentNavID     string
	justCompleted    *Completion
	notifications    []Notification

	// Durable state.
	completedScenarios map[string]bool
	completedModules   map[string]bool
	scores             map[string]progress.ScoreEntry
	idmSetupComplete   bool

	timers map[*time.Timer]struct{}
	closed bool
}

// New creates an engine. When a progress manager is supplied, the local
// cache is loaded synchronously; the remote overlay is the caller's move
// (Hydrate) once authentication has resolved.
func New(cfg Config) *Engine {
	wizard := cfg.Wizard
	if wizard == nil {
		wizard = NopWizardStore{}
	}
	stepDelay := cfg.StepDelay
	if stepDelay == 0 {
		stepDelay = defaultStepDelay
	}
	cascadeDelay := cfg.CascadeDelay
	if cascadeDelay == 0 {
		cascadeDelay = defaultCascadeDelay
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		library:            cfg.Library,
		graph:              cfg.Graph,
		persist:            cfg.Progress,
		wizard:             wizard,
		stepDelay:          stepDelay,
		cascadeDelay:       cascadeDelay,
		now:                now,
		visited:            make(map[string]bool),
		coachMarks:         true,
		completedScenarios: make(map[string]bool),
		completedModules:   make(map[string]bool),
		scores:             make(map[string]progress.ScoreEntry),
		timers:             make(map[*time.Timer]struct{}),
	}

	if e.persist != nil {
		if saved := e.persist.Load(); saved != nil {
			e.applyStateLocked(saved)
		}
	}
	return e
}

// Hydrate overlays remote state and resumes any in-flight scenario. Called
// once at startup after authentication resolves; the remote store wins
// over the local cache when it answers.
func (e *Engine) Hydrate(ctx context.Context) {
	if e.persist == nil {
		return
	}
	state, session := e.persist.FetchRemote(ctx)
	if session == nil {
		session = e.persist.LoadSession()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if state != nil {
		e.applyStateLocked(state)
	}
	if scenarioID, stepID := session.Position(); scenarioID != "" && stepID != "" {
		e.resumeLocked(scenarioID, stepID)
	}
}

// applyStateLocked replaces the durable fields from a persisted state.
func (e *Engine) applyStateLocked(st *progress.State) {
	e.completedScenarios = make(map[string]bool, len(st.CompletedScenarios))
	for _, id := range st.CompletedScenarios {
		e.completedScenarios[id] = true
	}
	e.completedModules = make(map[string]bool, len(st.CompletedModules))
	for _, id := range st.CompletedModules {
		e.completedModules[id] = true
	}
	e.scores = make(map[string]progress.ScoreEntry, len(st.Scores))
	for id, entry := range st.Scores {
		e.scores[id] = entry
	}
	e.coachMarks = st.CoachMarksEnabled
	e.idmSetupComplete = st.IdmSetupComplete
}

// resumeLocked re-enters a recovered scenario position. The visited set is
// replayed as every step from the scenario's start up to and including the
// recovered step, in authored order, so the completed-vs-future rendering
// distinction stays correct after a resume.
func (e *Engine) resumeLocked(scenarioID, stepID string) {
	scenario, ok := e.library.Scenario(scenarioID)
	if !ok {
		return
	}
	step, ok := e.library.Step(scenarioID, stepID)
	if !ok {
		return
	}

	visited := make(map[string]bool)
	for _, s := range scenario.Steps {
		visited[s.ID] = true
		if s.ID == stepID {
			break
		}
	}

	e.activeScenarioID = scenarioID
	e.currentStepID = stepID
	e.visited = visited
	e.showHint = e.coachMarks && step.AutoShowHint
	e.justCompleted = nil
}

// AcceptTicket starts a scenario in the requested mode. Valid from Idle
// only; unknown ids and mid-scenario calls are silent no-ops.
func (e *Engine) AcceptTicket(scenarioID string, guided bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.activeScenarioID != "" {
		return
	}
	scenario, ok := e.library.Scenario(scenarioID)
	if !ok || len(scenario.Steps) == 0 {
		return
	}

	// Scenarios that simulate a fresh setup wipe the external wizard state.
	if scenario.Settings != nil && scenario.Settings.ClearWizardState {
		e.wizard.ClearWizard()
		e.idmSetupComplete = false
	}

	firstStep := &scenario.Steps[0]

	e.coachMarks = guided
	e.activeScenarioID = scenarioID
	e.currentStepID = firstStep.ID
	e.visited = map[string]bool{firstStep.ID: true}
	e.showHint = guided && firstStep.AutoShowHint
	e.justCompleted = nil

	mode := ModeKey(guided)
	prev, hasPrev := e.scores[scenarioID]
	var prevPtr *progress.ScoreEntry
	if hasPrev {
		prevPtr = &prev
	}
	e.scores[scenarioID] = FreshEntry(prevPtr, mode, e.now())

	e.persistLocked()
	e.saveSessionLocked()
}

// HandleAction processes one trainee interaction against the current step.
// Valid from InScenario only.
func (e *Engine) HandleAction(action Action) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.activeScenarioID == "" {
		return
	}

	mode := ModeKey(e.coachMarks)

	if action.Type == ActionSubmittedAnswer {
		step, ok := e.library.Step(e.activeScenarioID, e.currentStepID)
		if !ok {
			return
		}

		correct := step.CorrectAnswer != nil &&
			Matches(strings.TrimSpace(action.Text), step.CorrectAnswer, step.MatchMode)

		e.scores[e.activeScenarioID] = Increment(e.scores[e.activeScenarioID], mode, correct, e.now())
		e.persistLocked()

		// A wrong answer leaves the step active; the caller re-prompts.
		if correct {
			e.scheduleAdvanceLocked(step.SuccessStep, e.stepDelay)
		}
		return
	}

	// Choice click. Only choices with an explicit correct flag score.
	if action.Correct != nil {
		e.scores[e.activeScenarioID] = Increment(e.scores[e.activeScenarioID], mode, *action.Correct, e.now())
		e.persistLocked()
	}

	// Guided/unguided branching rule: with coach marks off, an
	// unguidedNextStep override wins; otherwise nextStep. An empty target
	// is scenario completion, not an error.
	target := action.NextStep
	if !e.coachMarks && action.UnguidedNextStep != "" {
		target = action.UnguidedNextStep
	}
	e.scheduleAdvanceLocked(target, e.stepDelay)
}

// scheduleAdvanceLocked defers advancement for chat pacing. The timer
// callback re-reads engine state, so it no-ops if the scenario changed
// underneath it. A negative delay advances synchronously.
func (e *Engine) scheduleAdvanceLocked(nextStepID string, delay time.Duration) {
	scenarioID := e.activeScenarioID

	if delay < 0 {
		e.advanceLocked(scenarioID, nextStepID)
		return
	}

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.timers, t)
		if e.closed {
			return
		}
		e.advanceLocked(scenarioID, nextStepID)
	})
	e.timers[t] = struct{}{}
}

// advanceLocked is the internal transition. An empty nextStepID completes
// the scenario; otherwise the step becomes current, joins the visited set,
// and, for goal steps whose route the last navigation signal already
// satisfies, cascades onward after a short delay.
func (e *Engine) advanceLocked(scenarioID, nextStepID string) {
	if scenarioID == "" || e.activeScenarioID != scenarioID {
		return
	}

	if nextStepID == "" {
		e.completeScenarioLocked(scenarioID)
		return
	}

	step, ok := e.library.Step(scenarioID, nextStepID)
	if !ok {
		return
	}

	e.currentStepID = nextStepID
	e.visited[nextStepID] = true
	e.showHint = e.coachMarks && step.AutoShowHint
	e.saveSessionLocked()

	// The external trigger may have fired before this step became current;
	// navigation signals are level-triggered, so recheck the retained one.
	if cat, _ := content.StepCategory(step.Type); cat == content.CategoryGoal {
		if step.GoalRoute != "" && step.GoalRoute == e.currentNavID && step.NextStep != "" {
			e.scheduleAdvanceLocked(step.NextStep, e.cascadeDelay)
		}
	}
}

func (e *Engine) completeScenarioLocked(scenarioID string) {
	e.completedScenarios[scenarioID] = true

	mode := ModeKey(e.coachMarks)
	entry := Finalize(e.scores[scenarioID], mode, e.now())
	e.scores[scenarioID] = entry

	completion := &Completion{ScenarioID: scenarioID, Mode: mode}
	if bucket := entry.Bucket(mode); bucket != nil {
		completion.Correct = bucket.Correct
		completion.Total = bucket.Total
		if bucket.TimeMs != nil {
			completion.TimeMs = *bucket.TimeMs
		}
	}
	if scenario, ok := e.library.Scenario(scenarioID); ok {
		completion.NextScenario = scenario.NextScenario
	}
	e.justCompleted = completion

	e.propagateModuleCompletionLocked(scenarioID)

	e.activeScenarioID = ""
	e.currentStepID = ""
	e.showHint = false

	e.persistLocked()
	e.saveSessionLocked()
}

// propagateModuleCompletionLocked marks modules whose authored scenarios
// are all complete, then emits one notification per authored scenario of
// every module those completions newly unlocked.
func (e *Engine) propagateModuleCompletionLocked(justCompletedID string) {
	newlyCompleted := make(map[string]bool)

	for _, course := range e.graph.Courses() {
		for _, mod := range course.Modules {
			if !containsID(mod.ScenarioIDs, justCompletedID) {
				continue
			}
			if e.completedModules[mod.ID] {
				continue
			}
			if e.graph.IsModuleComplete(mod, e.completedScenarios) {
				newlyCompleted[mod.ID] = true
				e.completedModules[mod.ID] = true
				slog.Info("module completed", "module_id", mod.ID)
			}
		}
	}

	if len(newlyCompleted) == 0 {
		return
	}

	for _, course := range e.graph.Courses() {
		for _, candidate := range course.Modules {
			if e.completedModules[candidate.ID] {
				continue
			}
			touched := false
			for _, preID := range candidate.Prerequisites {
				if newlyCompleted[preID] {
					touched = true
					break
				}
			}
			if !touched {
				continue
			}
			allMet := true
			for _, preID := range candidate.Prerequisites {
				if !e.completedModules[preID] {
					allMet = false
					break
				}
			}
			if !allMet {
				continue
			}

			for _, sid := range e.graph.AuthoredScenarios(candidate) {
				scenario, ok := e.library.Scenario(sid)
				if !ok {
					continue
				}
				subject := scenario.TicketSubject
				if subject == "" {
					subject = scenario.Description
				}
				e.notifications = append(e.notifications, Notification{
					ID:         uuid.NewString(),
					ScenarioID: sid,
					CustomerID: scenario.CustomerID,
					Subject:    subject,
					ModuleID:   candidate.ID,
				})
			}
			slog.Info("module unlocked", "module_id", candidate.ID)
		}
	}
}

// CheckNavigationGoal records the latest navigation signal and advances the
// current goal step when its route matches. Signals are level-triggered:
// an already-passed match is a harmless no-op.
func (e *Engine) CheckNavigationGoal(navID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.currentNavID = navID
	if e.closed || e.activeScenarioID == "" {
		return
	}

	step, ok := e.library.Step(e.activeScenarioID, e.currentStepID)
	if !ok {
		return
	}
	if cat, _ := content.StepCategory(step.Type); cat != content.CategoryGoal {
		return
	}
	if step.GoalRoute == navID && step.NextStep != "" {
		e.advanceLocked(e.activeScenarioID, step.NextStep)
	}
}

// CheckActionGoal advances the current goal step when a tracked external
// action matches its declared trigger.
func (e *Engine) CheckActionGoal(actionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.activeScenarioID == "" {
		return
	}

	step, ok := e.library.Step(e.activeScenarioID, e.currentStepID)
	if !ok {
		return
	}
	if cat, _ := content.StepCategory(step.Type); cat != content.CategoryGoal {
		return
	}
	if step.GoalAction == actionID && step.NextStep != "" {
		e.advanceLocked(e.activeScenarioID, step.NextStep)
	}
}

// SkipTicket abandons the active scenario, marking it completed so it
// won't reappear, without scoring or module propagation.
func (e *Engine) SkipTicket() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.activeScenarioID == "" {
		return
	}

	e.completedScenarios[e.activeScenarioID] = true
	e.activeScenarioID = ""
	e.currentStepID = ""
	e.showHint = false
	e.justCompleted = nil
	e.visited = make(map[string]bool)

	e.persistLocked()
	e.saveSessionLocked()
}

// ReplayScenario reopens a completed scenario: it leaves the completed set,
// its score entry (both mode buckets) is discarded, and its owning module
// is un-marked complete. Valid from Idle or Completed.
func (e *Engine) ReplayScenario(scenarioID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.activeScenarioID != "" {
		return
	}

	delete(e.completedScenarios, scenarioID)
	delete(e.scores, scenarioID)
	if mod, ok := e.graph.ModuleForScenario(scenarioID); ok {
		delete(e.completedModules, mod.ID)
	}
	e.showHint = false
	e.visited = make(map[string]bool)

	e.persistLocked()
	e.saveSessionLocked()
}

// ReturnToInbox clears the transient session position after a completion.
// The pending completion record survives: presentation consumes it for a
// one-time summary on its own schedule.
func (e *Engine) ReturnToInbox() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.activeScenarioID != "" {
		return
	}

	e.currentStepID = ""
	e.showHint = false
	e.visited = make(map[string]bool)
	e.saveSessionLocked()
}

// ResetAllProgress wipes all durable progress and session state, restores
// defaults, clears the external wizard state, and pushes an empty snapshot
// remotely. Valid from any state.
func (e *Engine) ResetAllProgress() {
	e.mu.Lock()

	e.stopTimersLocked()
	e.completedScenarios = make(map[string]bool)
	e.completedModules = make(map[string]bool)
	e.scores = make(map[string]progress.ScoreEntry)
	e.activeScenarioID = ""
	e.currentStepID = ""
	e.showHint = false
	e.coachMarks = true
	e.idmSetupComplete = false
	e.notifications = nil
	e.justCompleted = nil
	e.visited = make(map[string]bool)
	e.wizard.ClearWizard()
	persist := e.persist
	e.mu.Unlock()

	if persist != nil {
		ctx, cancel := context.WithTimeout(context.Background(), resetTimeout)
		defer cancel()
		persist.Reset(ctx)
	}
}

// ToggleCoachMarks flips guided mode; turning it off hides any open hint.
func (e *Engine) ToggleCoachMarks() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.coachMarks = !e.coachMarks
	if !e.coachMarks {
		e.showHint = false
	}
	e.persistLocked()
}

// ToggleHint flips hint visibility for the current step.
func (e *Engine) ToggleHint() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.showHint = !e.showHint
}

// SetIdmSetupComplete records whether the external IDM profile panel
// should render.
func (e *Engine) SetIdmSetupComplete(v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.idmSetupComplete = v
	e.persistLocked()
}

// DismissNotification removes one pending notification.
func (e *Engine) DismissNotification(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.notifications[:0]
	for _, n := range e.notifications {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	e.notifications = kept
}

// Close cancels pending timers and flushes debounced writes so no stale
// write lands after teardown.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.stopTimersLocked()
	persist := e.persist
	e.mu.Unlock()

	if persist != nil {
		persist.Close()
	}
}

func (e *Engine) stopTimersLocked() {
	for t := range e.timers {
		t.Stop()
	}
	e.timers = make(map[*time.Timer]struct{})
}

// persistLocked snapshots durable state into the dual-write adapter.
// Persistence is best-effort by design; the adapter never errors back.
func (e *Engine) persistLocked() {
	if e.persist == nil {
		return
	}
	e.persist.SaveProgress(e.stateLocked())
}

func (e *Engine) saveSessionLocked() {
	if e.persist == nil {
		return
	}
	e.persist.SaveSession(e.activeScenarioID, e.currentStepID)
}

func (e *Engine) stateLocked() *progress.State {
	st := progress.NewState()
	st.CompletedScenarios = sortedKeys(e.completedScenarios)
	st.CompletedModules = sortedKeys(e.completedModules)
	for id, entry := range e.scores {
		st.Scores[id] = entry
	}
	st.CoachMarksEnabled = e.coachMarks
	st.IdmSetupComplete = e.idmSetupComplete
	return st
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
