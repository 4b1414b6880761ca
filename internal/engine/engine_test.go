package engine_test

import (
	"testing"

	"github.com/cedarridge/idm-trainer/internal/content"
	"github.com/cedarridge/idm-trainer/internal/curriculum"
	"github.com/cedarridge/idm-trainer/internal/engine"
	"github.com/cedarridge/idm-trainer/internal/progress"
)

func boolPtr(b bool) *bool { return &b }

// ticket-a: choice -> freetext -> goal -> resolution. ticket-b unlocks
// after the first module completes.
func testLibrary() *content.Library {
	scenarios := []content.Scenario{
		{
			ID:            "ticket-a",
			Title:         "Password Reset",
			TicketSubject: "Can't log in",
			CustomerID:    "marcus",
			ModuleID:      "m1",
			NextScenario:  "ticket-b",
			Steps: []content.Step{
				{
					ID: "s1", Type: "message", Question: "How do you start?",
					AutoShowHint: true,
					Hint:         &content.Hint{Message: "Ask for the username"},
					Choices: []content.Choice{
						{Label: "Verify first", Correct: boolPtr(true), NextStep: "s2"},
						{Label: "Reset blindly", NextStep: "s2", UnguidedNextStep: "s1b"},
					},
				},
				{
					ID: "s1b", Type: "message", Question: "That backfired. Now what?",
					Choices: []content.Choice{
						{Label: "Start over", Correct: boolPtr(true), NextStep: "s2"},
					},
				},
				{
					ID: "s2", Type: "input", Question: "Last name on the account?",
					CorrectAnswer: content.NewAnswer("webb"),
					SuccessStep:   "s3",
				},
				{
					ID: "s3", Type: "task", GuideMessage: "Open the account page",
					GoalRoute: "account-detail", NextStep: "s4",
				},
				{
					ID: "s4", Type: "resolution", Question: "Wrap up?",
					Choices: []content.Choice{
						{Label: "Resolve", Correct: boolPtr(true)},
					},
				},
			},
		},
		{
			ID:            "ticket-b",
			Title:         "Locked Account",
			TicketSubject: "Locked out",
			CustomerID:    "dana",
			ModuleID:      "m2",
			Steps: []content.Step{
				{
					ID: "t1", Type: "resolution", Question: "Done?",
					Choices: []content.Choice{
						{Label: "Resolve", Correct: boolPtr(true)},
					},
				},
			},
		},
	}
	return content.NewLibrary(scenarios, testCourses(), map[string]content.Character{
		"marcus": {Name: "Marcus"},
		"dana":   {Name: "Dana"},
	})
}

func testCourses() []content.Course {
	return []content.Course{{
		ID: "course",
		Modules: []content.Module{
			{ID: "m1", ScenarioIDs: []string{"ticket-a"}},
			{ID: "m2", Prerequisites: []string{"m1"}, ScenarioIDs: []string{"ticket-b"}},
		},
	}}
}

// newTestEngine runs with negative delays so every advance is synchronous.
func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	lib := testLibrary()
	eng := engine.New(engine.Config{
		Library:      lib,
		Graph:        curriculum.NewGraph(lib.Courses, lib.Scenarios),
		StepDelay:    -1,
		CascadeDelay: -1,
	})
	t.Cleanup(eng.Close)
	return eng
}

func choose(eng *engine.Engine, c content.Choice) {
	eng.HandleAction(engine.Action{
		Type:             "choice",
		Label:            c.Label,
		Correct:          c.Correct,
		NextStep:         c.NextStep,
		UnguidedNextStep: c.UnguidedNextStep,
	})
}

func TestEngine_GuidedRunToCompletion(t *testing.T) {
	eng := newTestEngine(t)

	eng.AcceptTicket("ticket-a", true)
	snap := eng.Snapshot()
	if snap.ActiveScenarioID != "ticket-a" || snap.CurrentStepID != "s1" {
		t.Fatalf("after accept: scenario=%q step=%q", snap.ActiveScenarioID, snap.CurrentStepID)
	}
	if !snap.ShowHint {
		t.Error("autoShowHint step should open its hint in guided mode")
	}

	choose(eng, content.Choice{Correct: boolPtr(true), NextStep: "s2"})
	eng.HandleAction(engine.Action{Type: engine.ActionSubmittedAnswer, Text: "  Webb "})
	eng.CheckNavigationGoal("account-detail")
	choose(eng, content.Choice{Correct: boolPtr(true)})

	snap = eng.Snapshot()
	if snap.ActiveScenarioID != "" {
		t.Errorf("scenario still active after terminal choice: %q", snap.ActiveScenarioID)
	}
	if len(snap.CompletedScenarios) != 1 || snap.CompletedScenarios[0] != "ticket-a" {
		t.Errorf("CompletedScenarios = %v, want [ticket-a]", snap.CompletedScenarios)
	}
	if len(snap.CompletedModules) != 1 || snap.CompletedModules[0] != "m1" {
		t.Errorf("CompletedModules = %v, want [m1]", snap.CompletedModules)
	}

	entry := snap.Scores["ticket-a"]
	if entry.Guided == nil {
		t.Fatal("guided score bucket missing")
	}
	if entry.Guided.Correct != 3 || entry.Guided.Total != 3 {
		t.Errorf("guided score = %d/%d, want 3/3", entry.Guided.Correct, entry.Guided.Total)
	}
	if entry.Guided.TimeMs == nil {
		t.Error("completion should stamp elapsed time")
	}
	if snap.GlobalScore != 3 {
		t.Errorf("GlobalScore = %d, want 3", snap.GlobalScore)
	}

	if snap.JustCompleted == nil {
		t.Fatal("JustCompleted missing")
	}
	if snap.JustCompleted.Mode != engine.ModeGuided || snap.JustCompleted.NextScenario != "ticket-b" {
		t.Errorf("JustCompleted = %+v", snap.JustCompleted)
	}

	// Completing m1 unlocks m2; its authored scenario gets a notification.
	if len(snap.Notifications) != 1 {
		t.Fatalf("Notifications = %v, want one for ticket-b", snap.Notifications)
	}
	n := snap.Notifications[0]
	if n.ScenarioID != "ticket-b" || n.ModuleID != "m2" || n.ID == "" {
		t.Errorf("notification = %+v", n)
	}
}

func TestEngine_UnguidedBranching(t *testing.T) {
	eng := newTestEngine(t)

	eng.AcceptTicket("ticket-a", false)
	if snap := eng.Snapshot(); snap.ShowHint {
		t.Error("hints stay closed in unguided mode")
	}

	// The wrong choice routes to the remediation step when coach marks
	// are off.
	choose(eng, content.Choice{NextStep: "s2", UnguidedNextStep: "s1b"})

	snap := eng.Snapshot()
	if snap.CurrentStepID != "s1b" {
		t.Errorf("CurrentStepID = %q, want s1b via unguidedNextStep", snap.CurrentStepID)
	}
	if b := snap.Scores["ticket-a"].Unguided; b == nil || b.Total != 0 {
		t.Errorf("unscored choice (no correct flag) must not touch the bucket, got %+v", b)
	}
}

func TestEngine_GuidedIgnoresUnguidedOverride(t *testing.T) {
	eng := newTestEngine(t)

	eng.AcceptTicket("ticket-a", true)
	choose(eng, content.Choice{NextStep: "s2", UnguidedNextStep: "s1b"})

	if snap := eng.Snapshot(); snap.CurrentStepID != "s2" {
		t.Errorf("CurrentStepID = %q, want s2 in guided mode", snap.CurrentStepID)
	}
}

func TestEngine_WrongAnswerKeepsStepActive(t *testing.T) {
	eng := newTestEngine(t)

	eng.AcceptTicket("ticket-a", true)
	choose(eng, content.Choice{Correct: boolPtr(true), NextStep: "s2"})

	eng.HandleAction(engine.Action{Type: engine.ActionSubmittedAnswer, Text: "wrong"})

	snap := eng.Snapshot()
	if snap.CurrentStepID != "s2" {
		t.Errorf("CurrentStepID = %q, wrong answer should not advance", snap.CurrentStepID)
	}
	entry := snap.Scores["ticket-a"]
	if entry.Guided.Total != 2 || entry.Guided.Correct != 1 {
		t.Errorf("score = %d/%d, want 1/2 (attempt counted, not correct)", entry.Guided.Correct, entry.Guided.Total)
	}

	// Retrying with the right answer still advances.
	eng.HandleAction(engine.Action{Type: engine.ActionSubmittedAnswer, Text: "webb"})
	if snap := eng.Snapshot(); snap.CurrentStepID != "s3" {
		t.Errorf("CurrentStepID = %q, want s3 after the retry", snap.CurrentStepID)
	}
}

func TestEngine_GoalSignalIsLevelTriggered(t *testing.T) {
	eng := newTestEngine(t)

	eng.AcceptTicket("ticket-a", true)

	// The trainee navigates to the target page before the goal step is
	// even current. The retained signal must still satisfy the goal when
	// the step arrives.
	eng.CheckNavigationGoal("account-detail")

	choose(eng, content.Choice{Correct: boolPtr(true), NextStep: "s2"})
	eng.HandleAction(engine.Action{Type: engine.ActionSubmittedAnswer, Text: "webb"})

	snap := eng.Snapshot()
	if snap.CurrentStepID != "s4" {
		t.Errorf("CurrentStepID = %q, want s4 (goal auto-satisfied by retained signal)", snap.CurrentStepID)
	}
}

func TestEngine_GoalSignalRapidFire(t *testing.T) {
	eng := newTestEngine(t)

	eng.AcceptTicket("ticket-a", true)
	choose(eng, content.Choice{Correct: boolPtr(true), NextStep: "s2"})
	eng.HandleAction(engine.Action{Type: engine.ActionSubmittedAnswer, Text: "webb"})

	// Repeated identical signals on the now-passed goal must be no-ops.
	eng.CheckNavigationGoal("account-detail")
	eng.CheckNavigationGoal("account-detail")
	eng.CheckNavigationGoal("account-detail")

	snap := eng.Snapshot()
	if snap.CurrentStepID != "s4" {
		t.Errorf("CurrentStepID = %q, want s4", snap.CurrentStepID)
	}
	if snap.ActiveScenarioID != "ticket-a" {
		t.Errorf("repeated goal signals must not complete the scenario, active = %q", snap.ActiveScenarioID)
	}
}

func TestEngine_NonMatchingGoalSignalIgnored(t *testing.T) {
	eng := newTestEngine(t)

	eng.AcceptTicket("ticket-a", true)
	choose(eng, content.Choice{Correct: boolPtr(true), NextStep: "s2"})
	eng.HandleAction(engine.Action{Type: engine.ActionSubmittedAnswer, Text: "webb"})

	eng.CheckNavigationGoal("some-other-page")
	eng.CheckActionGoal("unrelated-action")

	if snap := eng.Snapshot(); snap.CurrentStepID != "s3" {
		t.Errorf("CurrentStepID = %q, want s3 (goal unmet)", snap.CurrentStepID)
	}
}

func TestEngine_AcceptTicketGuards(t *testing.T) {
	eng := newTestEngine(t)

	eng.AcceptTicket("no-such-ticket", true)
	if snap := eng.Snapshot(); snap.ActiveScenarioID != "" {
		t.Errorf("unknown id should be a no-op, active = %q", snap.ActiveScenarioID)
	}

	eng.AcceptTicket("ticket-a", true)
	eng.AcceptTicket("ticket-b", true)
	if snap := eng.Snapshot(); snap.ActiveScenarioID != "ticket-a" {
		t.Errorf("mid-scenario accept should be a no-op, active = %q", snap.ActiveScenarioID)
	}
}

func TestEngine_SkipTicket(t *testing.T) {
	eng := newTestEngine(t)

	eng.AcceptTicket("ticket-a", true)
	choose(eng, content.Choice{Correct: boolPtr(true), NextStep: "s2"})
	eng.SkipTicket()

	snap := eng.Snapshot()
	if snap.ActiveScenarioID != "" {
		t.Errorf("still active after skip: %q", snap.ActiveScenarioID)
	}
	if len(snap.CompletedScenarios) != 1 {
		t.Errorf("skipped scenario should be marked completed: %v", snap.CompletedScenarios)
	}
	if snap.JustCompleted != nil {
		t.Error("skip must not publish a completion record")
	}
	if entry := snap.Scores["ticket-a"]; entry.Guided != nil && entry.Guided.TimeMs != nil {
		t.Error("skip must not finalize the score")
	}
}

func TestEngine_ReplayScenario(t *testing.T) {
	eng := newTestEngine(t)

	runToCompletion(t, eng)

	eng.ReplayScenario("ticket-a")
	snap := eng.Snapshot()
	if len(snap.CompletedScenarios) != 0 {
		t.Errorf("CompletedScenarios = %v, want empty after replay", snap.CompletedScenarios)
	}
	if _, ok := snap.Scores["ticket-a"]; ok {
		t.Error("replay should discard both score buckets")
	}
	if len(snap.CompletedModules) != 0 {
		t.Errorf("CompletedModules = %v, module should be un-marked", snap.CompletedModules)
	}
}

func TestEngine_ReplayWhileActiveIsNoOp(t *testing.T) {
	eng := newTestEngine(t)

	eng.AcceptTicket("ticket-a", true)
	eng.ReplayScenario("ticket-a")

	if snap := eng.Snapshot(); snap.ActiveScenarioID != "ticket-a" {
		t.Errorf("replay mid-scenario should be a no-op, active = %q", snap.ActiveScenarioID)
	}
}

func TestEngine_ReturnToInboxKeepsCompletion(t *testing.T) {
	eng := newTestEngine(t)

	runToCompletion(t, eng)
	eng.ReturnToInbox()

	snap := eng.Snapshot()
	if snap.JustCompleted == nil {
		t.Error("completion record must survive the return to inbox")
	}

	if c := eng.ConsumeCompletion(); c == nil {
		t.Fatal("ConsumeCompletion() = nil")
	}
	if c := eng.ConsumeCompletion(); c != nil {
		t.Error("completion must be consumable exactly once")
	}
}

func TestEngine_ToggleCoachMarksHidesHint(t *testing.T) {
	eng := newTestEngine(t)

	eng.AcceptTicket("ticket-a", true)
	if snap := eng.Snapshot(); !snap.ShowHint {
		t.Fatal("expected an open hint to start from")
	}

	eng.ToggleCoachMarks()
	snap := eng.Snapshot()
	if snap.CoachMarksEnabled {
		t.Error("coach marks should be off after toggle")
	}
	if snap.ShowHint {
		t.Error("turning coach marks off must close the hint")
	}
}

func TestEngine_ResetAllProgress(t *testing.T) {
	eng := newTestEngine(t)

	runToCompletion(t, eng)
	eng.ToggleCoachMarks()
	eng.SetIdmSetupComplete(true)

	eng.ResetAllProgress()

	snap := eng.Snapshot()
	if len(snap.CompletedScenarios) != 0 || len(snap.CompletedModules) != 0 || len(snap.Scores) != 0 {
		t.Errorf("durable state survived reset: %+v", snap)
	}
	if !snap.CoachMarksEnabled {
		t.Error("coach marks should reset to enabled")
	}
	if snap.IdmSetupComplete {
		t.Error("idm setup flag should reset to false")
	}
	if len(snap.Notifications) != 0 {
		t.Errorf("Notifications = %v, want cleared", snap.Notifications)
	}
}

func TestEngine_DismissNotification(t *testing.T) {
	eng := newTestEngine(t)

	runToCompletion(t, eng)
	snap := eng.Snapshot()
	if len(snap.Notifications) != 1 {
		t.Fatalf("Notifications = %v, want exactly one", snap.Notifications)
	}

	eng.DismissNotification(snap.Notifications[0].ID)
	if snap := eng.Snapshot(); len(snap.Notifications) != 0 {
		t.Errorf("Notifications = %v, want empty after dismiss", snap.Notifications)
	}
}

func TestEngine_AvailableTickets(t *testing.T) {
	eng := newTestEngine(t)

	snap := eng.Snapshot()
	if len(snap.AvailableTickets) != 1 || snap.AvailableTickets[0].ScenarioID != "ticket-a" {
		t.Fatalf("AvailableTickets = %v, want just ticket-a while m2 is locked", snap.AvailableTickets)
	}
	if !snap.WaitingForTicket {
		t.Error("WaitingForTicket should be true while idle with open tickets")
	}
	if snap.CurrentModuleID != "m1" {
		t.Errorf("CurrentModuleID = %q, want m1", snap.CurrentModuleID)
	}

	runToCompletion(t, eng)

	snap = eng.Snapshot()
	if len(snap.AvailableTickets) != 1 || snap.AvailableTickets[0].ScenarioID != "ticket-b" {
		t.Errorf("AvailableTickets = %v, want ticket-b after m1 completes", snap.AvailableTickets)
	}
	if snap.CurrentModuleID != "m2" {
		t.Errorf("CurrentModuleID = %q, want m2", snap.CurrentModuleID)
	}
}

func TestEngine_VisitedStepsInAuthoredOrder(t *testing.T) {
	eng := newTestEngine(t)

	eng.AcceptTicket("ticket-a", true)
	choose(eng, content.Choice{Correct: boolPtr(true), NextStep: "s2"})
	eng.HandleAction(engine.Action{Type: engine.ActionSubmittedAnswer, Text: "webb"})

	snap := eng.Snapshot()
	want := []string{"s1", "s2", "s3"}
	if len(snap.VisitedStepIDs) != len(want) {
		t.Fatalf("VisitedStepIDs = %v, want %v", snap.VisitedStepIDs, want)
	}
	for i, id := range want {
		if snap.VisitedStepIDs[i] != id {
			t.Fatalf("VisitedStepIDs = %v, want %v", snap.VisitedStepIDs, want)
		}
	}
}

func strPtr(s string) *string { return &s }

func TestEngine_HydrateResumesSavedSession(t *testing.T) {
	lib := testLibrary()
	graph := curriculum.NewGraph(lib.Courses, lib.Scenarios)
	local := progress.NewLocalStore(t.TempDir())
	local.SaveSession(&progress.SessionRecord{
		ActiveScenarioID: strPtr("ticket-a"),
		CurrentStepID:    strPtr("s3"),
	})

	eng := engine.New(engine.Config{
		Library:      lib,
		Graph:        graph,
		Progress:     progress.NewManager(local, nil, 0),
		StepDelay:    -1,
		CascadeDelay: -1,
	})
	t.Cleanup(eng.Close)
	eng.Hydrate(t.Context())

	snap := eng.Snapshot()
	if snap.ActiveScenarioID != "ticket-a" || snap.CurrentStepID != "s3" {
		t.Fatalf("after hydrate: scenario=%q step=%q, want ticket-a/s3",
			snap.ActiveScenarioID, snap.CurrentStepID)
	}

	// Recovery replays the visited set as every authored step up to and
	// including the recovered one, branch steps included.
	want := []string{"s1", "s1b", "s2", "s3"}
	if len(snap.VisitedStepIDs) != len(want) {
		t.Fatalf("VisitedStepIDs = %v, want %v", snap.VisitedStepIDs, want)
	}
	for i, id := range want {
		if snap.VisitedStepIDs[i] != id {
			t.Fatalf("VisitedStepIDs = %v, want %v", snap.VisitedStepIDs, want)
		}
	}

	// The resumed scenario keeps working: satisfy the goal and resolve.
	eng.CheckNavigationGoal("account-detail")
	choose(eng, content.Choice{Correct: boolPtr(true)})
	snap = eng.Snapshot()
	if snap.ActiveScenarioID != "" || len(snap.CompletedScenarios) != 1 {
		t.Fatalf("after resuming to completion: scenario=%q completed=%v",
			snap.ActiveScenarioID, snap.CompletedScenarios)
	}
}

func TestEngine_HydrateWithoutSessionStaysIdle(t *testing.T) {
	lib := testLibrary()
	eng := engine.New(engine.Config{
		Library:      lib,
		Graph:        curriculum.NewGraph(lib.Courses, lib.Scenarios),
		Progress:     progress.NewManager(progress.NewLocalStore(t.TempDir()), nil, 0),
		StepDelay:    -1,
		CascadeDelay: -1,
	})
	t.Cleanup(eng.Close)
	eng.Hydrate(t.Context())

	snap := eng.Snapshot()
	if snap.ActiveScenarioID != "" || snap.CurrentStepID != "" {
		t.Fatalf("fresh hydrate should stay idle, got scenario=%q step=%q",
			snap.ActiveScenarioID, snap.CurrentStepID)
	}
}

type recordingWizard struct {
	cleared int
}

func (w *recordingWizard) ClearWizard() { w.cleared++ }

func TestEngine_ClearWizardStateOnAccept(t *testing.T) {
	scenarios := []content.Scenario{{
		ID:         "setup-sim",
		ModuleID:   "m1",
		CustomerID: "marcus",
		Settings:   &content.Settings{ClearWizardState: true},
		Steps: []content.Step{{
			ID: "only", Type: "resolution", Question: "Done?",
			Choices: []content.Choice{{Label: "Yes", Correct: boolPtr(true)}},
		}},
	}}
	courses := []content.Course{{Modules: []content.Module{{ID: "m1", ScenarioIDs: []string{"setup-sim"}}}}}
	lib := content.NewLibrary(scenarios, courses, nil)

	wizard := &recordingWizard{}
	eng := engine.New(engine.Config{
		Library:      lib,
		Graph:        curriculum.NewGraph(courses, scenarios),
		Wizard:       wizard,
		StepDelay:    -1,
		CascadeDelay: -1,
	})
	defer eng.Close()

	eng.SetIdmSetupComplete(true)
	eng.AcceptTicket("setup-sim", true)

	if wizard.cleared != 1 {
		t.Errorf("ClearWizard calls = %d, want 1", wizard.cleared)
	}
	if snap := eng.Snapshot(); snap.IdmSetupComplete {
		t.Error("accepting a clearWizardState scenario should drop the idm setup flag")
	}
}

func runToCompletion(t *testing.T, eng *engine.Engine) {
	t.Helper()
	eng.AcceptTicket("ticket-a", true)
	choose(eng, content.Choice{Correct: boolPtr(true), NextStep: "s2"})
	eng.HandleAction(engine.Action{Type: engine.ActionSubmittedAnswer, Text: "webb"})
	eng.CheckNavigationGoal("account-detail")
	choose(eng, content.Choice{Correct: boolPtr(true)})

	if snap := eng.Snapshot(); snap.ActiveScenarioID != "" {
		t.Fatalf("scenario did not complete, still at %q", snap.CurrentStepID)
	}
}
