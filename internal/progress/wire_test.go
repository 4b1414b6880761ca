package progress_test

import (
	"encoding/json"
	"testing"

	"github.com/cedarridge/idm-trainer/internal/progress"
)

func TestProgressRecord_Defaults(t *testing.T) {
	// An empty JSON object is a valid record; every field defaults.
	rec := &progress.ProgressRecord{}
	if err := json.Unmarshal([]byte(`{}`), rec); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	state := rec.ToState()
	if state.CompletedScenarios == nil || len(state.CompletedScenarios) != 0 {
		t.Errorf("CompletedScenarios = %v, want empty slice", state.CompletedScenarios)
	}
	if state.Scores == nil {
		t.Error("Scores should default to an empty map")
	}
	if !state.CoachMarksEnabled {
		t.Error("coach_marks_enabled should default true")
	}
	if state.IdmSetupComplete {
		t.Error("idm_setup_complete should default false")
	}
	if state.Version != progress.StateVersion {
		t.Errorf("Version = %d, want %d", state.Version, progress.StateVersion)
	}
}

func TestProgressRecord_ExplicitFalseIsNotDefaulted(t *testing.T) {
	rec := &progress.ProgressRecord{}
	if err := json.Unmarshal([]byte(`{"coach_marks_enabled": false}`), rec); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if rec.ToState().CoachMarksEnabled {
		t.Error("explicit false must survive decoding, not revert to the default")
	}
}

func TestState_WireRoundTrip(t *testing.T) {
	elapsed := int64(30_000)
	state := progress.NewState()
	state.CompletedScenarios = []string{"reset-pw"}
	state.CompletedModules = []string{"basics"}
	state.Scores["reset-pw"] = progress.ScoreEntry{
		Guided: &progress.ScoreBucket{Correct: 3, Total: 4, StartTime: 1000, TimeMs: &elapsed},
	}
	state.CoachMarksEnabled = false
	state.IdmSetupComplete = true

	data, err := json.Marshal(state.ToWire())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	decoded := &progress.ProgressRecord{}
	if err := json.Unmarshal(data, decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	got := decoded.ToState()
	if got.CoachMarksEnabled || !got.IdmSetupComplete {
		t.Errorf("flags = coach %v, idm %v", got.CoachMarksEnabled, got.IdmSetupComplete)
	}
	entry := got.Scores["reset-pw"]
	if entry.Guided == nil || entry.Guided.Correct != 3 || entry.Guided.TimeMs == nil || *entry.Guided.TimeMs != elapsed {
		t.Errorf("guided bucket = %+v", entry.Guided)
	}
	if entry.Unguided != nil {
		t.Errorf("unguided bucket = %+v, want nil", entry.Unguided)
	}
}

func TestSessionRecord(t *testing.T) {
	rec := progress.NewSessionRecord("reset-pw", "s2")
	scenario, step := rec.Position()
	if scenario != "reset-pw" || step != "s2" {
		t.Errorf("Position() = %q, %q", scenario, step)
	}

	data, err := json.Marshal(progress.NewSessionRecord("", ""))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"active_scenario_id":null,"current_step_id":null}` {
		t.Errorf("empty session on the wire = %s, want explicit nulls", data)
	}

	var nilRec *progress.SessionRecord
	if s, st := nilRec.Position(); s != "" || st != "" {
		t.Errorf("nil record Position() = %q, %q, want empty", s, st)
	}
}
