package server_test

import (
	"testing"

	"github.com/cedarridge/idm-trainer/internal/content"
	"github.com/cedarridge/idm-trainer/internal/progress"
	"github.com/cedarridge/idm-trainer/internal/server"
)

func TestBuildScoreReport(t *testing.T) {
	lib := content.NewLibrary([]content.Scenario{
		{ID: "reset-pw", Title: "Password Reset"},
		{ID: "locked-account", Title: "Locked Account"},
	}, nil, nil)

	elapsed := int64(45_000)
	state := progress.NewState()
	state.CompletedScenarios = []string{"reset-pw"}
	state.Scores["reset-pw"] = progress.ScoreEntry{
		Guided:   &progress.ScoreBucket{Correct: 3, Total: 4, StartTime: 100, TimeMs: &elapsed},
		Unguided: &progress.ScoreBucket{Correct: 2, Total: 4, StartTime: 200},
	}
	state.Scores["locked-account"] = progress.ScoreEntry{
		Guided: &progress.ScoreBucket{Correct: 1, Total: 2, StartTime: 300},
	}

	f, err := server.BuildScoreReport(state, lib)
	if err != nil {
		t.Fatalf("BuildScoreReport() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Scores")
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}

	// Header plus three bucket rows (two modes for reset-pw, one for
	// locked-account), scenario ids sorted.
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want 4:\n%v", len(rows), rows)
	}
	if rows[0][0] != "Scenario" || rows[0][2] != "Mode" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][0] != "locked-account" || rows[1][1] != "Locked Account" {
		t.Errorf("first data row = %v, want locked-account (sorted)", rows[1])
	}
	if rows[2][0] != "reset-pw" || rows[2][2] != "guided" {
		t.Errorf("second data row = %v, want reset-pw guided", rows[2])
	}
	if rows[2][3] != "3" || rows[2][4] != "4" {
		t.Errorf("guided counts = %v/%v, want 3/4", rows[2][3], rows[2][4])
	}
	if rows[2][5] != "45" {
		t.Errorf("time column = %v, want 45 seconds", rows[2][5])
	}
	if rows[3][2] != "unguided" {
		t.Errorf("third data row = %v, want reset-pw unguided", rows[3])
	}
}

func TestBuildScoreReport_EmptyState(t *testing.T) {
	lib := content.NewLibrary(nil, nil, nil)

	f, err := server.BuildScoreReport(progress.NewState(), lib)
	if err != nil {
		t.Fatalf("BuildScoreReport() error = %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Scores")
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("rows = %d, want header only", len(rows))
	}
}
