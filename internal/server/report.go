package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/cedarridge/idm-trainer/internal/content"
	"github.com/cedarridge/idm-trainer/internal/progress"
)

// ReportHandler exports a trainee's scores as a spreadsheet, one row per
// scenario attempt bucket, for supervisors reviewing training progress.
type ReportHandler struct {
	store   ProgressStore
	library *content.Library
}

// NewReportHandler creates the report handler.
func NewReportHandler(store ProgressStore, library *content.Library) *ReportHandler {
	return &ReportHandler{store: store, library: library}
}

// Register mounts the report route.
func (h *ReportHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/progress/report", h.handleReport)
}

func (h *ReportHandler) handleReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	rec, err := h.store.GetProgress(r.Context(), userID)
	if errors.Is(err, ErrNotFound) {
		rec = progress.NewState().ToWire()
	} else if err != nil {
		serverError(w, "load progress", err)
		return
	}

	f, err := BuildScoreReport(rec.ToState(), h.library)
	if err != nil {
		serverError(w, "build report", err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="training-report-%s.xlsx"`, time.Now().Format("2006-01-02")))
	if err := f.Write(w); err != nil {
		slog.Error("writing report", "error", err)
	}
}

// BuildScoreReport renders scores into a workbook: one row per scenario and
// mode, with a completion column from the completed-scenario set.
func BuildScoreReport(state *progress.State, library *content.Library) (*excelize.File, error) {
	f := excelize.NewFile()
	const sheet = "Scores"

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	headers := []string{"Scenario", "Title", "Mode", "Correct", "Total", "Time (s)", "Completed"}
	for i, hd := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, hd); err != nil {
			return nil, fmt.Errorf("writing header: %w", err)
		}
	}
	if err := f.SetColWidth(sheet, "A", "B", 28); err != nil {
		return nil, fmt.Errorf("sizing columns: %w", err)
	}

	completed := make(map[string]bool, len(state.CompletedScenarios))
	for _, id := range state.CompletedScenarios {
		completed[id] = true
	}

	scenarioIDs := make([]string, 0, len(state.Scores))
	for id := range state.Scores {
		scenarioIDs = append(scenarioIDs, id)
	}
	sort.Strings(scenarioIDs)

	row := 2
	for _, id := range scenarioIDs {
		entry := state.Scores[id]
		title := ""
		if scenario, ok := library.Scenario(id); ok {
			title = scenario.Title
		}

		for _, mode := range []struct {
			name   string
			bucket *progress.ScoreBucket
		}{
			{"guided", entry.Guided},
			{"unguided", entry.Unguided},
		} {
			if mode.bucket == nil {
				continue
			}
			values := []any{id, title, mode.name, mode.bucket.Correct, mode.bucket.Total}
			if mode.bucket.TimeMs != nil {
				values = append(values, float64(*mode.bucket.TimeMs)/1000.0)
			} else {
				values = append(values, "")
			}
			values = append(values, completed[id])

			for i, v := range values {
				cell, err := excelize.CoordinatesToCellName(i+1, row)
				if err != nil {
					return nil, fmt.Errorf("report cell: %w", err)
				}
				if err := f.SetCellValue(sheet, cell, v); err != nil {
					return nil, fmt.Errorf("writing row: %w", err)
				}
			}
			row++
		}
	}

	return f, nil
}
