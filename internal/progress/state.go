// Package progress owns the durable trainee state: the versioned persisted
// shape, its migration chain, the snake_case wire codec, and the dual-write
// adapter over a synchronous local cache and an asynchronous remote store.
package progress

// StateVersion is the current persisted-state schema version.
const StateVersion = 3

// ScoreBucket accumulates correctness and timing for one scenario attempt
// in one mode. StartTime is unix milliseconds; TimeMs is stamped once at
// scenario completion.
type ScoreBucket struct {
	Correct   int    `json:"correct"`
	Total     int    `json:"total"`
	StartTime int64  `json:"startTime"`
	TimeMs    *int64 `json:"timeMs,omitempty"`
}

// ScoreEntry holds the two independent per-mode buckets for one scenario.
// Replaying in one mode never clobbers the other mode's history.
type ScoreEntry struct {
	Guided   *ScoreBucket `json:"guided"`
	Unguided *ScoreBucket `json:"unguided"`
}

// Bucket returns the bucket for a mode key ("guided" or "unguided").
func (e *ScoreEntry) Bucket(mode string) *ScoreBucket {
	if e == nil {
		return nil
	}
	if mode == "guided" {
		return e.Guided
	}
	return e.Unguided
}

// SetBucket replaces the bucket for a mode key.
func (e *ScoreEntry) SetBucket(mode string, b *ScoreBucket) {
	if mode == "guided" {
		e.Guided = b
	} else {
		e.Unguided = b
	}
}

// State is the durable progress record.
type State struct {
	CompletedScenarios []string              `json:"completedScenarios"`
	CompletedModules   []string              `json:"completedModules"`
	Scores             map[string]ScoreEntry `json:"scores"`
	CoachMarksEnabled  bool                  `json:"coachMarksEnabled"`
	IdmSetupComplete   bool                  `json:"idmSetupComplete"`
	Version            int                   `json:"version"`
}

// NewState returns an empty state at the current version with the default
// flags (coach marks on, IDM setup not yet done).
func NewState() *State {
	return &State{
		CompletedScenarios: []string{},
		CompletedModules:   []string{},
		Scores:             map[string]ScoreEntry{},
		CoachMarksEnabled:  true,
		IdmSetupComplete:   false,
		Version:            StateVersion,
	}
}
