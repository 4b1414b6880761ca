package progress

import "encoding/json"

// The migration chain operates on the decoded JSON map rather than on
// typed structs so that each migrator can see exactly the shape its source
// version wrote, field renames included.

// MigrateV1toV2 wraps the v1 flat score shape into the v2 per-mode shape.
// v1 scores were all recorded in guided mode (the only mode that existed),
// so legacy numbers land in the guided bucket. Entries already carrying a
// guided/unguided key pass through; malformed entries reset to empty
// buckets rather than being dropped without normalization.
func MigrateV1toV2(state map[string]any) map[string]any {
	migrated := cloneMap(state)
	migrated["version"] = 2

	scores, ok := state["scores"].(map[string]any)
	if !ok {
		return migrated
	}

	newScores := make(map[string]any, len(scores))
	for scenarioID, raw := range scores {
		entry, isMap := raw.(map[string]any)
		switch {
		case isMap && (hasKey(entry, "guided") || hasKey(entry, "unguided")):
			newScores[scenarioID] = entry
		case isMap:
			newScores[scenarioID] = map[string]any{"guided": entry, "unguided": nil}
		default:
			newScores[scenarioID] = map[string]any{"guided": nil, "unguided": nil}
		}
	}
	migrated["scores"] = newScores
	return migrated
}

// MigrateV2toV3 adds the idmSetupComplete flag. Users with any completed
// scenario have already seen the configured IDM, so they get true; fresh
// users get false via the initial-state defaults.
func MigrateV2toV3(state map[string]any) map[string]any {
	migrated := cloneMap(state)
	migrated["version"] = 3

	completed, _ := state["completedScenarios"].([]any)
	migrated["idmSetupComplete"] = len(completed) > 0
	return migrated
}

// migrations is the ordered chain. Each entry migrates fromVersion to
// fromVersion+1.
var migrations = []struct {
	fromVersion int
	migrate     func(map[string]any) map[string]any
}{
	{1, MigrateV1toV2},
	{2, MigrateV2toV3},
}

// Migrate runs the chain over a parsed state map. It returns nil for nil
// input and nil when the chain cannot reach the current version, never a
// partially migrated object.
func Migrate(state map[string]any) map[string]any {
	if state == nil {
		return nil
	}

	current := state
	for _, m := range migrations {
		if stateVersion(current) == m.fromVersion {
			current = m.migrate(current)
		}
	}

	if stateVersion(current) != StateVersion {
		return nil
	}
	return current
}

// DecodeState converts a migrated state map into the typed State.
func DecodeState(state map[string]any) (*State, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	decoded := NewState()
	if err := json.Unmarshal(raw, decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

// stateVersion reads the version field, defaulting to 1 when absent: the
// first released shape predates version stamping.
func stateVersion(state map[string]any) int {
	switch v := state["version"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 1
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func hasKey(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}
