// Package variant resolves the display dataset shown alongside a scenario:
// a shared baseline plus per-scenario overrides, merged without ever
// mutating the baseline.
package variant

import (
	"log/slog"
	"sync"

	"github.com/cedarridge/idm-trainer/internal/content"
)

// ApplyOverrides merges overrides onto base and returns a new map. Merging
// is one level deep: a nested map override merges key-by-key into the
// corresponding base map, while any other value (including arrays) replaces
// the base value wholesale. Neither input is mutated.
func ApplyOverrides(base, overrides map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		ov, ovIsMap := v.(map[string]any)
		bv, bvIsMap := out[k].(map[string]any)
		if ovIsMap && bvIsMap {
			merged := make(map[string]any, len(bv)+len(ov))
			for nk, nv := range bv {
				merged[nk] = nv
			}
			for nk, nv := range ov {
				merged[nk] = nv
			}
			out[k] = merged
			continue
		}
		out[k] = v
	}
	return out
}

// Resolver serves the dataset variant for whichever scenario is active.
type Resolver struct {
	baseline map[string]any
	library  *content.Library
}

// NewResolver wraps a baseline dataset. The baseline is treated as
// immutable after this call.
func NewResolver(baseline map[string]any, library *content.Library) *Resolver {
	if baseline == nil {
		baseline = make(map[string]any)
	}
	return &Resolver{baseline: baseline, library: library}
}

// Baseline returns the unmodified baseline dataset.
func (r *Resolver) Baseline() map[string]any { return r.baseline }

// Resolve returns the dataset for the given active scenario. An empty id,
// an unknown scenario, or a scenario without overrides all yield the
// baseline itself; only an actual override pays the copy cost.
func (r *Resolver) Resolve(activeScenarioID string) map[string]any {
	if activeScenarioID == "" {
		return r.baseline
	}
	scenario, ok := r.library.Scenario(activeScenarioID)
	if !ok {
		slog.Warn("resolving dataset for unknown scenario", "scenario_id", activeScenarioID)
		return r.baseline
	}
	if scenario.Settings == nil || len(scenario.Settings.DataOverrides) == 0 {
		return r.baseline
	}
	return ApplyOverrides(r.baseline, scenario.Settings.DataOverrides)
}

// View is a stateful single-session handle over a shared Resolver: the
// caller records which scenario is active and reads the merged dataset
// without threading the id through every call site.
type View struct {
	resolver *Resolver

	mu     sync.Mutex
	active string
}

// NewView creates a view with no active scenario.
func (r *Resolver) NewView() *View {
	return &View{resolver: r}
}

// SetScenario marks the scenario whose overrides should apply.
func (v *View) SetScenario(scenarioID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.active = scenarioID
}

// ClearScenario returns the view to the baseline. Clearing with nothing
// active is a no-op.
func (v *View) ClearScenario() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.active = ""
}

// Dataset returns the merged dataset for the view's active scenario.
func (v *View) Dataset() map[string]any {
	v.mu.Lock()
	active := v.active
	v.mu.Unlock()
	return v.resolver.Resolve(active)
}
