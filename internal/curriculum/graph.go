// Package curriculum implements the prerequisite graph over modules that
// gates when training tickets unlock.
package curriculum

import (
	"log/slog"

	"github.com/cedarridge/idm-trainer/internal/content"
)

// Graph is the static prerequisite graph built once at load time.
type Graph struct {
	courses        []content.Course
	modules        map[string]content.Module
	scenarioModule map[string]string
	authored       map[string]bool
	order          []string
}

// NewGraph builds the graph from the loaded courses and the scenario
// registry. A module's scenario id is "authored" when a scenario with that
// id actually exists in the registry; curriculum drafted ahead of content
// may list ids that are not authored yet.
func NewGraph(courses []content.Course, scenarios []content.Scenario) *Graph {
	g := &Graph{
		courses:        courses,
		modules:        make(map[string]content.Module),
		scenarioModule: make(map[string]string),
		authored:       make(map[string]bool, len(scenarios)),
	}
	for _, s := range scenarios {
		g.authored[s.ID] = true
	}
	for _, course := range courses {
		for _, mod := range course.Modules {
			g.modules[mod.ID] = mod
			g.order = append(g.order, mod.ID)
			for _, sid := range mod.ScenarioIDs {
				g.scenarioModule[sid] = mod.ID
			}
		}
	}
	return g
}

// Courses returns the loaded courses in order.
func (g *Graph) Courses() []content.Course { return g.courses }

// Module returns a module by id.
func (g *Graph) Module(id string) (content.Module, bool) {
	m, ok := g.modules[id]
	return m, ok
}

// ModuleForScenario returns the module owning a scenario id.
func (g *Graph) ModuleForScenario(scenarioID string) (content.Module, bool) {
	modID, ok := g.scenarioModule[scenarioID]
	if !ok {
		return content.Module{}, false
	}
	return g.modules[modID], true
}

// ModuleOrder returns all module ids in course order.
func (g *Graph) ModuleOrder() []string { return g.order }

// AuthoredScenarios returns the module's scenario ids that exist in the
// scenario registry.
func (g *Graph) AuthoredScenarios(mod content.Module) []string {
	var out []string
	for _, sid := range mod.ScenarioIDs {
		if g.authored[sid] {
			out = append(out, sid)
		}
	}
	return out
}

// IsModuleComplete reports whether every authored scenario of the module is
// in the completed set. A module with zero authored scenarios is vacuously
// complete; that case is logged so drafted-ahead curriculum stays visible.
// This is the single implementation of the rule; locking reuses it.
func (g *Graph) IsModuleComplete(mod content.Module, completedScenarios map[string]bool) bool {
	authored := g.AuthoredScenarios(mod)
	if len(authored) == 0 {
		slog.Info("module has no authored scenarios, treating as complete", "module_id", mod.ID)
		return true
	}
	for _, sid := range authored {
		if !completedScenarios[sid] {
			return false
		}
	}
	return true
}

// IsModuleLocked reports whether the module's prerequisites are unmet. A
// prerequisite counts as satisfied when it is in the completed-module set,
// or when it is itself complete per IsModuleComplete (which covers the
// vacuous un-authored case even if the module was never explicitly marked).
func (g *Graph) IsModuleLocked(mod content.Module, completedModules, completedScenarios map[string]bool) bool {
	for _, preID := range mod.Prerequisites {
		if completedModules[preID] {
			continue
		}
		preMod, ok := g.modules[preID]
		if !ok {
			return true
		}
		if !g.IsModuleComplete(preMod, completedScenarios) {
			return true
		}
	}
	return false
}

// CurrentModule returns the first unlocked, incomplete module in course
// order. When every module is complete it returns the last one.
func (g *Graph) CurrentModule(completedModules, completedScenarios map[string]bool) (content.Module, bool) {
	var last content.Module
	found := false
	for _, course := range g.courses {
		for _, mod := range course.Modules {
			last = mod
			found = true
			if g.IsModuleLocked(mod, completedModules, completedScenarios) {
				continue
			}
			if !g.IsModuleComplete(mod, completedScenarios) {
				return mod, true
			}
		}
	}
	return last, found
}
