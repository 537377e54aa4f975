package tools

import (
	"fmt"
	"slices"
	"strings"

	aierrors "github.com/hrygo/agentcore/internal/errors"
)

// ChainStep is one tool invocation of a plan. Args may contain
// {{stepId.path}} bindings to results of steps in DependsOn.
type ChainStep struct {
	ID        string         `json:"id"`
	ToolName  string         `json:"tool_name"`
	Args      map[string]any `json:"args"`
	DependsOn []string       `json:"depends_on,omitempty"`

	// Parallel marks steps that share no dependency chain with another step
	// of the same level and may run concurrently with it.
	Parallel bool `json:"parallel,omitempty"`
	// NeedsMoreInfo steps are surfaced to the user instead of executed.
	NeedsMoreInfo bool     `json:"needs_more_info,omitempty"`
	Missing       []string `json:"missing,omitempty"`
}

// ChainPlan is a DAG of steps in planner order.
type ChainPlan struct {
	Steps []ChainStep `json:"steps"`
	// NeedsMoreInfo is true when no step is executable.
	NeedsMoreInfo bool   `json:"needs_more_info,omitempty"`
	Clarification string `json:"clarification,omitempty"`
}

// Step returns the step with the given id.
func (p *ChainPlan) Step(id string) (*ChainStep, bool) {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i], true
		}
	}
	return nil, false
}

// Executable returns the steps that do not need more information.
func (p *ChainPlan) Executable() []ChainStep {
	var steps []ChainStep
	for _, s := range p.Steps {
		if !s.NeedsMoreInfo {
			steps = append(steps, s)
		}
	}
	return steps
}

// ToolNames returns the distinct tool names of the plan in step order.
func (p *ChainPlan) ToolNames() []string {
	var names []string
	for _, s := range p.Steps {
		if !slices.Contains(names, s.ToolName) {
			names = append(names, s.ToolName)
		}
	}
	return names
}

// Validate checks the plan invariants: unique step ids, known tools, existing
// dependencies, bindings only to declared dependencies, and no cycles.
func (p *ChainPlan) Validate(registry *Registry) error {
	ids := make(map[string]bool, len(p.Steps))
	for _, s := range p.Steps {
		if s.ID == "" {
			return aierrors.InvalidArgument("plan step without id")
		}
		if ids[s.ID] {
			return aierrors.InvalidArgument("duplicate step id " + s.ID)
		}
		ids[s.ID] = true
	}

	for _, s := range p.Steps {
		if registry != nil && !registry.Has(s.ToolName) {
			return aierrors.ToolNotFound(s.ToolName).WithContext("step", s.ID)
		}
		for _, dep := range s.DependsOn {
			if !ids[dep] {
				return aierrors.InvalidArgument(fmt.Sprintf("step %s depends on unknown step %s", s.ID, dep))
			}
		}
		for _, ref := range References(s.Args) {
			if !slices.Contains(s.DependsOn, ref) {
				return aierrors.InvalidArgument(fmt.Sprintf("step %s binds %s without depending on it", s.ID, ref))
			}
		}
	}

	if cycle := p.Cycle(); len(cycle) > 0 {
		return aierrors.InvalidArgument("plan has a dependency cycle: " + strings.Join(cycle, " -> "))
	}
	return nil
}

// Levels groups step ids by dependency depth: level 0 has no dependencies,
// level n depends only on levels below n. The plan must be acyclic.
func (p *ChainPlan) Levels() [][]string {
	depth := make(map[string]int, len(p.Steps))
	var visit func(id string) int
	visit = func(id string) int {
		if d, ok := depth[id]; ok {
			return d
		}
		s, _ := p.Step(id)
		d := 0
		for _, dep := range s.DependsOn {
			d = max(d, visit(dep)+1)
		}
		depth[id] = d
		return d
	}

	var levels [][]string
	for _, s := range p.Steps {
		d := visit(s.ID)
		for len(levels) <= d {
			levels = append(levels, nil)
		}
		levels[d] = append(levels[d], s.ID)
	}
	return levels
}

// MarkParallel flags every step that shares its level with another step.
func (p *ChainPlan) MarkParallel() {
	for _, level := range p.Levels() {
		for _, id := range level {
			s, _ := p.Step(id)
			s.Parallel = len(level) > 1
		}
	}
}

// Cycle returns the step ids of one dependency cycle, first id repeated last, or nil.
func (p *ChainPlan) Cycle() []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(p.Steps))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		switch state[id] {
		case visiting:
			start := slices.Index(stack, id)
			return append(slices.Clone(stack[start:]), id)
		case done:
			return nil
		}
		state[id] = visiting
		stack = append(stack, id)
		s, _ := p.Step(id)
		for _, dep := range s.DependsOn {
			if cycle := visit(dep); cycle != nil {
				return cycle
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	for _, s := range p.Steps {
		if cycle := visit(s.ID); cycle != nil {
			return cycle
		}
	}
	return nil
}
