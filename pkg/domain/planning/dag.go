package planning

import (
	"errors"
	"fmt"
)

// ErrCyclicDependency indicates a cycle was detected in the plan.
var ErrCyclicDependency = errors.New("cyclic dependency detected")

// ErrUnknownDependency indicates an action depends on an ID not in the plan.
var ErrUnknownDependency = errors.New("unknown dependency")

// ValidateDAG checks that every dependency refers to an action in the plan
// and that the dependency graph has no cycles.
func (p *Plan) ValidateDAG() error {
	visited := make(map[string]bool)
	recursionStack := make(map[string]bool)

	actionMap := make(map[string]Action, len(p.Actions))
	for _, a := range p.Actions {
		if _, dup := actionMap[a.ID]; dup {
			return fmt.Errorf("duplicate action id: %s", a.ID)
		}
		actionMap[a.ID] = a
	}

	var visit func(id string) error
	visit = func(id string) error {
		visited[id] = true
		recursionStack[id] = true

		for _, depID := range actionMap[id].DependsOn {
			if _, exists := actionMap[depID]; !exists {
				return fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, id, depID)
			}
			if !visited[depID] {
				if err := visit(depID); err != nil {
					return err
				}
			} else if recursionStack[depID] {
				return fmt.Errorf("%w: involving action %s", ErrCyclicDependency, depID)
			}
		}

		recursionStack[id] = false
		return nil
	}

	for _, a := range p.Actions {
		if !visited[a.ID] {
			if err := visit(a.ID); err != nil {
				return err
			}
		}
	}

	return nil
}

// Dependents returns, for each action ID, the IDs of actions that depend on
// it, in plan order.
func (p *Plan) Dependents() map[string][]string {
	out := make(map[string][]string, len(p.Actions))
	for _, a := range p.Actions {
		for _, dep := range a.DependsOn {
			out[dep] = append(out[dep], a.ID)
		}
	}
	return out
}
