// Package graph builds and validates the task dependency DAG.
package graph

import (
	"fmt"
	"sort"

	"github.com/gammazero/toposort"

	"github.com/overseer-dev/overseer/pkg/models"
)

// DecompositionError indicates the decomposed task list cannot form a valid
// DAG: a dependency references an unknown task, or the edges contain a cycle.
// It is fatal and aborts the run before any worker is spawned.
type DecompositionError struct {
	Reason string
	Err    error
}

func (e *DecompositionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decomposition error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decomposition error: %s", e.Reason)
}

func (e *DecompositionError) Unwrap() error { return e.Err }

// DependencyGraph is a validated directed acyclic graph of tasks. Edges point
// from a task to the tasks it depends on.
type DependencyGraph struct {
	tasks map[int]*models.Task
	// dependents maps a task ID to the IDs of tasks that depend on it.
	dependents map[int][]int
	order      []int
}

// Build constructs and validates a DependencyGraph from tasks. Tasks must
// carry unique IDs. Unknown dependency IDs and cycles are rejected with a
// *DecompositionError.
func Build(tasks []*models.Task) (*DependencyGraph, error) {
	if len(tasks) == 0 {
		return nil, &DecompositionError{Reason: "no tasks"}
	}

	g := &DependencyGraph{
		tasks:      make(map[int]*models.Task, len(tasks)),
		dependents: make(map[int][]int),
	}

	for _, t := range tasks {
		if _, exists := g.tasks[t.ID]; exists {
			return nil, &DecompositionError{Reason: fmt.Sprintf("duplicate task id %d", t.ID)}
		}
		g.tasks[t.ID] = t
	}

	var edges []toposort.Edge
	for _, t := range tasks {
		if len(t.DependsOn) == 0 {
			// Edge from nil keeps dependency-free tasks in the sort result.
			edges = append(edges, toposort.Edge{nil, t.ID})
			continue
		}
		for _, dep := range t.DependsOn {
			if _, exists := g.tasks[dep]; !exists {
				return nil, &DecompositionError{Reason: fmt.Sprintf("task %d depends on unknown task %d", t.ID, dep)}
			}
			if dep == t.ID {
				return nil, &DecompositionError{Reason: fmt.Sprintf("task %d depends on itself", t.ID)}
			}
			edges = append(edges, toposort.Edge{dep, t.ID})
			g.dependents[dep] = append(g.dependents[dep], t.ID)
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, &DecompositionError{Reason: "circular dependency detected", Err: err}
	}

	g.order = make([]int, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			g.order = append(g.order, id.(int))
		}
	}

	for _, ids := range g.dependents {
		sort.Ints(ids)
	}

	return g, nil
}

// Task returns the task for id, or nil if unknown.
func (g *DependencyGraph) Task(id int) *models.Task {
	return g.tasks[id]
}

// Tasks returns all tasks in ascending ID order.
func (g *DependencyGraph) Tasks() []*models.Task {
	ids := make([]int, 0, len(g.tasks))
	for id := range g.tasks {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]*models.Task, len(ids))
	for i, id := range ids {
		out[i] = g.tasks[id]
	}
	return out
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	return len(g.tasks)
}

// Dependencies returns the IDs the given task depends on.
func (g *DependencyGraph) Dependencies(id int) []int {
	t := g.tasks[id]
	if t == nil {
		return nil
	}
	return t.DependsOn
}

// Dependents returns the IDs of tasks that depend on the given task,
// in ascending order.
func (g *DependencyGraph) Dependents(id int) []int {
	return g.dependents[id]
}

// Order returns a topological ordering of task IDs: every dependency appears
// before the tasks that depend on it.
func (g *DependencyGraph) Order() []int {
	return g.order
}
