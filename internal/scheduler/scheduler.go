// Package scheduler tracks task states over the dependency DAG and decides
// which tasks may run at any moment, under a concurrency cap.
package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/overseer-dev/overseer/internal/graph"
	"github.com/overseer-dev/overseer/pkg/models"
)

// Scheduler owns the task state machine for one run. All transitions are
// applied by the orchestrator's single loop, so no locking is needed here.
type Scheduler struct {
	graph     *graph.DependencyGraph
	maxAgents int
}

// New creates a Scheduler over a validated graph. Tasks with no dependencies
// are promoted to ready immediately.
func New(g *graph.DependencyGraph, maxAgents int) *Scheduler {
	if maxAgents <= 0 {
		maxAgents = models.DefaultMaxAgents
	}
	s := &Scheduler{graph: g, maxAgents: maxAgents}
	for _, t := range g.Tasks() {
		if t.State == models.TaskPending && len(t.DependsOn) == 0 {
			t.State = models.TaskReady
		}
	}
	return s
}

// Graph returns the underlying dependency graph.
func (s *Scheduler) Graph() *graph.DependencyGraph {
	return s.graph
}

// MaxAgents returns the concurrency cap.
func (s *Scheduler) MaxAgents() int {
	return s.maxAgents
}

// Eligible returns tasks whose dependencies are all completed and which have
// not started yet, in ascending ID order (deterministic tie-break). A failed
// dependency never satisfies eligibility, so its dependents stay pending.
func (s *Scheduler) Eligible() []*models.Task {
	var out []*models.Task
	for _, t := range s.graph.Tasks() {
		if t.State != models.TaskPending && t.State != models.TaskReady {
			continue
		}
		if s.depsCompleted(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Schedulable returns the eligible tasks that fit in the free worker slots:
// maxAgents minus the number of currently running tasks.
func (s *Scheduler) Schedulable() []*models.Task {
	free := s.maxAgents - s.RunningCount()
	if free <= 0 {
		return nil
	}
	eligible := s.Eligible()
	if len(eligible) > free {
		eligible = eligible[:free]
	}
	return eligible
}

// Advance applies a validated state transition to a task. Transitions are
// monotonic; an invalid transition is a programming error and is rejected.
// Completing a task promotes newly-unblocked dependents from pending to ready.
func (s *Scheduler) Advance(id int, next models.TaskState) error {
	t := s.graph.Task(id)
	if t == nil {
		return fmt.Errorf("advance unknown task %d", id)
	}
	if !t.State.CanTransition(next) {
		return fmt.Errorf("invalid transition for task %d: %s -> %s", id, t.State, next)
	}
	t.State = next

	switch {
	case next == models.TaskRunning:
		now := time.Now()
		t.StartedAt = &now
	case next.Terminal():
		now := time.Now()
		t.CompletedAt = &now
	}

	if next == models.TaskCompleted {
		for _, depID := range s.graph.Dependents(id) {
			dep := s.graph.Task(depID)
			if dep.State == models.TaskPending && s.depsCompleted(dep) {
				dep.State = models.TaskReady
			}
		}
	}
	return nil
}

// RunningCount returns the number of tasks currently in the running state.
func (s *Scheduler) RunningCount() int {
	n := 0
	for _, t := range s.graph.Tasks() {
		if t.State == models.TaskRunning {
			n++
		}
	}
	return n
}

// Counts returns the number of tasks in each state.
func (s *Scheduler) Counts() map[models.TaskState]int {
	counts := make(map[models.TaskState]int)
	for _, t := range s.graph.Tasks() {
		counts[t.State]++
	}
	return counts
}

// Done reports whether scheduling is finished: nothing is running and nothing
// can become eligible. Tasks left pending behind a failed dependency count as
// done here; they are resolved to skipped at aggregation time.
func (s *Scheduler) Done() bool {
	return s.RunningCount() == 0 && len(s.Eligible()) == 0
}

// Unfinished returns tasks not yet in a terminal state, ascending ID order.
func (s *Scheduler) Unfinished() []*models.Task {
	var out []*models.Task
	for _, t := range s.graph.Tasks() {
		if !t.State.Terminal() {
			out = append(out, t)
		}
	}
	return out
}

func (s *Scheduler) depsCompleted(t *models.Task) bool {
	for _, depID := range t.DependsOn {
		dep := s.graph.Task(depID)
		if dep == nil || dep.State != models.TaskCompleted {
			return false
		}
	}
	return true
}
