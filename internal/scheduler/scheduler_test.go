package scheduler

import (
	"testing"

	"github.com/overseer-dev/overseer/internal/graph"
	"github.com/overseer-dev/overseer/pkg/models"
)

func build(t *testing.T, tasks []*models.Task) *graph.DependencyGraph {
	t.Helper()
	g, err := graph.Build(tasks)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	return g
}

func task(id int, deps ...int) *models.Task {
	return &models.Task{ID: id, Description: "t", Role: models.RoleCoder, DependsOn: deps, State: models.TaskPending}
}

func TestNoDepTasksAreReadyImmediately(t *testing.T) {
	g := build(t, []*models.Task{task(0), task(1), task(2, 0, 1)})
	New(g, 3)

	if g.Task(0).State != models.TaskReady || g.Task(1).State != models.TaskReady {
		t.Error("expected dependency-free tasks to be ready after build")
	}
	if g.Task(2).State != models.TaskPending {
		t.Error("expected dependent task to stay pending")
	}
}

func TestEligibleNeverReturnsUnmetDependencies(t *testing.T) {
	g := build(t, []*models.Task{task(0), task(1), task(2, 0, 1), task(3, 2)})
	s := New(g, 3)

	for _, tk := range s.Eligible() {
		for _, dep := range tk.DependsOn {
			if g.Task(dep).State != models.TaskCompleted {
				t.Errorf("task %d eligible with incomplete dependency %d", tk.ID, dep)
			}
		}
	}

	// Complete 0 only; 2 must stay ineligible.
	mustAdvance(t, s, 0, models.TaskRunning)
	mustAdvance(t, s, 0, models.TaskCompleted)
	for _, tk := range s.Eligible() {
		if tk.ID == 2 {
			t.Error("task 2 eligible while dependency 1 incomplete")
		}
	}

	mustAdvance(t, s, 1, models.TaskRunning)
	mustAdvance(t, s, 1, models.TaskCompleted)
	found := false
	for _, tk := range s.Eligible() {
		if tk.ID == 2 {
			found = true
		}
	}
	if !found {
		t.Error("task 2 should be eligible once both dependencies completed")
	}
}

func TestSchedulableRespectsCap(t *testing.T) {
	g := build(t, []*models.Task{task(0), task(1), task(2), task(3)})
	s := New(g, 2)

	batch := s.Schedulable()
	if len(batch) != 2 {
		t.Fatalf("expected 2 schedulable tasks under cap, got %d", len(batch))
	}
	// Deterministic ascending-id tie break.
	if batch[0].ID != 0 || batch[1].ID != 1 {
		t.Errorf("expected tasks 0,1 first, got %d,%d", batch[0].ID, batch[1].ID)
	}

	mustAdvance(t, s, 0, models.TaskRunning)
	mustAdvance(t, s, 1, models.TaskRunning)
	if got := s.Schedulable(); len(got) != 0 {
		t.Errorf("expected no free slots with 2 running, got %d", len(got))
	}

	mustAdvance(t, s, 0, models.TaskCompleted)
	batch = s.Schedulable()
	if len(batch) != 1 || batch[0].ID != 2 {
		t.Errorf("expected one slot for task 2, got %+v", batch)
	}
}

func TestFailedDependencyLeavesDependentPending(t *testing.T) {
	g := build(t, []*models.Task{task(0), task(1, 0)})
	s := New(g, 2)

	mustAdvance(t, s, 0, models.TaskRunning)
	mustAdvance(t, s, 0, models.TaskFailed)

	if len(s.Eligible()) != 0 {
		t.Error("no task should be eligible behind a failed dependency")
	}
	if g.Task(1).State != models.TaskPending {
		t.Errorf("task 1 = %s, want pending forever", g.Task(1).State)
	}
	if !s.Done() {
		t.Error("scheduler should report done: nothing running, nothing eligible")
	}
}

func TestAdvanceRejectsInvalidTransitions(t *testing.T) {
	g := build(t, []*models.Task{task(0)})
	s := New(g, 1)

	if err := s.Advance(0, models.TaskCompleted); err == nil {
		t.Error("ready -> completed must be rejected")
	}
	mustAdvance(t, s, 0, models.TaskRunning)
	mustAdvance(t, s, 0, models.TaskCompleted)
	if err := s.Advance(0, models.TaskRunning); err == nil {
		t.Error("terminal task must not transition again")
	}
	if err := s.Advance(42, models.TaskRunning); err == nil {
		t.Error("unknown task must be rejected")
	}
}

func TestCountsAndUnfinished(t *testing.T) {
	g := build(t, []*models.Task{task(0), task(1), task(2, 0)})
	s := New(g, 3)

	mustAdvance(t, s, 0, models.TaskRunning)
	mustAdvance(t, s, 0, models.TaskCompleted)
	mustAdvance(t, s, 1, models.TaskRunning)

	counts := s.Counts()
	if counts[models.TaskCompleted] != 1 || counts[models.TaskRunning] != 1 || counts[models.TaskReady] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
	if len(s.Unfinished()) != 2 {
		t.Errorf("expected 2 unfinished tasks, got %d", len(s.Unfinished()))
	}
}

func mustAdvance(t *testing.T, s *Scheduler, id int, state models.TaskState) {
	t.Helper()
	if err := s.Advance(id, state); err != nil {
		t.Fatalf("advance task %d to %s: %v", id, state, err)
	}
}
