package graph

import (
	"errors"
	"testing"

	"github.com/overseer-dev/overseer/pkg/models"
)

func task(id int, deps ...int) *models.Task {
	return &models.Task{ID: id, Description: "t", Role: models.RoleCoder, DependsOn: deps, State: models.TaskPending}
}

func TestBuildSimple(t *testing.T) {
	g, err := Build([]*models.Task{task(0), task(1), task(2, 0, 1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Size() != 3 {
		t.Errorf("expected size 3, got %d", g.Size())
	}
	deps := g.Dependencies(2)
	if len(deps) != 2 {
		t.Errorf("expected 2 dependencies for task 2, got %d", len(deps))
	}
	dependents := g.Dependents(0)
	if len(dependents) != 1 || dependents[0] != 2 {
		t.Errorf("expected task 2 to depend on task 0, got %v", dependents)
	}
}

func TestBuildEmpty(t *testing.T) {
	_, err := Build(nil)
	var derr *DecompositionError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DecompositionError for empty task list, got %v", err)
	}
}

func TestBuildUnknownDependency(t *testing.T) {
	_, err := Build([]*models.Task{task(0, 7)})
	var derr *DecompositionError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DecompositionError for unknown dependency, got %v", err)
	}
}

func TestBuildDuplicateID(t *testing.T) {
	_, err := Build([]*models.Task{task(0), task(0)})
	var derr *DecompositionError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DecompositionError for duplicate id, got %v", err)
	}
}

func TestBuildCycleTwoNodes(t *testing.T) {
	_, err := Build([]*models.Task{task(0, 1), task(1, 0)})
	var derr *DecompositionError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DecompositionError for 0<->1 cycle, got %v", err)
	}
}

func TestBuildCycleThreeNodes(t *testing.T) {
	_, err := Build([]*models.Task{task(0, 2), task(1, 0), task(2, 1)})
	var derr *DecompositionError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DecompositionError for 3-node cycle, got %v", err)
	}
}

func TestBuildSelfLoop(t *testing.T) {
	_, err := Build([]*models.Task{task(0, 0)})
	var derr *DecompositionError
	if !errors.As(err, &derr) {
		t.Fatalf("expected DecompositionError for self-loop, got %v", err)
	}
}

func TestOrderRespectsDependencies(t *testing.T) {
	g, err := Build([]*models.Task{task(0), task(1, 0), task(2, 1), task(3, 0)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	order := g.Order()
	if len(order) != 4 {
		t.Fatalf("expected 4 tasks in order, got %d", len(order))
	}
	pos := make(map[int]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for _, tk := range g.Tasks() {
		for _, dep := range tk.DependsOn {
			if pos[dep] > pos[tk.ID] {
				t.Errorf("dependency %d ordered after task %d", dep, tk.ID)
			}
		}
	}
}

func TestTasksAscendingOrder(t *testing.T) {
	g, err := Build([]*models.Task{task(2), task(0), task(1)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tasks := g.Tasks()
	for i, tk := range tasks {
		if tk.ID != i {
			t.Errorf("position %d holds task %d, want ascending ids", i, tk.ID)
		}
	}
}
