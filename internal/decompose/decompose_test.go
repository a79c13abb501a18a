package decompose

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/overseer-dev/overseer/internal/graph"
	"github.com/overseer-dev/overseer/pkg/models"
)

func TestParseResponseExtractsArray(t *testing.T) {
	response := `Here is the breakdown:
[
  {"description": "plan it", "role": "planner", "dependencies": []},
  {"description": "build it", "role": "coder", "dependencies": [0]}
]
Let me know if you need changes.`

	specs, err := ParseResponse(response)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("got %d specs, want 2", len(specs))
	}
	if specs[1].Role != "coder" || len(specs[1].Dependencies) != 1 || specs[1].Dependencies[0] != 0 {
		t.Errorf("second spec = %+v", specs[1])
	}
}

func TestParseResponseRejectsGarbage(t *testing.T) {
	for _, response := range []string{"", "no json here", "[]", "[not json]"} {
		if _, err := ParseResponse(response); err == nil {
			t.Errorf("expected error for %q", response)
		}
	}
}

func TestValidateRejectsBadSpecs(t *testing.T) {
	cases := []struct {
		name  string
		specs []Spec
	}{
		{"empty list", nil},
		{"empty description", []Spec{{Description: "  ", Role: "coder"}}},
		{"unknown role", []Spec{{Description: "x", Role: "plumber"}}},
		{"dep out of range", []Spec{{Description: "x", Role: "coder", Dependencies: []int{5}}}},
		{"self dep", []Spec{{Description: "x", Role: "coder", Dependencies: []int{0}}}},
	}
	for _, tc := range cases {
		if err := Validate(tc.specs); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestToTasksAssignsIDsAndRewritesDeps(t *testing.T) {
	specs := []Spec{
		{Description: "plan", Role: "PLANNER"},
		{Description: "code", Role: "coder", Dependencies: []int{0}},
	}
	tasks, err := ToTasks(specs)
	if err != nil {
		t.Fatalf("to tasks: %v", err)
	}
	if tasks[0].ID != 1 || tasks[1].ID != 2 {
		t.Errorf("IDs = %d, %d, want 1, 2", tasks[0].ID, tasks[1].ID)
	}
	if tasks[0].Role != models.RolePlanner {
		t.Errorf("role = %s, want planner (case-folded)", tasks[0].Role)
	}
	if len(tasks[1].DependsOn) != 1 || tasks[1].DependsOn[0] != 1 {
		t.Errorf("deps = %v, want [1]", tasks[1].DependsOn)
	}
	if tasks[0].State != models.TaskPending {
		t.Errorf("state = %s, want pending", tasks[0].State)
	}
}

func TestHeuristicProducesValidDAG(t *testing.T) {
	specs, err := Heuristic{}.Decompose(context.Background(), "add a parser")
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	tasks, err := ToTasks(specs)
	if err != nil {
		t.Fatalf("to tasks: %v", err)
	}
	if _, err := graph.Build(tasks); err != nil {
		t.Fatalf("heuristic plan is not a valid DAG: %v", err)
	}
	if len(tasks) != 5 {
		t.Errorf("got %d tasks, want 5", len(tasks))
	}
}

type fakeCompleter struct {
	response string
	err      error
}

func (f *fakeCompleter) Complete(ctx context.Context, system, prompt string) (string, int64, error) {
	return f.response, 0, f.err
}

func TestClaudeDecomposerRoundTrip(t *testing.T) {
	c := NewClaude(&fakeCompleter{
		response: `[{"description": "research auth flows", "role": "researcher", "dependencies": []}]`,
	})
	specs, err := c.Decompose(context.Background(), "add auth")
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	if len(specs) != 1 || specs[0].Role != "researcher" {
		t.Errorf("specs = %+v", specs)
	}
}

func TestClaudeDecomposerPromptCarriesGoal(t *testing.T) {
	var seen string
	c := NewClaude(completerFunc(func(ctx context.Context, system, prompt string) (string, int64, error) {
		seen = prompt
		return `[{"description": "x", "role": "coder", "dependencies": []}]`, 0, nil
	}))
	if _, err := c.Decompose(context.Background(), "migrate the billing tables"); err != nil {
		t.Fatalf("decompose: %v", err)
	}
	if !strings.Contains(seen, "migrate the billing tables") {
		t.Error("prompt does not contain the goal")
	}
}

type completerFunc func(ctx context.Context, system, prompt string) (string, int64, error)

func (f completerFunc) Complete(ctx context.Context, system, prompt string) (string, int64, error) {
	return f(ctx, system, prompt)
}

func TestFallbackOnModelFailure(t *testing.T) {
	w := WithFallback{Primary: NewClaude(&fakeCompleter{err: errors.New("api down")})}
	specs, err := w.Decompose(context.Background(), "fix the cache")
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	if len(specs) != 5 {
		t.Errorf("got %d specs, want the heuristic 5", len(specs))
	}
}

func TestFallbackWithNilPrimary(t *testing.T) {
	specs, err := WithFallback{}.Decompose(context.Background(), "fix the cache")
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	if len(specs) != 5 {
		t.Errorf("got %d specs, want 5", len(specs))
	}
}
