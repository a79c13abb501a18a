// Package decompose breaks a run goal into role-assigned tasks with
// dependencies, either by asking the model or by a fixed heuristic plan.
package decompose

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/overseer-dev/overseer/pkg/models"
)

// Spec is one decomposed task before IDs are assigned. Dependencies
// reference list positions (0-based) within the same decomposition.
type Spec struct {
	Description  string `json:"description"`
	Role         string `json:"role"`
	Dependencies []int  `json:"dependencies"`
}

// Decomposer turns a run goal into an ordered list of task specs.
type Decomposer interface {
	Decompose(ctx context.Context, goal string) ([]Spec, error)
}

// ToTasks assigns sequential IDs (starting at 1) to validated specs and
// rewrites position-based dependencies into task IDs.
func ToTasks(specs []Spec) ([]*models.Task, error) {
	if err := Validate(specs); err != nil {
		return nil, err
	}

	tasks := make([]*models.Task, len(specs))
	for i, s := range specs {
		deps := make([]int, 0, len(s.Dependencies))
		for _, pos := range s.Dependencies {
			deps = append(deps, pos+1)
		}
		tasks[i] = &models.Task{
			ID:          i + 1,
			Description: s.Description,
			Role:        models.Role(strings.ToLower(s.Role)),
			DependsOn:   deps,
			State:       models.TaskPending,
		}
	}
	return tasks, nil
}

// Validate checks structural soundness of a decomposition: at least one
// task, known roles, non-empty descriptions, and in-range dependency
// positions. Cycle detection happens later at graph build.
func Validate(specs []Spec) error {
	if len(specs) == 0 {
		return fmt.Errorf("decomposition produced no tasks")
	}
	for i, s := range specs {
		if strings.TrimSpace(s.Description) == "" {
			return fmt.Errorf("task %d: empty description", i)
		}
		if !models.Role(strings.ToLower(s.Role)).Valid() {
			return fmt.Errorf("task %d: unknown role %q", i, s.Role)
		}
		for _, dep := range s.Dependencies {
			if dep < 0 || dep >= len(specs) {
				return fmt.Errorf("task %d: dependency position %d out of range", i, dep)
			}
			if dep == i {
				return fmt.Errorf("task %d: depends on itself", i)
			}
		}
	}
	return nil
}

// ParseResponse extracts the JSON array of task specs from a model response
// that may wrap it in prose or markdown fences.
func ParseResponse(response string) ([]Spec, error) {
	jsonStart := strings.Index(response, "[")
	jsonEnd := strings.LastIndex(response, "]")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		preview := response
		if len(preview) > 500 {
			preview = preview[:500] + "... (truncated)"
		}
		return nil, fmt.Errorf("no JSON array found in response (got %d chars): %q", len(response), preview)
	}

	var specs []Spec
	if err := json.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), &specs); err != nil {
		return nil, fmt.Errorf("unmarshal decomposition: %w", err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("empty task list returned")
	}
	return specs, nil
}
