package decompose

import (
	"context"
	"fmt"

	"github.com/overseer-dev/overseer/pkg/models"
)

// Heuristic is the model-free fallback decomposition: plan and research in
// parallel, implement once both finish, then review and test the result in
// parallel. Used when no model client is configured or the model response
// cannot be parsed.
type Heuristic struct{}

// Decompose produces the fixed five-task plan for the goal.
func (Heuristic) Decompose(ctx context.Context, goal string) ([]Spec, error) {
	if goal == "" {
		return nil, fmt.Errorf("empty goal")
	}
	return []Spec{
		{Description: fmt.Sprintf("Create a detailed plan for: %s", goal), Role: string(models.RolePlanner)},
		{Description: fmt.Sprintf("Research relevant code, patterns, and constraints for: %s", goal), Role: string(models.RoleResearcher)},
		{Description: fmt.Sprintf("Implement: %s", goal), Role: string(models.RoleCoder), Dependencies: []int{0, 1}},
		{Description: fmt.Sprintf("Review the implementation of: %s", goal), Role: string(models.RoleReviewer), Dependencies: []int{2}},
		{Description: fmt.Sprintf("Test the implementation of: %s", goal), Role: string(models.RoleTester), Dependencies: []int{2}},
	}, nil
}

var _ Decomposer = Heuristic{}

// WithFallback wraps a primary decomposer so that any failure falls through
// to the heuristic plan instead of aborting the run.
type WithFallback struct {
	Primary Decomposer
}

// Decompose tries the primary decomposer and falls back on error.
func (w WithFallback) Decompose(ctx context.Context, goal string) ([]Spec, error) {
	if w.Primary != nil {
		specs, err := w.Primary.Decompose(ctx, goal)
		if err == nil {
			return specs, nil
		}
	}
	return Heuristic{}.Decompose(ctx, goal)
}

var _ Decomposer = WithFallback{}
