package decompose

import (
	"context"
	"fmt"
)

// Completer is the single-shot completion surface the model-backed
// decomposer needs.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (text string, tokens int64, err error)
}

// Claude decomposes goals by asking the model for a JSON task list.
type Claude struct {
	client Completer
}

// NewClaude creates a model-backed decomposer.
func NewClaude(client Completer) *Claude {
	return &Claude{client: client}
}

// Decompose asks the model to break the goal into task specs.
func (c *Claude) Decompose(ctx context.Context, goal string) ([]Spec, error) {
	prompt := fmt.Sprintf(decompositionPrompt, goal)

	response, _, err := c.client.Complete(ctx, "", prompt)
	if err != nil {
		return nil, fmt.Errorf("decomposition completion: %w", err)
	}

	specs, err := ParseResponse(response)
	if err != nil {
		return nil, fmt.Errorf("parse decomposition response: %w", err)
	}
	if err := Validate(specs); err != nil {
		return nil, fmt.Errorf("validate decomposition: %w", err)
	}
	return specs, nil
}

var _ Decomposer = (*Claude)(nil)
