package llm

import (
	"context"
	"fmt"

	"github.com/overseer-dev/overseer/pkg/models"
)

// Executor runs a worker's brief as a single-shot completion against the
// configured model. It satisfies the runner's AgentExecutor contract.
type Executor struct {
	client *Client
}

// NewExecutor creates an Executor backed by the given client.
func NewExecutor(client *Client) *Executor {
	return &Executor{client: client}
}

// RunAgent executes the briefed task and returns the model's response text
// and the exact tokens the call consumed.
func (e *Executor) RunAgent(ctx context.Context, role models.Role, brief string) (string, int64, error) {
	system := fmt.Sprintf("You are a %s agent in a multi-agent orchestration. Complete only your assigned task.", role)

	result, tokens, err := e.client.Complete(ctx, system, brief)
	if err != nil {
		return "", tokens, fmt.Errorf("run %s agent: %w", role, err)
	}
	return result, tokens, nil
}
