package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/overseer-dev/overseer/internal/blackboard"
	"github.com/overseer-dev/overseer/pkg/models"
)

// AgentExecutor runs the actual agent reasoning for a briefed task. It
// returns the terminal result text and the exact token usage when the
// backing model reports one (0 otherwise).
type AgentExecutor interface {
	RunAgent(ctx context.Context, role models.Role, brief string) (result string, tokens int64, err error)
}

// reportAttempts bounds retries when posting the terminal message; losing it
// would make the parent treat a finished worker as failed.
const reportAttempts = 3

// Worker is the in-process body of one spawned agent. The parent observes it
// only through the blackboard, so Run always posts a terminal message before
// returning.
type Worker struct {
	AgentID string
	Role    models.Role
	Brief   string
	Store   blackboard.Store
	Exec    AgentExecutor
}

// Run executes the brief and reports the outcome on the blackboard. The
// returned error reflects the agent outcome so the process exit code matches
// what was reported.
func (w *Worker) Run(ctx context.Context) error {
	// Best effort: a lost start notice costs nothing.
	_ = w.Store.Append(models.Message{
		Timestamp: time.Now().UTC(),
		AgentID:   w.AgentID,
		Type:      models.MessageInfo,
		Content:   fmt.Sprintf("agent %s started", w.AgentID),
	})

	result, tokens, execErr := w.Exec.RunAgent(ctx, w.Role, w.Brief)

	if tokens > 0 {
		// Token usage degrades to an estimate on the parent side if this is lost.
		_ = w.Store.SetSharedData(TokensKey(w.AgentID), tokens)
	}

	msg := models.Message{
		Timestamp: time.Now().UTC(),
		AgentID:   w.AgentID,
		Type:      models.MessageResult,
		Content:   result,
	}
	if execErr != nil {
		msg.Type = models.MessageError
		msg.Content = execErr.Error()
	}

	if err := blackboard.AppendWithRetry(w.Store, msg, reportAttempts); err != nil {
		return fmt.Errorf("report outcome for agent %s: %w", w.AgentID, err)
	}
	return execErr
}
