package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/overseer-dev/overseer/internal/blackboard"
	"github.com/overseer-dev/overseer/pkg/models"
)

// DefaultGracePeriod is how long Terminate waits between the graceful signal
// and the forced kill.
const DefaultGracePeriod = 2 * time.Second

// ProcessRunner spawns each worker as an independent OS process: the overseer
// binary re-invoked in worker mode. The worker receives its composed brief on
// stdin and reports its terminal result by posting a result-typed message to
// the blackboard before exiting; the runner reads that message back once the
// process exits.
type ProcessRunner struct {
	// Binary is the executable to spawn. Empty means the current executable.
	Binary string
	// BlackboardPath is the shared document the workers coordinate through.
	BlackboardPath string
	// WorkDir is the working directory for workers; empty inherits.
	WorkDir string
	// Registry records live workers for shutdown teardown.
	Registry *Registry
	// Grace is the termination grace period; zero means DefaultGracePeriod.
	Grace time.Duration

	store *blackboard.FileStore
}

// NewProcessRunner creates a ProcessRunner coordinating through the
// blackboard document at blackboardPath.
func NewProcessRunner(blackboardPath string, reg *Registry) *ProcessRunner {
	return &ProcessRunner{
		BlackboardPath: blackboardPath,
		Registry:       reg,
		store:          blackboard.NewFileStore(blackboardPath),
	}
}

// Spawn starts one worker process for the task. It returns immediately; the
// handle's status is resolved in the background when the process exits.
func (r *ProcessRunner) Spawn(ctx context.Context, task *models.Task, sharedContext string) (*Handle, error) {
	agentID := fmt.Sprintf("%s_%s", task.Role, uuid.New().String()[:8])

	brief, err := ComposeBrief(task.Role, agentID, task.Description, sharedContext)
	if err != nil {
		return nil, &SpawnError{TaskID: task.ID, Err: err}
	}

	binary := r.Binary
	if binary == "" {
		binary, err = os.Executable()
		if err != nil {
			return nil, &SpawnError{TaskID: task.ID, Err: fmt.Errorf("resolve executable: %w", err)}
		}
	}

	cmd := exec.Command(binary, "worker",
		"--agent-id", agentID,
		"--role", string(task.Role),
		"--task-id", strconv.Itoa(task.ID),
		"--blackboard", r.BlackboardPath,
	)
	if r.WorkDir != "" {
		cmd.Dir = r.WorkDir
	}
	cmd.Stdin = strings.NewReader(brief)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, &SpawnError{TaskID: task.ID, Err: err}
	}

	var deadline time.Time
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}

	h := newHandle(agentID, task, deadline)
	h.proc = cmd.Process

	if r.Registry != nil {
		r.Registry.Register(agentID, func() error { return r.Terminate(h) })
	}

	go r.await(cmd, h)

	return h, nil
}

// await blocks on process exit, then resolves the handle's terminal status
// from the blackboard message the worker posted.
func (r *ProcessRunner) await(cmd *exec.Cmd, h *Handle) {
	waitErr := cmd.Wait()

	status := r.collectResult(h.AgentID, waitErr)
	h.finish(status)

	if r.Registry != nil {
		r.Registry.Deregister(h.AgentID)
	}
}

// collectResult inspects the blackboard for the worker's terminal message.
// Process exit status alone is not trusted: a worker that exited cleanly but
// never posted a result is a failure.
func (r *ProcessRunner) collectResult(agentID string, waitErr error) Status {
	doc, err := r.store.Read()
	if err != nil {
		if waitErr != nil {
			return Status{Kind: StatusFailed, Err: fmt.Errorf("worker exited: %v (blackboard unreadable: %w)", waitErr, err)}
		}
		return Status{Kind: StatusFailed, Err: fmt.Errorf("read blackboard after worker exit: %w", err)}
	}

	// Latest terminal message tagged with this agent wins.
	var terminal *models.Message
	for i := range doc.Messages {
		m := doc.Messages[i]
		if m.AgentID != agentID {
			continue
		}
		if m.Type == models.MessageResult || m.Type == models.MessageError {
			terminal = &doc.Messages[i]
		}
	}

	var tokens int64
	if v, ok := doc.SharedData[TokensKey(agentID)]; ok {
		if f, isNum := v.(float64); isNum {
			tokens = int64(f)
		}
	}

	switch {
	case terminal != nil && terminal.Type == models.MessageResult:
		return Status{Kind: StatusSucceeded, Result: terminal.Content, TokensUsed: tokens}
	case terminal != nil:
		return Status{Kind: StatusFailed, Err: errors.New(terminal.Content), TokensUsed: tokens}
	case waitErr != nil:
		return Status{Kind: StatusFailed, Err: waitErr}
	default:
		return Status{Kind: StatusFailed, Err: errors.New("worker exited without posting a result")}
	}
}

// Poll returns the worker's current status without blocking.
func (r *ProcessRunner) Poll(h *Handle) Status {
	return h.snapshot()
}

// Terminate requests graceful shutdown via SIGTERM and escalates to SIGKILL
// if the worker has not exited within the grace period.
func (r *ProcessRunner) Terminate(h *Handle) error {
	if h.proc == nil {
		return nil
	}

	grace := r.Grace
	if grace <= 0 {
		grace = DefaultGracePeriod
	}

	if err := h.proc.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("signal worker %s: %w", h.AgentID, err)
	}

	select {
	case <-h.done:
	case <-time.After(grace):
		if err := h.proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill worker %s: %w", h.AgentID, err)
		}
	}

	if r.Registry != nil {
		r.Registry.Deregister(h.AgentID)
	}
	return nil
}

// TokensKey is the shared-data key under which a worker publishes its exact
// token usage, when the execution collaborator reports one.
func TokensKey(agentID string) string {
	return "tokens_used_" + agentID
}

// Verify ProcessRunner implements Runner at compile time.
var _ Runner = (*ProcessRunner)(nil)
