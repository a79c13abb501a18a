// Package runner spawns and manages the independent workers that execute
// tasks. A worker's internal reasoning loop is opaque: the runner observes
// only process-level lifecycle and, separately, the blackboard message the
// worker posts before exiting.
package runner

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/overseer-dev/overseer/pkg/models"
)

// StatusKind classifies a worker's current lifecycle state.
type StatusKind int

const (
	// StatusRunning means the worker has not reached a terminal state.
	StatusRunning StatusKind = iota
	// StatusSucceeded means the worker exited and reported a result.
	StatusSucceeded
	// StatusFailed means the worker exited with an error or reported one.
	StatusFailed
	// StatusTimedOut means the worker outlived the run deadline.
	StatusTimedOut
)

// String returns a human-readable representation of the status kind.
func (k StatusKind) String() string {
	switch k {
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Status is a non-blocking snapshot of a worker.
type Status struct {
	Kind StatusKind
	// Result is the worker's terminal result text when Kind is StatusSucceeded.
	Result string
	// TokensUsed is the exact usage the worker reported, or 0 if it reported
	// none (the orchestrator then falls back to a size-based estimate).
	TokensUsed int64
	// Err describes the failure when Kind is StatusFailed.
	Err error
}

// SpawnError indicates a worker could not be started. It marks the task
// failed but never aborts the run.
type SpawnError struct {
	TaskID int
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn worker for task %d: %v", e.TaskID, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// Handle identifies one spawned worker and carries its lifecycle state.
type Handle struct {
	// AgentID uniquely identifies the worker instance.
	AgentID string
	// TaskID is the task the worker is bound to.
	TaskID int
	// Role is the specialist role the worker was briefed for.
	Role models.Role

	mu       sync.Mutex
	status   Status
	done     chan struct{}
	deadline time.Time

	// proc is set by ProcessRunner for signal delivery; nil for in-process fakes.
	proc *os.Process
}

func newHandle(agentID string, task *models.Task, deadline time.Time) *Handle {
	return &Handle{
		AgentID:  agentID,
		TaskID:   task.ID,
		Role:     task.Role,
		status:   Status{Kind: StatusRunning},
		done:     make(chan struct{}),
		deadline: deadline,
	}
}

// finish records the terminal status exactly once. It reports whether this
// call performed the transition.
func (h *Handle) finish(s Status) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.Kind != StatusRunning {
		return false
	}
	h.status = s
	close(h.done)
	return true
}

// snapshot returns the current status, marking the worker timed out if it is
// still running past its deadline.
func (h *Handle) snapshot() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.status.Kind == StatusRunning && !h.deadline.IsZero() && time.Now().After(h.deadline) {
		return Status{Kind: StatusTimedOut}
	}
	return h.status
}

// Runner is the worker-lifecycle contract. Spawn starts one worker bound to
// exactly one task and returns immediately; the runner composes the worker's
// role brief itself. Poll returns the current status without blocking.
// Terminate requests graceful shutdown, escalating to a forced kill after a
// short grace period.
type Runner interface {
	Spawn(ctx context.Context, task *models.Task, sharedContext string) (*Handle, error)
	Poll(h *Handle) Status
	Terminate(h *Handle) error
}
