package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/overseer-dev/overseer/pkg/models"
)

// FakeOutcome scripts the behavior of one fake worker, keyed by task ID.
type FakeOutcome struct {
	// Result is the terminal result text on success.
	Result string
	// Err marks the worker failed with this error.
	Err error
	// Hang leaves the worker running forever until terminated.
	Hang bool
	// Tokens is the reported token usage.
	Tokens int64
	// Delay holds the worker in the running state before finishing.
	Delay time.Duration
	// SpawnErr makes Spawn itself fail.
	SpawnErr error
}

// FakeRunner is an in-process Runner for tests. Outcomes scripts per-task
// behavior; unscripted tasks succeed immediately with an empty result.
type FakeRunner struct {
	Outcomes map[int]FakeOutcome

	mu      sync.Mutex
	running int
	// MaxRunning records the highest number of concurrently running fake
	// workers observed, for concurrency-cap assertions.
	MaxRunning int
	// Spawned lists task IDs in spawn order.
	Spawned []int
	// Terminated lists agent IDs passed to Terminate.
	Terminated []string
}

// NewFakeRunner creates a FakeRunner with the given scripted outcomes.
func NewFakeRunner(outcomes map[int]FakeOutcome) *FakeRunner {
	if outcomes == nil {
		outcomes = make(map[int]FakeOutcome)
	}
	return &FakeRunner{Outcomes: outcomes}
}

// Spawn starts a scripted in-process worker.
func (f *FakeRunner) Spawn(ctx context.Context, task *models.Task, sharedContext string) (*Handle, error) {
	out := f.Outcomes[task.ID]
	if out.SpawnErr != nil {
		return nil, &SpawnError{TaskID: task.ID, Err: out.SpawnErr}
	}

	agentID := fmt.Sprintf("%s_%s", task.Role, uuid.New().String()[:8])

	var deadline time.Time
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	h := newHandle(agentID, task, deadline)

	f.mu.Lock()
	f.Spawned = append(f.Spawned, task.ID)
	f.running++
	if f.running > f.MaxRunning {
		f.MaxRunning = f.running
	}
	f.mu.Unlock()

	go func() {
		if out.Hang {
			<-h.done
			return
		}
		if out.Delay > 0 {
			time.Sleep(out.Delay)
		}
		var finished bool
		if out.Err != nil {
			finished = h.finish(Status{Kind: StatusFailed, Err: out.Err, TokensUsed: out.Tokens})
		} else {
			finished = h.finish(Status{Kind: StatusSucceeded, Result: out.Result, TokensUsed: out.Tokens})
		}
		if finished {
			f.mu.Lock()
			f.running--
			f.mu.Unlock()
		}
	}()

	return h, nil
}

// Poll returns the worker's current status without blocking.
func (f *FakeRunner) Poll(h *Handle) Status {
	return h.snapshot()
}

// Terminate finishes a hanging worker as timed out.
func (f *FakeRunner) Terminate(h *Handle) error {
	f.mu.Lock()
	f.Terminated = append(f.Terminated, h.AgentID)
	f.mu.Unlock()

	if h.finish(Status{Kind: StatusTimedOut}) {
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
	}
	return nil
}

var _ Runner = (*FakeRunner)(nil)
