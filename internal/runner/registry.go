package runner

import (
	"sort"
	"sync"
)

// Registry is the process-wide record of live workers. Every spawned worker
// is registered before it starts and deregistered only once its terminal
// state is observed or it is forcefully terminated. Shutdown walks the
// registry so no worker outlives its parent run.
type Registry struct {
	mu      sync.Mutex
	workers map[string]terminator
}

type terminator func() error

// NewRegistry creates an empty live-worker registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]terminator)}
}

// Register records a live worker and the function that terminates it.
func (r *Registry) Register(agentID string, terminate func() error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workers[agentID] = terminate
}

// Deregister removes a worker after its terminal state is observed.
func (r *Registry) Deregister(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, agentID)
}

// Live returns the agent IDs of all registered workers, sorted.
func (r *Registry) Live() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.workers))
	for id := range r.workers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of live workers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

// TerminateAll terminates every registered worker and empties the registry.
// It returns the first termination error encountered, if any.
func (r *Registry) TerminateAll() error {
	r.mu.Lock()
	terms := make([]terminator, 0, len(r.workers))
	for _, t := range r.workers {
		terms = append(terms, t)
	}
	r.workers = make(map[string]terminator)
	r.mu.Unlock()

	var first error
	for _, t := range terms {
		if err := t(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
