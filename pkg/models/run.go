package models

import "time"

// RunStatus represents the phase of an orchestration run.
type RunStatus string

const (
	// RunDecomposing indicates the goal is being broken into tasks.
	RunDecomposing RunStatus = "decomposing"
	// RunScheduling indicates the task graph is built and scheduling is starting.
	RunScheduling RunStatus = "scheduling"
	// RunRunning indicates workers are executing tasks.
	RunRunning RunStatus = "running"
	// RunAggregating indicates results are being collected into a summary.
	RunAggregating RunStatus = "aggregating"
	// RunCompleted indicates the run finished and produced a summary.
	RunCompleted RunStatus = "completed"
	// RunAborted indicates the run stopped early (timeout, budget, or bad decomposition).
	RunAborted RunStatus = "aborted"
)

// Valid returns true if the status is a known value.
func (s RunStatus) Valid() bool {
	switch s {
	case RunDecomposing, RunScheduling, RunRunning, RunAggregating, RunCompleted, RunAborted:
		return true
	default:
		return false
	}
}

// Default limits for an orchestration run.
const (
	DefaultMaxAgents      = 3
	DefaultTimeoutSeconds = 300
	DefaultTokenBudget    = 100000
)

// Run represents one end-to-end orchestration of a goal.
type Run struct {
	// ID uniquely identifies the run.
	ID string `json:"id"`
	// Goal is the high-level objective being decomposed.
	Goal string `json:"goal"`
	// MaxAgents caps the number of concurrently running workers.
	MaxAgents int `json:"max_agents"`
	// TimeoutSeconds is the global deadline for the whole run.
	TimeoutSeconds int `json:"timeout_seconds"`
	// TokenBudget is the maximum estimated tokens the run may consume.
	TokenBudget int64 `json:"token_budget"`
	// TokensUsed is the monotonically non-decreasing usage estimate.
	TokensUsed int64 `json:"tokens_used"`
	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`
	// Status is the current run phase.
	Status RunStatus `json:"status"`
	// Tasks holds the run's tasks, indexed by ID in decomposition order.
	Tasks []*Task `json:"tasks,omitempty"`
}

// NewRun creates a Run with defaults applied for unset limits.
func NewRun(id, goal string, maxAgents, timeoutSeconds int, tokenBudget int64) *Run {
	if maxAgents <= 0 {
		maxAgents = DefaultMaxAgents
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = DefaultTimeoutSeconds
	}
	if tokenBudget <= 0 {
		tokenBudget = DefaultTokenBudget
	}
	return &Run{
		ID:             id,
		Goal:           goal,
		MaxAgents:      maxAgents,
		TimeoutSeconds: timeoutSeconds,
		TokenBudget:    tokenBudget,
		Status:         RunDecomposing,
		StartedAt:      time.Now(),
	}
}

// Deadline returns the absolute time at which the run times out.
func (r *Run) Deadline() time.Time {
	return r.StartedAt.Add(time.Duration(r.TimeoutSeconds) * time.Second)
}

// Summary aggregates the outcome of a run.
type Summary struct {
	// RunID is the run this summary describes.
	RunID string `json:"run_id"`
	// Goal is the run's original goal.
	Goal string `json:"goal"`
	// Status is the run's final status.
	Status RunStatus `json:"status"`
	// Total is the number of tasks in the run.
	Total int `json:"total"`
	// Counts maps each terminal state to the number of tasks that ended there.
	Counts map[TaskState]int `json:"counts"`
	// SuccessRate is completed / total, in [0, 1].
	SuccessRate float64 `json:"success_rate"`
	// TokensUsed is the run's final usage estimate.
	TokensUsed int64 `json:"tokens_used"`
	// TaskReports lists the per-task outcomes in task-id order.
	TaskReports []TaskReport `json:"task_reports"`
}

// TaskReport is one task's line in the aggregated summary.
type TaskReport struct {
	ID          int       `json:"id"`
	Role        Role      `json:"role"`
	Description string    `json:"description"`
	State       TaskState `json:"state"`
	Result      string    `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`
}
