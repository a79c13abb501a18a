package models

import "time"

// Role identifies the specialist assigned to a task.
type Role string

const (
	// RolePlanner produces structured plans with dependencies and success criteria.
	RolePlanner Role = "planner"
	// RoleCoder implements code changes.
	RoleCoder Role = "coder"
	// RoleReviewer reviews work for correctness and quality.
	RoleReviewer Role = "reviewer"
	// RoleResearcher gathers context from code and documentation.
	RoleResearcher Role = "researcher"
	// RoleTester designs and runs tests.
	RoleTester Role = "tester"
)

// Valid returns true if the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RolePlanner, RoleCoder, RoleReviewer, RoleResearcher, RoleTester:
		return true
	default:
		return false
	}
}

// TaskState represents the current state of a task.
type TaskState string

const (
	// TaskPending indicates the task is waiting on dependencies.
	TaskPending TaskState = "pending"
	// TaskReady indicates all dependencies are satisfied.
	TaskReady TaskState = "ready"
	// TaskRunning indicates a worker is executing the task.
	TaskRunning TaskState = "running"
	// TaskCompleted indicates the task finished successfully.
	TaskCompleted TaskState = "completed"
	// TaskFailed indicates the task finished with an error.
	TaskFailed TaskState = "failed"
	// TaskSkipped indicates the task was never started (dead dependency or abort).
	TaskSkipped TaskState = "skipped"
	// TaskTimedOut indicates the task was force-terminated at the run deadline.
	TaskTimedOut TaskState = "timed_out"
)

// Valid returns true if the state is a known value.
func (s TaskState) Valid() bool {
	switch s {
	case TaskPending, TaskReady, TaskRunning, TaskCompleted, TaskFailed, TaskSkipped, TaskTimedOut:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transition is allowed from this state.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskSkipped, TaskTimedOut:
		return true
	default:
		return false
	}
}

// taskTransitions maps each state to the states reachable from it.
// Transitions are monotonic: no state ever returns to pending.
var taskTransitions = map[TaskState][]TaskState{
	TaskPending: {TaskReady, TaskSkipped},
	TaskReady:   {TaskRunning, TaskSkipped},
	TaskRunning: {TaskCompleted, TaskFailed, TaskTimedOut},
}

// CanTransition reports whether a task may move from state s to next.
func (s TaskState) CanTransition(next TaskState) bool {
	for _, allowed := range taskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Task represents one sub-unit of a decomposed goal.
type Task struct {
	// ID is the task's ordinal within its run, unique and immutable.
	ID int `json:"id"`
	// Description is the free-text instruction for the worker.
	Description string `json:"description"`
	// Role is the specialist assigned to this task.
	Role Role `json:"role"`
	// DependsOn lists task IDs that must complete before this task runs.
	DependsOn []int `json:"depends_on,omitempty"`
	// State is the current lifecycle state.
	State TaskState `json:"state"`
	// Result holds the free-text outcome once the task is terminal.
	Result string `json:"result,omitempty"`
	// Error holds the failure reason if the task failed.
	Error string `json:"error,omitempty"`
	// AgentID identifies the worker that executed the task, set at spawn time.
	AgentID string `json:"agent_id,omitempty"`
	// StartedAt is when a worker was spawned for the task.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
