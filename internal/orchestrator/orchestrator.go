package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/overseer-dev/overseer/internal/blackboard"
	"github.com/overseer-dev/overseer/internal/decompose"
	"github.com/overseer-dev/overseer/internal/graph"
	"github.com/overseer-dev/overseer/internal/runner"
	"github.com/overseer-dev/overseer/internal/scheduler"
	"github.com/overseer-dev/overseer/internal/state"
	"github.com/overseer-dev/overseer/pkg/models"
)

// DefaultPollInterval is how often the loop polls workers and re-evaluates
// scheduling when no option overrides it.
const DefaultPollInterval = 250 * time.Millisecond

// orchestratorAgentID tags blackboard messages written by the orchestrator
// itself rather than a worker.
const orchestratorAgentID = "orchestrator"

// Orchestrator drives one run through decomposing, scheduling, running,
// aggregating, and completed, with a side exit to aborted on timeout or
// budget exhaustion. All task state transitions happen on its single loop.
type Orchestrator struct {
	decomposer decompose.Decomposer
	runner     runner.Runner
	board      blackboard.Store

	db     *state.DB
	logger *DebugLogger
	poll   time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStateDB enables run persistence to the given database.
func WithStateDB(db *state.DB) Option {
	return func(o *Orchestrator) { o.db = db }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithPollInterval overrides the loop poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.poll = d
		}
	}
}

// New creates an Orchestrator over the given decomposer, runner, and
// blackboard store.
func New(dec decompose.Decomposer, run runner.Runner, board blackboard.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		decomposer: dec,
		runner:     run,
		board:      board,
		logger:     NopLogger(),
		poll:       DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProgressKey returns the shared-data key under which a run's progress
// snapshot is published.
func ProgressKey(runID string) string {
	return fmt.Sprintf("orchestration_%s_progress", runID)
}

// Execute drives the run to a terminal status and returns its summary.
// A task failure never aborts the run; only the run deadline, the token
// budget, a cancelled context, or a failed decomposition do.
func (o *Orchestrator) Execute(ctx context.Context, run *models.Run) (*models.Summary, error) {
	o.logger.Log("run %s: starting, goal %q (max_agents=%d timeout=%ds budget=%d)",
		run.ID, run.Goal, run.MaxAgents, run.TimeoutSeconds, run.TokenBudget)

	if o.db != nil {
		if err := o.db.InsertRun(run); err != nil {
			o.logger.Log("run %s: persist insert failed: %v", run.ID, err)
		}
	}

	budget := NewBudgetHandler(run.TokenBudget)

	sched, err := o.decomposeAndBuild(ctx, run)
	if err != nil {
		run.Status = models.RunAborted
		o.finishRun(run, budget)
		return nil, err
	}

	o.setStatus(run, models.RunRunning, budget)

	aborted, abortReason := o.runLoop(ctx, run, sched, budget)
	if aborted {
		o.logger.Log("run %s: aborting: %s", run.ID, abortReason)
	}

	return o.aggregate(run, sched, budget, aborted, abortReason)
}

// decomposeAndBuild turns the goal into a validated scheduler. Failures here
// abort the run before any worker starts.
func (o *Orchestrator) decomposeAndBuild(ctx context.Context, run *models.Run) (*scheduler.Scheduler, error) {
	// The run deadline bounds decomposition too; a stuck model call must not
	// outlive the run it was planning.
	decCtx, cancel := context.WithDeadline(ctx, run.Deadline())
	defer cancel()

	specs, err := o.decomposer.Decompose(decCtx, run.Goal)
	if err != nil {
		return nil, fmt.Errorf("decompose goal: %w", err)
	}

	tasks, err := decompose.ToTasks(specs)
	if err != nil {
		return nil, fmt.Errorf("materialize tasks: %w", err)
	}

	g, err := graph.Build(tasks)
	if err != nil {
		return nil, fmt.Errorf("build dependency graph: %w", err)
	}

	run.Tasks = tasks
	o.logger.Log("run %s: decomposed into %d tasks", run.ID, len(tasks))

	o.setStatus(run, models.RunScheduling, budgetNone)
	if o.db != nil {
		if err := o.db.InsertTasks(run.ID, tasks); err != nil {
			o.logger.Log("run %s: persist tasks failed: %v", run.ID, err)
		}
	}

	return scheduler.New(g, run.MaxAgents), nil
}

// budgetNone is passed where no budget update accompanies a status change.
var budgetNone *BudgetHandler

// runLoop is the single-threaded poll loop. It returns whether the run was
// aborted and why.
func (o *Orchestrator) runLoop(ctx context.Context, run *models.Run, sched *scheduler.Scheduler, budget *BudgetHandler) (bool, string) {
	deadline := run.Deadline()
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	handles := make(map[int]*runner.Handle)

	for {
		changed := o.pollHandles(run, sched, budget, handles)

		if time.Now().After(deadline) {
			o.abortWorkers(run, sched, handles, "run deadline exceeded")
			return true, "run deadline exceeded"
		}
		if budget.Check() == BudgetExhausted {
			reason := fmt.Sprintf("token budget exhausted (%d used)", budget.Used())
			o.abortWorkers(run, sched, handles, reason)
			return true, reason
		}
		if err := ctx.Err(); err != nil {
			reason := fmt.Sprintf("run cancelled: %v", err)
			o.abortWorkers(run, sched, handles, reason)
			return true, reason
		}

		if o.spawnEligible(runCtx, run, sched, handles) {
			changed = true
		}

		if changed {
			o.publishProgress(run, sched)
		}

		if sched.Done() && len(handles) == 0 {
			return false, ""
		}

		select {
		case <-time.After(o.poll):
		case <-runCtx.Done():
			// Deadline or cancellation; the next iteration resolves it.
		}
	}
}

// pollHandles checks every active worker and applies terminal transitions.
func (o *Orchestrator) pollHandles(run *models.Run, sched *scheduler.Scheduler, budget *BudgetHandler, handles map[int]*runner.Handle) bool {
	changed := false
	for id, h := range handles {
		st := o.runner.Poll(h)
		if st.Kind == runner.StatusRunning || st.Kind == runner.StatusTimedOut {
			// Timed-out workers are resolved by the deadline check, which
			// terminates and reclassifies them in one pass.
			continue
		}

		t := sched.Graph().Task(id)
		switch st.Kind {
		case runner.StatusSucceeded:
			t.Result = st.Result
			o.accountTokens(budget, st.TokensUsed, st.Result)
			o.mustAdvance(sched, id, models.TaskCompleted)
			o.logger.Log("run %s: task %d completed by %s", run.ID, id, h.AgentID)
		case runner.StatusFailed:
			if st.Err != nil {
				t.Error = st.Err.Error()
			}
			o.accountTokens(budget, st.TokensUsed, "")
			o.mustAdvance(sched, id, models.TaskFailed)
			o.logger.Log("run %s: task %d failed: %s", run.ID, id, t.Error)
		}

		delete(handles, id)
		o.persistTask(run, t)
		changed = true
	}
	return changed
}

// spawnEligible starts workers for schedulable tasks, up to the cap.
func (o *Orchestrator) spawnEligible(ctx context.Context, run *models.Run, sched *scheduler.Scheduler, handles map[int]*runner.Handle) bool {
	changed := false
	for _, t := range sched.Schedulable() {
		if t.State == models.TaskPending {
			o.mustAdvance(sched, t.ID, models.TaskReady)
		}
		o.mustAdvance(sched, t.ID, models.TaskRunning)

		h, err := o.runner.Spawn(ctx, t, o.sharedContext(sched, t))
		if err != nil {
			// Spawn failure fails the task, never the run.
			t.Error = err.Error()
			o.mustAdvance(sched, t.ID, models.TaskFailed)
			o.logger.Log("run %s: task %d spawn failed: %v", run.ID, t.ID, err)
			o.persistTask(run, t)
			changed = true
			continue
		}

		t.AgentID = h.AgentID
		handles[t.ID] = h
		o.logger.Log("run %s: task %d spawned as %s", run.ID, t.ID, h.AgentID)
		o.persistTask(run, t)
		changed = true
	}
	return changed
}

// abortWorkers force-terminates every active worker and marks its task
// timed out. Tasks that never started are skipped at aggregation.
func (o *Orchestrator) abortWorkers(run *models.Run, sched *scheduler.Scheduler, handles map[int]*runner.Handle, reason string) {
	for id, h := range handles {
		if err := o.runner.Terminate(h); err != nil {
			o.logger.Log("run %s: terminate %s: %v", run.ID, h.AgentID, err)
		}
		t := sched.Graph().Task(id)
		t.Error = reason
		o.mustAdvance(sched, id, models.TaskTimedOut)
		o.persistTask(run, t)
		delete(handles, id)
	}
}

// aggregate resolves leftover tasks, publishes the final progress and
// summary message, and returns the summary.
func (o *Orchestrator) aggregate(run *models.Run, sched *scheduler.Scheduler, budget *BudgetHandler, aborted bool, abortReason string) (*models.Summary, error) {
	o.setStatus(run, models.RunAggregating, budget)

	// Whatever never started is skipped: dependents of failed tasks on the
	// normal path, everything not yet running on the abort path.
	for _, t := range sched.Unfinished() {
		if t.State == models.TaskPending || t.State == models.TaskReady {
			o.mustAdvance(sched, t.ID, models.TaskSkipped)
		}
		o.persistTask(run, t)
	}

	o.publishProgress(run, sched)

	run.TokensUsed = budget.Used()
	if aborted {
		run.Status = models.RunAborted
	} else {
		run.Status = models.RunCompleted
	}

	summary := buildSummary(run, sched.Counts())

	content := fmt.Sprintf("run %s %s: %d/%d tasks completed, %d tokens used",
		run.ID, run.Status, summary.Counts[models.TaskCompleted], summary.Total, run.TokensUsed)
	if aborted {
		content += " (" + abortReason + ")"
	}
	if err := blackboard.AppendWithRetry(o.board, models.Message{
		Timestamp: time.Now().UTC(),
		AgentID:   orchestratorAgentID,
		Type:      models.MessageInfo,
		Content:   content,
	}, 3); err != nil {
		o.logger.Log("run %s: final message failed: %v", run.ID, err)
	}

	o.finishRun(run, budget)
	o.logger.Log("run %s: %s", run.ID, content)

	return summary, nil
}

// buildSummary computes the aggregated view of a finished run.
func buildSummary(run *models.Run, counts map[models.TaskState]int) *models.Summary {
	total := len(run.Tasks)
	s := &models.Summary{
		RunID:      run.ID,
		Goal:       run.Goal,
		Status:     run.Status,
		Total:      total,
		Counts:     counts,
		TokensUsed: run.TokensUsed,
	}
	if total > 0 {
		s.SuccessRate = float64(counts[models.TaskCompleted]) / float64(total)
	}
	for _, t := range run.Tasks {
		s.TaskReports = append(s.TaskReports, models.TaskReport{
			ID:          t.ID,
			Role:        t.Role,
			Description: t.Description,
			State:       t.State,
			Result:      t.Result,
			Error:       t.Error,
		})
	}
	return s
}

// accountTokens adds a task's usage to the budget: exact when the worker
// reported a count, else a size-based estimate of its result.
func (o *Orchestrator) accountTokens(budget *BudgetHandler, reported int64, result string) {
	if reported > 0 {
		budget.Update(reported)
		return
	}
	budget.Update(estimateTokens(result))
}

// estimateTokens approximates token usage from text length.
func estimateTokens(text string) int64 {
	return int64(len(text) / 4)
}

// sharedContext collects the results of a task's completed dependencies so
// the worker starts with what it needs from upstream.
func (o *Orchestrator) sharedContext(sched *scheduler.Scheduler, t *models.Task) string {
	if len(t.DependsOn) == 0 {
		return ""
	}
	var b strings.Builder
	for _, depID := range t.DependsOn {
		dep := sched.Graph().Task(depID)
		if dep == nil || dep.State != models.TaskCompleted || dep.Result == "" {
			continue
		}
		fmt.Fprintf(&b, "Task %d (%s): %s\n", dep.ID, dep.Role, dep.Result)
	}
	return strings.TrimRight(b.String(), "\n")
}

// publishProgress writes the run's progress snapshot to shared data. Loss is
// tolerated: the next state change republishes.
func (o *Orchestrator) publishProgress(run *models.Run, sched *scheduler.Scheduler) {
	counts := sched.Counts()
	total := len(run.Tasks)
	terminal := counts[models.TaskCompleted] + counts[models.TaskFailed] +
		counts[models.TaskSkipped] + counts[models.TaskTimedOut]

	var pct float64
	if total > 0 {
		pct = float64(terminal) / float64(total) * 100
	}

	progress := map[string]any{
		"total":        total,
		"completed":    counts[models.TaskCompleted],
		"running":      counts[models.TaskRunning],
		"pending":      counts[models.TaskPending] + counts[models.TaskReady],
		"progress_pct": pct,
	}
	if err := o.board.SetSharedData(ProgressKey(run.ID), progress); err != nil {
		o.logger.Log("run %s: publish progress: %v", run.ID, err)
	}
}

// mustAdvance applies a transition the loop has already validated by
// construction. A rejection here is a state machine bug worth logging.
func (o *Orchestrator) mustAdvance(sched *scheduler.Scheduler, id int, next models.TaskState) {
	if err := sched.Advance(id, next); err != nil {
		o.logger.Log("state machine violation: %v", err)
	}
}

// setStatus records a run status change in memory and the state database.
func (o *Orchestrator) setStatus(run *models.Run, status models.RunStatus, budget *BudgetHandler) {
	run.Status = status
	var used int64
	if budget != nil {
		used = budget.Used()
	}
	if o.db != nil {
		if err := o.db.UpdateRunStatus(run.ID, status, used); err != nil {
			o.logger.Log("run %s: persist status %s: %v", run.ID, status, err)
		}
	}
}

// finishRun records the terminal run row.
func (o *Orchestrator) finishRun(run *models.Run, budget *BudgetHandler) {
	run.TokensUsed = budget.Used()
	if o.db != nil {
		if err := o.db.FinishRun(run.ID, run.Status, run.TokensUsed); err != nil {
			o.logger.Log("run %s: persist finish: %v", run.ID, err)
		}
	}
}

// persistTask records a task's current row, if persistence is enabled.
func (o *Orchestrator) persistTask(run *models.Run, t *models.Task) {
	if o.db == nil {
		return
	}
	if err := o.db.UpdateTask(run.ID, t); err != nil {
		o.logger.Log("run %s: persist task %d: %v", run.ID, t.ID, err)
	}
}
