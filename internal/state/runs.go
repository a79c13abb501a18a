package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/overseer-dev/overseer/pkg/models"
)

// RunRecord is the persisted view of one run.
type RunRecord struct {
	ID          string
	Goal        string
	Status      models.RunStatus
	MaxAgents   int
	TokenBudget int64
	TokensUsed  int64
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// InsertRun records a new run at start.
func (db *DB) InsertRun(run *models.Run) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		INSERT INTO runs (id, goal, status, max_agents, token_budget, tokens_used, started_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		run.ID, run.Goal, string(run.Status), run.MaxAgents, run.TokenBudget, run.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// UpdateRunStatus records a run status transition and current token usage.
func (db *DB) UpdateRunStatus(runID string, status models.RunStatus, tokensUsed int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(
		"UPDATE runs SET status = ?, tokens_used = ? WHERE id = ?",
		string(status), tokensUsed, runID,
	)
	if err != nil {
		return fmt.Errorf("update run %s: %w", runID, err)
	}
	return nil
}

// FinishRun records the terminal status, final token usage, and end time.
func (db *DB) FinishRun(runID string, status models.RunStatus, tokensUsed int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(
		"UPDATE runs SET status = ?, tokens_used = ?, finished_at = ? WHERE id = ?",
		string(status), tokensUsed, time.Now().UTC(), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	return nil
}

// GetRun loads one run by ID.
func (db *DB) GetRun(runID string) (*RunRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`
		SELECT id, goal, status, max_agents, token_budget, tokens_used, started_at, finished_at
		FROM runs WHERE id = ?`, runID)
	return scanRun(row)
}

// LatestRun loads the most recently started run, or nil if none exist.
func (db *DB) LatestRun() (*RunRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`
		SELECT id, goal, status, max_agents, token_budget, tokens_used, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT 1`)
	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// ListRuns returns runs newest first, up to limit (0 means all).
func (db *DB) ListRuns(limit int) ([]*RunRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	query := `
		SELECT id, goal, status, max_agents, token_budget, tokens_used, started_at, finished_at
		FROM runs ORDER BY started_at DESC`
	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = db.conn.Query(query+" LIMIT ?", limit)
	} else {
		rows, err = db.conn.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	rec := &RunRecord{}
	var status string
	var finished sql.NullTime
	err := row.Scan(&rec.ID, &rec.Goal, &status, &rec.MaxAgents, &rec.TokenBudget,
		&rec.TokensUsed, &rec.StartedAt, &finished)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	rec.Status = models.RunStatus(status)
	if finished.Valid {
		t := finished.Time
		rec.FinishedAt = &t
	}
	return rec, nil
}

// InsertTasks records the decomposed tasks of a run.
func (db *DB) InsertTasks(runID string, tasks []*models.Task) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	for _, t := range tasks {
		_, err := tx.Exec(`
			INSERT INTO tasks (run_id, id, description, role, depends_on, state)
			VALUES (?, ?, ?, ?, ?, ?)`,
			runID, t.ID, t.Description, string(t.Role), encodeDeps(t.DependsOn), string(t.State),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert task %d: %w", t.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tasks: %w", err)
	}
	return nil
}

// UpdateTask records a task's current state, assignment, and outcome.
func (db *DB) UpdateTask(runID string, task *models.Task) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		UPDATE tasks SET state = ?, agent_id = ?, result = ?, error = ?
		WHERE run_id = ? AND id = ?`,
		string(task.State), task.AgentID, task.Result, task.Error, runID, task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task %d: %w", task.ID, err)
	}
	return nil
}

// GetTasks loads all tasks for a run in ID order.
func (db *DB) GetTasks(runID string) ([]*models.Task, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT id, description, role, depends_on, state, agent_id, result, error
		FROM tasks WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t := &models.Task{}
		var role, state, deps string
		var agentID, result, taskErr sql.NullString
		if err := rows.Scan(&t.ID, &t.Description, &role, &deps, &state, &agentID, &result, &taskErr); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Role = models.Role(role)
		t.State = models.TaskState(state)
		t.DependsOn = decodeDeps(deps)
		t.AgentID = agentID.String
		t.Result = result.String
		t.Error = taskErr.String
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
