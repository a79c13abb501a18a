package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/overseer-dev/overseer/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestRunRoundTrip(t *testing.T) {
	db := openTestDB(t)

	run := models.NewRun("run-a", "build the parser", 4, 120, 50000)
	if err := db.InsertRun(run); err != nil {
		t.Fatalf("insert run: %v", err)
	}

	if err := db.UpdateRunStatus(run.ID, models.RunRunning, 1200); err != nil {
		t.Fatalf("update status: %v", err)
	}
	if err := db.FinishRun(run.ID, models.RunCompleted, 4800); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	rec, err := db.GetRun(run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if rec.Goal != "build the parser" || rec.Status != models.RunCompleted {
		t.Errorf("record = %+v", rec)
	}
	if rec.TokensUsed != 4800 || rec.MaxAgents != 4 || rec.TokenBudget != 50000 {
		t.Errorf("numbers not persisted: %+v", rec)
	}
	if rec.FinishedAt == nil {
		t.Error("finished_at not set")
	}
}

func TestTasksRoundTrip(t *testing.T) {
	db := openTestDB(t)

	run := models.NewRun("run-b", "goal", 0, 0, 0)
	if err := db.InsertRun(run); err != nil {
		t.Fatalf("insert run: %v", err)
	}

	tasks := []*models.Task{
		{ID: 1, Description: "plan", Role: models.RolePlanner, State: models.TaskPending},
		{ID: 2, Description: "code", Role: models.RoleCoder, DependsOn: []int{1}, State: models.TaskPending},
	}
	if err := db.InsertTasks(run.ID, tasks); err != nil {
		t.Fatalf("insert tasks: %v", err)
	}

	tasks[1].State = models.TaskCompleted
	tasks[1].AgentID = "coder_deadbeef"
	tasks[1].Result = "done"
	if err := db.UpdateTask(run.ID, tasks[1]); err != nil {
		t.Fatalf("update task: %v", err)
	}

	got, err := db.GetTasks(run.ID)
	if err != nil {
		t.Fatalf("get tasks: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d tasks, want 2", len(got))
	}
	if len(got[1].DependsOn) != 1 || got[1].DependsOn[0] != 1 {
		t.Errorf("deps = %v, want [1]", got[1].DependsOn)
	}
	if got[1].State != models.TaskCompleted || got[1].AgentID != "coder_deadbeef" || got[1].Result != "done" {
		t.Errorf("task update not persisted: %+v", got[1])
	}
}

func TestLatestRun(t *testing.T) {
	db := openTestDB(t)

	if rec, err := db.LatestRun(); err != nil || rec != nil {
		t.Fatalf("latest on empty db = %v, %v", rec, err)
	}

	first := models.NewRun("run-1", "first", 0, 0, 0)
	if err := db.InsertRun(first); err != nil {
		t.Fatalf("insert: %v", err)
	}
	second := models.NewRun("run-2", "second", 0, 0, 0)
	second.StartedAt = second.StartedAt.Add(time.Second) // disambiguate ordering
	if err := db.InsertRun(second); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rec, err := db.LatestRun()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if rec == nil || rec.Goal != "second" {
		t.Errorf("latest = %+v, want second", rec)
	}

	runs, err := db.ListRuns(0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("listed %d runs, want 2", len(runs))
	}
}

func TestDepsEncoding(t *testing.T) {
	if got := encodeDeps(nil); got != "" {
		t.Errorf("encode nil = %q", got)
	}
	if got := encodeDeps([]int{3, 1, 2}); got != "3,1,2" {
		t.Errorf("encode = %q", got)
	}
	if got := decodeDeps("3,1,2"); len(got) != 3 || got[0] != 3 {
		t.Errorf("decode = %v", got)
	}
	if got := decodeDeps(""); got != nil {
		t.Errorf("decode empty = %v", got)
	}
}
