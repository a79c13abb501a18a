package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/overseer-dev/overseer/internal/blackboard"
	"github.com/overseer-dev/overseer/internal/config"
	"github.com/overseer-dev/overseer/internal/state"
	"github.com/overseer-dev/overseer/pkg/models"
)

var (
	statusAll    bool
	statusFollow bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest run and its tasks",
	Long: `Display the state of the most recent orchestration run.

Shows run status, token usage against budget, and per-task outcomes.
With --follow, tails the blackboard and prints agent messages as they
arrive until interrupted.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusAll, "all", false, "List all recorded runs")
	statusCmd.Flags().BoolVar(&statusFollow, "follow", false, "Tail blackboard messages from a live run")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if statusFollow {
		return followBlackboard(cfg)
	}

	if _, err := os.Stat(cfg.StatePath()); os.IsNotExist(err) {
		fmt.Println("No runs recorded. Start one with 'overseer run <goal>'.")
		return nil
	}

	db, err := state.Open(cfg.StatePath())
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate state db: %w", err)
	}

	if statusAll {
		return printAllRuns(db)
	}

	rec, err := db.LatestRun()
	if err != nil {
		return fmt.Errorf("load latest run: %w", err)
	}
	if rec == nil {
		fmt.Println("No runs recorded. Start one with 'overseer run <goal>'.")
		return nil
	}

	printRun(rec)

	tasks, err := db.GetTasks(rec.ID)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	for _, t := range tasks {
		line := fmt.Sprintf("  [%d] %-10s %-9s %s", t.ID, t.Role, t.State, t.Description)
		switch t.State {
		case models.TaskCompleted:
			color.Green(line)
		case models.TaskFailed, models.TaskTimedOut:
			color.Red(line)
		case models.TaskRunning:
			color.Cyan(line)
		default:
			color.Yellow(line)
		}
	}
	return nil
}

func printRun(rec *state.RunRecord) {
	fmt.Printf("run %s: %s\n", rec.ID, rec.Goal)
	fmt.Printf("  status: %s\n", rec.Status)
	if rec.TokenBudget > 0 {
		fmt.Printf("  tokens: %d / %d\n", rec.TokensUsed, rec.TokenBudget)
	} else {
		fmt.Printf("  tokens: %d\n", rec.TokensUsed)
	}
	fmt.Printf("  started: %s\n", rec.StartedAt.Local().Format(time.RFC822))
	if rec.FinishedAt != nil {
		fmt.Printf("  duration: %s\n", rec.FinishedAt.Sub(rec.StartedAt).Round(time.Second))
	}
}

// followBlackboard tails the blackboard and prints every new message until
// interrupted.
func followBlackboard(cfg *config.Config) error {
	store := blackboard.NewFileStore(cfg.BlackboardPath())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	changes, err := store.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watch blackboard: %w", err)
	}

	var cursor blackboard.Cursor
	printNew := func() {
		doc, err := store.Read()
		if err != nil {
			return
		}
		for _, m := range cursor.Next(doc, "") {
			line := fmt.Sprintf("%s  %-10s [%s] %s",
				m.Timestamp.Local().Format("15:04:05"), m.AgentID, m.Type, m.Content)
			switch m.Type {
			case models.MessageError:
				color.Red(line)
			case models.MessageResult:
				color.Green(line)
			default:
				fmt.Println(line)
			}
		}
	}

	printNew()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			printNew()
		}
	}
}

func printAllRuns(db *state.DB) error {
	runs, err := db.ListRuns(0)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}
	for _, rec := range runs {
		fmt.Printf("%s  %-11s  %8d tokens  %s\n",
			rec.StartedAt.Local().Format("2006-01-02 15:04"), rec.Status, rec.TokensUsed, rec.Goal)
	}
	return nil
}
