package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/overseer-dev/overseer/internal/blackboard"
	"github.com/overseer-dev/overseer/internal/config"
	"github.com/overseer-dev/overseer/internal/decompose"
	"github.com/overseer-dev/overseer/internal/llm"
	"github.com/overseer-dev/overseer/internal/orchestrator"
	"github.com/overseer-dev/overseer/internal/runner"
	"github.com/overseer-dev/overseer/internal/state"
	"github.com/overseer-dev/overseer/pkg/models"
)

var (
	runMaxAgents   int
	runTimeout     int
	runTokenBudget int64
)

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Orchestrate a goal with parallel agents",
	Long: `Decompose the goal into tasks, schedule them over their dependency
graph, and execute them with specialist agents coordinating through the
shared blackboard.

The run ends when every task is terminal, or is aborted when the timeout or
token budget is exceeded. A single task failing never aborts the run; its
dependents are reported as skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGoal,
}

func init() {
	runCmd.Flags().IntVar(&runMaxAgents, "max-agents", 0, "Maximum concurrent agents (default from config)")
	runCmd.Flags().IntVar(&runTimeout, "timeout", 0, "Run timeout in seconds (default from config)")
	runCmd.Flags().Int64Var(&runTokenBudget, "token-budget", 0, "Token budget for the run (default from config)")
}

func runGoal(cmd *cobra.Command, args []string) error {
	goal := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	maxAgents := runMaxAgents
	if maxAgents <= 0 {
		maxAgents = cfg.Defaults.MaxAgents
	}
	timeout := runTimeout
	if timeout <= 0 {
		timeout = cfg.Defaults.TimeoutSeconds
	}
	budget := runTokenBudget
	if budget <= 0 {
		budget = cfg.Defaults.TokenBudget
	}

	runID := uuid.New().String()[:8]
	run := models.NewRun(runID, goal, maxAgents, timeout, budget)

	board := blackboard.NewFileStore(cfg.BlackboardPath())
	registry := runner.NewRegistry()

	procRunner := runner.NewProcessRunner(cfg.BlackboardPath(), registry)

	dec := buildDecomposer(cfg)

	db, err := state.Open(cfg.StatePath())
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate state db: %w", err)
	}

	logger := orchestrator.NewDebugLoggerForDir(cfg.LogDir())
	defer logger.Close()

	// Ctrl-C tears down every live worker before exiting.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		color.Yellow("\ninterrupted, terminating %d live workers...", registry.Count())
		cancel()
		registry.TerminateAll()
	}()
	defer signal.Stop(sigCh)

	orch := orchestrator.New(dec, procRunner, board,
		orchestrator.WithStateDB(db),
		orchestrator.WithLogger(logger),
		orchestrator.WithPollInterval(cfg.Defaults.PollInterval),
	)

	color.Cyan("run %s: %s", run.ID, goal)
	summary, err := orch.Execute(ctx, run)
	if err != nil {
		return fmt.Errorf("run %s: %w", run.ID, err)
	}

	printSummary(summary)
	return nil
}

// buildDecomposer prefers the model-backed decomposer and falls back to the
// heuristic plan when no credentials are available.
func buildDecomposer(cfg *config.Config) decompose.Decomposer {
	clientCfg := llm.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	}
	client, err := llm.NewClient(clientCfg)
	if err != nil {
		color.Yellow("no API credentials, using heuristic decomposition")
		return decompose.Heuristic{}
	}
	return decompose.WithFallback{Primary: decompose.NewClaude(client)}
}

func printSummary(s *models.Summary) {
	fmt.Println()
	switch s.Status {
	case models.RunCompleted:
		color.Green("run %s completed", s.RunID)
	default:
		color.Red("run %s %s", s.RunID, s.Status)
	}

	fmt.Printf("  tasks: %d total, %d completed, %d failed, %d skipped, %d timed out\n",
		s.Total,
		s.Counts[models.TaskCompleted],
		s.Counts[models.TaskFailed],
		s.Counts[models.TaskSkipped],
		s.Counts[models.TaskTimedOut],
	)
	fmt.Printf("  success rate: %.0f%%\n", s.SuccessRate*100)
	fmt.Printf("  tokens used: %d\n", s.TokensUsed)

	for _, r := range s.TaskReports {
		line := fmt.Sprintf("  [%d] %-10s %-9s %s", r.ID, r.Role, r.State, r.Description)
		switch r.State {
		case models.TaskCompleted:
			color.Green(line)
		case models.TaskFailed, models.TaskTimedOut:
			color.Red(line)
			if r.Error != "" {
				fmt.Printf("        error: %s\n", r.Error)
			}
		default:
			color.Yellow(line)
		}
	}
}
