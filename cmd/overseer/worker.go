package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/overseer-dev/overseer/internal/blackboard"
	"github.com/overseer-dev/overseer/internal/config"
	"github.com/overseer-dev/overseer/internal/llm"
	"github.com/overseer-dev/overseer/internal/runner"
	"github.com/overseer-dev/overseer/pkg/models"
)

var (
	workerAgentID    string
	workerRole       string
	workerTaskID     int
	workerBlackboard string
)

// workerCmd is the hidden re-invocation mode: the orchestrator spawns the
// overseer binary with this command, one process per agent. The brief
// arrives on stdin; the outcome goes back through the blackboard.
var workerCmd = &cobra.Command{
	Use:    "worker",
	Hidden: true,
	Short:  "Run a single agent (internal)",
	RunE:   runWorker,
}

func init() {
	workerCmd.Flags().StringVar(&workerAgentID, "agent-id", "", "Agent identifier")
	workerCmd.Flags().StringVar(&workerRole, "role", "", "Agent role")
	workerCmd.Flags().IntVar(&workerTaskID, "task-id", 0, "Task being executed")
	workerCmd.Flags().StringVar(&workerBlackboard, "blackboard", "", "Blackboard file path")
	workerCmd.MarkFlagRequired("agent-id")
	workerCmd.MarkFlagRequired("role")
	workerCmd.MarkFlagRequired("blackboard")
}

func runWorker(cmd *cobra.Command, args []string) error {
	role := models.Role(workerRole)
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", workerRole)
	}

	brief, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read brief from stdin: %w", err)
	}
	if len(brief) == 0 {
		return fmt.Errorf("empty brief on stdin")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	client, err := llm.NewClient(llm.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return fmt.Errorf("create API client: %w", err)
	}

	// SIGTERM from the orchestrator cancels the context; the worker then
	// reports the cancellation as an error message before exiting, inside
	// the termination grace period.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, os.Interrupt)
	go func() {
		<-sigCh
		cancel()
	}()
	defer signal.Stop(sigCh)

	w := &runner.Worker{
		AgentID: workerAgentID,
		Role:    role,
		Brief:   string(brief),
		Store:   blackboard.NewFileStore(workerBlackboard),
		Exec:    llm.NewExecutor(client),
	}

	return w.Run(ctx)
}
