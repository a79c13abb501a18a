package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "overseer",
	Short: "Multi-agent task orchestrator",
	Long: `Overseer decomposes a goal into role-assigned tasks, runs them with
parallel specialist agents under a dependency schedule, and coordinates the
agents through a shared blackboard.

Core capabilities:
- Decomposes goals into a dependency DAG of tasks
- Spawns specialist workers (planner, coder, reviewer, researcher, tester)
- Caps concurrency and enforces run timeout and token budget
- Aggregates per-task outcomes into a run summary`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(versionCmd)
}
