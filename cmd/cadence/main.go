package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cadence/internal/task"
)

const version = "0.3.0"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "cadence",
	Short:         "Run external jobs on fixed intervals, one process per run",
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./cadence.yaml", "path to config (yaml or json)")
	rootCmd.AddCommand(runCmd, validateCmd, historyCmd)
}

// Exit codes: 0 clean stop, 1 runtime or startup failure, 2 invalid task config.
func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "cadence:", err)
		if task.IsConfigError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
