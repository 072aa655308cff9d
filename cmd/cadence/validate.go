package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"cadence/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the config and print the resolved task table",
	Args:  cobra.NoArgs,
	RunE:  runValidate,
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.NewConfigManager(cfgPath).Parse()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	tasks, err := cfg.BuildTasks()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tINTERVAL\tTIMEOUT\tON START\tCOMMAND")
	for _, t := range tasks {
		timeout := "-"
		if t.Timeout > 0 {
			timeout = t.Timeout.String()
		}
		cmdline := strings.TrimSpace(t.Command + " " + strings.Join(t.Args, " "))
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", t.Name, t.Interval, timeout, t.RunOnStart, cmdline)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "config ok: %d tasks\n", len(tasks))
	return nil
}
