package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"cadence/internal/config"
	"cadence/internal/storage"
	"cadence/internal/task"
	logx "cadence/pkg/logx"
)

var (
	historyTask    string
	historyOutcome string
	historyLimit   int
	historySince   time.Duration
	historyJSON    bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs from the history store",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	f := historyCmd.Flags()
	f.StringVarP(&historyTask, "task", "t", "", "only runs of this task")
	f.StringVar(&historyOutcome, "outcome", "", "only runs with this outcome (success, failure, spawn_error, terminated)")
	f.IntVarP(&historyLimit, "limit", "n", storage.DefaultLimit, "maximum number of runs")
	f.DurationVar(&historySince, "since", 0, "only runs finished within this window (e.g. 24h)")
	f.BoolVar(&historyJSON, "json", false, "print JSON lines instead of a table")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := config.NewConfigManager(cfgPath).Parse()
	if err != nil {
		return err
	}
	sc, _, err := cfg.HistorySettings()
	if err != nil {
		return err
	}
	st, err := storage.Open(sc, logx.Nop())
	if err != nil {
		return err
	}
	if st == nil {
		return errors.New("history is disabled in this config")
	}
	defer st.Close()

	q := storage.Query{Task: historyTask, Limit: historyLimit}
	if historyOutcome != "" {
		o, ok := task.ParseOutcome(historyOutcome)
		if !ok {
			return fmt.Errorf("unknown outcome %q", historyOutcome)
		}
		q.Outcome = o
	}
	if historySince > 0 {
		q.Since = time.Now().Add(-historySince)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	runs, err := st.RecentRuns(ctx, q)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if historyJSON {
		enc := json.NewEncoder(out)
		for _, r := range runs {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FINISHED\tTASK\tOUTCOME\tEXIT\tDURATION\tDETAIL")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.FinishedAt.Format(time.RFC3339), r.Task, r.Outcome, r.ExitStatus,
			r.Duration().Round(time.Millisecond), detail(r))
	}
	return w.Flush()
}

func detail(r task.Record) string {
	var parts []string
	if r.Signal != "" {
		parts = append(parts, "signal="+r.Signal)
	}
	if r.TimedOut {
		parts = append(parts, "timed out")
	}
	if r.Error != "" {
		parts = append(parts, r.Error)
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "; ")
}
