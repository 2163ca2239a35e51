package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/zeroagent/zeroagent/pkg/history"
	"github.com/zeroagent/zeroagent/pkg/presenter"
)

var historyCmd = &cobra.Command{
	Use:   "history [skill]",
	Short: "Show recent skill executions",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		prune, _ := cmd.Flags().GetDuration("prune")
		filter := history.Filter{Limit: limit}
		if len(args) == 1 {
			filter.SkillName = args[0]
		}

		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			if a.history == nil {
				return errors.New("run history is disabled")
			}
			if prune > 0 {
				removed, err := pruneHistory(ctx, a, prune)
				if err != nil {
					return err
				}
				presenter.Success(fmt.Sprintf("Removed %d run(s) older than %s.", removed, prune))
				return nil
			}
			runs, err := a.history.List(ctx, filter)
			if err != nil {
				return err
			}
			printRuns(runs)
			return nil
		})
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", history.DefaultLimit, "Maximum number of runs to show")
	historyCmd.Flags().Duration("prune", 0, "Delete runs older than this age (e.g. 720h) instead of listing")
}

// pruneHistory deletes the runs that started more than age ago
func pruneHistory(ctx context.Context, a *app, age time.Duration) (int64, error) {
	if age <= 0 {
		return 0, errors.Errorf("prune age must be positive, got %s", age)
	}
	return a.history.Prune(ctx, time.Now().Add(-age))
}

func printRuns(runs []history.Run) {
	if len(runs) == 0 {
		presenter.Info("No runs recorded yet.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tSKILL\tCAUSE\tDURATION\tRESULT")
	for _, r := range runs {
		outcome := "ok"
		if !r.Success {
			outcome = "failed: " + r.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format(time.DateTime), r.SkillName, r.Cause, r.Duration().Round(time.Millisecond), outcome)
	}
	w.Flush()
}
