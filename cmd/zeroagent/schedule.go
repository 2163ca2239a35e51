package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/zeroagent/zeroagent/pkg/presenter"
	skilltypes "github.com/zeroagent/zeroagent/pkg/types/skills"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule <skill> <cron>",
	Short: "Run a skill on a cron schedule",
	Long: `Run a skill on a five field cron schedule, e.g. "*/15 * * * *" for every
fifteen minutes. Descriptors such as @hourly and @every 30m are accepted too.

When the agent daemon (zeroagent start) is running the schedule is handed to it.
Otherwise the schedule runs in the foreground until interrupted, unless --detach
is given, in which case it is only saved for the next zeroagent start.

Scheduled skills require the cloud tier.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		detach, _ := cmd.Flags().GetBool("detach")
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			return runSchedule(ctx, a, args[0], args[1], detach)
		})
	},
}

func init() {
	scheduleCmd.Flags().Bool("detach", false, "Only save the schedule, do not run it in the foreground")
}

func runSchedule(ctx context.Context, a *app, name, expr string, detach bool) error {
	cloud, err := a.isCloud(ctx)
	if err != nil {
		return err
	}
	pid, daemon := a.daemonPID()

	if cloud && (daemon || detach) {
		if _, err := a.agent.PersistSchedule(ctx, name, expr); err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("%s scheduled: %s", name, expr))
		if daemon {
			presenter.Info(fmt.Sprintf("The running agent (pid %d) picks it up.", pid))
		} else {
			presenter.Info("Run `zeroagent start` to activate it.")
		}
		return nil
	}

	entry, err := a.agent.Schedule(ctx, name, expr)
	if err != nil {
		return reportLocked(err)
	}
	if entry.Status != skilltypes.StatusActive {
		return errors.Errorf("%s is %s", name, entry.Status)
	}
	presenter.Success(fmt.Sprintf("%s is now running on schedule: %s", name, expr))
	presenter.Info("Press Ctrl+C to stop")
	waitForSignal(ctx)
	return nil
}
