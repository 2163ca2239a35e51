package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zeroagent/zeroagent/pkg/presenter"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger <skill> <condition>",
	Short: "Run a skill whenever a condition becomes true",
	Long: `Watch a condition and run the skill on every poll that reports it met.

The condition is evaluated by the skill's own check entry point, which receives
the --value threshold. Polling happens every trigger.poll_interval (60s by
default) in the foreground until interrupted. With --detach the trigger is only
saved; triggers are not resumed by zeroagent start.

Triggered skills require the cloud tier.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("value")
		detach, _ := cmd.Flags().GetBool("detach")
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			return runTrigger(ctx, a, args[0], args[1], parseTriggerValue(raw), detach)
		})
	},
}

func init() {
	triggerCmd.Flags().String("value", "", "Threshold passed to the skill's check entry point")
	triggerCmd.Flags().Bool("detach", false, "Only save the trigger, do not watch it")
}

func runTrigger(ctx context.Context, a *app, name, condition string, value any, detach bool) error {
	cloud, err := a.isCloud(ctx)
	if err != nil {
		return err
	}
	if cloud && detach {
		if _, err := a.agent.PersistTrigger(ctx, name, condition, value); err != nil {
			return err
		}
		presenter.Success(fmt.Sprintf("%s trigger saved: %s", name, condition))
		return nil
	}

	if _, err := a.agent.Trigger(ctx, name, condition, value, nil); err != nil {
		return reportLocked(err)
	}
	presenter.Success(fmt.Sprintf("Watching %s: %s (every %s)", name, condition, a.engine.PollInterval()))
	presenter.Info("Press Ctrl+C to stop")
	waitForSignal(ctx)
	return nil
}
