package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zeroagent/zeroagent/pkg/presenter"
	skilltypes "github.com/zeroagent/zeroagent/pkg/types/skills"
)

// statusReport is the output of `zeroagent status --json`
type statusReport struct {
	skilltypes.AgentState
	Installed  int                `json:"installed"`
	DaemonPID  int                `json:"daemonPid,omitempty"`
	Background []skilltypes.Entry `json:"background"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the agent summary",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			report, err := buildStatus(ctx, a)
			if err != nil {
				return err
			}
			if asJSON {
				out, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}
			printStatus(report)
			return nil
		})
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "Print the status as JSON")
}

func buildStatus(ctx context.Context, a *app) (statusReport, error) {
	report, err := a.agent.Status(ctx)
	if err != nil {
		return statusReport{}, err
	}
	entries, err := a.agent.List(ctx, "")
	if err != nil {
		return statusReport{}, err
	}

	out := statusReport{
		AgentState: report.State,
		Installed:  report.Installed,
		Background: []skilltypes.Entry{},
	}
	if pid, ok := a.daemonPID(); ok {
		out.DaemonPID = pid
	}
	for _, entry := range entries {
		if entry.ExecutionMode.Background() {
			out.Background = append(out.Background, entry)
		}
	}
	return out, nil
}

func printStatus(r statusReport) {
	presenter.Section(r.AgentName)
	presenter.Info(fmt.Sprintf("Tier:      %s", r.Tier))
	presenter.Info(fmt.Sprintf("Status:    %s", r.Status))
	if r.Tier == skilltypes.TierFree {
		presenter.Info(fmt.Sprintf("Skills:    %d / %d", r.Installed, skilltypes.FreeSkillLimit))
	} else {
		presenter.Info(fmt.Sprintf("Skills:    %d", r.Installed))
	}
	presenter.Info(fmt.Sprintf("Installed: %d since %s", r.TotalSkillsInstalled, r.CreatedAt.Local().Format(time.DateOnly)))
	if r.LastRun != nil {
		outcome := "succeeded"
		if !r.LastRun.Success {
			outcome = "failed"
		}
		presenter.Info(fmt.Sprintf("Last run:  %s %s at %s", r.LastRun.SkillName, outcome, r.LastRun.RanAt.Local().Format(time.DateTime)))
	}

	presenter.Section("Background skills")
	if r.DaemonPID > 0 {
		presenter.Info(fmt.Sprintf("Agent daemon running (pid %d)", r.DaemonPID))
	} else {
		presenter.Info("Agent daemon not running. Start it with `zeroagent start`.")
	}
	if len(r.Background) == 0 {
		presenter.Info("No scheduled or triggered skills.")
	}
	for _, e := range r.Background {
		detail := e.Schedule
		if e.ExecutionMode == skilltypes.ModeTriggered && e.Trigger != nil {
			detail = fmt.Sprintf("%s %v", e.Trigger.Condition, e.Trigger.Value)
		}
		presenter.Info(fmt.Sprintf("  %s  %s  %s  [%s]", e.Name, e.ExecutionMode, detail, e.Status))
	}
	if r.Tier == skilltypes.TierFree {
		presenter.Upgrade("Cloud tier runs scheduled and triggered skills and removes the skill limit")
	}
}
