package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zeroagent/zeroagent/pkg/presenter"
)

var renameCmd = &cobra.Command{
	Use:   "rename <name>",
	Short: "Rename the agent",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.TrimSpace(strings.Join(args, " "))
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			if err := a.agent.SetAgentName(ctx, name); err != nil {
				return err
			}
			presenter.Success(fmt.Sprintf("Agent renamed to %s.", name))
			return nil
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Print the agent name and tier",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			st, err := a.state.Load(ctx)
			if err != nil {
				return err
			}
			presenter.Info(fmt.Sprintf("%s (%s tier)", st.AgentName, st.Tier))
			return nil
		})
	},
}
