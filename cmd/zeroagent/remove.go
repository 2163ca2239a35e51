package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zeroagent/zeroagent/pkg/presenter"
)

var removeCmd = &cobra.Command{
	Use:     "remove <skill>",
	Aliases: []string{"rm", "uninstall"},
	Short:   "Stop and remove an installed skill",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			if err := a.agent.Remove(ctx, args[0]); err != nil {
				return err
			}
			presenter.Success(fmt.Sprintf("%s removed successfully.", args[0]))
			return nil
		})
	},
}
