package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/zeroagent/zeroagent/pkg/presenter"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List installed skills",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern, _ := cmd.Flags().GetString("match")
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			entries, err := a.agent.List(ctx, pattern)
			if err != nil {
				return err
			}
			presenter.Skills(entries)
			return nil
		})
	},
}

func init() {
	listCmd.Flags().StringP("match", "m", "", "Only list skills whose name matches a glob, e.g. 'btc-*'")
}
