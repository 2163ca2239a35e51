package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zeroagent/zeroagent/pkg/presenter"
)

var runCmd = &cobra.Command{
	Use:   "run <skill>",
	Short: "Run an installed skill now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("input")
		inputs, err := parseInputs(raw)
		if err != nil {
			return err
		}

		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			name := args[0]
			presenter.Info(fmt.Sprintf("Running %s...", name))
			result, err := a.agent.Run(ctx, name, inputs)
			if err != nil {
				return reportLocked(err)
			}
			presenter.Result(result)
			presenter.Success(fmt.Sprintf("%s completed successfully.", name))
			return nil
		})
	},
}

func init() {
	runCmd.Flags().StringP("input", "i", "", `Inputs as a JSON object, e.g. '{"city": "sf"}'`)
}
