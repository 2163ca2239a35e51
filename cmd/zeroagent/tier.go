package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zeroagent/zeroagent/pkg/presenter"
	skilltypes "github.com/zeroagent/zeroagent/pkg/types/skills"
)

var tierCmd = &cobra.Command{
	Use:       "tier [free|cloud]",
	Short:     "Show or change the agent tier",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{string(skilltypes.TierFree), string(skilltypes.TierCloud)},
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			if len(args) == 0 {
				st, err := a.state.Load(ctx)
				if err != nil {
					return err
				}
				presenter.Info(string(st.Tier))
				return nil
			}
			return setTier(ctx, a, skilltypes.Tier(args[0]))
		})
	},
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Switch the agent to the cloud tier",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			return setTier(ctx, a, skilltypes.TierCloud)
		})
	},
}

func setTier(ctx context.Context, a *app, tier skilltypes.Tier) error {
	if err := a.agent.SetTier(ctx, tier); err != nil {
		return err
	}
	presenter.Success(fmt.Sprintf("Tier set to %s.", tier))
	if _, ok := a.daemonPID(); ok {
		presenter.Info("The running agent applies the change.")
	} else if tier == skilltypes.TierCloud {
		presenter.Info("Run `zeroagent start` to keep scheduled skills running.")
	}
	return nil
}
