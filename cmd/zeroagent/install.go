package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zeroagent/zeroagent/pkg/agent"
	"github.com/zeroagent/zeroagent/pkg/presenter"
	skilltypes "github.com/zeroagent/zeroagent/pkg/types/skills"
)

var installCmd = &cobra.Command{
	Use:   "install <source>",
	Short: "Install a skill",
	Long: `Install a skill from one of:

  skills:<name>          the skills.sh marketplace
  github:<owner>/<repo>  a GitHub repository
  npm:<package>          an npm package
  https://...            a git repository or a direct download
  ./path, file:<path>    a local directory

Installing never fails because of the tier: skills above the free limit, and
scheduled or triggered skills on the free tier, are installed locked.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			res, err := a.agent.Install(ctx, args[0], name)
			if err != nil {
				return err
			}
			printInstallResult(res)
			return nil
		})
	},
}

func init() {
	installCmd.Flags().String("name", "", "Install under this name instead of the one derived from the source")
}

func printInstallResult(res agent.InstallResult) {
	entry := res.Entry
	if res.AlreadyInstalled {
		presenter.Warning(fmt.Sprintf("%s is already installed.", entry.Name))
		return
	}
	if res.Unverified {
		presenter.Warning(fmt.Sprintf("%s comes from an unverified source: %s", entry.Name, entry.Source))
	}

	switch res.LockReason() {
	case skilltypes.LockReasonTier:
		presenter.Upgrade(fmt.Sprintf("%s requires the cloud tier, it runs in the background. Installed locked.", entry.Name))
	case skilltypes.LockReasonQuota:
		presenter.Warning(fmt.Sprintf("You have reached the free tier limit of %d skills. %s is installed locked.", skilltypes.FreeSkillLimit, entry.Name))
		presenter.Upgrade("Cloud tier removes the skill limit")
	}

	presenter.Success(fmt.Sprintf("%s %s installed (%s)", entry.Name, entry.Version, entry.ExecutionMode))
	if res.RemainingFreeSlots >= 0 && res.RemainingFreeSlots <= 2 {
		presenter.Warning(fmt.Sprintf("%d free skill slot(s) remaining.", res.RemainingFreeSlots))
	}
}
