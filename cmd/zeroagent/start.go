package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/zeroagent/zeroagent/pkg/api"
	"github.com/zeroagent/zeroagent/pkg/logger"
	"github.com/zeroagent/zeroagent/pkg/osutil"
	"github.com/zeroagent/zeroagent/pkg/presenter"
	"github.com/zeroagent/zeroagent/pkg/scheduler"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Boot the agent and keep scheduled skills running",
	Long: `Boot the agent: start every scheduled skill and follow changes made by other
zeroagent invocations until interrupted. With --listen a local JSON API is
served on api.host:api.port.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		listen, _ := cmd.Flags().GetBool("listen")
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			return runDaemon(ctx, a, listen)
		})
	},
}

func init() {
	startCmd.Flags().Bool("listen", false, "Serve the local JSON API")
	startCmd.Flags().String("host", "", "API host (overrides api.host)")
	startCmd.Flags().Int("port", 0, "API port (overrides api.port)")

	viper.BindPFlag("api.host", startCmd.Flags().Lookup("host"))
	viper.BindPFlag("api.port", startCmd.Flags().Lookup("port"))
}

func runDaemon(ctx context.Context, a *app, listen bool) error {
	if pid, ok := a.daemonPID(); ok {
		return errors.Errorf("the agent is already running (pid %d)", pid)
	}
	if err := osutil.WritePIDFile(a.config.PIDFile()); err != nil {
		return errors.Wrap(err, "failed to write pid file")
	}
	defer func() {
		if err := osutil.RemovePIDFile(a.config.PIDFile()); err != nil {
			logger.G(ctx).WithError(err).Warn("failed to remove pid file")
		}
	}()

	report, err := a.agent.Status(ctx)
	if err != nil {
		return err
	}
	presenter.Section("ZeroAgent")
	presenter.Info(fmt.Sprintf("Agent: %s | Tier: %s | Skills: %d", report.State.AgentName, report.State.Tier, report.Installed))

	if err := a.agent.Boot(ctx); err != nil {
		presenter.Warning(fmt.Sprintf("some scheduled skills failed to start: %v", err))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.engine.Watch(gctx, scheduler.DefaultDebounce, a.registry.Path(), a.state.Path())
	})

	if listen {
		var runs api.HistoryLister
		if a.history != nil {
			runs = a.history
		}
		server, err := api.NewServer(&api.ServerConfig{Host: a.config.APIHost, Port: a.config.APIPort}, a.agent, runs)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return server.Start(gctx)
		})
		presenter.Info(fmt.Sprintf("API listening on http://%s:%d", a.config.APIHost, a.config.APIPort))
	}

	snapshot := a.engine.Status()
	presenter.Success(fmt.Sprintf("Agent ready. %d scheduled skill(s) running.", len(snapshot.Scheduled)))
	presenter.Info("Press Ctrl+C to stop")

	g.Go(func() error {
		waitForSignal(gctx)
		cancel()
		return nil
	})
	return g.Wait()
}
