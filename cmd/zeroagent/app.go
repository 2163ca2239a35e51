package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/zeroagent/zeroagent/pkg/agent"
	"github.com/zeroagent/zeroagent/pkg/db"
	"github.com/zeroagent/zeroagent/pkg/history"
	"github.com/zeroagent/zeroagent/pkg/installer"
	"github.com/zeroagent/zeroagent/pkg/logger"
	"github.com/zeroagent/zeroagent/pkg/osutil"
	"github.com/zeroagent/zeroagent/pkg/registry"
	"github.com/zeroagent/zeroagent/pkg/runner"
	"github.com/zeroagent/zeroagent/pkg/scheduler"
	"github.com/zeroagent/zeroagent/pkg/skills"
	"github.com/zeroagent/zeroagent/pkg/state"
	"github.com/zeroagent/zeroagent/pkg/store"
)

// app holds the components of one invocation
type app struct {
	config    Config
	registry  *registry.Registry
	state     *state.Store
	history   *history.Store
	engine    *scheduler.Engine
	installer *installer.Installer
	agent     *agent.Agent
}

// newApp wires the agent from config
func newApp(ctx context.Context, cfg Config) (*app, error) {
	st, err := store.New(cfg.Home)
	if err != nil {
		return nil, err
	}

	a := &app{
		config:    cfg,
		registry:  registry.New(st),
		state:     state.New(st),
		installer: installer.New(cfg.SkillsDir()),
	}

	resolver := skills.ProcessResolver{SkillsDir: cfg.SkillsDir()}
	var runnerOpts []runner.Option
	if cfg.HistoryEnabled {
		a.history, err = history.Open(ctx, db.Path(cfg.Home))
		if err != nil {
			logger.G(ctx).WithError(err).Warn("run history is unavailable")
		} else {
			runnerOpts = append(runnerOpts, runner.WithRecorder(a.history))
		}
	}
	exec := runner.New(a.state, resolver, runnerOpts...)

	a.engine = scheduler.NewEngine(a.registry, a.state, exec, scheduler.WithPollInterval(cfg.PollInterval))
	a.agent = agent.New(agent.Deps{
		Registry:  a.registry,
		State:     a.state,
		Installer: a.installer,
		Scheduler: a.engine,
		Executor:  exec,
		Resolver:  resolver,
	})
	return a, nil
}

// openApp loads the configuration and wires the agent
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg)
}

// daemonPID returns the pid of a running `zeroagent start`
func (a *app) daemonPID() (int, bool) {
	return osutil.RunningPID(a.config.PIDFile())
}

// isCloud reports whether the agent is on the cloud tier
func (a *app) isCloud(ctx context.Context) (bool, error) {
	return a.state.IsCloudTier(ctx)
}

// Close stops background handles of this process and closes the history database
func (a *app) Close(ctx context.Context) error {
	err := a.agent.Shutdown(ctx)
	if a.history != nil {
		if cerr := a.history.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "failed to close history database")
		}
	}
	return err
}
