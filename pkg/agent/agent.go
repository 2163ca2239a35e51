// Package agent is the orchestrator: it applies the tier and quota policy to
// installs and runs, and hands background skills to the scheduler.
package agent

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/zeroagent/zeroagent/pkg/installer"
	"github.com/zeroagent/zeroagent/pkg/logger"
	"github.com/zeroagent/zeroagent/pkg/registry"
	"github.com/zeroagent/zeroagent/pkg/runner"
	"github.com/zeroagent/zeroagent/pkg/scheduler"
	"github.com/zeroagent/zeroagent/pkg/skills"
	"github.com/zeroagent/zeroagent/pkg/state"
	skilltypes "github.com/zeroagent/zeroagent/pkg/types/skills"
)

// Installer places a skill on local storage and removes it again
type Installer interface {
	Materialize(ctx context.Context, source, name string) (string, error)
	Remove(ctx context.Context, name string) error
}

// Deps are the collaborators of an Agent
type Deps struct {
	Registry  *registry.Registry
	State     *state.Store
	Installer Installer
	Scheduler *scheduler.Engine
	Executor  scheduler.Executor
	Resolver  skills.Resolver
}

// Agent orchestrates the skill lifecycle
type Agent struct {
	registry  *registry.Registry
	state     *state.Store
	installer Installer
	scheduler *scheduler.Engine
	exec      scheduler.Executor
	resolver  skills.Resolver
	now       func() time.Time
}

// Option configures an Agent
type Option func(*Agent)

// WithClock overrides the clock used for install timestamps
func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		a.now = now
	}
}

// New creates an Agent
func New(d Deps, opts ...Option) *Agent {
	a := &Agent{
		registry:  d.Registry,
		state:     d.State,
		installer: d.Installer,
		scheduler: d.Scheduler,
		exec:      d.Executor,
		resolver:  d.Resolver,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// InstallResult describes the outcome of Install
type InstallResult struct {
	Entry            skilltypes.Entry
	AlreadyInstalled bool
	// RemainingFreeSlots is the free tier headroom after the install, -1 on the cloud tier
	RemainingFreeSlots int
	// Unverified is set for skills fetched from a direct URL
	Unverified bool
}

// LockReason tells why a freshly installed skill was locked, empty when it was not
func (r InstallResult) LockReason() skilltypes.LockReason {
	if r.AlreadyInstalled || r.Entry.Status != skilltypes.StatusLocked {
		return ""
	}
	if r.Entry.ExecutionMode.Background() {
		return skilltypes.LockReasonTier
	}
	return skilltypes.LockReasonQuota
}

// Install materializes source and registers it. The name defaults to the
// last path segment of the source. Installing never fails because of the
// tier: skills over the free quota, and background skills on the free tier,
// are registered as locked.
func (a *Agent) Install(ctx context.Context, source, name string) (InstallResult, error) {
	src := installer.ParseSource(source)
	if name == "" {
		name = src.Name()
	}
	if name == "" {
		return InstallResult{}, errors.Errorf("cannot derive a skill name from %q", source)
	}
	log := logger.G(ctx).WithFields(logrus.Fields{"skill": name, "source": source})

	if existing, err := a.registry.Get(ctx, name); err == nil {
		log.Warn("skill is already installed")
		return InstallResult{Entry: existing, AlreadyInstalled: true, RemainingFreeSlots: -1}, nil
	} else if !errors.Is(err, skilltypes.ErrNotInstalled) {
		return InstallResult{}, err
	}

	dir, err := a.installer.Materialize(ctx, source, name)
	if err != nil {
		if errors.Is(err, skilltypes.ErrInstallFailure) {
			return InstallResult{}, err
		}
		return InstallResult{}, errors.Wrapf(skilltypes.ErrInstallFailure, "%s: %v", name, err)
	}

	manifest, err := skills.LoadManifest(dir, name)
	if err != nil {
		log.WithError(err).Warn("invalid skill manifest, using defaults")
		manifest = skills.DefaultManifest(name)
	}

	agentState, err := a.state.Load(ctx)
	if err != nil {
		return InstallResult{}, err
	}
	atLimit, err := a.registry.IsAtFreeLimit(ctx)
	if err != nil {
		return InstallResult{}, err
	}
	count, err := a.registry.Count(ctx)
	if err != nil {
		return InstallResult{}, err
	}

	entry := skilltypes.Entry{
		Name:          name,
		Version:       manifest.Version,
		Description:   manifest.Description,
		Origin:        src.Origin(),
		ExecutionMode: manifest.ExecutionMode,
		Tier:          manifest.Tier,
		Status:        skilltypes.StatusActive,
		InstalledAt:   a.now(),
		Source:        source,
		Schedule:      manifest.Schedule,
		Trigger:       manifest.Trigger,
	}

	free := agentState.Tier == skilltypes.TierFree
	if free && atLimit && !agentState.IsBaseSkill(name) {
		log.WithField("limit", skilltypes.FreeSkillLimit).Warn("free tier limit reached, skill installed locked")
		entry.Status = skilltypes.StatusLocked
	}
	if free && entry.ExecutionMode.Background() {
		log.WithField("mode", entry.ExecutionMode).Warn("background skills require the cloud tier, skill installed locked")
		entry.Status = skilltypes.StatusLocked
	}

	if err := a.registry.Register(ctx, entry); err != nil {
		return InstallResult{}, err
	}
	if err := a.state.IncrementSkillCount(ctx); err != nil {
		return InstallResult{}, err
	}

	result := InstallResult{
		Entry:              entry,
		RemainingFreeSlots: -1,
		Unverified:         src.Kind == installer.KindURL,
	}
	if free {
		result.RemainingFreeSlots = max(0, skilltypes.FreeSkillLimit-(count+1))
	}
	log.WithField("status", entry.Status).Info("skill installed")
	return result, nil
}

// Run executes an installed skill with inputs. Locked skills are never
// executed and leave the agent state untouched.
func (a *Agent) Run(ctx context.Context, name string, inputs map[string]any) (any, error) {
	entry, err := a.registry.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if entry.Status == skilltypes.StatusLocked {
		return nil, skilltypes.NewLockedError(entry)
	}
	if inputs == nil {
		inputs = map[string]any{}
	}
	return a.exec.Execute(ctx, entry, inputs, runner.CauseManual)
}

// Remove stops the background handle of a skill, deletes its files and
// unregisters it
func (a *Agent) Remove(ctx context.Context, name string) error {
	entry, err := a.registry.Get(ctx, name)
	if err != nil {
		return err
	}

	if err := a.stopBackground(ctx, entry); err != nil {
		return err
	}
	if err := a.installer.Remove(ctx, name); err != nil {
		return errors.Wrapf(err, "failed to remove files of %s", name)
	}
	if err := a.registry.Unregister(ctx, name); err != nil {
		return err
	}
	if err := a.state.DecrementSkillCount(ctx); err != nil {
		return err
	}
	logger.G(ctx).WithField("skill", name).Info("skill removed")
	return nil
}

// stopBackground stops the handle of the entry's own mode first, then any
// handle left over from a previous mode
func (a *Agent) stopBackground(ctx context.Context, entry skilltypes.Entry) error {
	stops := []func(context.Context, string) error{a.scheduler.StopScheduled, a.scheduler.StopTriggered}
	if entry.ExecutionMode == skilltypes.ModeTriggered {
		stops[0], stops[1] = stops[1], stops[0]
	}
	for _, stop := range stops {
		if err := stop(ctx, entry.Name); err != nil {
			return err
		}
	}
	return nil
}

// PersistSchedule validates expr and records it as the schedule of name
// without touching live handles. A running daemon picks it up on reconcile.
func (a *Agent) PersistSchedule(ctx context.Context, name, expr string) (skilltypes.Entry, error) {
	entry, err := a.registry.Get(ctx, name)
	if err != nil {
		return entry, err
	}
	if err := scheduler.ValidateSchedule(expr); err != nil {
		return entry, err
	}

	entry.Schedule = expr
	entry.ExecutionMode = skilltypes.ModeScheduled
	if err := a.registry.Register(ctx, entry); err != nil {
		return entry, err
	}
	return entry, nil
}

// Schedule persists a cron schedule for name and starts it
func (a *Agent) Schedule(ctx context.Context, name, expr string) (skilltypes.Entry, error) {
	entry, err := a.PersistSchedule(ctx, name, expr)
	if err != nil {
		return entry, err
	}
	if err := a.scheduler.StopTriggered(ctx, name); err != nil {
		return entry, err
	}
	// a changed expression replaces the live entry
	if err := a.scheduler.StopScheduled(ctx, name); err != nil {
		return entry, err
	}
	if err := a.scheduler.StartScheduled(ctx, entry); err != nil {
		return entry, err
	}
	return a.registry.Get(ctx, name)
}

// PersistTrigger records the trigger condition of name without starting a watcher
func (a *Agent) PersistTrigger(ctx context.Context, name, condition string, value any) (skilltypes.Entry, error) {
	entry, err := a.registry.Get(ctx, name)
	if err != nil {
		return entry, err
	}
	if condition == "" {
		return entry, errors.Wrapf(skilltypes.ErrNoTrigger, "empty condition for %s", name)
	}

	entry.Trigger = &skilltypes.Trigger{Condition: condition, Value: value}
	entry.ExecutionMode = skilltypes.ModeTriggered
	if err := a.registry.Register(ctx, entry); err != nil {
		return entry, err
	}
	return entry, nil
}

// Trigger persists a trigger condition for name and starts polling
// predicate. A nil predicate uses the skill's own check entry point.
func (a *Agent) Trigger(ctx context.Context, name, condition string, value any, predicate scheduler.Predicate) (skilltypes.Entry, error) {
	entry, err := a.PersistTrigger(ctx, name, condition, value)
	if err != nil {
		return entry, err
	}
	if err := a.scheduler.StopScheduled(ctx, name); err != nil {
		return entry, err
	}
	if predicate == nil {
		predicate = a.CheckPredicate(name)
	}
	if err := a.scheduler.StartTriggered(ctx, entry, predicate); err != nil {
		return entry, err
	}
	return a.registry.Get(ctx, name)
}

// CheckPredicate evaluates the skill's check entry point against the
// trigger value currently persisted for name
func (a *Agent) CheckPredicate(name string) scheduler.Predicate {
	return func(ctx context.Context) (bool, error) {
		entry, err := a.registry.Get(ctx, name)
		if err != nil {
			return false, err
		}
		trigger, ok := entry.ActiveTrigger()
		if !ok {
			return false, errors.Wrapf(skilltypes.ErrNoTrigger, "%s", name)
		}
		exe, err := a.resolver.Resolve(ctx, entry)
		if err != nil {
			return false, err
		}
		return exe.Check(ctx, trigger.Value)
	}
}

// Boot loads the agent state and starts the persisted schedules
func (a *Agent) Boot(ctx context.Context) error {
	agentState, err := a.state.Load(ctx)
	if err != nil {
		return err
	}
	logger.G(ctx).WithFields(logrus.Fields{
		"agent": agentState.AgentName,
		"tier":  agentState.Tier,
	}).Info("booting agent")

	startErr := a.scheduler.StartAll(ctx)
	if startErr != nil {
		logger.G(ctx).WithError(startErr).Warn("some scheduled skills failed to start")
	}
	if err := a.state.SetStatus(ctx, skilltypes.AgentIdle); err != nil {
		return err
	}
	return startErr
}

// Shutdown stops every background handle
func (a *Agent) Shutdown(ctx context.Context) error {
	return a.scheduler.Shutdown(ctx)
}

// List returns the installed skills whose names match pattern, all of them
// when pattern is empty
func (a *Agent) List(ctx context.Context, pattern string) ([]skilltypes.Entry, error) {
	if pattern == "" {
		return a.registry.ListAll(ctx)
	}
	return a.registry.ListMatching(ctx, pattern)
}

// Get returns one installed skill
func (a *Agent) Get(ctx context.Context, name string) (skilltypes.Entry, error) {
	return a.registry.Get(ctx, name)
}

// Report is the agent summary shown by status
type Report struct {
	State     skilltypes.AgentState `json:"state"`
	Installed int                   `json:"installed"`
	Scheduler scheduler.Snapshot    `json:"scheduler"`
}

// Status returns the agent state and the live background handles
func (a *Agent) Status(ctx context.Context) (Report, error) {
	agentState, err := a.state.Load(ctx)
	if err != nil {
		return Report{}, err
	}
	count, err := a.registry.Count(ctx)
	if err != nil {
		return Report{}, err
	}
	return Report{State: agentState, Installed: count, Scheduler: a.scheduler.Status()}, nil
}

// SetTier switches the tier. Upgrading unlocks the on-demand skills locked
// by the quota; downgrading stops the handles of this process. Persisted
// schedules are started by whichever process owns the scheduler, the running
// daemon on its next Reconcile or the next Boot.
func (a *Agent) SetTier(ctx context.Context, tier skilltypes.Tier) error {
	if tier != skilltypes.TierFree && tier != skilltypes.TierCloud {
		return errors.Errorf("unknown tier %q", tier)
	}
	if err := a.state.SetTier(ctx, tier); err != nil {
		return err
	}
	logger.G(ctx).WithField("tier", tier).Info("tier changed")

	if tier == skilltypes.TierFree {
		return a.scheduler.StopAll(ctx)
	}

	entries, err := a.registry.ListAll(ctx)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.Status == skilltypes.StatusLocked && !entry.ExecutionMode.Background() {
			if err := a.registry.UpdateStatus(ctx, entry.Name, skilltypes.StatusActive); err != nil {
				return err
			}
		}
	}
	return nil
}

// SetAgentName renames the agent
func (a *Agent) SetAgentName(ctx context.Context, name string) error {
	return a.state.SetAgentName(ctx, name)
}
