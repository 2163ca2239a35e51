// Package scheduler owns the live background handles of the agent: one cron
// entry per scheduled skill and one poll loop per triggered skill.
package scheduler

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/zeroagent/zeroagent/pkg/logger"
	"github.com/zeroagent/zeroagent/pkg/registry"
	"github.com/zeroagent/zeroagent/pkg/runner"
	"github.com/zeroagent/zeroagent/pkg/state"
	skilltypes "github.com/zeroagent/zeroagent/pkg/types/skills"
)

// DefaultPollInterval is how often trigger predicates are evaluated
const DefaultPollInterval = 60 * time.Second

// Executor runs a skill; runner.Runner is the production implementation
type Executor interface {
	Execute(ctx context.Context, entry skilltypes.Entry, inputs map[string]any, cause runner.Cause) (any, error)
}

// Predicate reports whether a trigger condition currently holds
type Predicate func(ctx context.Context) (bool, error)

type job struct {
	id       cron.EntryID
	schedule string
}

type watcher struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Engine manages scheduled jobs and trigger watchers
type Engine struct {
	registry     *registry.Registry
	state        *state.Store
	exec         Executor
	pollInterval time.Duration

	mu       sync.Mutex
	cron     *cron.Cron
	running  bool
	jobs     map[string]job
	watchers map[string]*watcher

	reconcileMu sync.Mutex
}

// Option configures an Engine
type Option func(*Engine)

// WithPollInterval overrides DefaultPollInterval
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// NewEngine creates an Engine. The cron loop starts with the first schedule.
func NewEngine(reg *registry.Registry, st *state.Store, exec Executor, opts ...Option) *Engine {
	e := &Engine{
		registry:     reg,
		state:        st,
		exec:         exec,
		pollInterval: DefaultPollInterval,
		jobs:         map[string]job{},
		watchers:     map[string]*watcher{},
	}
	for _, opt := range opts {
		opt(e)
	}

	cronLog := cron.VerbosePrintfLogger(logger.Printf{Entry: logger.L.WithField("component", "cron")})
	e.cron = cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	return e
}

// ValidateSchedule parses expr with the parser used for cron entries
func ValidateSchedule(expr string) error {
	if _, err := cron.ParseStandard(expr); err != nil {
		return errors.Wrapf(err, "invalid schedule %q", expr)
	}
	return nil
}

// PollInterval returns the trigger poll period
func (e *Engine) PollInterval() time.Duration {
	return e.pollInterval
}

func skillLog(ctx context.Context, name string, mode skilltypes.ExecutionMode) *logrus.Entry {
	return logger.G(ctx).WithFields(logrus.Fields{"skill": name, "mode": mode})
}

// gate locks the entry and fails when the user is not on the cloud tier
func (e *Engine) gate(ctx context.Context, name string) error {
	cloud, err := e.state.IsCloudTier(ctx)
	if err != nil {
		return err
	}
	if cloud {
		return nil
	}
	if err := e.registry.UpdateStatus(ctx, name, skilltypes.StatusLocked); err != nil {
		return err
	}
	return &skilltypes.LockedError{Name: name, Reason: skilltypes.LockReasonTier}
}

// StartScheduled adds a cron entry that executes the skill on every tick
// of its schedule. Starting a skill that is already scheduled is a no-op.
func (e *Engine) StartScheduled(ctx context.Context, entry skilltypes.Entry) error {
	log := skillLog(ctx, entry.Name, skilltypes.ModeScheduled)

	if err := e.gate(ctx, entry.Name); err != nil {
		return err
	}
	expr, ok := entry.ActiveSchedule()
	if !ok {
		return errors.Wrapf(skilltypes.ErrNoSchedule, "cannot schedule %s", entry.Name)
	}

	e.mu.Lock()
	if _, exists := e.jobs[entry.Name]; exists {
		e.mu.Unlock()
		log.Warn("skill is already scheduled")
		return nil
	}
	if !e.running {
		e.cron.Start()
		e.running = true
	}
	bg := context.WithoutCancel(ctx)
	id, err := e.cron.AddFunc(expr, func() {
		e.fire(bg, entry.Name, runner.CauseSchedule)
	})
	if err != nil {
		e.mu.Unlock()
		return errors.Wrapf(err, "invalid schedule %q for %s", expr, entry.Name)
	}
	e.jobs[entry.Name] = job{id: id, schedule: expr}
	e.mu.Unlock()

	log.WithField("schedule", expr).Info("skill scheduled")
	return e.registry.UpdateStatus(ctx, entry.Name, skilltypes.StatusActive)
}

// StopScheduled removes the cron entry of name. A tick already in flight
// runs to completion.
func (e *Engine) StopScheduled(ctx context.Context, name string) error {
	ok := e.dropJob(name)

	log := skillLog(ctx, name, skilltypes.ModeScheduled)
	if !ok {
		log.Debug("skill is not currently scheduled")
		return nil
	}
	log.Info("schedule stopped")
	return e.registry.UpdateStatus(ctx, name, skilltypes.StatusInactive)
}

func (e *Engine) dropJob(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.jobs[name]
	if ok {
		e.cron.Remove(j.id)
		delete(e.jobs, name)
	}
	return ok
}

// StartTriggered polls predicate every poll interval and executes the skill
// once for every poll that reports true.
func (e *Engine) StartTriggered(ctx context.Context, entry skilltypes.Entry, predicate Predicate) error {
	log := skillLog(ctx, entry.Name, skilltypes.ModeTriggered)

	if err := e.gate(ctx, entry.Name); err != nil {
		return err
	}
	trigger, ok := entry.ActiveTrigger()
	if !ok {
		return errors.Wrapf(skilltypes.ErrNoTrigger, "cannot watch %s", entry.Name)
	}
	if predicate == nil {
		return errors.Errorf("no predicate supplied for %s", entry.Name)
	}

	e.mu.Lock()
	if _, exists := e.watchers[entry.Name]; exists {
		e.mu.Unlock()
		log.Warn("trigger is already active")
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w := &watcher{cancel: cancel, done: make(chan struct{})}
	e.watchers[entry.Name] = w
	e.mu.Unlock()

	go e.poll(loopCtx, w, entry.Name, predicate)

	log.WithField("condition", trigger.Condition).Info("watching trigger")
	return e.registry.UpdateStatus(ctx, entry.Name, skilltypes.StatusActive)
}

func (e *Engine) poll(ctx context.Context, w *watcher, name string, predicate Predicate) {
	defer close(w.done)
	log := skillLog(ctx, name, skilltypes.ModeTriggered)

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		met, err := evaluate(ctx, predicate)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.WithError(err).Warn("failed to check trigger condition")
			continue
		}
		if !met {
			continue
		}
		log.Info("trigger fired")
		e.fire(context.WithoutCancel(ctx), name, runner.CauseTrigger)
	}
}

func evaluate(ctx context.Context, predicate Predicate) (met bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			met, err = false, errors.Errorf("predicate panicked: %v", p)
		}
	}()
	return predicate(ctx)
}

// fire runs the current registry entry of name; failures are logged by the
// runner. Ticks that land after a downgrade or a lock are skipped.
func (e *Engine) fire(ctx context.Context, name string, cause runner.Cause) {
	log := logger.G(ctx).WithFields(logrus.Fields{"skill": name, "cause": cause})
	cloud, err := e.state.IsCloudTier(ctx)
	if err != nil {
		log.WithError(err).Warn("skipping execution")
		return
	}
	if !cloud {
		log.Warn("skipping execution, background skills require the cloud tier")
		return
	}
	entry, err := e.registry.Get(ctx, name)
	if err != nil {
		log.WithError(err).Warn("skipping execution")
		return
	}
	if entry.Status == skilltypes.StatusLocked {
		log.Warn("skipping execution of locked skill")
		return
	}
	_, _ = e.exec.Execute(ctx, entry, nil, cause)
}

// StopTriggered cancels the poll loop of name. The handle is gone when this returns.
func (e *Engine) StopTriggered(ctx context.Context, name string) error {
	ok := e.dropWatcher(name)

	log := skillLog(ctx, name, skilltypes.ModeTriggered)
	if !ok {
		log.Debug("trigger is not currently active")
		return nil
	}
	log.Info("trigger stopped")
	return e.registry.UpdateStatus(ctx, name, skilltypes.StatusInactive)
}

func (e *Engine) dropWatcher(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.watchers[name]
	if ok {
		w.cancel()
		delete(e.watchers, name)
	}
	return ok
}

// StartAll schedules every persisted scheduled skill. Triggered skills are
// only reported: their predicates are supplied per process and never persisted.
func (e *Engine) StartAll(ctx context.Context) error {
	cloud, err := e.state.IsCloudTier(ctx)
	if err != nil {
		return err
	}
	if !cloud {
		logger.G(ctx).Info("scheduled skills require the cloud tier, skipping")
		return nil
	}

	scheduled, err := e.registry.ListByMode(ctx, skilltypes.ModeScheduled)
	if err != nil {
		return err
	}
	triggered, err := e.registry.ListByMode(ctx, skilltypes.ModeTriggered)
	if err != nil {
		return err
	}

	var result *multierror.Error
	for _, entry := range scheduled {
		if entry.Schedule == "" {
			continue
		}
		if err := e.StartScheduled(ctx, entry); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, entry := range triggered {
		skillLog(ctx, entry.Name, skilltypes.ModeTriggered).Info("trigger ready, set a condition to activate")
	}
	return result.ErrorOrNil()
}

// StopAll stops every live handle
func (e *Engine) StopAll(ctx context.Context) error {
	e.mu.Lock()
	jobs := sortedKeys(e.jobs)
	watchers := sortedKeys(e.watchers)
	e.mu.Unlock()

	var result *multierror.Error
	for _, name := range jobs {
		if err := e.StopScheduled(ctx, name); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, name := range watchers {
		if err := e.StopTriggered(ctx, name); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Shutdown releases every handle of this process and waits, until ctx is
// done, for executions already in flight. Registry statuses are left as they
// are: they describe the persisted skills, which the next Boot starts again.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	pending := make([]*watcher, 0, len(e.watchers))
	for name, w := range e.watchers {
		w.cancel()
		pending = append(pending, w)
		delete(e.watchers, name)
	}
	for name, j := range e.jobs {
		e.cron.Remove(j.id)
		delete(e.jobs, name)
	}
	var cronDone context.Context
	if e.running {
		cronDone = e.cron.Stop()
		e.running = false
	}
	e.mu.Unlock()

	for _, w := range pending {
		select {
		case <-w.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if cronDone != nil {
		select {
		case <-cronDone.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Job describes a live scheduled handle
type Job struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next,omitzero"`
}

// Snapshot lists the live handles
type Snapshot struct {
	Scheduled []Job    `json:"scheduled"`
	Triggered []string `json:"triggered"`
}

// Status returns a snapshot of the live handles sorted by name
func (e *Engine) Status() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Scheduled: make([]Job, 0, len(e.jobs)),
		Triggered: sortedKeys(e.watchers),
	}
	for _, name := range sortedKeys(e.jobs) {
		j := e.jobs[name]
		snap.Scheduled = append(snap.Scheduled, Job{
			Name:     name,
			Schedule: j.schedule,
			Next:     e.cron.Entry(j.id).Next,
		})
	}
	return snap
}

// IsScheduled reports whether name has a live cron entry
func (e *Engine) IsScheduled(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.jobs[name]
	return ok
}

// IsWatching reports whether name has a live poll loop
func (e *Engine) IsWatching(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.watchers[name]
	return ok
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
