// Package runner holds the single execution routine shared by on-demand runs,
// cron ticks and trigger polls.
package runner

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/zeroagent/zeroagent/pkg/history"
	"github.com/zeroagent/zeroagent/pkg/logger"
	"github.com/zeroagent/zeroagent/pkg/skills"
	"github.com/zeroagent/zeroagent/pkg/state"
	"github.com/zeroagent/zeroagent/pkg/telemetry"
	skilltypes "github.com/zeroagent/zeroagent/pkg/types/skills"
	"go.opentelemetry.io/otel/attribute"
)

// Cause says what started an execution
type Cause string

const (
	CauseManual   Cause = "manual"
	CauseSchedule Cause = "schedule"
	CauseTrigger  Cause = "trigger"
)

// Recorder journals finished executions
type Recorder interface {
	Record(ctx context.Context, run history.Run) (history.Run, error)
}

// Runner resolves and invokes skills, keeping the agent state in step
type Runner struct {
	state    *state.Store
	resolver skills.Resolver
	recorder Recorder
	now      func() time.Time
}

// Option configures a Runner
type Option func(*Runner)

// WithRecorder journals every execution to r
func WithRecorder(r Recorder) Option {
	return func(rn *Runner) {
		rn.recorder = r
	}
}

// WithClock overrides the clock used for history timestamps
func WithClock(now func() time.Time) Option {
	return func(rn *Runner) {
		rn.now = now
	}
}

// New creates a Runner
func New(st *state.Store, resolver skills.Resolver, opts ...Option) *Runner {
	r := &Runner{
		state:    st,
		resolver: resolver,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs entry with inputs. The agent status goes to running, the
// outcome is recorded as the last run exactly once, and the status ends as
// idle or error. The error is always ErrNotRunnable or ErrSkillFailed.
func (r *Runner) Execute(ctx context.Context, entry skilltypes.Entry, inputs map[string]any, cause Cause) (any, error) {
	ctx = logger.WithSkill(ctx, entry.Name)
	log := logger.G(ctx).WithField("cause", cause)

	started := r.now()
	var result any
	err := telemetry.WithSpan(ctx, "skill.execute", func(ctx context.Context) error {
		if err := r.state.SetStatus(ctx, skilltypes.AgentRunning); err != nil {
			log.WithError(err).Warn("failed to mark agent running")
		}

		var err error
		result, err = r.invoke(ctx, entry, inputs)

		if rerr := r.state.RecordRun(ctx, entry.Name, err == nil); rerr != nil {
			log.WithError(rerr).Warn("failed to record run")
		}
		status := skilltypes.AgentIdle
		if err != nil {
			status = skilltypes.AgentError
		}
		if serr := r.state.SetStatus(ctx, status); serr != nil {
			log.WithError(serr).Warn("failed to reset agent status")
		}
		return err
	}, append(telemetry.SkillAttributes(entry), attribute.String("skill.cause", string(cause)))...)
	finished := r.now()

	if err != nil {
		log.WithError(err).Error("skill execution failed")
	} else {
		log.WithField("duration", finished.Sub(started)).Info("skill executed")
	}

	r.journal(ctx, entry.Name, cause, started, finished, result, err)
	return result, err
}

func (r *Runner) invoke(ctx context.Context, entry skilltypes.Entry, inputs map[string]any) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = errors.Wrapf(skilltypes.ErrSkillFailed, "%s panicked: %v", entry.Name, p)
		}
	}()

	exe, err := r.resolver.Resolve(ctx, entry)
	if err != nil {
		if errors.Is(err, skilltypes.ErrNotRunnable) {
			return nil, err
		}
		return nil, errors.Wrapf(skilltypes.ErrNotRunnable, "failed to resolve %s: %v", entry.Name, err)
	}

	result, err = exe.Run(ctx, inputs)
	if err != nil && !errors.Is(err, skilltypes.ErrNotRunnable) && !errors.Is(err, skilltypes.ErrSkillFailed) {
		return nil, errors.Wrapf(skilltypes.ErrSkillFailed, "%s: %v", entry.Name, err)
	}
	return result, err
}

func (r *Runner) journal(ctx context.Context, name string, cause Cause, started, finished time.Time, result any, runErr error) {
	if r.recorder == nil {
		return
	}
	run := history.Run{
		SkillName:  name,
		Cause:      string(cause),
		StartedAt:  started,
		FinishedAt: finished,
		Success:    runErr == nil,
		Result:     result,
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}
	if _, err := r.recorder.Record(ctx, run); err != nil {
		logger.G(ctx).WithError(err).Warn("failed to journal run")
	}
}
