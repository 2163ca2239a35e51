package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeroagent/zeroagent/pkg/history"
	"github.com/zeroagent/zeroagent/pkg/skills"
	"github.com/zeroagent/zeroagent/pkg/state"
	"github.com/zeroagent/zeroagent/pkg/store"
	skilltypes "github.com/zeroagent/zeroagent/pkg/types/skills"
)

var fixedNow = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

type fakeRecorder struct {
	mu   sync.Mutex
	runs []history.Run
	err  error
}

func (f *fakeRecorder) Record(_ context.Context, run history.Run) (history.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return run, f.err
}

func newTestRunner(t *testing.T, resolver skills.Resolver, rec *fakeRecorder) (*Runner, *state.Store) {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	clock := func() time.Time { return fixedNow }
	ss := state.New(st, state.WithClock(clock))
	opts := []Option{WithClock(clock)}
	if rec != nil {
		opts = append(opts, WithRecorder(rec))
	}
	return New(ss, resolver, opts...), ss
}

func TestExecute_Success(t *testing.T) {
	ctx := context.Background()
	var got map[string]any
	calls := 0
	resolver := skills.StaticResolver{
		"weather": skills.Funcs{RunFunc: func(_ context.Context, inputs map[string]any) (any, error) {
			calls++
			got = inputs
			return map[string]any{"temp": 18}, nil
		}},
	}
	rec := &fakeRecorder{}
	r, ss := newTestRunner(t, resolver, rec)

	result, err := r.Execute(ctx, skilltypes.Entry{Name: "weather"}, map[string]any{"city": "sf"}, CauseManual)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"temp": 18}, result)
	assert.Equal(t, 1, calls)
	assert.Equal(t, map[string]any{"city": "sf"}, got)

	agent, err := ss.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, skilltypes.AgentIdle, agent.Status)
	require.NotNil(t, agent.LastRun)
	assert.Equal(t, skilltypes.LastRun{SkillName: "weather", RanAt: fixedNow, Success: true}, *agent.LastRun)

	require.Len(t, rec.runs, 1)
	assert.Equal(t, "weather", rec.runs[0].SkillName)
	assert.Equal(t, "manual", rec.runs[0].Cause)
	assert.True(t, rec.runs[0].Success)
}

func TestExecute_StatusRunningDuringInvocation(t *testing.T) {
	ctx := context.Background()
	var during skilltypes.AgentStatus
	var ss *state.Store
	resolver := skills.StaticResolver{
		"probe": skills.Funcs{RunFunc: func(ctx context.Context, _ map[string]any) (any, error) {
			agent, err := ss.Load(ctx)
			if err != nil {
				return nil, err
			}
			during = agent.Status
			return nil, nil
		}},
	}
	var r *Runner
	r, ss = newTestRunner(t, resolver, nil)

	_, err := r.Execute(ctx, skilltypes.Entry{Name: "probe"}, nil, CauseSchedule)
	require.NoError(t, err)
	assert.Equal(t, skilltypes.AgentRunning, during)
}

func TestExecute_Failure(t *testing.T) {
	ctx := context.Background()
	resolver := skills.StaticResolver{
		"flaky": skills.Funcs{RunFunc: func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("upstream unavailable")
		}},
	}
	rec := &fakeRecorder{}
	r, ss := newTestRunner(t, resolver, rec)

	_, err := r.Execute(ctx, skilltypes.Entry{Name: "flaky"}, nil, CauseTrigger)
	require.Error(t, err)
	assert.ErrorIs(t, err, skilltypes.ErrSkillFailed)
	assert.Contains(t, err.Error(), "upstream unavailable")

	agent, err := ss.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, skilltypes.AgentError, agent.Status)
	require.NotNil(t, agent.LastRun)
	assert.False(t, agent.LastRun.Success)

	require.Len(t, rec.runs, 1)
	assert.False(t, rec.runs[0].Success)
	assert.Contains(t, rec.runs[0].Error, "upstream unavailable")
}

func TestExecute_NotRunnable(t *testing.T) {
	ctx := context.Background()
	r, ss := newTestRunner(t, skills.StaticResolver{}, nil)

	_, err := r.Execute(ctx, skilltypes.Entry{Name: "ghost"}, nil, CauseManual)
	assert.ErrorIs(t, err, skilltypes.ErrNotRunnable)

	agent, err := ss.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, skilltypes.AgentError, agent.Status)
	require.NotNil(t, agent.LastRun)
	assert.Equal(t, "ghost", agent.LastRun.SkillName)
	assert.False(t, agent.LastRun.Success)
}

func TestExecute_RecoversPanic(t *testing.T) {
	ctx := context.Background()
	resolver := skills.StaticResolver{
		"boom": skills.Funcs{RunFunc: func(context.Context, map[string]any) (any, error) {
			panic("nil map")
		}},
	}
	r, _ := newTestRunner(t, resolver, nil)

	_, err := r.Execute(ctx, skilltypes.Entry{Name: "boom"}, nil, CauseSchedule)
	assert.ErrorIs(t, err, skilltypes.ErrSkillFailed)
	assert.Contains(t, err.Error(), "nil map")
}

func TestExecute_JournalFailureIsNotFatal(t *testing.T) {
	resolver := skills.StaticResolver{
		"ok": skills.Funcs{RunFunc: func(context.Context, map[string]any) (any, error) { return "done", nil }},
	}
	r, _ := newTestRunner(t, resolver, &fakeRecorder{err: errors.New("disk full")})

	result, err := r.Execute(context.Background(), skilltypes.Entry{Name: "ok"}, nil, CauseManual)
	require.NoError(t, err)
	assert.Equal(t, "done", result)
}
