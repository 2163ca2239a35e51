package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeroagent/zeroagent/pkg/history"
	"github.com/zeroagent/zeroagent/pkg/osutil"
	skilltypes "github.com/zeroagent/zeroagent/pkg/types/skills"
)

const echoSkill = `#!/bin/sh
case "$1" in
  run) cat ;;
  check) echo false ;;
esac
`

func newTestApp(t *testing.T) *app {
	t.Helper()
	cfg := Config{
		Home:           t.TempDir(),
		PollInterval:   10 * time.Millisecond,
		HistoryEnabled: true,
		APIHost:        "localhost",
		APIPort:        7420,
	}
	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, a.Close(context.Background()))
	})
	return a
}

func writeSkill(t *testing.T, name string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skill"), []byte(echoSkill), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skill.json"), []byte(`{"version": "0.2.0", "description": "Echoes its inputs"}`), 0o644))
	return dir
}

func TestApp_InstallRunHistory(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	res, err := a.agent.Install(ctx, writeSkill(t, "echo"), "")
	require.NoError(t, err)
	assert.Equal(t, "echo", res.Entry.Name)
	assert.Equal(t, "0.2.0", res.Entry.Version)
	assert.Equal(t, skilltypes.OriginCurated, res.Entry.Origin)
	assert.FileExists(t, filepath.Join(a.config.SkillsDir(), "echo", "skill"))

	result, err := a.agent.Run(ctx, "echo", map[string]any{"city": "sf"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"city": "sf"}, result)

	runs, err := a.history.List(ctx, history.Filter{SkillName: "echo"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Success)
	assert.Equal(t, "manual", runs[0].Cause)

	report, err := buildStatus(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Installed)
	assert.Empty(t, report.Background)
	assert.Zero(t, report.DaemonPID)
	require.NotNil(t, report.LastRun)
	assert.Equal(t, "echo", report.LastRun.SkillName)

	require.NoError(t, a.agent.Remove(ctx, "echo"))
	assert.NoDirExists(t, filepath.Join(a.config.SkillsDir(), "echo"))
}

func TestApp_ScheduleHandsOverToDaemon(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	_, err := a.agent.Install(ctx, writeSkill(t, "digest"), "")
	require.NoError(t, err)
	require.NoError(t, a.agent.SetTier(ctx, skilltypes.TierCloud))

	// the test process stands in for a running daemon
	require.NoError(t, osutil.WritePIDFile(a.config.PIDFile()))
	defer osutil.RemovePIDFile(a.config.PIDFile())

	require.NoError(t, runSchedule(ctx, a, "digest", "0 9 * * *", false))
	assert.False(t, a.engine.IsScheduled("digest"), "the daemon owns the handle")

	entry, err := a.agent.Get(ctx, "digest")
	require.NoError(t, err)
	assert.Equal(t, skilltypes.ModeScheduled, entry.ExecutionMode)
	assert.Equal(t, "0 9 * * *", entry.Schedule)

	report, err := buildStatus(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), report.DaemonPID)
	require.Len(t, report.Background, 1)
}

func TestApp_ScheduleLockedOnFreeTier(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	_, err := a.agent.Install(ctx, writeSkill(t, "digest"), "")
	require.NoError(t, err)

	err = runSchedule(ctx, a, "digest", "0 9 * * *", true)
	assert.ErrorIs(t, err, skilltypes.ErrLocked)
}

func TestApp_TriggerDetached(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	_, err := a.agent.Install(ctx, writeSkill(t, "alert"), "")
	require.NoError(t, err)
	require.NoError(t, a.agent.SetTier(ctx, skilltypes.TierCloud))

	require.NoError(t, runTrigger(ctx, a, "alert", "price_below", 80000.0, true))
	assert.False(t, a.engine.IsWatching("alert"))

	entry, err := a.agent.Get(ctx, "alert")
	require.NoError(t, err)
	assert.Equal(t, &skilltypes.Trigger{Condition: "price_below", Value: 80000.0}, entry.Trigger)
}

func TestApp_UpgradeLeavesSchedulesToDaemon(t *testing.T) {
	ctx := context.Background()
	daemon := newTestApp(t)
	dir := writeSkill(t, "digest")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skill.json"),
		[]byte(`{"version": "0.2.0", "executionMode": "scheduled", "schedule": "0 9 * * *"}`), 0o644))
	res, err := daemon.agent.Install(ctx, dir, "")
	require.NoError(t, err)
	assert.Equal(t, skilltypes.StatusLocked, res.Entry.Status)

	cli, err := newApp(ctx, daemon.config)
	require.NoError(t, err)
	require.NoError(t, cli.agent.SetTier(ctx, skilltypes.TierCloud))
	assert.False(t, cli.engine.IsScheduled("digest"), "a short-lived invocation starts no cron jobs")
	require.NoError(t, cli.Close(ctx))

	require.NoError(t, daemon.engine.Reconcile(ctx))
	assert.True(t, daemon.engine.IsScheduled("digest"))

	other, err := newApp(ctx, daemon.config)
	require.NoError(t, err)
	require.NoError(t, other.Close(ctx))

	entry, err := daemon.agent.Get(ctx, "digest")
	require.NoError(t, err)
	assert.Equal(t, skilltypes.StatusActive, entry.Status, "closing another invocation leaves the status alone")
}

func TestApp_PruneHistory(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	old := time.Now().Add(-48 * time.Hour)
	_, err := a.history.Record(ctx, history.Run{SkillName: "digest", Cause: "schedule", StartedAt: old, FinishedAt: old, Success: true})
	require.NoError(t, err)
	now := time.Now()
	_, err = a.history.Record(ctx, history.Run{SkillName: "digest", Cause: "manual", StartedAt: now, FinishedAt: now, Success: true})
	require.NoError(t, err)

	removed, err := pruneHistory(ctx, a, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	runs, err := a.history.List(ctx, history.Filter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "manual", runs[0].Cause)

	_, err = pruneHistory(ctx, a, 0)
	assert.Error(t, err)
}
