package registry

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeroagent/zeroagent/pkg/store"
	"github.com/zeroagent/zeroagent/pkg/types/skills"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	s, err := store.New(t.TempDir())
	require.NoError(t, err)
	return New(s, WithClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }))
}

func entry(name string, mode skills.ExecutionMode, status skills.Status) skills.Entry {
	return skills.Entry{
		Name:          name,
		Version:       "1.0.0",
		Origin:        skills.OriginMarketplace,
		ExecutionMode: mode,
		Tier:          skills.TierFree,
		Status:        status,
		Source:        "skills:" + name,
	}
}

func TestRegister_Upserts(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	require.NoError(t, r.Register(ctx, entry("weather", skills.ModeOnDemand, skills.StatusActive)))
	updated := entry("weather", skills.ModeOnDemand, skills.StatusActive)
	updated.Version = "2.0.0"
	require.NoError(t, r.Register(ctx, updated))

	count, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := r.Get(ctx, "weather")
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", got.Version)
}

func TestRegister_RejectsEmptyName(t *testing.T) {
	r := newTestRegistry(t)
	assert.Error(t, r.Register(context.Background(), skills.Entry{}))
}

func TestGet_NotInstalled(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Get(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, skills.ErrNotInstalled)
}

func TestGet_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	e := entry("btc-alert", skills.ModeTriggered, skills.StatusActive)
	e.Trigger = &skills.Trigger{Condition: "btc_price < 80000", Value: 80000.0}
	require.NoError(t, r.Register(ctx, e))

	got, err := r.Get(ctx, "btc-alert")
	require.NoError(t, err)
	got.Trigger.Condition = "mutated"
	got.Status = skills.StatusLocked

	again, err := r.Get(ctx, "btc-alert")
	require.NoError(t, err)
	assert.Equal(t, "btc_price < 80000", again.Trigger.Condition)
	assert.Equal(t, skills.StatusActive, again.Status)
	assert.Equal(t, 80000.0, again.Trigger.Value)
}

func TestUnregister(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	require.NoError(t, r.Register(ctx, entry("weather", skills.ModeOnDemand, skills.StatusActive)))
	require.NoError(t, r.Unregister(ctx, "weather"))
	require.NoError(t, r.Unregister(ctx, "weather"))

	_, err := r.Get(ctx, "weather")
	assert.ErrorIs(t, err, skills.ErrNotInstalled)
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	require.NoError(t, r.Register(ctx, entry("weather", skills.ModeOnDemand, skills.StatusActive)))
	require.NoError(t, r.Register(ctx, entry("btc-tracker", skills.ModeScheduled, skills.StatusActive)))
	require.NoError(t, r.Register(ctx, entry("btc-alert", skills.ModeTriggered, skills.StatusLocked)))
	require.NoError(t, r.Register(ctx, entry("sales-report", skills.ModeScheduled, skills.StatusInactive)))

	all, err := r.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "btc-alert", all[0].Name, "results are sorted by name")

	scheduled, err := r.ListByMode(ctx, skills.ModeScheduled)
	require.NoError(t, err)
	assert.Equal(t, []string{"btc-tracker", "sales-report"}, names(scheduled))

	active, err := r.ListActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"btc-tracker", "weather"}, names(active))

	matching, err := r.ListMatching(ctx, "btc-*")
	require.NoError(t, err)
	assert.Equal(t, []string{"btc-alert", "btc-tracker"}, names(matching))

	_, err = r.ListMatching(ctx, "[")
	assert.Error(t, err)
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	require.NoError(t, r.Register(ctx, entry("weather", skills.ModeOnDemand, skills.StatusActive)))
	require.NoError(t, r.UpdateStatus(ctx, "weather", skills.StatusLocked))
	require.NoError(t, r.UpdateStatus(ctx, "ghost", skills.StatusLocked))

	got, err := r.Get(ctx, "weather")
	require.NoError(t, err)
	assert.Equal(t, skills.StatusLocked, got.Status)

	count, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "updating an unknown name must not create it")
}

func TestIsAtFreeLimit(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	for i := 0; i < skills.FreeSkillLimit; i++ {
		atLimit, err := r.IsAtFreeLimit(ctx)
		require.NoError(t, err)
		assert.False(t, atLimit)
		require.NoError(t, r.Register(ctx, entry(fmt.Sprintf("skill-%d", i), skills.ModeOnDemand, skills.StatusActive)))
	}

	atLimit, err := r.IsAtFreeLimit(ctx)
	require.NoError(t, err)
	assert.True(t, atLimit)
}

func TestCorruptedRegistryStartsEmpty(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	require.NoError(t, os.WriteFile(r.Path(), []byte("][ definitely not json"), 0o644))

	count, err := r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, r.Register(ctx, entry("weather", skills.ModeOnDemand, skills.StatusActive)))
	count, err = r.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func names(entries []skills.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}
