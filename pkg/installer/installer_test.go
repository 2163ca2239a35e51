package installer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	skilltypes "github.com/zeroagent/zeroagent/pkg/types/skills"
	"github.com/zeroagent/zeroagent/pkg/version"
)

type call struct {
	dir  string
	name string
	args []string
}

// fakeRunner records invocations and lets each test lay files down the way
// the real tool would
type fakeRunner struct {
	calls  []call
	effect func(c call) error
	output []byte
}

func (f *fakeRunner) run(_ context.Context, dir, name string, args ...string) ([]byte, error) {
	c := call{dir: dir, name: name, args: args}
	f.calls = append(f.calls, c)
	if f.effect != nil {
		if err := f.effect(c); err != nil {
			return []byte("tool output"), err
		}
	}
	return f.output, nil
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o755))
}

func assertNoStaging(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".staging-")
	}
}

func TestMaterialize_LocalDirectory(t *testing.T) {
	src := t.TempDir()
	write(t, filepath.Join(src, "skill"), "#!/bin/sh\necho hi\n")
	write(t, filepath.Join(src, "lib", "helper.sh"), "true\n")
	write(t, filepath.Join(src, ".git", "HEAD"), "ref: main\n")

	skillsDir := filepath.Join(t.TempDir(), "skills")
	inst := New(skillsDir)

	dir, err := inst.Materialize(context.Background(), "file:"+src, "local-tool")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(skillsDir, "local-tool"), dir)

	info, err := os.Stat(filepath.Join(dir, "skill"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0o100, "entry point keeps its executable bit")
	assert.FileExists(t, filepath.Join(dir, "lib", "helper.sh"))
	assert.NoDirExists(t, filepath.Join(dir, ".git"))
	assertNoStaging(t, skillsDir)
}

func TestMaterialize_ReplacesPartialInstall(t *testing.T) {
	src := t.TempDir()
	write(t, filepath.Join(src, "skill"), "new")
	skillsDir := t.TempDir()
	write(t, filepath.Join(skillsDir, "tool", "stale"), "old")

	dir, err := New(skillsDir).Materialize(context.Background(), src, "tool")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "skill"))
	assert.NoFileExists(t, filepath.Join(dir, "stale"))
}

func TestMaterialize_LocalMissing(t *testing.T) {
	skillsDir := t.TempDir()
	_, err := New(skillsDir).Materialize(context.Background(), "file:/does/not/exist", "ghost")
	assert.ErrorIs(t, err, skilltypes.ErrInstallFailure)
	assert.NoDirExists(t, filepath.Join(skillsDir, "ghost"))
	assertNoStaging(t, skillsDir)
}

func TestMaterialize_GitHub(t *testing.T) {
	runner := &fakeRunner{effect: func(c call) error {
		if c.name == "git" {
			dest := c.args[len(c.args)-1]
			write(t, filepath.Join(dest, "skill.json"), `{"name":"btc-tracker"}`)
			write(t, filepath.Join(dest, "package.json"), `{}`)
		}
		return nil
	}}
	skillsDir := t.TempDir()
	inst := New(skillsDir, WithCommandRunner(runner.run))

	dir, err := inst.Materialize(context.Background(), "github:acme/btc-tracker", "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(skillsDir, "btc-tracker"), dir)
	assert.FileExists(t, filepath.Join(dir, "skill.json"))

	require.Len(t, runner.calls, 2)
	assert.Equal(t, "git", runner.calls[0].name)
	assert.Equal(t, []string{"clone", "--depth", "1", "https://github.com/acme/btc-tracker.git"}, runner.calls[0].args[:4])
	assert.Equal(t, "npm", runner.calls[1].name)
}

func TestMaterialize_CloneRetries(t *testing.T) {
	var attempts atomic.Int32
	runner := &fakeRunner{effect: func(c call) error {
		if attempts.Add(1) < 3 {
			return errors.New("exit status 128")
		}
		write(t, filepath.Join(c.args[len(c.args)-1], "skill"), "ok")
		return nil
	}}
	inst := New(t.TempDir(), WithCommandRunner(runner.run), WithRetry(3, time.Millisecond))

	_, err := inst.Materialize(context.Background(), "https://git.example.com/tools/digest.git", "")
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestMaterialize_CloneFailure(t *testing.T) {
	runner := &fakeRunner{effect: func(call) error { return errors.New("exit status 128") }}
	skillsDir := t.TempDir()
	inst := New(skillsDir, WithCommandRunner(runner.run), WithRetry(2, time.Millisecond))

	_, err := inst.Materialize(context.Background(), "github:acme/missing", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, skilltypes.ErrInstallFailure)
	assert.Contains(t, err.Error(), "tool output")
	assert.Len(t, runner.calls, 2)
	assertNoStaging(t, skillsDir)
}

func TestMaterialize_Download(t *testing.T) {
	var hits atomic.Int32
	var userAgent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/digest":
			userAgent.Store(r.Header.Get("User-Agent"))
			_, _ = w.Write([]byte("#!/bin/sh\necho digest\n"))
		case "/flaky":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	skillsDir := t.TempDir()
	inst := New(skillsDir, WithHTTPClient(srv.Client()), WithRetry(2, time.Millisecond))

	dir, err := inst.Materialize(context.Background(), srv.URL+"/digest", "")
	require.NoError(t, err)
	content, err := os.ReadFile(filepath.Join(dir, "skill"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "echo digest")
	assert.Equal(t, version.UserAgent(), userAgent.Load())

	hits.Store(0)
	_, err = inst.Materialize(context.Background(), srv.URL+"/missing", "")
	assert.ErrorIs(t, err, skilltypes.ErrInstallFailure)
	assert.Equal(t, int32(1), hits.Load(), "client errors are not retried")

	hits.Store(0)
	_, err = inst.Materialize(context.Background(), srv.URL+"/flaky", "")
	assert.ErrorIs(t, err, skilltypes.ErrInstallFailure)
	assert.Equal(t, int32(2), hits.Load())
}

func TestMaterialize_NPM(t *testing.T) {
	runner := &fakeRunner{effect: func(c call) error {
		prefix := c.args[len(c.args)-1]
		write(t, filepath.Join(prefix, "node_modules", "@acme", "price-alert", "skill.json"), `{}`)
		write(t, filepath.Join(prefix, "node_modules", "left-pad", "index.js"), "")
		return nil
	}}
	inst := New(t.TempDir(), WithCommandRunner(runner.run))

	dir, err := inst.Materialize(context.Background(), "npm:@acme/price-alert", "")
	require.NoError(t, err)
	assert.Equal(t, "price-alert", filepath.Base(dir))
	assert.FileExists(t, filepath.Join(dir, "skill.json"))
	assert.FileExists(t, filepath.Join(dir, "node_modules", "left-pad", "index.js"))
	assert.Equal(t, []string{"install", "@acme/price-alert", "--prefix"}, runner.calls[0].args[:3])
}

func TestMaterialize_Marketplace(t *testing.T) {
	runner := &fakeRunner{effect: func(c call) error {
		write(t, filepath.Join(c.dir, ".agents", "skills", "other", "SKILL.md"), "---\nname: other\n---\n")
		write(t, filepath.Join(c.dir, ".agents", "skills", "find-skills", "SKILL.md"), "---\nname: find-skills\n---\n")
		return nil
	}}
	inst := New(t.TempDir(), WithCommandRunner(runner.run))

	dir, err := inst.Materialize(context.Background(), "skills:find-skills", "")
	require.NoError(t, err)
	content, err := os.ReadFile(filepath.Join(dir, "SKILL.md"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "name: find-skills")
	assert.Equal(t, "npx", runner.calls[0].name)
	assert.Contains(t, runner.calls[0].args, MarketplaceURL+"/find-skills")
}

func TestMaterialize_MarketplaceWithoutSkill(t *testing.T) {
	inst := New(t.TempDir(), WithCommandRunner((&fakeRunner{}).run))

	_, err := inst.Materialize(context.Background(), "weather", "")
	assert.ErrorIs(t, err, skilltypes.ErrInstallFailure)
}

func TestRemove(t *testing.T) {
	skillsDir := t.TempDir()
	write(t, filepath.Join(skillsDir, "weather", "skill"), "x")
	inst := New(skillsDir)

	require.NoError(t, inst.Remove(context.Background(), "weather"))
	assert.NoDirExists(t, filepath.Join(skillsDir, "weather"))
	require.NoError(t, inst.Remove(context.Background(), "weather"))
}

func TestFind(t *testing.T) {
	runner := &fakeRunner{output: []byte("\nvercel-labs/find-skills  Discover skills\n")}
	inst := New(t.TempDir(), WithCommandRunner(runner.run))

	listing, err := inst.Find(context.Background(), " price  alert ")
	require.NoError(t, err)
	assert.Equal(t, "vercel-labs/find-skills  Discover skills", listing)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "npx", runner.calls[0].name)
	assert.Equal(t, []string{"--yes", "skills", "find", "price", "alert"}, runner.calls[0].args)

	_, err = inst.Find(context.Background(), "   ")
	assert.Error(t, err)
	assert.Len(t, runner.calls, 1)
}

func TestFind_ToolFailure(t *testing.T) {
	runner := &fakeRunner{effect: func(call) error { return errors.New("exit status 1") }}
	inst := New(t.TempDir(), WithCommandRunner(runner.run))

	_, err := inst.Find(context.Background(), "weather")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "npx skills find weather")
	assert.Contains(t, err.Error(), "tool output")
}
