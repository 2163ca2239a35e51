package skills

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/zeroagent/zeroagent/pkg/logger"
	"github.com/zeroagent/zeroagent/pkg/osutil"
	skilltypes "github.com/zeroagent/zeroagent/pkg/types/skills"
)

// Sub-commands passed to a skill entry point
const (
	RunCommand   = "run"
	CheckCommand = "check"
)

// ExitCheckUnsupported is the exit code a skill uses to say it has no check entry point
const ExitCheckUnsupported = 3

// Process runs a skill entry point as a subprocess. Inputs are written as
// JSON to stdin and the result is read as JSON from stdout.
type Process struct {
	Name    string
	Dir     string
	Command []string
}

func (p *Process) command(ctx context.Context, sub string, payload []byte) (*exec.Cmd, error) {
	if len(p.Command) == 0 {
		return nil, errors.Wrapf(skilltypes.ErrNotRunnable, "%s has no entry point", p.Name)
	}

	bin := p.Command[0]
	if strings.HasPrefix(bin, "./") || strings.HasPrefix(bin, "../") || filepath.IsAbs(bin) {
		if !filepath.IsAbs(bin) {
			bin = filepath.Join(p.Dir, bin)
		}
		info, err := os.Stat(bin)
		if err != nil || info.IsDir() || info.Mode()&0o111 == 0 {
			return nil, errors.Wrapf(skilltypes.ErrNotRunnable, "%s does not provide an executable %s", p.Name, p.Command[0])
		}
	} else if _, err := exec.LookPath(bin); err != nil {
		return nil, errors.Wrapf(skilltypes.ErrNotRunnable, "%s needs %s which is not on PATH", p.Name, bin)
	}

	args := append(append([]string{}, p.Command[1:]...), sub)
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = p.Dir
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(os.Environ(), "ZEROAGENT_SKILL="+p.Name)
	osutil.SetProcessGroup(cmd)
	osutil.SetProcessGroupKill(cmd)
	return cmd, nil
}

func (p *Process) invoke(ctx context.Context, sub string, input any) ([]byte, int, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to marshal skill input")
	}

	cmd, err := p.command(ctx, sub, payload)
	if err != nil {
		return nil, 0, err
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.G(ctx).WithField("command", cmd.String()).Debug("invoking skill")
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = exitErr.Error()
			}
			return stdout.Bytes(), exitErr.ExitCode(), errors.New(msg)
		}
		return nil, -1, errors.Wrapf(skilltypes.ErrNotRunnable, "failed to start %s: %v", p.Name, err)
	}
	return stdout.Bytes(), 0, nil
}

// Run implements Executable
func (p *Process) Run(ctx context.Context, inputs map[string]any) (any, error) {
	if inputs == nil {
		inputs = map[string]any{}
	}
	out, code, err := p.invoke(ctx, RunCommand, inputs)
	if err != nil {
		if errors.Is(err, skilltypes.ErrNotRunnable) {
			return nil, err
		}
		return nil, errors.Wrapf(skilltypes.ErrSkillFailed, "%s exited with code %d: %v", p.Name, code, err)
	}
	return decodeResult(out), nil
}

// Check implements Executable
func (p *Process) Check(ctx context.Context, value any) (bool, error) {
	out, code, err := p.invoke(ctx, CheckCommand, value)
	if err != nil {
		if code == ExitCheckUnsupported {
			return false, errors.Wrapf(skilltypes.ErrNotRunnable, "%s does not provide a check entry point", p.Name)
		}
		return false, err
	}

	var met bool
	if err := json.Unmarshal(bytes.TrimSpace(out), &met); err != nil {
		return false, errors.Wrapf(err, "%s check printed %q, expected true or false", p.Name, strings.TrimSpace(string(out)))
	}
	return met, nil
}

// decodeResult returns the JSON value printed by the skill, or the raw text when it is not JSON
func decodeResult(out []byte) any {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return nil
	}
	var result any
	if err := json.Unmarshal(trimmed, &result); err != nil {
		return string(trimmed)
	}
	return result
}

// ProcessResolver resolves skills installed as directories under SkillsDir
type ProcessResolver struct {
	SkillsDir string
}

// Resolve implements Resolver
func (r ProcessResolver) Resolve(_ context.Context, entry skilltypes.Entry) (Executable, error) {
	dir := filepath.Join(r.SkillsDir, entry.Name)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, errors.Wrapf(skilltypes.ErrNotRunnable, "%s is not present in %s", entry.Name, r.SkillsDir)
	}

	m, err := LoadManifest(dir, entry.Name)
	if err != nil {
		return nil, errors.Wrapf(skilltypes.ErrNotRunnable, "%s: %v", entry.Name, err)
	}

	return &Process{Name: entry.Name, Dir: dir, Command: m.Entrypoint()}, nil
}
