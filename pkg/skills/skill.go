// Package skills resolves installed skills into executable units. A skill is
// a directory holding a manifest (skill.json, skill.yaml or SKILL.md
// frontmatter) and an entry point that is invoked with structured input and
// returns a structured result.
package skills

import (
	"context"

	skilltypes "github.com/zeroagent/zeroagent/pkg/types/skills"
)

// Executable is a callable skill
type Executable interface {
	// Run invokes the skill with inputs and returns its structured result
	Run(ctx context.Context, inputs map[string]any) (any, error)
	// Check evaluates the skill's trigger condition against a threshold value
	Check(ctx context.Context, value any) (bool, error)
}

// Resolver turns a registry entry into an Executable
type Resolver interface {
	Resolve(ctx context.Context, entry skilltypes.Entry) (Executable, error)
}

// Funcs adapts plain functions into an Executable. A nil RunFunc reports
// ErrNotRunnable and a nil CheckFunc always reports false.
type Funcs struct {
	RunFunc   func(ctx context.Context, inputs map[string]any) (any, error)
	CheckFunc func(ctx context.Context, value any) (bool, error)
}

// Run implements Executable
func (f Funcs) Run(ctx context.Context, inputs map[string]any) (any, error) {
	if f.RunFunc == nil {
		return nil, skilltypes.ErrNotRunnable
	}
	return f.RunFunc(ctx, inputs)
}

// Check implements Executable
func (f Funcs) Check(ctx context.Context, value any) (bool, error) {
	if f.CheckFunc == nil {
		return false, nil
	}
	return f.CheckFunc(ctx, value)
}

// StaticResolver resolves skills from an in-memory table, for built-in and embedded skills
type StaticResolver map[string]Executable

// Resolve implements Resolver
func (r StaticResolver) Resolve(_ context.Context, entry skilltypes.Entry) (Executable, error) {
	exe, ok := r[entry.Name]
	if !ok {
		return nil, skilltypes.ErrNotRunnable
	}
	return exe, nil
}
