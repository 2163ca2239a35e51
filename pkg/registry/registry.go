// Package registry is the durable mapping of skill name to skill metadata.
// It is pure data access: every call loads the whole registry document and
// mutations write the whole document back.
package registry

import (
	"context"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/zeroagent/zeroagent/pkg/logger"
	"github.com/zeroagent/zeroagent/pkg/store"
	"github.com/zeroagent/zeroagent/pkg/types/skills"
)

// FileName is the registry document inside the agent home
const FileName = "registry.json"

const documentVersion = "1.0.0"

// Document is the persisted form of the registry
type Document struct {
	Version   string                  `json:"version"`
	UpdatedAt time.Time               `json:"updatedAt"`
	Skills    map[string]skills.Entry `json:"skills"`
}

// Registry reads and writes the skill registry document
type Registry struct {
	doc *store.Document[Document]
	now func() time.Time
}

// Option configures a Registry
type Option func(*Registry)

// WithClock overrides the clock used for updatedAt
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New returns a Registry persisted in s
func New(s *store.Store, opts ...Option) *Registry {
	r := &Registry{
		doc: store.NewDocument[Document](s, FileName),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Path returns the registry document path
func (r *Registry) Path() string {
	return r.doc.Path()
}

func (r *Registry) load(ctx context.Context) (Document, error) {
	d, _, err := r.doc.Load(ctx)
	if err != nil {
		return Document{}, err
	}
	return d, nil
}

func (r *Registry) update(ctx context.Context, fn func(d *Document) (bool, error)) error {
	_, err := r.doc.Update(ctx, func(d *Document, found bool) error {
		if !found || d.Skills == nil {
			d.Skills = make(map[string]skills.Entry)
		}
		if d.Version == "" {
			d.Version = documentVersion
		}
		changed, err := fn(d)
		if err != nil {
			return err
		}
		if !changed {
			return store.ErrNoChange
		}
		d.UpdatedAt = r.now()
		return nil
	})
	return err
}

// Register inserts or overwrites the entry keyed by its name
func (r *Registry) Register(ctx context.Context, entry skills.Entry) error {
	if entry.Name == "" {
		return errors.New("skill name cannot be empty")
	}
	err := r.update(ctx, func(d *Document) (bool, error) {
		d.Skills[entry.Name] = entry.Clone()
		return true, nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to register skill %s", entry.Name)
	}
	logger.G(ctx).WithField("skill", entry.Name).Debug("skill registered")
	return nil
}

// Unregister removes the named entry. Unknown names are ignored.
func (r *Registry) Unregister(ctx context.Context, name string) error {
	err := r.update(ctx, func(d *Document) (bool, error) {
		if _, ok := d.Skills[name]; !ok {
			return false, nil
		}
		delete(d.Skills, name)
		return true, nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to unregister skill %s", name)
	}
	return nil
}

// Get returns a copy of the named entry or skills.ErrNotInstalled
func (r *Registry) Get(ctx context.Context, name string) (skills.Entry, error) {
	d, err := r.load(ctx)
	if err != nil {
		return skills.Entry{}, err
	}
	entry, ok := d.Skills[name]
	if !ok {
		return skills.Entry{}, errors.Wrapf(skills.ErrNotInstalled, "skill %q", name)
	}
	return entry.Clone(), nil
}

func (r *Registry) filter(ctx context.Context, keep func(skills.Entry) bool) ([]skills.Entry, error) {
	d, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]skills.Entry, 0, len(d.Skills))
	for _, entry := range d.Skills {
		if keep(entry) {
			out = append(out, entry.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListAll returns every installed skill sorted by name
func (r *Registry) ListAll(ctx context.Context) ([]skills.Entry, error) {
	return r.filter(ctx, func(skills.Entry) bool { return true })
}

// ListByMode returns the skills with the given execution mode
func (r *Registry) ListByMode(ctx context.Context, mode skills.ExecutionMode) ([]skills.Entry, error) {
	return r.filter(ctx, func(e skills.Entry) bool { return e.ExecutionMode == mode })
}

// ListActive returns the skills whose status is active
func (r *Registry) ListActive(ctx context.Context) ([]skills.Entry, error) {
	return r.filter(ctx, func(e skills.Entry) bool { return e.Status == skills.StatusActive })
}

// ListMatching returns the skills whose name matches a doublestar pattern
func (r *Registry) ListMatching(ctx context.Context, pattern string) ([]skills.Entry, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, errors.Errorf("invalid pattern %q", pattern)
	}
	return r.filter(ctx, func(e skills.Entry) bool {
		ok, _ := doublestar.Match(pattern, e.Name)
		return ok
	})
}

// UpdateStatus changes only the status of the named skill. Unknown names are ignored.
func (r *Registry) UpdateStatus(ctx context.Context, name string, status skills.Status) error {
	err := r.update(ctx, func(d *Document) (bool, error) {
		entry, ok := d.Skills[name]
		if !ok || entry.Status == status {
			return false, nil
		}
		entry.Status = status
		d.Skills[name] = entry
		return true, nil
	})
	if err != nil {
		return errors.Wrapf(err, "failed to update status of %s", name)
	}
	return nil
}

// Count returns the number of installed skills
func (r *Registry) Count(ctx context.Context) (int, error) {
	d, err := r.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(d.Skills), nil
}

// IsAtFreeLimit reports whether the free tier skill ceiling has been reached
func (r *Registry) IsAtFreeLimit(ctx context.Context) (bool, error) {
	count, err := r.Count(ctx)
	if err != nil {
		return false, err
	}
	return count >= skills.FreeSkillLimit, nil
}
