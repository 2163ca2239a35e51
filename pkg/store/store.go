// Package store persists whole JSON documents under the agent's base
// directory. Every read-modify-write cycle is serialised through a single
// in-process mutex shared by all documents of a Store and guarded across
// processes by a lock file next to the document.
package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/zeroagent/zeroagent/pkg/logger"
)

// ErrNoChange may be returned by an Update callback to skip the write
var ErrNoChange = errors.New("no change")

// Store owns a directory of JSON documents
type Store struct {
	dir string
	mu  sync.Mutex
}

// New creates the directory if needed and returns a Store rooted at it
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create store directory %s", dir)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the directory the store writes into
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the absolute path of the named document
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Document is a typed handle on a single JSON file in a Store
type Document[T any] struct {
	store *Store
	name  string
}

// NewDocument returns a handle for the JSON document called name
func NewDocument[T any](s *Store, name string) *Document[T] {
	return &Document[T]{store: s, name: name}
}

// Path returns the file backing the document
func (d *Document[T]) Path() string {
	return d.store.Path(d.name)
}

// Load reads the document. found is false when the file does not exist or
// cannot be parsed; a parse failure is logged and otherwise treated as absent.
func (d *Document[T]) Load(ctx context.Context) (value T, found bool, err error) {
	return d.read(ctx)
}

// Update runs fn on the current document and writes the result back. fn
// receives the zero value with found=false when the document is absent or
// unreadable. Returning an error from fn aborts the write; ErrNoChange aborts
// it without failing the Update.
func (d *Document[T]) Update(ctx context.Context, fn func(value *T, found bool) error) (T, error) {
	d.store.mu.Lock()
	defer d.store.mu.Unlock()

	var result T
	err := withLock(ctx, d.Path(), func() error {
		value, found, err := d.read(ctx)
		if err != nil {
			return err
		}
		if err := fn(&value, found); err != nil {
			if errors.Is(err, ErrNoChange) {
				result = value
				return nil
			}
			return err
		}
		if err := d.write(value); err != nil {
			return err
		}
		result = value
		return nil
	})
	return result, err
}

func (d *Document[T]) read(ctx context.Context) (T, bool, error) {
	var value T
	data, err := os.ReadFile(d.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return value, false, nil
		}
		return value, false, errors.Wrapf(err, "failed to read %s", d.name)
	}

	if err := json.Unmarshal(data, &value); err != nil {
		logger.G(ctx).WithError(err).WithField("document", d.Path()).
			Warn("document is corrupted, starting fresh")
		var zero T
		return zero, false, nil
	}
	return value, true, nil
}

func (d *Document[T]) write(value T) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s", d.name)
	}

	path := d.Path()
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write temporary %s", d.name)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return errors.Wrapf(err, "failed to rename temporary %s", d.name)
	}
	return nil
}
