package scheduler

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/zeroagent/zeroagent/pkg/logger"
	skilltypes "github.com/zeroagent/zeroagent/pkg/types/skills"
)

// DefaultDebounce coalesces bursts of document writes into one Reconcile
const DefaultDebounce = 250 * time.Millisecond

// Reconcile converges the live handles with the registry document: missing
// schedules are started, changed expressions restarted, and handles whose
// skill was removed or switched mode are stopped. On the free tier every
// handle is stopped.
func (e *Engine) Reconcile(ctx context.Context) error {
	e.reconcileMu.Lock()
	defer e.reconcileMu.Unlock()

	cloud, err := e.state.IsCloudTier(ctx)
	if err != nil {
		return err
	}
	if !cloud {
		return e.StopAll(ctx)
	}

	entries, err := e.registry.ListAll(ctx)
	if err != nil {
		return err
	}
	desired := make(map[string]skilltypes.Entry, len(entries))
	for _, entry := range entries {
		desired[entry.Name] = entry
	}

	e.mu.Lock()
	live := make(map[string]string, len(e.jobs))
	for name, j := range e.jobs {
		live[name] = j.schedule
	}
	watching := sortedKeys(e.watchers)
	e.mu.Unlock()

	var result *multierror.Error
	for name, schedule := range live {
		expr, ok := desired[name].ActiveSchedule()
		if ok && expr == schedule {
			continue
		}
		if err := e.StopScheduled(ctx, name); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, name := range watching {
		entry, ok := desired[name]
		if ok && entry.ExecutionMode == skilltypes.ModeTriggered {
			continue
		}
		if err := e.StopTriggered(ctx, name); err != nil {
			result = multierror.Append(result, err)
		}
	}

	for _, entry := range entries {
		if _, ok := entry.ActiveSchedule(); !ok || e.IsScheduled(entry.Name) {
			continue
		}
		if err := e.StartScheduled(ctx, entry); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Watch reconciles whenever one of the documents at paths changes, until
// ctx is done. The registry and the agent state are both followed so that
// installs, schedules and tier changes made by other processes reach the
// live handles. Parent directories are watched since documents are replaced
// by rename on every write.
func (e *Engine) Watch(ctx context.Context, debounce time.Duration, paths ...string) error {
	if len(paths) == 0 {
		return errors.New("no documents to watch")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer fsw.Close()

	targets := make(map[string]bool, len(paths))
	dirs := map[string]bool{}
	for _, path := range paths {
		targets[filepath.Clean(path)] = true
		dir := filepath.Dir(path)
		if dirs[dir] {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			return errors.Wrapf(err, "failed to watch %s", dir)
		}
		dirs[dir] = true
	}

	log := logger.G(ctx).WithField("files", paths)

	var timer *time.Timer
	fired := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !targets[filepath.Clean(event.Name)] || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fired <- struct{}{}:
				default:
				}
			})
		case <-fired:
			log.Debug("agent documents changed, reconciling")
			if err := e.Reconcile(ctx); err != nil {
				log.WithError(err).Warn("failed to reconcile background skills")
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("file watcher error")
		}
	}
}
