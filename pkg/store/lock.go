package store

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/zeroagent/zeroagent/pkg/logger"
	"github.com/zeroagent/zeroagent/pkg/osutil"
)

const (
	lockTimeout     = 30 * time.Second
	lockRetryDelay  = 50 * time.Millisecond
	lockRetryJitter = 50 * time.Millisecond
)

func jitteredDelay() time.Duration {
	return lockRetryDelay + time.Duration(rand.Int63n(int64(lockRetryJitter)))
}

// fileLock is an O_EXCL lock file holding the owner's PID
type fileLock struct {
	path string
	file *os.File
}

func acquireLock(ctx context.Context, filePath string) (*fileLock, error) {
	lockPath := filePath + ".lock"
	deadline := time.Now().Add(lockTimeout)

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			return &fileLock{path: lockPath, file: f}, nil
		}
		if !os.IsExist(err) {
			return nil, errors.Wrap(err, "failed to create lock file")
		}
		if pid, stale := staleLock(lockPath); stale {
			logger.G(ctx).WithField("path", lockPath).WithField("pid", pid).Warn("removing lock left by a dead process")
			if err := os.Remove(lockPath); err == nil || os.IsNotExist(err) {
				continue
			}
		}
		if time.Now().After(deadline) {
			return nil, errors.Errorf("timeout waiting for lock %s", lockPath)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(jitteredDelay()):
		}
	}
}

// staleLock reports whether the lock at path is held by a process that no
// longer exists. A lock without a readable pid is stale once it is older
// than lockTimeout.
func staleLock(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		info, statErr := os.Stat(path)
		return 0, statErr == nil && time.Since(info.ModTime()) > lockTimeout
	}
	return pid, !osutil.IsProcessAlive(pid)
}

func (l *fileLock) release() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	if l.path == "" {
		return nil
	}
	err := os.Remove(l.path)
	l.path = ""
	return err
}

func withLock(ctx context.Context, filePath string, fn func() error) error {
	lock, err := acquireLock(ctx, filePath)
	if err != nil {
		return errors.Wrap(err, "failed to acquire lock")
	}
	defer func() {
		if err := lock.release(); err != nil {
			logger.G(ctx).WithError(err).WithField("path", filePath).Warn("failed to release lock")
		}
	}()

	return fn()
}
