package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/zeroagent/zeroagent/pkg/logger"
	"github.com/zeroagent/zeroagent/pkg/presenter"
	skilltypes "github.com/zeroagent/zeroagent/pkg/types/skills"
)

// shutdownTimeout bounds how long in-flight executions may finish on exit
const shutdownTimeout = 30 * time.Second

// withApp wires the agent, runs fn and releases the agent again
func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.G(ctx).WithError(err).Warn("failed to shut down cleanly")
		}
	}()
	return fn(ctx, a)
}

// waitForSignal blocks until SIGINT or SIGTERM
func waitForSignal(ctx context.Context) {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()
}

// parseInputs decodes the --input flag, a JSON object
func parseInputs(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var inputs map[string]any
	if err := json.Unmarshal([]byte(raw), &inputs); err != nil {
		return nil, errors.Wrap(err, "--input must be a JSON object")
	}
	if inputs == nil {
		inputs = map[string]any{}
	}
	return inputs, nil
}

// parseTriggerValue keeps numeric thresholds numeric
func parseTriggerValue(raw string) any {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// reportLocked renders the upgrade notice of a locked error and passes err through
func reportLocked(err error) error {
	var locked *skilltypes.LockedError
	if !errors.As(err, &locked) {
		return err
	}
	if locked.Reason == skilltypes.LockReasonTier {
		presenter.Upgrade(locked.Error())
	} else {
		presenter.Warning(locked.Error())
		presenter.Upgrade("Cloud tier removes the skill limit")
	}
	return err
}
