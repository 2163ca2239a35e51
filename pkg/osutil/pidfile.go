// Package osutil holds process helpers: process groups for skill
// subprocesses and the pid file of the agent daemon.
package osutil

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/process"
)

// IsProcessAlive checks if a process with the given PID is still running
func IsProcessAlive(pid int) bool {
	found, _ := process.PidExists(int32(pid))
	return found
}

// WritePIDFile records the current process id at path
func WritePIDFile(path string) error {
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return errors.Wrap(err, "failed to write pid file")
	}
	return nil
}

// ReadPIDFile returns the pid stored at path
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid pid file %s", path)
	}
	return pid, nil
}

// RunningPID returns the pid recorded at path when that process is still
// alive. A stale pid file yields ok=false.
func RunningPID(path string) (pid int, ok bool) {
	pid, err := ReadPIDFile(path)
	if err != nil || !IsProcessAlive(pid) {
		return 0, false
	}
	return pid, true
}

// RemovePIDFile deletes the pid file if it still belongs to this process
func RemovePIDFile(path string) error {
	pid, err := ReadPIDFile(path)
	if err != nil {
		if os.IsNotExist(errors.Cause(err)) {
			return nil
		}
		return err
	}
	if pid != os.Getpid() {
		return nil
	}
	return os.Remove(path)
}
