package skills

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotInstalled is returned for operations on an unknown skill name
	ErrNotInstalled = errors.New("skill is not installed")
	// ErrLocked is the kind shared by every LockedError
	ErrLocked = errors.New("skill is locked")
	// ErrInstallFailure wraps failures reported by the installer
	ErrInstallFailure = errors.New("skill installation failed")
	// ErrNotRunnable is returned when a skill lacks the expected entry point
	ErrNotRunnable = errors.New("skill is not runnable")
	// ErrSkillFailed wraps a failure reported by the skill itself
	ErrSkillFailed = errors.New("skill execution failed")
	// ErrNoSchedule is returned when scheduling a skill without an expression
	ErrNoSchedule = errors.New("no schedule defined")
	// ErrNoTrigger is returned when watching a skill without a trigger condition
	ErrNoTrigger = errors.New("no trigger condition defined")
)

// LockReason tells why a skill may not execute
type LockReason string

const (
	// LockReasonTier means the skill needs the cloud tier
	LockReasonTier LockReason = "tier"
	// LockReasonQuota means the free tier skill quota was exceeded at install time
	LockReasonQuota LockReason = "quota"
)

// LockedError is returned when a tier or quota gate prevents execution
type LockedError struct {
	Name   string
	Reason LockReason
}

func (e *LockedError) Error() string {
	if e.Reason == LockReasonTier {
		return fmt.Sprintf("%s requires the cloud tier to run", e.Name)
	}
	return fmt.Sprintf("%s is locked: free tier limit of %d skills reached", e.Name, FreeSkillLimit)
}

// Is makes errors.Is(err, ErrLocked) hold for every LockedError
func (e *LockedError) Is(target error) bool {
	return target == ErrLocked
}

// NewLockedError builds the locked error for an entry, choosing the reason from its declared tier
func NewLockedError(entry Entry) *LockedError {
	reason := LockReasonQuota
	if entry.Tier == TierCloud {
		reason = LockReasonTier
	}
	return &LockedError{Name: entry.Name, Reason: reason}
}
