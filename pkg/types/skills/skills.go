// Package skills defines the shared data model of installed skills and the
// agent state, together with the error kinds reported by the orchestrator.
package skills

import (
	"time"
)

// ExecutionMode describes when a skill runs
type ExecutionMode string

const (
	ModeOnDemand  ExecutionMode = "on-demand"
	ModeScheduled ExecutionMode = "scheduled"
	ModeTriggered ExecutionMode = "triggered"
)

// Background reports whether the mode needs a background handle
func (m ExecutionMode) Background() bool {
	return m == ModeScheduled || m == ModeTriggered
}

// Tier is both the user's plan and a skill's tier requirement
type Tier string

const (
	TierFree  Tier = "free"
	TierCloud Tier = "cloud"
)

// Status is the activation status of an installed skill
type Status string

const (
	StatusActive   Status = "active"
	StatusLocked   Status = "locked"
	StatusInactive Status = "inactive"
)

// Origin records where a skill was installed from
type Origin string

const (
	OriginMarketplace     Origin = "marketplace"
	OriginVCSHosted       Origin = "vcs-hosted"
	OriginPackageRegistry Origin = "package-registry"
	OriginDirectURL       Origin = "direct-url"
	OriginCurated         Origin = "curated"
)

// FreeSkillLimit is the number of installed skills a free tier agent may activate
const FreeSkillLimit = 5

// Trigger describes the condition a triggered skill watches
type Trigger struct {
	Condition string `json:"condition"`
	Value     any    `json:"value"`
}

// Entry is a single installed skill as stored in the registry.
//
// ExecutionMode is authoritative: Schedule is only honoured for scheduled
// skills and Trigger only for triggered skills. Switching modes leaves the
// other payload field in place.
type Entry struct {
	Name          string        `json:"name"`
	Version       string        `json:"version"`
	Description   string        `json:"description"`
	Origin        Origin        `json:"origin"`
	ExecutionMode ExecutionMode `json:"executionMode"`
	Tier          Tier          `json:"tier"`
	Status        Status        `json:"status"`
	InstalledAt   time.Time     `json:"installedAt"`
	Source        string        `json:"source"`
	Schedule      string        `json:"schedule,omitempty"`
	Trigger       *Trigger      `json:"trigger,omitempty"`
}

// Clone returns a deep copy of the entry so callers never share registry memory
func (e Entry) Clone() Entry {
	if e.Trigger != nil {
		t := *e.Trigger
		e.Trigger = &t
	}
	return e
}

// ActiveSchedule returns the schedule expression when the entry is governed by it
func (e Entry) ActiveSchedule() (string, bool) {
	if e.ExecutionMode != ModeScheduled || e.Schedule == "" {
		return "", false
	}
	return e.Schedule, true
}

// ActiveTrigger returns the trigger when the entry is governed by it
func (e Entry) ActiveTrigger() (*Trigger, bool) {
	if e.ExecutionMode != ModeTriggered || e.Trigger == nil {
		return nil, false
	}
	return e.Trigger, true
}
