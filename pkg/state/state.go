// Package state persists the agent-wide singleton: tier, status, counters
// and the last run. Every operation is a full load-merge-save round trip of
// the state document.
package state

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/zeroagent/zeroagent/pkg/logger"
	"github.com/zeroagent/zeroagent/pkg/store"
	"github.com/zeroagent/zeroagent/pkg/types/skills"
)

// FileName is the state document inside the agent home
const FileName = "state.json"

const (
	// DefaultAgentName is given to a brand new agent
	DefaultAgentName = "My Agent"
	// FindSkills is pre-installed on every new agent and exempt from the quota
	FindSkills = "find-skills"

	stateVersion = "0.1.0"
)

// Store reads and writes the agent state document
type Store struct {
	doc *store.Document[skills.AgentState]
	now func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithClock overrides the clock used for timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New returns a state Store persisted in st
func New(st *store.Store, opts ...Option) *Store {
	s := &Store{
		doc: store.NewDocument[skills.AgentState](st, FileName),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the file backing the state document
func (s *Store) Path() string {
	return s.doc.Path()
}

// Default returns the state of a brand new agent
func (s *Store) Default() skills.AgentState {
	now := s.now()
	return skills.AgentState{
		Version:    stateVersion,
		AgentName:  DefaultAgentName,
		Tier:       skills.TierFree,
		Status:     skills.AgentIdle,
		CreatedAt:  now,
		UpdatedAt:  now,
		BaseSkills: []string{FindSkills},
	}
}

// Load returns the current state. The default state is persisted the first
// time the document is missing or fails to parse.
func (s *Store) Load(ctx context.Context) (skills.AgentState, error) {
	current, found, err := s.doc.Load(ctx)
	if err != nil {
		return skills.AgentState{}, err
	}
	if found {
		return current, nil
	}
	return s.Update(ctx, func(*skills.AgentState) {})
}

// Update merges the changes made by fn into the persisted state
func (s *Store) Update(ctx context.Context, fn func(st *skills.AgentState)) (skills.AgentState, error) {
	created := false
	updated, err := s.doc.Update(ctx, func(st *skills.AgentState, found bool) error {
		if !found {
			*st = s.Default()
			created = true
		}
		fn(st)
		st.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return skills.AgentState{}, errors.Wrap(err, "failed to update agent state")
	}
	if created {
		logger.G(ctx).WithField("agent", updated.AgentName).Info("new agent created")
	}
	return updated, nil
}

// SetStatus records the agent's execution status
func (s *Store) SetStatus(ctx context.Context, status skills.AgentStatus) error {
	_, err := s.Update(ctx, func(st *skills.AgentState) { st.Status = status })
	return err
}

// SetTier switches the user's tier
func (s *Store) SetTier(ctx context.Context, tier skills.Tier) error {
	_, err := s.Update(ctx, func(st *skills.AgentState) { st.Tier = tier })
	return err
}

// SetAgentName renames the agent
func (s *Store) SetAgentName(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("agent name cannot be empty")
	}
	_, err := s.Update(ctx, func(st *skills.AgentState) { st.AgentName = name })
	return err
}

// RecordRun overwrites the last run
func (s *Store) RecordRun(ctx context.Context, name string, success bool) error {
	ranAt := s.now()
	_, err := s.Update(ctx, func(st *skills.AgentState) {
		st.LastRun = &skills.LastRun{SkillName: name, RanAt: ranAt, Success: success}
	})
	return err
}

// IncrementSkillCount counts a newly installed skill
func (s *Store) IncrementSkillCount(ctx context.Context) error {
	_, err := s.Update(ctx, func(st *skills.AgentState) {
		st.TotalSkillsInstalled++
		st.ActiveSkillCount++
	})
	return err
}

// DecrementSkillCount counts a removed skill, never going below zero
func (s *Store) DecrementSkillCount(ctx context.Context) error {
	_, err := s.Update(ctx, func(st *skills.AgentState) {
		st.ActiveSkillCount = max(0, st.ActiveSkillCount-1)
	})
	return err
}

// IsFreeTier reports whether the user is on the free tier
func (s *Store) IsFreeTier(ctx context.Context) (bool, error) {
	st, err := s.Load(ctx)
	if err != nil {
		return false, err
	}
	return st.Tier == skills.TierFree, nil
}

// IsCloudTier reports whether the user is on the cloud tier
func (s *Store) IsCloudTier(ctx context.Context) (bool, error) {
	st, err := s.Load(ctx)
	if err != nil {
		return false, err
	}
	return st.Tier == skills.TierCloud, nil
}
