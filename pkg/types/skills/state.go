package skills

import "time"

// AgentStatus is the last observed execution status of the agent
type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentRunning AgentStatus = "running"
	AgentError   AgentStatus = "error"
)

// LastRun records the most recent skill execution
type LastRun struct {
	SkillName string    `json:"skillName"`
	RanAt     time.Time `json:"ranAt"`
	Success   bool      `json:"success"`
}

// AgentState is the agent-wide singleton persisted by the state store
type AgentState struct {
	Version              string      `json:"version"`
	AgentName            string      `json:"agentName"`
	Tier                 Tier        `json:"tier"`
	Status               AgentStatus `json:"status"`
	CreatedAt            time.Time   `json:"createdAt"`
	UpdatedAt            time.Time   `json:"updatedAt"`
	TotalSkillsInstalled int         `json:"totalSkillsInstalled"`
	ActiveSkillCount     int         `json:"activeSkillCount"`
	BaseSkills           []string    `json:"baseSkills"`
	LastRun              *LastRun    `json:"lastRun,omitempty"`
}

// IsBaseSkill reports whether name is one of the pre-seeded skills
func (s AgentState) IsBaseSkill(name string) bool {
	for _, base := range s.BaseSkills {
		if base == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the state
func (s AgentState) Clone() AgentState {
	s.BaseSkills = append([]string(nil), s.BaseSkills...)
	if s.LastRun != nil {
		lr := *s.LastRun
		s.LastRun = &lr
	}
	return s
}
