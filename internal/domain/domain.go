package domain

import "time"

type EntryKind string

const (
	EntryProjectCost    EntryKind = "PROJECT_COST"
	EntryProjectRevenue EntryKind = "PROJECT_REVENUE"
	EntryPayroll        EntryKind = "PAYROLL"
	EntryOperationsCost EntryKind = "OPERATIONS_COST"
)

// LedgerEntry records one balance-affecting event. Negative amounts are outflows.
type LedgerEntry struct {
	Timestamp   time.Time      `json:"timestamp"`
	Kind        EntryKind      `json:"type"`
	Amount      float64        `json:"amount"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (e LedgerEntry) Clone() LedgerEntry {
	if e.Metadata != nil {
		md := make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = v
		}
		e.Metadata = md
	}
	return e
}

type AgentStatus string

const (
	AgentIdle   AgentStatus = "IDLE"
	AgentActive AgentStatus = "ACTIVE"
)

func (s AgentStatus) Valid() bool {
	return s == AgentIdle || s == AgentActive
}

type Performance struct {
	Earned            float64 `json:"becoin_earned"`
	ProjectsCompleted int     `json:"projects_completed"`
}

type Agent struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Role        string      `json:"role"`
	Status      AgentStatus `json:"status" enum:"IDLE,ACTIVE"`
	EquityShare float64     `json:"equity_share"`
	Founder     bool        `json:"founder"`
	CurrentTask *string     `json:"current_task,omitempty"`
	Performance Performance `json:"performance"`
}

func (a Agent) Clone() Agent {
	if a.CurrentTask != nil {
		task := *a.CurrentTask
		a.CurrentTask = &task
	}
	return a
}

type Stage string

const (
	StagePipeline  Stage = "pipeline"
	StagePaused    Stage = "paused"
	StageActive    Stage = "active"
	StageCompleted Stage = "completed"
)

func (s Stage) Valid() bool {
	switch s {
	case StagePipeline, StagePaused, StageActive, StageCompleted:
		return true
	}
	return false
}

// Startable reports whether a project in this stage may move to active.
func (s Stage) Startable() bool {
	return s == StagePipeline || s == StagePaused
}

type Project struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Stage       Stage      `json:"stage" enum:"pipeline,paused,active,completed"`
	Cost        float64    `json:"cost"`
	Value       float64    `json:"value"`
	ImpactScore int        `json:"impact_score"`
	Team        []string   `json:"team"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (p Project) Clone() Project {
	p.Team = append([]string(nil), p.Team...)
	if p.StartedAt != nil {
		ts := *p.StartedAt
		p.StartedAt = &ts
	}
	if p.CompletedAt != nil {
		ts := *p.CompletedAt
		p.CompletedAt = &ts
	}
	return p
}

// ImpactRecord is written once per completed project and never changed.
type ImpactRecord struct {
	ProjectID   string    `json:"project_id"`
	ImpactScore int       `json:"impact_score"`
	ROI         float64   `json:"roi"`
	Notes       string    `json:"notes"`
	Timestamp   time.Time `json:"timestamp"`
}
