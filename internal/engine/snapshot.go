package engine

import (
	"time"

	"becoin/internal/domain"
	"becoin/internal/treasury"
)

const (
	OpProjectStarted   = "project.started"
	OpProjectCompleted = "project.completed"
	OpAgentPaid        = "agent.paid"
	OpTimeAdvanced     = "treasury.burned"
	OpAgentAdded       = "agent.added"
	OpProjectAdded     = "project.added"
)

// Change describes one successful mutation. Entry is set when the mutation
// appended to the ledger; Balance is the treasury balance right after it.
// Seq numbers changes from 1 in commit order.
type Change struct {
	Seq        uint64
	Op         string
	EntityKind string
	EntityID   string
	At         time.Time
	Entry      *domain.LedgerEntry
	Balance    float64
}

// Snapshot is a deep copy of engine state. Agents and Projects keep
// registration order.
type Snapshot struct {
	Treasury      *treasury.Treasury
	Agents        []domain.Agent
	Projects      []domain.Project
	ImpactRecords []domain.ImpactRecord
	GeneratedAt   time.Time
}

// Snapshot copies the current state. It takes the engine lock, so it never
// observes half of an operation.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Snapshot{
		Treasury:      e.treasury.Clone(),
		Agents:        make([]domain.Agent, 0, len(e.agentOrder)),
		Projects:      make([]domain.Project, 0, len(e.projectOrder)),
		ImpactRecords: append([]domain.ImpactRecord(nil), e.impact...),
		GeneratedAt:   e.clock(),
	}
	for _, id := range e.agentOrder {
		s.Agents = append(s.Agents, e.agents[id].Clone())
	}
	for _, id := range e.projectOrder {
		s.Projects = append(s.Projects, e.projects[id].Clone())
	}
	return s
}

func (s Snapshot) Agent(id string) (domain.Agent, bool) {
	for _, a := range s.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return domain.Agent{}, false
}

func (s Snapshot) Project(id string) (domain.Project, bool) {
	for _, p := range s.Projects {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Project{}, false
}
