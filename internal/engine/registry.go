package engine

import (
	"fmt"
	"math"
	"strings"

	"becoin/internal/domain"
	"becoin/internal/treasury"
)

// AddAgent registers a new agent. The treasury is untouched.
func (e *Engine) AddAgent(a domain.Agent) error {
	return e.apply(func() (*Change, error) {
		if err := e.addAgent(a); err != nil {
			return nil, err
		}
		return &Change{Op: OpAgentAdded, EntityKind: "agent", EntityID: a.ID, At: e.clock()}, nil
	})
}

// AddProject registers a new project in whatever stage it carries.
func (e *Engine) AddProject(p domain.Project) error {
	return e.apply(func() (*Change, error) {
		if err := e.addProject(p); err != nil {
			return nil, err
		}
		return &Change{Op: OpProjectAdded, EntityKind: "project", EntityID: p.ID, At: e.clock()}, nil
	})
}

func (e *Engine) addAgent(a domain.Agent) error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("%w: agent id is required", ErrInvalidArgument)
	}
	if _, ok := e.agents[a.ID]; ok {
		return fmt.Errorf("%w: agent %s", ErrDuplicateID, a.ID)
	}
	if a.Status == "" {
		a.Status = domain.AgentIdle
	}
	if !a.Status.Valid() {
		return fmt.Errorf("%w: agent %s has unknown status %q", ErrInvalidArgument, a.ID, a.Status)
	}
	a = a.Clone()
	e.agents[a.ID] = &a
	e.agentOrder = append(e.agentOrder, a.ID)
	return nil
}

func (e *Engine) addProject(p domain.Project) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: project id is required", ErrInvalidArgument)
	}
	if _, ok := e.projects[p.ID]; ok {
		return fmt.Errorf("%w: project %s", ErrDuplicateID, p.ID)
	}
	if p.Stage == "" {
		p.Stage = domain.StagePipeline
	}
	if !p.Stage.Valid() {
		return fmt.Errorf("%w: project %s has unknown stage %q", ErrInvalidArgument, p.ID, p.Stage)
	}
	if !validAmount(p.Cost) || !validAmount(p.Value) {
		return fmt.Errorf("%w: project %s cost and value must be finite and non-negative", ErrInvalidArgument, p.ID)
	}
	p = p.Clone()
	p.Team = uniqueIDs(p.Team)
	e.projects[p.ID] = &p
	e.projectOrder = append(e.projectOrder, p.ID)
	return nil
}

// validAmount reports whether v is finite and >= 0. NaN fails.
func validAmount(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1)
}

// uniqueIDs drops repeated team members, keeping first occurrence order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (e *Engine) Agent(id string) (domain.Agent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.agents[id]
	if !ok {
		return domain.Agent{}, false
	}
	return a.Clone(), true
}

func (e *Engine) Project(id string) (domain.Project, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.projects[id]
	if !ok {
		return domain.Project{}, false
	}
	return p.Clone(), true
}

func (e *Engine) Balance() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.treasury.Balance()
}

func (e *Engine) Metrics() treasury.Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.treasury.Metrics()
}

// ProjectsInStage lists project ids in registration order.
func (e *Engine) ProjectsInStage(stage domain.Stage) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ids []string
	for _, id := range e.projectOrder {
		if e.projects[id].Stage == stage {
			ids = append(ids, id)
		}
	}
	return ids
}

// AgentIDs lists agent ids in registration order.
func (e *Engine) AgentIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.agentOrder...)
}
