package engine

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"becoin/internal/domain"
	"becoin/internal/treasury"
)

const (
	DefaultBaselineHourlyBurn = 120.0
	bonusShare                = 0.1
)

// Engine owns the treasury, agents and projects. Every public method takes
// the engine-wide lock, so each call is applied as a unit.
type Engine struct {
	mu  sync.Mutex
	seq uint64

	// Observer delivery runs outside mu; delivered is the last Change.Seq
	// handed to observers.
	notifyMu   sync.Mutex
	notifyCond *sync.Cond
	delivered  uint64

	treasury     *treasury.Treasury
	agents       map[string]*domain.Agent
	agentOrder   []string
	projects     map[string]*domain.Project
	projectOrder []string
	impact       []domain.ImpactRecord

	baselineBurn float64
	now          func() time.Time
	logger       *slog.Logger
	observers    []func(Change)
}

type Option func(*Engine)

// WithBaselineBurn sets the hourly burn AdvanceTime applies when the
// observed burn rate is lower.
func WithBaselineBurn(perHour float64) Option {
	return func(e *Engine) { e.baselineBurn = perHour }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithObserver(fn func(Change)) Option {
	return func(e *Engine) {
		if fn != nil {
			e.observers = append(e.observers, fn)
		}
	}
}

// New builds an engine around t. Agent and project ids must be unique and
// non-empty; their order is kept for exports.
func New(t *treasury.Treasury, agents []domain.Agent, projects []domain.Project, opts ...Option) (*Engine, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: treasury is required", ErrInvalidArgument)
	}
	e := &Engine{
		treasury:     t,
		agents:       make(map[string]*domain.Agent, len(agents)),
		projects:     make(map[string]*domain.Project, len(projects)),
		baselineBurn: DefaultBaselineHourlyBurn,
		now:          time.Now,
		logger:       slog.Default(),
	}
	e.notifyCond = sync.NewCond(&e.notifyMu)
	for _, opt := range opts {
		opt(e)
	}
	if !validAmount(t.Balance()) {
		return nil, fmt.Errorf("%w: treasury balance must be finite and non-negative, got %v", ErrInvalidArgument, t.Balance())
	}
	if !validAmount(e.baselineBurn) {
		return nil, fmt.Errorf("%w: baseline burn must be finite and non-negative, got %v", ErrInvalidArgument, e.baselineBurn)
	}
	for _, a := range agents {
		if err := e.addAgent(a); err != nil {
			return nil, err
		}
	}
	for _, p := range projects {
		if err := e.addProject(p); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// Observe registers fn to be called after every successful mutation. It runs
// outside the engine lock and may call Snapshot. Calls arrive in commit order.
func (e *Engine) Observe(fn func(Change)) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.observers = append(e.observers, fn)
	e.mu.Unlock()
}

// apply runs op under the lock and notifies observers when op reports a change.
// Observers run outside mu, one change at a time, in commit order. They may
// read engine state but must not call mutating methods.
func (e *Engine) apply(op func() (*Change, error)) error {
	e.mu.Lock()
	change, err := op()
	if change == nil {
		e.mu.Unlock()
		return err
	}
	e.seq++
	change.Seq = e.seq
	change.Balance = e.treasury.Balance()
	observers := e.observers
	e.mu.Unlock()

	e.notifyMu.Lock()
	for e.delivered+1 != change.Seq {
		e.notifyCond.Wait()
	}
	e.notifyMu.Unlock()
	defer func() {
		e.notifyMu.Lock()
		e.delivered = change.Seq
		e.notifyCond.Broadcast()
		e.notifyMu.Unlock()
	}()
	for _, fn := range observers {
		fn(*change)
	}
	return err
}

// StartProject debits the project cost and moves it to active. Projects that
// are not in pipeline or paused are left alone without error.
func (e *Engine) StartProject(projectID string) error {
	return e.apply(func() (*Change, error) { return e.startProject(projectID) })
}

func (e *Engine) startProject(projectID string) (*Change, error) {
	p, ok := e.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProject, projectID)
	}
	if !p.Stage.Startable() {
		e.logger.Debug("start ignored", "project_id", p.ID, "stage", p.Stage)
		return nil, nil
	}
	now := e.clock()
	var entry *domain.LedgerEntry
	if p.Cost != 0 {
		var err error
		entry, err = e.spend(now, p.Cost, domain.EntryProjectCost, "Kickoff for "+p.Name, map[string]any{"project_id": p.ID})
		if err != nil {
			return nil, err
		}
	}
	p.Stage = domain.StageActive
	p.StartedAt = &now
	for _, agentID := range p.Team {
		a, ok := e.agents[agentID]
		if !ok {
			continue
		}
		task := p.Name
		a.Status = domain.AgentActive
		a.CurrentTask = &task
	}
	e.logger.Debug("project started", "project_id", p.ID, "cost", p.Cost, "balance", e.treasury.Balance())
	return &Change{Op: OpProjectStarted, EntityKind: "project", EntityID: p.ID, At: now, Entry: entry}, nil
}

// CompleteProject recognizes the project value, pays the team bonus and
// appends an impact record. Only active projects are affected.
func (e *Engine) CompleteProject(projectID string) error {
	return e.apply(func() (*Change, error) { return e.completeProject(projectID) })
}

func (e *Engine) completeProject(projectID string) (*Change, error) {
	p, ok := e.projects[projectID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProject, projectID)
	}
	if p.Stage != domain.StageActive {
		e.logger.Debug("complete ignored", "project_id", p.ID, "stage", p.Stage)
		return nil, nil
	}
	now := e.clock()
	var entry *domain.LedgerEntry
	if p.Value != 0 {
		entry = e.earn(now, p.Value, domain.EntryProjectRevenue, "Revenue from "+p.Name, map[string]any{"project_id": p.ID})
	}
	p.Stage = domain.StageCompleted
	p.CompletedAt = &now

	perAgent := p.Value * bonusShare / float64(max(len(p.Team), 1))
	for _, agentID := range p.Team {
		a, ok := e.agents[agentID]
		if !ok {
			continue
		}
		a.Status = domain.AgentIdle
		a.CurrentTask = nil
		a.Performance.ProjectsCompleted++
		a.Performance.Earned += perAgent
	}

	var roi float64
	if p.Cost != 0 {
		roi = p.Value / p.Cost
	}
	e.impact = append(e.impact, domain.ImpactRecord{
		ProjectID:   p.ID,
		ImpactScore: p.ImpactScore,
		ROI:         roi,
		Notes:       fmt.Sprintf("Project %s delivered", p.Name),
		Timestamp:   now,
	})
	e.logger.Debug("project completed", "project_id", p.ID, "value", p.Value, "roi", roi)
	return &Change{Op: OpProjectCompleted, EntityKind: "project", EntityID: p.ID, At: now, Entry: entry}, nil
}

// PayAgent debits amount from the treasury and credits it to the agent's
// earnings.
func (e *Engine) PayAgent(agentID string, amount float64, reason string) error {
	return e.apply(func() (*Change, error) {
		if !(amount > 0) {
			return nil, fmt.Errorf("%w: amount must be positive, got %v", ErrInvalidArgument, amount)
		}
		a, ok := e.agents[agentID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
		}
		now := e.clock()
		entry, err := e.spend(now, amount, domain.EntryPayroll, reason, map[string]any{"agent_id": agentID})
		if err != nil {
			return nil, err
		}
		a.Performance.Earned += amount
		e.logger.Debug("agent paid", "agent_id", agentID, "amount", amount)
		return &Change{Op: OpAgentPaid, EntityKind: "agent", EntityID: agentID, At: now, Entry: entry}, nil
	})
}

// AdvanceTime charges operating cost for the elapsed hours at the higher of
// the current burn rate and the baseline. The charge is capped at the balance,
// so it never fails for lack of funds.
func (e *Engine) AdvanceTime(hours float64) error {
	return e.apply(func() (*Change, error) {
		if !(hours > 0) || math.IsInf(hours, 1) {
			return nil, fmt.Errorf("%w: hours must be positive, got %v", ErrInvalidArgument, hours)
		}
		rate := max(e.treasury.Metrics().BurnRate, e.baselineBurn)
		amount := min(rate*hours, e.treasury.Balance())
		if amount == 0 {
			return nil, nil
		}
		now := e.clock()
		entry, err := e.spend(now, amount, domain.EntryOperationsCost,
			fmt.Sprintf("Operational runway burn for %gh", hours),
			map[string]any{"hours": hours, "burnRate": rate})
		if err != nil {
			return nil, err
		}
		return &Change{Op: OpTimeAdvanced, EntityKind: "treasury", At: now, Entry: entry}, nil
	})
}

// spend appends -|amount| unless the balance cannot cover it.
func (e *Engine) spend(now time.Time, amount float64, kind domain.EntryKind, desc string, md map[string]any) (*domain.LedgerEntry, error) {
	signed := -math.Abs(amount)
	if bal := e.treasury.Balance(); bal+signed < 0 {
		e.logger.Warn("spend rejected", "type", kind, "amount", -signed, "balance", bal)
		return nil, fmt.Errorf("%w: balance %.2f cannot cover %.2f", ErrInsufficientFunds, bal, -signed)
	}
	entry := domain.LedgerEntry{Timestamp: now, Kind: kind, Amount: signed, Description: desc, Metadata: md}
	e.treasury.ApplyEntry(entry)
	return &entry, nil
}

func (e *Engine) earn(now time.Time, amount float64, kind domain.EntryKind, desc string, md map[string]any) *domain.LedgerEntry {
	entry := domain.LedgerEntry{Timestamp: now, Kind: kind, Amount: math.Abs(amount), Description: desc, Metadata: md}
	e.treasury.ApplyEntry(entry)
	return &entry
}
