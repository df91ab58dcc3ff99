// Package export turns an engine snapshot into the dashboard payload. It only
// reads; all rounding for display happens here.
package export

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"becoin/internal/domain"
	"becoin/internal/engine"
)

const timestampLayout = "2006-01-02T15:04:05Z"

type Metrics struct {
	BurnRate     float64  `json:"burnRate"`
	RunwayHours  *float64 `json:"runwayHours"`
	ProfitMargin float64  `json:"profitMargin"`
}

type Transaction struct {
	Timestamp   string         `json:"timestamp" format:"date-time"`
	Type        string         `json:"type" enum:"PROJECT_COST,PROJECT_REVENUE,PAYROLL,OPERATIONS_COST"`
	Amount      float64        `json:"amount"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
}

type Treasury struct {
	Balance      float64       `json:"balance"`
	StartCapital float64       `json:"startCapital"`
	Metrics      Metrics       `json:"metrics"`
	Transactions []Transaction `json:"transactions"`
}

type AgentPerformance struct {
	BecoinEarned      float64 `json:"becoinEarned"`
	ProjectsCompleted int     `json:"projectsCompleted"`
}

type Agent struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Role        string           `json:"role"`
	Status      string           `json:"status" enum:"IDLE,ACTIVE"`
	EquityShare float64          `json:"equityShare"`
	CurrentTask *string          `json:"current_task"`
	Performance AgentPerformance `json:"performance"`
}

type AgentRoster struct {
	Founders  []Agent `json:"founders"`
	Employees []Agent `json:"employees"`
}

type Project struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Stage       string   `json:"stage"`
	Value       float64  `json:"value"`
	ImpactScore int      `json:"impactScore"`
	Team        []string `json:"team"`
}

type Projects struct {
	Active    []Project `json:"active"`
	Pipeline  []Project `json:"pipeline"`
	Completed []Project `json:"completed"`
}

type ImpactRecord struct {
	ProjectID   string  `json:"projectId"`
	ImpactScore int     `json:"impactScore"`
	ROI         float64 `json:"roi"`
	Notes       string  `json:"notes"`
	Timestamp   string  `json:"timestamp" format:"date-time"`
}

type ImpactLedger struct {
	Records          []ImpactRecord `json:"records"`
	TotalImpactScore int            `json:"totalImpactScore"`
}

type StatusTreasury struct {
	Balance float64 `json:"balance"`
	Metrics Metrics `json:"metrics"`
}

type OrchestratorStatus struct {
	LastUpdate     string         `json:"lastUpdate" format:"date-time"`
	Agents         []Agent        `json:"agents"`
	Treasury       StatusTreasury `json:"treasury"`
	ActiveProjects []Project      `json:"activeProjects"`
}

// Payload is the full dashboard read model.
type Payload struct {
	Treasury           Treasury           `json:"treasury"`
	AgentRoster        AgentRoster        `json:"agent_roster"`
	Projects           Projects           `json:"projects"`
	ImpactLedger       ImpactLedger       `json:"impact_ledger"`
	OrchestratorStatus OrchestratorStatus `json:"orchestrator_status"`
}

// Build derives the payload from s. Identical snapshots give identical output.
func Build(s engine.Snapshot) Payload {
	var p Payload

	metrics := Metrics{}
	if s.Treasury != nil {
		m := s.Treasury.Metrics()
		metrics.BurnRate = Round2(m.BurnRate)
		metrics.ProfitMargin = Round2(m.ProfitMargin)
		if m.RunwayHours != nil {
			h := Round2(*m.RunwayHours)
			metrics.RunwayHours = &h
		}
		p.Treasury = Treasury{
			Balance:      Round2(s.Treasury.Balance()),
			StartCapital: Round2(s.Treasury.StartCapital()),
			Metrics:      metrics,
			Transactions: transactions(s.Treasury.Entries()),
		}
	} else {
		p.Treasury.Transactions = []Transaction{}
	}

	p.AgentRoster = AgentRoster{Founders: []Agent{}, Employees: []Agent{}}
	for _, a := range s.Agents {
		if a.Founder {
			p.AgentRoster.Founders = append(p.AgentRoster.Founders, agent(a))
		} else {
			p.AgentRoster.Employees = append(p.AgentRoster.Employees, agent(a))
		}
	}

	p.Projects = Projects{Active: []Project{}, Pipeline: []Project{}, Completed: []Project{}}
	for _, pr := range s.Projects {
		switch pr.Stage {
		case domain.StageActive:
			p.Projects.Active = append(p.Projects.Active, project(pr))
		case domain.StagePipeline:
			p.Projects.Pipeline = append(p.Projects.Pipeline, project(pr))
		case domain.StageCompleted:
			p.Projects.Completed = append(p.Projects.Completed, project(pr))
		}
	}

	p.ImpactLedger.Records = make([]ImpactRecord, 0, len(s.ImpactRecords))
	for _, r := range s.ImpactRecords {
		p.ImpactLedger.Records = append(p.ImpactLedger.Records, ImpactRecord{
			ProjectID:   r.ProjectID,
			ImpactScore: r.ImpactScore,
			ROI:         Round2(r.ROI),
			Notes:       r.Notes,
			Timestamp:   Timestamp(r.Timestamp),
		})
		p.ImpactLedger.TotalImpactScore += r.ImpactScore
	}

	agents := make([]Agent, 0, len(p.AgentRoster.Founders)+len(p.AgentRoster.Employees))
	agents = append(agents, p.AgentRoster.Founders...)
	agents = append(agents, p.AgentRoster.Employees...)
	p.OrchestratorStatus = OrchestratorStatus{
		LastUpdate:     Timestamp(s.GeneratedAt),
		Agents:         agents,
		Treasury:       StatusTreasury{Balance: p.Treasury.Balance, Metrics: p.Treasury.Metrics},
		ActiveProjects: p.Projects.Active,
	}
	return p
}

func transactions(entries []domain.LedgerEntry) []Transaction {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp.Before(entries[j].Timestamp) })
	out := make([]Transaction, 0, len(entries))
	for _, e := range entries {
		md := e.Metadata
		if md == nil {
			md = map[string]any{}
		}
		out = append(out, Transaction{
			Timestamp:   Timestamp(e.Timestamp),
			Type:        string(e.Kind),
			Amount:      Round2(e.Amount),
			Description: e.Description,
			Metadata:    md,
		})
	}
	return out
}

func agent(a domain.Agent) Agent {
	return Agent{
		ID:          a.ID,
		Name:        a.Name,
		Role:        a.Role,
		Status:      string(a.Status),
		EquityShare: a.EquityShare,
		CurrentTask: a.CurrentTask,
		Performance: AgentPerformance{
			BecoinEarned:      Round2(a.Performance.Earned),
			ProjectsCompleted: a.Performance.ProjectsCompleted,
		},
	}
}

func project(p domain.Project) Project {
	team := p.Team
	if team == nil {
		team = []string{}
	}
	return Project{
		ID:          p.ID,
		Name:        p.Name,
		Stage:       string(p.Stage),
		Value:       Round2(p.Value),
		ImpactScore: p.ImpactScore,
		Team:        team,
	}
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Timestamp formats t in UTC at second precision with a Z suffix.
func Timestamp(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(timestampLayout)
}
