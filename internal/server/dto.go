package server

import (
	"becoin/internal/export"
	"becoin/internal/repo"
)

type healthOutput struct {
	Body map[string]string `json:"body"`
}

// StatusBody is a compact summary for monitors.
type StatusBody struct {
	Status            string   `json:"status" example:"ok"`
	GeneratedAt       string   `json:"generated_at" format:"date-time"`
	Balance           float64  `json:"balance"`
	BurnRate          float64  `json:"burn_rate"`
	RunwayHours       *float64 `json:"runway_hours"`
	ProfitMargin      float64  `json:"profit_margin"`
	Transactions      int      `json:"transactions"`
	Agents            int      `json:"agents"`
	ActiveProjects    int      `json:"active_projects"`
	PipelineProjects  int      `json:"pipeline_projects"`
	CompletedProjects int      `json:"completed_projects"`
	LiveClients       int      `json:"live_clients"`
}

type statusOutput struct {
	Body StatusBody `json:"body"`
}

type treasuryOutput struct {
	Body export.Treasury `json:"body"`
}

type rosterOutput struct {
	Body export.AgentRoster `json:"body"`
}

type projectsOutput struct {
	Body export.Projects `json:"body"`
}

type impactOutput struct {
	Body export.ImpactLedger `json:"body"`
}

type orchestratorOutput struct {
	Body export.OrchestratorStatus `json:"body"`
}

type snapshotOutput struct {
	Body export.Payload `json:"body"`
}

type snapshotListInput struct {
	Limit int `query:"limit" default:"20" minimum:"1" maximum:"500"`
}

type snapshotListOutput struct {
	Body struct {
		Items []repo.SnapshotRecord `json:"items"`
	} `json:"body"`
}

type snapshotGetInput struct {
	ID string `path:"snapshot_id"`
}

type snapshotGetOutput struct {
	Body repo.SnapshotRecord `json:"body"`
}

type eventListInput struct {
	Limit      int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
	Type       string `query:"type"`
	EntityKind string `query:"entity_kind"`
	EntityID   string `query:"entity_id"`
}

type eventListOutput struct {
	Body struct {
		Items []repo.EventRecord `json:"items"`
	} `json:"body"`
}
