package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"becoin/internal/engine"
	"becoin/internal/export"
	"becoin/internal/repo"
)

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		return &healthOutput{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerStatus(api huma.API, s *Server) {
	huma.Register(api, huma.Operation{
		OperationID: "status",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Economy status summary",
	}, func(ctx context.Context, _ *struct{}) (*statusOutput, error) {
		p := export.Build(s.engine.Snapshot())
		return &statusOutput{Body: StatusBody{
			Status:            "ok",
			GeneratedAt:       p.OrchestratorStatus.LastUpdate,
			Balance:           p.Treasury.Balance,
			BurnRate:          p.Treasury.Metrics.BurnRate,
			RunwayHours:       p.Treasury.Metrics.RunwayHours,
			ProfitMargin:      p.Treasury.Metrics.ProfitMargin,
			Transactions:      len(p.Treasury.Transactions),
			Agents:            len(p.OrchestratorStatus.Agents),
			ActiveProjects:    len(p.Projects.Active),
			PipelineProjects:  len(p.Projects.Pipeline),
			CompletedProjects: len(p.Projects.Completed),
			LiveClients:       s.hub.Len(),
		}}, nil
	})
}

// registerDashboard exposes each export document at its own path. Every
// request builds from a fresh snapshot.
func registerDashboard(api huma.API, e *engine.Engine) {
	build := func() export.Payload { return export.Build(e.Snapshot()) }

	huma.Register(api, huma.Operation{
		OperationID: "get-snapshot",
		Method:      http.MethodGet,
		Path:        "/snapshot",
		Summary:     "Full dashboard payload",
	}, func(ctx context.Context, _ *struct{}) (*snapshotOutput, error) {
		return &snapshotOutput{Body: build()}, nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "get-treasury",
		Method:      http.MethodGet,
		Path:        "/treasury",
		Summary:     "Treasury balance, metrics and transactions",
	}, func(ctx context.Context, _ *struct{}) (*treasuryOutput, error) {
		return &treasuryOutput{Body: build().Treasury}, nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "get-agent-roster",
		Method:      http.MethodGet,
		Path:        "/agent-roster",
		Summary:     "Founders and employees",
	}, func(ctx context.Context, _ *struct{}) (*rosterOutput, error) {
		return &rosterOutput{Body: build().AgentRoster}, nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "get-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "Projects by stage",
	}, func(ctx context.Context, _ *struct{}) (*projectsOutput, error) {
		return &projectsOutput{Body: build().Projects}, nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "get-impact-ledger",
		Method:      http.MethodGet,
		Path:        "/impact-ledger",
		Summary:     "Impact records of completed projects",
	}, func(ctx context.Context, _ *struct{}) (*impactOutput, error) {
		return &impactOutput{Body: build().ImpactLedger}, nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "get-orchestrator-status",
		Method:      http.MethodGet,
		Path:        "/orchestrator-status",
		Summary:     "Agents, treasury summary and active projects",
	}, func(ctx context.Context, _ *struct{}) (*orchestratorOutput, error) {
		return &orchestratorOutput{Body: build().OrchestratorStatus}, nil
	})
}

func registerArchive(api huma.API, r *repo.Repo) {
	disabled := func() huma.StatusError {
		return newAPIError(http.StatusServiceUnavailable, "archive_disabled", "archive is not configured", nil)
	}
	huma.Register(api, huma.Operation{
		OperationID: "list-snapshots",
		Method:      http.MethodGet,
		Path:        "/snapshots",
		Summary:     "Archived snapshots, newest first",
	}, func(ctx context.Context, input *snapshotListInput) (*snapshotListOutput, error) {
		if r == nil {
			return nil, disabled()
		}
		items, err := r.ListSnapshots(ctx, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		out := &snapshotListOutput{}
		out.Body.Items = items
		if out.Body.Items == nil {
			out.Body.Items = []repo.SnapshotRecord{}
		}
		return out, nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "get-archived-snapshot",
		Method:      http.MethodGet,
		Path:        "/snapshots/{snapshot_id}",
		Summary:     "One archived snapshot with its payload",
	}, func(ctx context.Context, input *snapshotGetInput) (*snapshotGetOutput, error) {
		if r == nil {
			return nil, disabled()
		}
		rec, err := r.GetSnapshot(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &snapshotGetOutput{Body: rec}, nil
	})
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Recorded engine changes, newest first",
	}, func(ctx context.Context, input *eventListInput) (*eventListOutput, error) {
		if r == nil {
			return nil, disabled()
		}
		items, err := r.LatestEvents(ctx, input.Limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &eventListOutput{}
		out.Body.Items = items
		if out.Body.Items == nil {
			out.Body.Items = []repo.EventRecord{}
		}
		return out, nil
	})
}
