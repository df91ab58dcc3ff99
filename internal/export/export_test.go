package export_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"becoin/internal/domain"
	"becoin/internal/engine"
	"becoin/internal/export"
	"becoin/internal/treasury"
)

var fixedNow = time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	agents := []domain.Agent{
		{ID: "AGENT-001", Name: "CEO-Sales", Role: "Revenue Strategist", EquityShare: 0.4, Founder: true},
		{ID: "AGENT-002", Name: "CTO-Engineer", Role: "Platform Engineer", EquityShare: 0.35, Founder: true},
		{ID: "AGENT-101", Name: "Ops Analyst", Role: "Operations"},
	}
	projects := []domain.Project{
		{ID: "PRJ-ALPHA", Name: "Enterprise Outreach", Cost: 1500, Value: 3500, ImpactScore: 72, Team: []string{"AGENT-001", "AGENT-101"}},
		{ID: "PRJ-BETA", Name: "Automation Toolkit", Cost: 2200, Value: 6200, ImpactScore: 88, Team: []string{"AGENT-002"}},
		{ID: "PRJ-HOLD", Name: "On Hold", Stage: domain.StagePaused, Cost: 10},
	}
	e, err := engine.New(treasury.New(10000, 0), agents, projects, engine.WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func TestBuildStructure(t *testing.T) {
	e := newEngine(t)
	if err := e.StartProject("PRJ-ALPHA"); err != nil {
		t.Fatal(err)
	}
	if err := e.CompleteProject("PRJ-ALPHA"); err != nil {
		t.Fatal(err)
	}
	if err := e.StartProject("PRJ-BETA"); err != nil {
		t.Fatal(err)
	}
	if err := e.PayAgent("AGENT-101", 100, "Bonus"); err != nil {
		t.Fatal(err)
	}
	p := export.Build(e.Snapshot())

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"treasury", "agent_roster", "projects", "impact_ledger", "orchestrator_status"} {
		if _, ok := top[key]; !ok {
			t.Fatalf("missing section %s in %s", key, data)
		}
	}
	if len(top) != 5 {
		t.Fatalf("unexpected sections: %d", len(top))
	}

	if p.Treasury.Balance != 9700 || p.Treasury.StartCapital != 10000 {
		t.Fatalf("treasury %+v", p.Treasury)
	}
	if len(p.AgentRoster.Founders) != 2 || len(p.AgentRoster.Employees) != 1 {
		t.Fatalf("roster %+v", p.AgentRoster)
	}
	if p.AgentRoster.Employees[0].Performance.BecoinEarned != 275 {
		t.Fatalf("employee earned %v", p.AgentRoster.Employees[0].Performance.BecoinEarned)
	}
	if len(p.Projects.Active) != 1 || p.Projects.Active[0].ID != "PRJ-BETA" {
		t.Fatalf("active %+v", p.Projects.Active)
	}
	if len(p.Projects.Completed) != 1 || len(p.Projects.Pipeline) != 0 {
		t.Fatalf("projects %+v", p.Projects)
	}
	for _, group := range [][]export.Project{p.Projects.Active, p.Projects.Pipeline, p.Projects.Completed} {
		for _, pr := range group {
			if pr.ID == "PRJ-HOLD" {
				t.Fatalf("paused project listed")
			}
		}
	}
	if p.ImpactLedger.TotalImpactScore != 72 || p.ImpactLedger.Records[0].ROI != 2.33 {
		t.Fatalf("impact %+v", p.ImpactLedger)
	}

	o := p.OrchestratorStatus
	if o.LastUpdate != "2025-03-03T12:00:00Z" {
		t.Fatalf("lastUpdate = %s", o.LastUpdate)
	}
	if len(o.Agents) != 3 || o.Agents[2].ID != "AGENT-101" {
		t.Fatalf("orchestrator agents %+v", o.Agents)
	}
	if o.Treasury.Balance != p.Treasury.Balance || o.Treasury.Metrics.BurnRate != p.Treasury.Metrics.BurnRate {
		t.Fatalf("orchestrator treasury %+v", o.Treasury)
	}
	if len(o.ActiveProjects) != 1 || o.ActiveProjects[0].ID != "PRJ-BETA" {
		t.Fatalf("active projects %+v", o.ActiveProjects)
	}
	if o.Agents[1].CurrentTask == nil || *o.Agents[1].CurrentTask != "Automation Toolkit" {
		t.Fatalf("current task %+v", o.Agents[1])
	}
}

func TestBuildRoundsMetricsAndNullsRunway(t *testing.T) {
	e := newEngine(t)
	data, err := json.Marshal(export.Build(e.Snapshot()))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte(`"runwayHours":null`)) {
		t.Fatalf("expected null runway: %s", data)
	}
	if !bytes.Contains(data, []byte(`"transactions":[]`)) || !bytes.Contains(data, []byte(`"records":[]`)) {
		t.Fatalf("expected empty arrays: %s", data)
	}

	if err := e.StartProject("PRJ-ALPHA"); err != nil {
		t.Fatal(err)
	}
	m := export.Build(e.Snapshot()).Treasury.Metrics
	if m.BurnRate != 20.83 {
		t.Fatalf("burn = %v", m.BurnRate)
	}
	if m.RunwayHours == nil || *m.RunwayHours != 408 {
		t.Fatalf("runway = %v", m.RunwayHours)
	}
	if m.ProfitMargin != -100 {
		t.Fatalf("margin = %v", m.ProfitMargin)
	}
}

func TestTransactionsSortedByTimestamp(t *testing.T) {
	tr := treasury.New(1000, 0)
	later := fixedNow.Add(time.Hour)
	tr.ApplyEntry(domain.LedgerEntry{Timestamp: later, Kind: domain.EntryPayroll, Amount: -10, Description: "second"})
	tr.ApplyEntry(domain.LedgerEntry{Timestamp: fixedNow, Kind: domain.EntryProjectRevenue, Amount: 20, Description: "first"})

	p := export.Build(engine.Snapshot{Treasury: tr, GeneratedAt: later})
	txs := p.Treasury.Transactions
	if len(txs) != 2 || txs[0].Description != "first" || txs[1].Description != "second" {
		t.Fatalf("order %+v", txs)
	}
	if txs[0].Metadata == nil {
		t.Fatalf("metadata should be an empty object")
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	e := newEngine(t)
	_ = e.StartProject("PRJ-ALPHA")
	_ = e.PayAgent("AGENT-001", 12.345, "odd amount")
	a, _ := json.Marshal(export.Build(e.Snapshot()))
	b, _ := json.Marshal(export.Build(e.Snapshot()))
	if !bytes.Equal(a, b) {
		t.Fatalf("exports differ:\n%s\n%s", a, b)
	}
}

func TestBuildWithoutTreasury(t *testing.T) {
	p := export.Build(engine.Snapshot{GeneratedAt: fixedNow})
	if p.Treasury.Transactions == nil || p.AgentRoster.Founders == nil || p.Projects.Active == nil {
		t.Fatalf("nil slices in %+v", p)
	}
}

func TestRound2(t *testing.T) {
	cases := map[float64]float64{
		2.345:   2.35,
		-2.345:  -2.35,
		1.005:   1.01,
		20.8333: 20.83,
		0:       0,
	}
	for in, want := range cases {
		if got := export.Round2(in); got != want {
			t.Fatalf("Round2(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestWriteDir(t *testing.T) {
	e := newEngine(t)
	_ = e.StartProject("PRJ-ALPHA")
	dir := filepath.Join(t.TempDir(), "out")
	if err := export.WriteDir(dir, export.Build(e.Snapshot())); err != nil {
		t.Fatalf("write: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(export.DocumentNames) {
		t.Fatalf("files %v", entries)
	}
	for _, name := range export.DocumentNames {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if !json.Valid(data) {
			t.Fatalf("%s is not valid json", name)
		}
	}
	data, _ := os.ReadFile(filepath.Join(dir, export.TreasuryDoc))
	if !strings.Contains(string(data), `"startCapital": 10000`) {
		t.Fatalf("treasury doc: %s", data)
	}
}
