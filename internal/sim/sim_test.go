package sim_test

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"becoin/internal/app"
	"becoin/internal/config"
	"becoin/internal/engine"
	"becoin/internal/sim"
)

var start = time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(t *testing.T, clock *sim.ManualClock) *engine.Engine {
	t.Helper()
	e, err := app.NewEngine(config.Default(), quietLogger(), engine.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e
}

func TestManualClock(t *testing.T) {
	c := sim.NewManualClock(start)
	if !c.Now().Equal(start) {
		t.Fatalf("now = %v", c.Now())
	}
	if got := c.Advance(90 * time.Minute); !got.Equal(start.Add(90 * time.Minute)) {
		t.Fatalf("advance = %v", got)
	}
}

func TestRunScriptDefaultScenario(t *testing.T) {
	clock := sim.NewManualClock(start)
	e := newEngine(t, clock)
	rep, err := sim.RunScript(context.Background(), e, config.Default().Script, clock, quietLogger())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Steps != 5 || rep.Applied != 5 || rep.InsufficientFunds != 0 {
		t.Fatalf("report %+v", rep)
	}
	// 10000 - 1500 - 24h*120 + 3500 - 250 - 2200
	want := 10000.0 - 1500 - 2880 + 3500 - 250 - 2200
	if math.Abs(e.Balance()-want) > 1e-9 || rep.FinalBalance != e.Balance() {
		t.Fatalf("balance = %v want %v", e.Balance(), want)
	}
	if !clock.Now().Equal(start.Add(24 * time.Hour)) {
		t.Fatalf("clock = %v", clock.Now())
	}
	s := e.Snapshot()
	if len(s.ImpactRecords) != 1 || !s.ImpactRecords[0].Timestamp.Equal(start.Add(24*time.Hour)) {
		t.Fatalf("impact %+v", s.ImpactRecords)
	}
}

func TestRunScriptContinuesPastInsufficientFunds(t *testing.T) {
	clock := sim.NewManualClock(start)
	e := newEngine(t, clock)
	steps := []config.Step{
		{Op: "pay", Agent: "AGENT-101", Amount: 1e6},
		{Op: "pay", Agent: "AGENT-101", Amount: 10},
	}
	rep, err := sim.RunScript(context.Background(), e, steps, clock, quietLogger())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.InsufficientFunds != 1 || rep.Applied != 1 {
		t.Fatalf("report %+v", rep)
	}
}

func TestRunScriptStopsOnUnknownAgent(t *testing.T) {
	clock := sim.NewManualClock(start)
	e := newEngine(t, clock)
	steps := []config.Step{{Op: "pay", Agent: "NOPE", Amount: 1}, {Op: "advance", Hours: 1}}
	rep, err := sim.RunScript(context.Background(), e, steps, clock, quietLogger())
	if !engine.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if rep.Steps != 1 {
		t.Fatalf("should stop after first step: %+v", rep)
	}
}

func TestRunRandomKeepsInvariants(t *testing.T) {
	clock := sim.NewManualClock(start)
	e := newEngine(t, clock)
	rep, err := sim.RunRandom(context.Background(), e, sim.RandomOptions{Seed: 42}, clock, quietLogger())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Steps != 200 {
		t.Fatalf("steps = %d", rep.Steps)
	}
	if rep.MinBalance < 0 {
		t.Fatalf("balance went negative: %v", rep.MinBalance)
	}
	s := e.Snapshot()
	sum := s.Treasury.StartCapital()
	for _, en := range s.Treasury.Entries() {
		sum += en.Amount
		if en.Kind == "" || en.Timestamp.IsZero() {
			t.Fatalf("malformed entry %+v", en)
		}
	}
	if math.Abs(sum-s.Treasury.Balance()) > 1e-6 {
		t.Fatalf("ledger sum %v != balance %v", sum, s.Treasury.Balance())
	}
	m := s.Treasury.Metrics()
	if m.BurnRate < 0 || (m.RunwayHours != nil && *m.RunwayHours < 0) {
		t.Fatalf("metrics %+v", m)
	}

	// Same seed, same run.
	clock2 := sim.NewManualClock(start)
	e2 := newEngine(t, clock2)
	rep2, err := sim.RunRandom(context.Background(), e2, sim.RandomOptions{Seed: 42}, clock2, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if rep2.FinalBalance != rep.FinalBalance || rep2.InsufficientFunds != rep.InsufficientFunds {
		t.Fatalf("runs differ: %+v vs %+v", rep, rep2)
	}
}

func TestRunRandomHonorsContext(t *testing.T) {
	clock := sim.NewManualClock(start)
	e := newEngine(t, clock)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sim.RunRandom(ctx, e, sim.RandomOptions{}, clock, quietLogger()); err == nil {
		t.Fatalf("expected context error")
	}
}
