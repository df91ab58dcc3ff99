package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"becoin/internal/app"
	"becoin/internal/config"
	"becoin/internal/engine"
	"becoin/internal/repo"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveConfigOrder(t *testing.T) {
	dir := t.TempDir()
	_, path, err := app.ResolveConfig(dir, "")
	if err != nil || path != "" {
		t.Fatalf("built-in expected: path=%q err=%v", path, err)
	}

	ws := "treasury:\n  start_capital: 42\n"
	if err := os.WriteFile(config.Path(dir), []byte(ws), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, path, err := app.ResolveConfig(dir, "")
	if err != nil || path != config.Path(dir) || cfg.Treasury.StartCapital != 42 {
		t.Fatalf("workspace config: %v %q %v", cfg, path, err)
	}

	explicit := filepath.Join(dir, "other.yml")
	if err := os.WriteFile(explicit, []byte("treasury:\n  start_capital: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, path, err = app.ResolveConfig(dir, explicit)
	if err != nil || path != explicit || cfg.Treasury.StartCapital != 7 {
		t.Fatalf("explicit config: %v %q %v", cfg, path, err)
	}
	if _, _, err := app.ResolveConfig(dir, filepath.Join(dir, "missing.yml")); err == nil {
		t.Fatalf("expected error for missing explicit file")
	}
}

func TestNewEngineFromConfig(t *testing.T) {
	e, err := app.NewEngine(config.Default(), quietLogger())
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if e.Balance() != 10000 {
		t.Fatalf("balance = %v", e.Balance())
	}
	if a, ok := e.Agent("AGENT-001"); !ok || !a.Founder || a.Status != "IDLE" {
		t.Fatalf("agent %+v", a)
	}
	if p, ok := e.Project("PRJ-BETA"); !ok || p.Cost != 2200 || p.Stage != "pipeline" {
		t.Fatalf("project %+v", p)
	}

	dup := config.Default()
	dup.Projects = append(dup.Projects, dup.Projects[0])
	if _, err := app.NewEngine(dup, quietLogger()); !errors.Is(err, engine.ErrDuplicateID) {
		t.Fatalf("expected duplicate id, got %v", err)
	}
}

func TestArchiveRecordsChangesAndSnapshots(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "archive", "becoin.db")
	a, err := app.OpenArchive(ctx, "", path, quietLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()

	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	e, err := app.NewEngine(config.Default(), quietLogger(), engine.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatal(err)
	}
	a.Attach(e)
	if err := e.StartProject("PRJ-ALPHA"); err != nil {
		t.Fatal(err)
	}
	if err := e.PayAgent("AGENT-101", 50, "stipend"); err != nil {
		t.Fatal(err)
	}
	_ = e.PayAgent("AGENT-101", 1e9, "rejected")

	events, err := a.Repo.LatestEvents(ctx, 10, "", "", "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %+v", events)
	}
	if events[0].Type != engine.OpAgentPaid || events[0].Balance != 8450 || events[0].Amount == nil || *events[0].Amount != -50 {
		t.Fatalf("latest event %+v", events[0])
	}
	if events[1].Type != engine.OpProjectStarted || events[1].EntityID != "PRJ-ALPHA" {
		t.Fatalf("first event %+v", events[1])
	}
	filtered, err := a.Repo.LatestEvents(ctx, 10, engine.OpProjectStarted, "", "")
	if err != nil || len(filtered) != 1 {
		t.Fatalf("filtered: %+v %v", filtered, err)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(events[0].Payload), &payload); err != nil || payload["type"] != "PAYROLL" {
		t.Fatalf("payload %s: %v", events[0].Payload, err)
	}

	rec, err := a.RecordSnapshot(ctx, e, "test")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.ID == "" || rec.Balance != 8450 || rec.TS != "2025-02-01T00:00:00Z" || rec.RunwayHours == nil {
		t.Fatalf("record %+v", rec)
	}
	list, err := a.Repo.ListSnapshots(ctx, 5)
	if err != nil || len(list) != 1 || list[0].ID != rec.ID || list[0].Label != "test" {
		t.Fatalf("list %+v %v", list, err)
	}
	got, err := a.Repo.GetSnapshot(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(got.Payload, &doc); err != nil || doc["treasury"] == nil {
		t.Fatalf("payload: %v", err)
	}
	if _, err := a.Repo.GetSnapshot(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestArchiveEventsFollowCommitOrder(t *testing.T) {
	ctx := context.Background()
	a, err := app.OpenArchive(ctx, "", filepath.Join(t.TempDir(), "order.db"), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	e, err := app.NewEngine(config.Default(), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	a.Attach(e)

	const workers, pays = 4, 25
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < pays; j++ {
				if err := e.PayAgent("AGENT-101", 1, "stipend"); err != nil {
					t.Errorf("pay: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	events, err := a.Repo.LatestEvents(ctx, 500, engine.OpAgentPaid, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != workers*pays {
		t.Fatalf("events = %d", len(events))
	}
	// Newest first: balances rise as ids fall.
	for i := 1; i < len(events); i++ {
		if !(events[i].Balance > events[i-1].Balance) {
			t.Fatalf("event %d balance %v not above %v", events[i].ID, events[i].Balance, events[i-1].Balance)
		}
	}
	if events[0].Balance != 10000-workers*pays {
		t.Fatalf("latest balance %v", events[0].Balance)
	}
}

func TestArchiveReopenKeepsSchema(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		a, err := app.OpenArchive(ctx, dir, "", quietLogger())
		if err != nil {
			t.Fatalf("open #%d: %v", i, err)
		}
		if _, err := a.Repo.ListSnapshots(ctx, 1); err != nil {
			t.Fatalf("list #%d: %v", i, err)
		}
		a.Close()
	}
	if _, err := os.Stat(filepath.Join(dir, ".becoin", "becoin.db")); err != nil {
		t.Fatalf("db not created in workspace: %v", err)
	}
}
