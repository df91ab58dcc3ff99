package becoinsdk_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"becoin/internal/app"
	"becoin/internal/config"
	"becoin/internal/engine"
	"becoin/internal/server"
	becoinsdk "becoin/sdk/go"
)

func newServer(t *testing.T, secret string) (*engine.Engine, *httptest.Server) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	e, err := app.NewEngine(config.Default(), logger, engine.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatal(err)
	}
	srv, err := server.New(server.Config{Engine: e, Logger: logger, Auth: server.AuthConfig{JWTSecret: secret}})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go srv.Run(ctx)
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return e, ts
}

func TestClientReadsDashboard(t *testing.T) {
	e, ts := newServer(t, "")
	if err := e.StartProject("PRJ-ALPHA"); err != nil {
		t.Fatal(err)
	}
	c := becoinsdk.New(ts.URL + "/")
	ctx := context.Background()

	if err := c.Health(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}
	st, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Balance != 8500 || st.ActiveProjects != 1 || st.RunwayHours == nil {
		t.Fatalf("status %+v", st)
	}
	tr, err := c.Treasury(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Transactions) != 1 || tr.Transactions[0].Type != "PROJECT_COST" || tr.Transactions[0].Amount != -1500 {
		t.Fatalf("treasury %+v", tr)
	}
	snap, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.OrchestratorStatus.LastUpdate != "2025-06-01T09:30:00Z" || len(snap.Projects.Active) != 1 {
		t.Fatalf("snapshot %+v", snap.OrchestratorStatus)
	}
	roster, err := c.AgentRoster(ctx)
	if err != nil || len(roster.Founders) != 3 || len(roster.Employees) != 1 {
		t.Fatalf("roster %+v %v", roster, err)
	}

	_, err = c.Snapshots(ctx, 5)
	var apiErr *becoinsdk.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 api error, got %v", err)
	}
}

func TestClientBearerToken(t *testing.T) {
	const secret = "sdk-secret"
	_, ts := newServer(t, secret)
	c := becoinsdk.New(ts.URL)
	var apiErr *becoinsdk.APIError
	if _, err := c.Treasury(context.Background()); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	token, err := server.IssueToken(secret, "sdk")
	if err != nil {
		t.Fatal(err)
	}
	c.BearerToken = token
	if _, err := c.Treasury(context.Background()); err != nil {
		t.Fatalf("authorized: %v", err)
	}
}

func TestWatchStreamsUpdates(t *testing.T) {
	const secret = "watch-secret"
	e, ts := newServer(t, secret)
	token, _ := server.IssueToken(secret, "watcher")
	c := becoinsdk.New(ts.URL)
	c.BearerToken = token

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errDone := errors.New("done")
	var types []string
	err := c.Watch(ctx, func(u becoinsdk.Update) error {
		types = append(types, u.Type)
		if u.Type == "connection_established" {
			return nil
		}
		if u.Data != nil && u.Data.Treasury.Balance == 10000 {
			return e.PayAgent("AGENT-101", 40, "stipend")
		}
		if u.Data != nil && u.Data.Treasury.Balance == 9960 {
			return errDone
		}
		return nil
	})
	if !errors.Is(err, errDone) {
		t.Fatalf("watch: %v (types %v)", err, types)
	}
	if types[0] != "connection_established" || types[1] != "snapshot" {
		t.Fatalf("types %v", types)
	}
}
