package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"becoin/internal/app"
	"becoin/internal/config"
	"becoin/internal/engine"
	"becoin/internal/export"
	"becoin/internal/server"
	"becoin/internal/sim"
)

var rootCmd = &cobra.Command{
	Use:   "becoin",
	Short: "Becoin economy CLI",
	Long: `Becoin runs the internal economy of an agent company.
- Treasury: one shared balance with an append-only ledger; burn rate, runway and profit margin derive from it.
- Agents: founders and employees who earn from payouts and project bonuses.
- Projects: move pipeline -> active -> completed; starting debits cost, completing credits value and pays a 10% team bonus.
- Scenario: becoin.yml seeds the treasury, agents and projects and may script operations to replay.
- Dashboard: 'becoin serve' exposes the export documents over HTTP and a live websocket feed.
- Archive: with --archive, changes and snapshots are recorded in .becoin/becoin.db for 'becoin history' and 'becoin log tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BECOIN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.StringP("config", "c", "", "scenario file (default <workspace>/becoin.yml, else built-in)")
	flags.Bool("json", false, "output JSON")
	flags.BoolP("verbose", "v", false, "debug logging")
	flags.Bool("archive", false, "record changes and snapshots in the workspace archive")
	for _, name := range []string{"workspace", "config", "json", "verbose", "archive"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(tokenCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter becoin.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if err := os.MkdirAll(workspace, 0o755); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect the scenario config",
	}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the resolved config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, path, err := app.ResolveConfig(viper.GetString("workspace"), viper.GetString("config"))
			if err != nil {
				return err
			}
			if path == "" {
				path = "(built-in)"
			}
			return printJSON(map[string]any{"path": path, "config": c})
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the config",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, err := app.ResolveConfig(viper.GetString("workspace"), viper.GetString("config"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	return cfg
}

func simulateCmd() *cobra.Command {
	var (
		random bool
		steps  int
		seed   uint64
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay the scenario script, or a seeded random run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), false, func(ctx context.Context, rt *runtime) error {
				var (
					rep *sim.Report
					err error
				)
				if random {
					rep, err = sim.RunRandom(ctx, rt.engine, sim.RandomOptions{Steps: steps, Seed: seed}, rt.clock, rt.logger)
				} else {
					rep, err = sim.RunScript(ctx, rt.engine, rt.cfg.Script, rt.clock, rt.logger)
				}
				if err != nil {
					return err
				}
				if err := rt.finish(ctx, "simulate", outDir); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rep)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Steps", "Applied", "Insufficient funds", "Min balance", "Final balance"})
				tw.AppendRow(table.Row{rep.Steps, rep.Applied, rep.InsufficientFunds, fmt.Sprintf("%.2f", rep.MinBalance), fmt.Sprintf("%.2f", rep.FinalBalance)})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&random, "random", false, "run random operations instead of the script")
	cmd.Flags().IntVar(&steps, "steps", 200, "random steps")
	cmd.Flags().Uint64Var(&seed, "seed", 42, "random seed")
	cmd.Flags().StringVar(&outDir, "out", "", "write export documents to this directory")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show treasury, agents and projects after the scenario script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), true, func(ctx context.Context, rt *runtime) error {
				p := export.Build(rt.engine.Snapshot())
				if viper.GetBool("json") {
					return printJSON(p.OrchestratorStatus)
				}
				printStatus(p)
				return nil
			})
		},
	}
}

func exportCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the dashboard documents after the scenario script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), true, func(ctx context.Context, rt *runtime) error {
				if outDir == "" {
					return printJSON(export.Build(rt.engine.Snapshot()))
				}
				if err := rt.finish(ctx, "export", outDir); err != nil {
					return err
				}
				fmt.Println("exported to", outDir)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (prints the payload when empty)")
	return cmd
}

func serveCmd() *cobra.Command {
	var (
		addr, basePath string
		tick           time.Duration
		tickHours      float64
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API and live feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), true, func(ctx context.Context, rt *runtime) error {
				srvCfg := server.Config{
					Engine:   rt.engine,
					BasePath: basePath,
					Auth:     server.AuthConfig{JWTSecret: viper.GetString("jwt-secret")},
					Webhooks: rt.cfg.Dashboard.Webhooks,
					Logger:   rt.logger.With("component", "server"),
				}
				if rt.archive != nil {
					srvCfg.Archive = &rt.archive.Repo
				}
				dash, err := server.New(srvCfg)
				if err != nil {
					return err
				}
				ctx, cancel := context.WithCancel(ctx)
				defer cancel()
				go dash.Run(ctx)
				if tick > 0 {
					go runTicker(ctx, rt, tick, tickHours)
				}

				srv := &http.Server{Addr: addr, Handler: dash, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Becoin dashboard on http://%s%s (OpenAPI at %s/openapi.json, live feed at %s/ws)\n", addr, basePath, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().DurationVar(&tick, "tick", 0, "advance simulated time on this interval (0 disables)")
	cmd.Flags().Float64Var(&tickHours, "tick-hours", 1, "simulated hours per tick")
	cmd.Flags().String("jwt-secret", "", "HS256 secret; the API is open when empty")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

func runTicker(ctx context.Context, rt *runtime, every time.Duration, hours float64) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rt.clock.Advance(time.Duration(hours * float64(time.Hour)))
			if err := rt.engine.AdvanceTime(hours); err != nil {
				rt.logger.Warn("tick failed", "err", err)
			}
		}
	}
}

func historyCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd.Context(), func(ctx context.Context, a *app.Archive) error {
				items, err := a.Repo.ListSnapshots(ctx, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Time", "Label", "Balance", "Burn/h", "Runway h", "Margin %"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.TS, s.Label, fmt.Sprintf("%.2f", s.Balance), fmt.Sprintf("%.2f", s.BurnRate), formatRunway(s.RunwayHours), fmt.Sprintf("%.2f", s.ProfitMargin)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of snapshots")
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Inspect the archived change feed"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail recorded changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withArchive(cmd.Context(), func(ctx context.Context, a *app.Archive) error {
				events, err := a.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Amount", "Balance"})
				for _, e := range events {
					amount := ""
					if e.Amount != nil {
						amount = fmt.Sprintf("%.2f", *e.Amount)
					}
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, strings.TrimSuffix(e.EntityKind+":"+e.EntityID, ":"), amount, fmt.Sprintf("%.2f", e.Balance)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func tokenCmd() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a dashboard bearer token from BECOIN_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := server.IssueToken(viper.GetString("jwt-secret"), subject)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "dashboard", "token subject")
	return cmd
}

// --- helpers ---

type runtime struct {
	cfg     *config.Config
	engine  *engine.Engine
	clock   *sim.ManualClock
	archive *app.Archive
	logger  *slog.Logger
}

// finish records a snapshot when archiving and writes the export documents
// when outDir is set.
func (rt *runtime) finish(ctx context.Context, label, outDir string) error {
	if rt.archive != nil {
		rec, err := rt.archive.RecordSnapshot(ctx, rt.engine, label)
		if err != nil {
			return err
		}
		rt.logger.Info("snapshot archived", "id", rec.ID)
	}
	if outDir != "" {
		return export.WriteDir(outDir, export.Build(rt.engine.Snapshot()))
	}
	return nil
}

// withRuntime seeds an engine from the resolved config on a manual clock
// starting now. When replay is set the config script runs first.
func withRuntime(ctx context.Context, replay bool, fn func(context.Context, *runtime) error) error {
	logger := newLogger()
	cfg, path, err := app.ResolveConfig(viper.GetString("workspace"), viper.GetString("config"))
	if err != nil {
		return err
	}
	logger.Debug("config resolved", "path", path)
	rt := &runtime{cfg: cfg, clock: sim.NewManualClock(time.Now()), logger: logger}
	rt.engine, err = app.NewEngine(cfg, logger, engine.WithClock(rt.clock.Now))
	if err != nil {
		return err
	}
	if viper.GetBool("archive") {
		rt.archive, err = app.OpenArchive(ctx, viper.GetString("workspace"), "", logger)
		if err != nil {
			return err
		}
		defer rt.archive.Close()
		rt.archive.Attach(rt.engine)
	}
	if replay && len(cfg.Script) > 0 {
		if _, err := sim.RunScript(ctx, rt.engine, cfg.Script, rt.clock, logger); err != nil {
			return err
		}
	}
	return fn(ctx, rt)
}

func withArchive(ctx context.Context, fn func(context.Context, *app.Archive) error) error {
	a, err := app.OpenArchive(ctx, viper.GetString("workspace"), "", newLogger())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printStatus(p export.Payload) {
	m := p.Treasury.Metrics
	tw := newTable()
	tw.AppendHeader(table.Row{"Balance", "Start capital", "Burn/h", "Runway h", "Margin %", "Transactions"})
	tw.AppendRow(table.Row{fmt.Sprintf("%.2f", p.Treasury.Balance), fmt.Sprintf("%.2f", p.Treasury.StartCapital), fmt.Sprintf("%.2f", m.BurnRate), formatRunway(m.RunwayHours), fmt.Sprintf("%.2f", m.ProfitMargin), len(p.Treasury.Transactions)})
	tw.Render()

	tw = newTable()
	tw.AppendHeader(table.Row{"Agent", "Name", "Status", "Task", "Earned", "Completed"})
	for _, a := range p.OrchestratorStatus.Agents {
		task := ""
		if a.CurrentTask != nil {
			task = *a.CurrentTask
		}
		tw.AppendRow(table.Row{a.ID, a.Name, a.Status, task, fmt.Sprintf("%.2f", a.Performance.BecoinEarned), a.Performance.ProjectsCompleted})
	}
	tw.Render()

	tw = newTable()
	tw.AppendHeader(table.Row{"Project", "Name", "Stage", "Value", "Impact", "Team"})
	for _, group := range [][]export.Project{p.Projects.Active, p.Projects.Pipeline, p.Projects.Completed} {
		for _, pr := range group {
			tw.AppendRow(table.Row{pr.ID, pr.Name, pr.Stage, fmt.Sprintf("%.2f", pr.Value), pr.ImpactScore, strings.Join(pr.Team, ",")})
		}
	}
	tw.Render()
}

func formatRunway(h *float64) string {
	if h == nil {
		return "unbounded"
	}
	return fmt.Sprintf("%.2f", *h)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
