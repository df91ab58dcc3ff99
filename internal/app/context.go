package app

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"becoin/internal/config"
	"becoin/internal/domain"
	"becoin/internal/engine"
	"becoin/internal/treasury"
)

// ResolveConfig picks the scenario config: an explicit path wins, then the
// workspace becoin.yml, then the built-in default.
func ResolveConfig(workspace, path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.FromFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("load config %s: %w", path, err)
		}
		return cfg, path, nil
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, "", err
	}
	if cfg != nil {
		return cfg, config.Path(workspace), nil
	}
	return config.Default(), "", nil
}

// NewEngine seeds an engine from cfg. Extra options are applied after the
// config-derived ones.
func NewEngine(cfg *config.Config, logger *slog.Logger, opts ...engine.Option) (*engine.Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	window := time.Duration(cfg.Treasury.BurnWindowHours * float64(time.Hour))
	t := treasury.New(cfg.Treasury.StartCapital, window)

	agents := make([]domain.Agent, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		agents = append(agents, domain.Agent{
			ID:          a.ID,
			Name:        a.Name,
			Role:        a.Role,
			Status:      domain.AgentStatus(strings.ToUpper(a.Status)),
			EquityShare: a.EquityShare,
			Founder:     a.Founder,
		})
	}
	projects := make([]domain.Project, 0, len(cfg.Projects))
	for _, p := range cfg.Projects {
		projects = append(projects, domain.Project{
			ID:          p.ID,
			Name:        p.Name,
			Stage:       domain.Stage(strings.ToLower(p.Stage)),
			Cost:        p.Cost,
			Value:       p.Value,
			ImpactScore: p.ImpactScore,
			Team:        append([]string(nil), p.Team...),
		})
	}

	base := []engine.Option{
		engine.WithBaselineBurn(cfg.BaselineBurn(engine.DefaultBaselineHourlyBurn)),
		engine.WithLogger(logger.With("component", "engine")),
	}
	e, err := engine.New(t, agents, projects, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("seed engine: %w", err)
	}
	logger.Info("engine ready", "agents", len(agents), "projects", len(projects), "start_capital", cfg.Treasury.StartCapital)
	return e, nil
}
