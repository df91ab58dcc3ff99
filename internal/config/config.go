package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const FileName = "becoin.yml"

// Config models becoin.yml.
type Config struct {
	Treasury struct {
		StartCapital    float64 `yaml:"start_capital"`
		// BurnWindowHours of 0 selects the 72h default.
		BurnWindowHours float64 `yaml:"burn_window_hours"`
	} `yaml:"treasury"`
	Economy struct {
		BaselineHourlyBurn *float64 `yaml:"baseline_hourly_burn"`
	} `yaml:"economy"`
	Agents    []AgentConfig   `yaml:"agents"`
	Projects  []ProjectConfig `yaml:"projects"`
	Script    []Step          `yaml:"script"`
	Dashboard struct {
		Webhooks []WebhookConfig `yaml:"webhooks"`
	} `yaml:"dashboard"`
}

type AgentConfig struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	Role        string  `yaml:"role"`
	Status      string  `yaml:"status"`
	EquityShare float64 `yaml:"equity_share"`
	Founder     bool    `yaml:"founder"`
}

type ProjectConfig struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Stage       string   `yaml:"stage"`
	Cost        float64  `yaml:"cost"`
	Value       float64  `yaml:"value"`
	ImpactScore int      `yaml:"impact_score"`
	Team        []string `yaml:"team"`
}

// Step is one scripted engine call.
type Step struct {
	Op      string  `yaml:"op"`
	Project string  `yaml:"project,omitempty"`
	Agent   string  `yaml:"agent,omitempty"`
	Amount  float64 `yaml:"amount,omitempty"`
	Reason  string  `yaml:"reason,omitempty"`
	Hours   float64 `yaml:"hours,omitempty"`
}

type WebhookConfig struct {
	URL            string `yaml:"url"`
	Secret         string `yaml:"secret,omitempty"`
	Enabled        *bool  `yaml:"enabled,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty"`
}

var (
	validStages   = map[string]bool{"pipeline": true, "paused": true, "active": true, "completed": true}
	validStatuses = map[string]bool{"IDLE": true, "ACTIVE": true}
	validOps      = map[string]bool{"start": true, "complete": true, "pay": true, "advance": true}
)

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if !nonNegative(c.Treasury.StartCapital) {
		return fmt.Errorf("config.treasury.start_capital must be finite and not negative")
	}
	if !nonNegative(c.Treasury.BurnWindowHours) {
		return fmt.Errorf("config.treasury.burn_window_hours must be finite and not negative (0 selects the 72h default)")
	}
	if b := c.Economy.BaselineHourlyBurn; b != nil && !nonNegative(*b) {
		return fmt.Errorf("config.economy.baseline_hourly_burn must be finite and not negative")
	}
	agents := make(map[string]bool, len(c.Agents))
	for i, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("agents[%d].id is required", i)
		}
		if agents[a.ID] {
			return fmt.Errorf("agent id %s is duplicated", a.ID)
		}
		agents[a.ID] = true
		if a.Status != "" && !validStatuses[a.Status] {
			return fmt.Errorf("agent %s has unknown status %s", a.ID, a.Status)
		}
	}
	projects := make(map[string]bool, len(c.Projects))
	for i, p := range c.Projects {
		if p.ID == "" {
			return fmt.Errorf("projects[%d].id is required", i)
		}
		if projects[p.ID] {
			return fmt.Errorf("project id %s is duplicated", p.ID)
		}
		projects[p.ID] = true
		if p.Stage != "" && !validStages[p.Stage] {
			return fmt.Errorf("project %s has unknown stage %s", p.ID, p.Stage)
		}
		if !nonNegative(p.Cost) || !nonNegative(p.Value) {
			return fmt.Errorf("project %s cost and value must be finite and not negative", p.ID)
		}
	}
	for i, s := range c.Script {
		if !validOps[s.Op] {
			return fmt.Errorf("script[%d] has unknown op %q", i, s.Op)
		}
		switch s.Op {
		case "start", "complete":
			if !projects[s.Project] {
				return fmt.Errorf("script[%d] references unknown project %q", i, s.Project)
			}
		case "pay":
			if s.Agent == "" {
				return fmt.Errorf("script[%d] pay requires agent", i)
			}
		case "advance":
			if !(s.Hours > 0) || math.IsInf(s.Hours, 1) {
				return fmt.Errorf("script[%d] advance requires positive hours", i)
			}
		}
	}
	for i, hook := range c.Dashboard.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("dashboard.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// nonNegative rejects NaN, +Inf and values below zero.
func nonNegative(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with becoin init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the built-in scenario.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// BaselineBurn returns the configured baseline or fallback when unset.
func (c *Config) BaselineBurn(fallback float64) float64 {
	if c.Economy.BaselineHourlyBurn == nil {
		return fallback
	}
	return *c.Economy.BaselineHourlyBurn
}

const defaultTemplate = `treasury:
  start_capital: 10000
  burn_window_hours: 72

economy:
  baseline_hourly_burn: 120

agents:
  - id: AGENT-001
    name: CEO-Sales
    role: Revenue Strategist
    equity_share: 0.4
    founder: true
  - id: AGENT-002
    name: CTO-Engineer
    role: Platform Engineer
    equity_share: 0.35
    founder: true
  - id: AGENT-003
    name: CDO-Design
    role: Product Designer
    equity_share: 0.25
    founder: true
  - id: AGENT-101
    name: Ops Analyst
    role: Operations
    equity_share: 0
    founder: false

projects:
  - id: PRJ-ALPHA
    name: Enterprise Outreach
    stage: pipeline
    cost: 1500
    value: 3500
    impact_score: 72
    team: [AGENT-001, AGENT-101]
  - id: PRJ-BETA
    name: Automation Toolkit
    stage: pipeline
    cost: 2200
    value: 6200
    impact_score: 88
    team: [AGENT-002, AGENT-003]

script:
  - op: start
    project: PRJ-ALPHA
  - op: advance
    hours: 24
  - op: complete
    project: PRJ-ALPHA
  - op: pay
    agent: AGENT-101
    amount: 250
    reason: Weekly stipend
  - op: start
    project: PRJ-BETA
`
