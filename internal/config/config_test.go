package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"becoin/internal/config"
)

func TestDefaultTemplateIsValid(t *testing.T) {
	cfg := config.Default()
	if cfg.Treasury.StartCapital != 10000 || cfg.Treasury.BurnWindowHours != 72 {
		t.Fatalf("treasury %+v", cfg.Treasury)
	}
	if len(cfg.Agents) != 4 || len(cfg.Projects) != 2 {
		t.Fatalf("agents=%d projects=%d", len(cfg.Agents), len(cfg.Projects))
	}
	if cfg.BaselineBurn(1) != 120 {
		t.Fatalf("baseline = %v", cfg.BaselineBurn(1))
	}
	if len(cfg.Script) == 0 || cfg.Script[0].Op != "start" {
		t.Fatalf("script %+v", cfg.Script)
	}
}

func TestBaselineFallback(t *testing.T) {
	cfg, err := config.FromYAML([]byte("treasury:\n  start_capital: 5\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BaselineBurn(99) != 99 {
		t.Fatalf("fallback not used")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"negative capital":  "treasury:\n  start_capital: -1\n",
		"duplicate agent":   "agents:\n  - id: A\n  - id: A\n",
		"bad stage":         "projects:\n  - id: P\n    stage: archived\n",
		"bad status":        "agents:\n  - id: A\n    status: BUSY\n",
		"unknown op":        "script:\n  - op: launch\n",
		"unknown project":   "script:\n  - op: start\n    project: NOPE\n",
		"advance hours":     "script:\n  - op: advance\n",
		"pay agent":         "script:\n  - op: pay\n    amount: 5\n",
		"webhook url":       "dashboard:\n  webhooks:\n    - secret: x\n",
		"bad yaml":          "agents: [",
		"nan capital":       "treasury:\n  start_capital: .nan\n",
		"nan window":        "treasury:\n  burn_window_hours: .nan\n",
		"inf window":        "treasury:\n  burn_window_hours: .inf\n",
		"nan baseline":      "economy:\n  baseline_hourly_burn: .nan\n",
		"negative baseline": "economy:\n  baseline_hourly_burn: -1\n",
		"nan cost":          "projects:\n  - id: P\n    cost: .nan\n",
		"inf cost":          "projects:\n  - id: P\n    cost: .inf\n",
		"negative value":    "projects:\n  - id: P\n    value: -500\n",
		"nan value":         "projects:\n  - id: P\n    value: .nan\n",
		"nan hours":         "script:\n  - op: advance\n    hours: .nan\n",
	}
	for name, doc := range cases {
		if _, err := config.FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestZeroBurnWindowSelectsDefault(t *testing.T) {
	cfg, err := config.FromYAML([]byte("treasury:\n  start_capital: 100\n  burn_window_hours: 0\n"))
	if err != nil {
		t.Fatalf("zero window should be accepted: %v", err)
	}
	if cfg.Treasury.BurnWindowHours != 0 {
		t.Fatalf("window = %v", cfg.Treasury.BurnWindowHours)
	}
}

func TestLoadOptionalAndLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("missing file: cfg=%v err=%v", cfg, err)
	}
	if _, err := config.Load(dir); err == nil || !strings.Contains(err.Error(), "becoin init") {
		t.Fatalf("expected hint, got %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, config.FileName), []byte(config.GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Projects[0].ID != "PRJ-ALPHA" || len(cfg.Projects[0].Team) != 2 {
		t.Fatalf("projects %+v", cfg.Projects)
	}
}
