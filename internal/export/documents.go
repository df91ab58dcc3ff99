package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Document names used when the payload is split into separate files.
const (
	TreasuryDoc           = "treasury.json"
	AgentRosterDoc        = "agent-roster.json"
	ProjectsDoc           = "projects.json"
	ImpactLedgerDoc       = "impact-ledger.json"
	OrchestratorStatusDoc = "orchestrator-status.json"
)

// DocumentNames lists the documents in a stable order.
var DocumentNames = []string{TreasuryDoc, AgentRosterDoc, ProjectsDoc, ImpactLedgerDoc, OrchestratorStatusDoc}

// Documents splits p into its five independently consumable documents.
func Documents(p Payload) map[string]any {
	return map[string]any{
		TreasuryDoc:           p.Treasury,
		AgentRosterDoc:        p.AgentRoster,
		ProjectsDoc:           p.Projects,
		ImpactLedgerDoc:       p.ImpactLedger,
		OrchestratorStatusDoc: p.OrchestratorStatus,
	}
}

// WriteDir writes each document as indented JSON into dir, creating it if
// needed. Files are replaced via rename so readers never see a partial file.
func WriteDir(dir string, p Payload) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("export: ensure dir: %w", err)
	}
	docs := Documents(p)
	for _, name := range DocumentNames {
		data, err := json.MarshalIndent(docs[name], "", "  ")
		if err != nil {
			return fmt.Errorf("export: marshal %s: %w", name, err)
		}
		target := filepath.Join(dir, name)
		tmp := target + ".tmp"
		if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("export: write %s: %w", name, err)
		}
		if err := os.Rename(tmp, target); err != nil {
			return fmt.Errorf("export: replace %s: %w", name, err)
		}
	}
	return nil
}
