package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"becoin/internal/export"
)

// Repo is the write-mostly archive of exported snapshots and engine events.
// The engine never reads from it.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

type SnapshotRecord struct {
	ID           string          `json:"id"`
	TS           string          `json:"ts"`
	Balance      float64         `json:"balance"`
	BurnRate     float64         `json:"burn_rate"`
	RunwayHours  *float64        `json:"runway_hours"`
	ProfitMargin float64         `json:"profit_margin"`
	Label        string          `json:"label,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

type EventRecord struct {
	ID         int64    `json:"id"`
	TS         string   `json:"ts"`
	Type       string   `json:"type"`
	EntityKind string   `json:"entity_kind"`
	EntityID   string   `json:"entity_id,omitempty"`
	Amount     *float64 `json:"amount"`
	Balance    float64  `json:"balance"`
	Payload    string   `json:"payload"`
}

// RecordSnapshot stores p under a fresh id and returns the stored row
// without its payload.
func (r Repo) RecordSnapshot(ctx context.Context, p export.Payload, label string) (SnapshotRecord, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	m := p.Treasury.Metrics
	rec := SnapshotRecord{
		ID:           uuid.NewString(),
		TS:           p.OrchestratorStatus.LastUpdate,
		Balance:      p.Treasury.Balance,
		BurnRate:     m.BurnRate,
		RunwayHours:  m.RunwayHours,
		ProfitMargin: m.ProfitMargin,
		Label:        label,
	}
	if rec.TS == "" {
		rec.TS = export.Timestamp(time.Now())
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO snapshots(id,ts,balance,burn_rate,runway_hours,profit_margin,label,payload_json) VALUES (?,?,?,?,?,?,?,?)`,
		rec.ID, rec.TS, rec.Balance, rec.BurnRate, nullableFloat(rec.RunwayHours), rec.ProfitMargin, nullable(label), string(data))
	if err != nil {
		return SnapshotRecord{}, fmt.Errorf("insert snapshot: %w", err)
	}
	return rec, nil
}

// ListSnapshots returns the newest snapshots first, without payloads.
func (r Repo) ListSnapshots(ctx context.Context, limit int) ([]SnapshotRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,balance,burn_rate,runway_hours,profit_margin,COALESCE(label,'') FROM snapshots ORDER BY ts DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []SnapshotRecord
	for rows.Next() {
		var s SnapshotRecord
		var runway sql.NullFloat64
		if err := rows.Scan(&s.ID, &s.TS, &s.Balance, &s.BurnRate, &runway, &s.ProfitMargin, &s.Label); err != nil {
			return nil, err
		}
		if runway.Valid {
			v := runway.Float64
			s.RunwayHours = &v
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// GetSnapshot loads one snapshot including its payload.
func (r Repo) GetSnapshot(ctx context.Context, id string) (SnapshotRecord, error) {
	var s SnapshotRecord
	var runway sql.NullFloat64
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT id,ts,balance,burn_rate,runway_hours,profit_margin,COALESCE(label,''),payload_json FROM snapshots WHERE id=?`, id).
		Scan(&s.ID, &s.TS, &s.Balance, &s.BurnRate, &runway, &s.ProfitMargin, &s.Label, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if runway.Valid {
		v := runway.Float64
		s.RunwayHours = &v
	}
	s.Payload = json.RawMessage(payload)
	return s, nil
}

// LatestEvents returns the newest events first, optionally filtered.
func (r Repo) LatestEvents(ctx context.Context, limit int, evtType, entityKind, entityID string) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	clauses := []string{"1=1"}
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),amount,balance,payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []EventRecord
	for rows.Next() {
		var e EventRecord
		var amount sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &amount, &e.Balance, &e.Payload); err != nil {
			return nil, err
		}
		if amount.Valid {
			v := amount.Float64
			e.Amount = &v
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
