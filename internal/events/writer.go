package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"becoin/internal/engine"
)

// Writer appends engine changes to the events table.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append stores one change. tx may be nil.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, c engine.Change) error {
	ts := c.At
	if ts.IsZero() {
		now := w.Now
		if now == nil {
			now = time.Now
		}
		ts = now()
	}
	payload := EventPayload{}
	var amount any
	if c.Entry != nil {
		amount = c.Entry.Amount
		payload["type"] = string(c.Entry.Kind)
		payload["description"] = c.Entry.Description
		if len(c.Entry.Metadata) > 0 {
			payload["metadata"] = c.Entry.Metadata
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	const q = `INSERT INTO events(ts,type,entity_kind,entity_id,amount,balance,payload_json) VALUES (?,?,?,?,?,?,?)`
	args := []any{ts.UTC().Format(time.RFC3339Nano), c.Op, c.EntityKind, nullable(c.EntityID), amount, c.Balance, string(data)}
	if tx != nil {
		_, err = tx.ExecContext(ctx, q, args...)
	} else {
		_, err = w.DB.ExecContext(ctx, q, args...)
	}
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
