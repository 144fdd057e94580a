// Package events appends to the append-only audit stream. Every mutation in
// the ledger and persona lifecycle writes an event row in the same
// transaction as the change it describes, so the stream and the state it
// narrates cannot diverge.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

// EventPayload is the free-form detail blob stored as payload_json.
type EventPayload map[string]any

// Append writes one event inside the caller's transaction. eventType is a
// dotted name like "activity.recorded" or "persona.created"; projectID and
// entityID may be empty and are stored as NULL.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, eventType, projectID, entityKind, entityID, actorID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		now().UTC().Format(time.RFC3339), eventType, orNull(projectID), entityKind, orNull(entityID), actorID, string(data))
	return err
}

func orNull(v string) any {
	if v == "" {
		return nil
	}
	return v
}
