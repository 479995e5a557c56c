package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/analystcopilot/core/pkg/auditstream"
	"github.com/jmoiron/sqlx"
)

// StreamEventRepo implements auditstream.CatchupQuerier against the
// stream_events table, so a reconnecting WebSocket client can retrieve
// events it missed while disconnected.
type StreamEventRepo struct {
	db *sqlx.DB
}

// NewStreamEventRepo constructs a StreamEventRepo.
func NewStreamEventRepo(db *sqlx.DB) *StreamEventRepo { return &StreamEventRepo{db: db} }

type streamEventRow struct {
	ID      int64  `db:"id"`
	Payload []byte `db:"payload"`
}

// GetCatchupEvents returns up to limit events on channel with ID greater
// than sinceID, oldest first.
func (r *StreamEventRepo) GetCatchupEvents(ctx context.Context, channel string, sinceID int64, limit int) ([]auditstream.CatchupEvent, error) {
	var rows []streamEventRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, payload FROM stream_events
		WHERE channel = $1 AND id > $2
		ORDER BY id ASC LIMIT $3`, channel, sinceID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: catchup query for channel %s: %w", channel, err)
	}

	events := make([]auditstream.CatchupEvent, 0, len(rows))
	for _, row := range rows {
		var payload map[string]any
		if err := json.Unmarshal(row.Payload, &payload); err != nil {
			continue
		}
		events = append(events, auditstream.CatchupEvent{ID: row.ID, Payload: payload})
	}
	return events, nil
}
