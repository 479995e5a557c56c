package auditstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// Publisher persists and broadcasts events. Persistent events are stored
// in the stream_events table then broadcast via pg_notify in the same
// transaction; transient events are NOTIFYed only.
type Publisher struct {
	db *sqlx.DB
}

// NewPublisher builds a Publisher over an existing connection pool.
func NewPublisher(db *sqlx.DB) *Publisher {
	return &Publisher{db: db}
}

// PublishWorkflowStatus persists and broadcasts a workflow.status event on
// both the per-workflow channel and the global workflows channel.
func (p *Publisher) PublishWorkflowStatus(ctx context.Context, workflowID string, payload WorkflowStatusPayload) error {
	payload.EventType = EventTypeWorkflowStatus
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("auditstream: marshal workflow status: %w", err)
	}
	if err := p.persistAndNotify(ctx, WorkflowChannel(workflowID), body); err != nil {
		return err
	}
	return p.notifyOnly(ctx, GlobalWorkflowsChannel, body)
}

// PublishStageStatus persists and broadcasts a stage lifecycle transition.
func (p *Publisher) PublishStageStatus(ctx context.Context, workflowID string, payload StageStatusPayload) error {
	payload.EventType = EventTypeStageStatus
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("auditstream: marshal stage status: %w", err)
	}
	return p.persistAndNotify(ctx, WorkflowChannel(workflowID), body)
}

// PublishIngestJobStatus persists and broadcasts an ingest job's terminal
// status.
func (p *Publisher) PublishIngestJobStatus(ctx context.Context, jobID string, payload IngestJobStatusPayload) error {
	payload.EventType = EventTypeIngestJobDone
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("auditstream: marshal ingest job status: %w", err)
	}
	return p.persistAndNotify(ctx, IngestJobChannel(jobID), body)
}

// PublishIngestProgress broadcasts a transient progress tick for an
// in-flight ingest job, without DB persistence.
func (p *Publisher) PublishIngestProgress(ctx context.Context, jobID string, payload IngestProgressPayload) error {
	payload.EventType = EventTypeIngestProgress
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("auditstream: marshal ingest progress: %w", err)
	}
	return p.notifyOnly(ctx, IngestJobChannel(jobID), body)
}

// persistAndNotify inserts the event and issues pg_notify within one
// transaction, so the NOTIFY only fires if the INSERT commits.
func (p *Publisher) persistAndNotify(ctx context.Context, channel string, body []byte) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("auditstream: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var eventID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO stream_events (channel, payload, created_at) VALUES ($1, $2, $3) RETURNING id`,
		channel, body, time.Now(),
	).Scan(&eventID)
	if err != nil {
		return fmt.Errorf("auditstream: persist event: %w", err)
	}

	notifyBody, err := injectEventID(body, eventID)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, notifyBody); err != nil {
		return fmt.Errorf("auditstream: pg_notify: %w", err)
	}
	return tx.Commit()
}

// notifyOnly issues pg_notify without persisting, for transient events.
func (p *Publisher) notifyOnly(ctx context.Context, channel string, body []byte) error {
	if _, err := p.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", channel, string(body)); err != nil {
		return fmt.Errorf("auditstream: pg_notify: %w", err)
	}
	return nil
}

func injectEventID(body []byte, eventID int64) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return "", fmt.Errorf("auditstream: unmarshal for event id injection: %w", err)
	}
	m["db_event_id"] = eventID
	enriched, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("auditstream: marshal enriched payload: %w", err)
	}
	return string(enriched), nil
}
