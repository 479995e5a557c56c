package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// WorkflowRepo persists models.WorkflowExecution rows, including the
// checkpoint state (Context/Steps/CurrentStep) that lets a suspended
// workflow (waiting_for_input) resume after a process restart.
type WorkflowRepo struct {
	db *sqlx.DB
}

// NewWorkflowRepo constructs a WorkflowRepo.
func NewWorkflowRepo(db *sqlx.DB) *WorkflowRepo { return &WorkflowRepo{db: db} }

// Create inserts a new execution in pending status.
func (r *WorkflowRepo) Create(ctx context.Context, w *models.WorkflowExecution) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if w.Status == "" {
		w.Status = models.WorkflowPending
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO workflow_executions (id, workflow_type, status, user_id, request, context, steps, priority)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		w.ID, w.WorkflowType, w.Status, w.UserID, w.Request, w.Context, w.Steps, w.Priority)
	if err != nil {
		return fmt.Errorf("inserting workflow execution: %w", err)
	}
	return nil
}

// Get fetches an execution by ID.
func (r *WorkflowRepo) Get(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	var w models.WorkflowExecution
	err := r.db.GetContext(ctx, &w, `SELECT * FROM workflow_executions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching workflow execution: %w", err)
	}
	return &w, nil
}

// Checkpoint persists the engine's current progress through the stage
// graph: updated context (SharedData/Answers), step records, current step
// index, and status. Called after every stage completes so a crash resumes
// from the last completed stage instead of restarting the workflow.
func (r *WorkflowRepo) Checkpoint(ctx context.Context, w *models.WorkflowExecution) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE workflow_executions
		SET status = $2, context = $3, steps = $4, current_step = $5,
		    results = $6, error_message = $7,
		    started_at = COALESCE(started_at, CASE WHEN $2 != 'pending' THEN now() END),
		    completed_at = CASE WHEN $2 IN ('completed','failed','cancelled','timeout') THEN now() ELSE completed_at END
		WHERE id = $1`,
		w.ID, w.Status, w.Context, w.Steps, w.CurrentStep, w.Results, w.ErrorMessage)
	if err != nil {
		return fmt.Errorf("checkpointing workflow execution: %w", err)
	}
	return nil
}

// ListByStatus returns executions in a status, oldest first (used to find
// waiting_for_input executions to resume, or running ones to reap after a
// crash).
func (r *WorkflowRepo) ListByStatus(ctx context.Context, status models.WorkflowStatus, limit int) ([]*models.WorkflowExecution, error) {
	var out []*models.WorkflowExecution
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM workflow_executions WHERE status = $1 ORDER BY created_at ASC LIMIT $2`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("listing workflow executions: %w", err)
	}
	return out, nil
}

// WorkflowFilter narrows ListFiltered to a caller's executions and/or a
// status, with pagination.
type WorkflowFilter struct {
	UserID string // empty means any user
	Status models.WorkflowStatus
	Skip   int
	Limit  int
}

// ListFiltered paginates executions matching filter, newest first.
func (r *WorkflowRepo) ListFiltered(ctx context.Context, filter WorkflowFilter) ([]*models.WorkflowExecution, error) {
	query := `SELECT * FROM workflow_executions WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.UserID != "" {
		query += " AND user_id = " + arg(filter.UserID)
	}
	if filter.Status != "" {
		query += " AND status = " + arg(filter.Status)
	}
	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT " + arg(limit) + " OFFSET " + arg(filter.Skip)

	var out []*models.WorkflowExecution
	if err := r.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("listing workflow executions: %w", err)
	}
	return out, nil
}

// ListByUser returns a user's executions, newest first.
func (r *WorkflowRepo) ListByUser(ctx context.Context, userID string, limit int) ([]*models.WorkflowExecution, error) {
	var out []*models.WorkflowExecution
	err := r.db.SelectContext(ctx, &out, `
		SELECT * FROM workflow_executions WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing workflow executions by user: %w", err)
	}
	return out, nil
}
