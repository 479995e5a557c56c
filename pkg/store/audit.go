package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/analystcopilot/core/pkg/models"
	"github.com/jmoiron/sqlx"
)

// AuditRepo implements pkg/audit.Store against Postgres. The hash-linked
// audit log is append-only: no Update or Delete method exists here by
// design, matching the immutability invariant in §4.9.
type AuditRepo struct {
	db *sqlx.DB
}

// NewAuditRepo constructs an AuditRepo.
func NewAuditRepo(db *sqlx.DB) *AuditRepo { return &AuditRepo{db: db} }

// LastEntry returns the most recently inserted entry, or nil if the chain
// is empty (genesis case).
func (r *AuditRepo) LastEntry(ctx context.Context) (*models.AuditLogEntry, error) {
	var e models.AuditLogEntry
	err := r.db.GetContext(ctx, &e, `SELECT * FROM audit_log ORDER BY id DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching last audit entry: %w", err)
	}
	return &e, nil
}

// Insert appends a new entry, assigning its serial ID.
func (r *AuditRepo) Insert(ctx context.Context, entry *models.AuditLogEntry) error {
	if entry.Details == nil {
		entry.Details = models.JSONMap{}
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO audit_log
			(action, user_id, resource_type, resource_id, details, severity, client_origin, client_agent, hash, previous_hash, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id`,
		entry.Action, entry.UserID, entry.ResourceType, entry.ResourceID, entry.Details,
		entry.Severity, entry.ClientOrigin, entry.ClientAgent, entry.Hash, entry.PreviousHash, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// List returns up to limit entries in insertion (ID ascending) order, the
// order VerifyChain walks in.
func (r *AuditRepo) List(ctx context.Context, limit int) ([]*models.AuditLogEntry, error) {
	var entries []*models.AuditLogEntry
	err := r.db.SelectContext(ctx, &entries, `SELECT * FROM audit_log ORDER BY id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	return entries, nil
}

// ListByResource returns entries referencing a specific resource, newest
// first, for audit views scoped to one job/workflow/chunk.
func (r *AuditRepo) ListByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]*models.AuditLogEntry, error) {
	var entries []*models.AuditLogEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT * FROM audit_log WHERE resource_type = $1 AND resource_id = $2
		ORDER BY id DESC LIMIT $3`, resourceType, resourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries by resource: %w", err)
	}
	return entries, nil
}
