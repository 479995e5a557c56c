// Package audit implements the immutable hash-linked audit log described in
// §4.9: every privileged action, knowledge access, and PII operation is
// appended as a node whose hash covers its own fields plus the previous
// entry's hash, making any single-field tamper detectable at that entry or
// its successor.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/models"
	"github.com/google/uuid"
)

// Store is the persistence seam the chain depends on. pkg/store provides
// the Postgres-backed implementation; tests may use an in-memory fake.
type Store interface {
	LastEntry(ctx context.Context) (*models.AuditLogEntry, error)
	Insert(ctx context.Context, entry *models.AuditLogEntry) error
	List(ctx context.Context, limit int) ([]*models.AuditLogEntry, error)
}

// Chain appends audit entries and verifies the hash chain's integrity.
type Chain struct {
	store Store
}

// New builds a Chain backed by the given store.
func New(store Store) *Chain {
	return &Chain{store: store}
}

// Entry captures the caller-supplied fields of a new audit entry; ID, Hash,
// PreviousHash, and CreatedAt are filled in by Append.
type Entry struct {
	Action       string
	UserID       *string
	ResourceType *string
	ResourceID   *string
	Details      models.JSONMap
	Severity     models.Severity
	ClientOrigin string
	ClientAgent  string
}

// canonical is the subset of fields hashed, in a fixed key order, matching
// the field order documented in §3's AuditLogEntry invariant.
type canonical struct {
	Action       string         `json:"action"`
	UserID       *string        `json:"user_id"`
	ResourceType *string        `json:"resource_type"`
	ResourceID   *string        `json:"resource_id"`
	Details      models.JSONMap `json:"details"`
	Severity     models.Severity `json:"severity"`
	ClientOrigin string         `json:"client_origin"`
	ClientAgent  string         `json:"client_agent"`
	CreatedAt    string         `json:"created_at"`
	PreviousHash string         `json:"previous_hash"`
}

func computeHash(e *models.AuditLogEntry) (string, error) {
	prev := ""
	if e.PreviousHash != nil {
		prev = *e.PreviousHash
	}
	c := canonical{
		Action:       e.Action,
		UserID:       e.UserID,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Details:      e.Details,
		Severity:     e.Severity,
		ClientOrigin: e.ClientOrigin,
		ClientAgent:  e.ClientAgent,
		CreatedAt:    e.CreatedAt.UTC().Format(time.RFC3339Nano),
		PreviousHash: prev,
	}
	// json.Marshal on a struct with fixed field order produces stable,
	// insignificant-whitespace-free output — the canonicalization this
	// invariant requires, without reaching for a third-party canonical-JSON
	// library no example in the pack carries.
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Append writes a new entry onto the chain, computing its hash from the
// previous entry's hash (nil for genesis). Callers that need the audited
// operation and the audit write in one transaction should use a
// transaction-scoped Store; otherwise the insert happens immediately after.
func (c *Chain) Append(ctx context.Context, e Entry) (*models.AuditLogEntry, error) {
	prevEntry, err := c.store.LastEntry(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDependency, "audit: load last entry", err)
	}

	entry := &models.AuditLogEntry{
		ID:           0, // assigned by the store on insert
		Action:       e.Action,
		UserID:       e.UserID,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Details:      e.Details,
		Severity:     e.Severity,
		ClientOrigin: e.ClientOrigin,
		ClientAgent:  e.ClientAgent,
		CreatedAt:    time.Now().UTC(),
	}
	if prevEntry != nil {
		entry.PreviousHash = &prevEntry.Hash
	}

	hash, err := computeHash(entry)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindPersistentInternal, "audit: compute hash", err)
	}
	entry.Hash = hash

	if err := c.store.Insert(ctx, entry); err != nil {
		return nil, apperrors.Wrap(apperrors.KindDependency, "audit: insert entry", err)
	}
	return entry, nil
}

// RequestContext carries the HTTP-layer fields an entry is built from,
// decoupling pkg/httpapi from pkg/audit's Entry shape.
type RequestContext struct {
	UserID      string
	ClientIP    string
	UserAgent   string
}

// NewID generates an identifier suitable for resource IDs referenced by an
// audit entry (jobs, chunks, workflows) — grouped here so every caller uses
// the same generator.
func NewID() string { return uuid.NewString() }

// VerifyChain walks the chain in insertion order, recomputing each entry's
// hash and checking previous_hash linkage, per §4.9's verify_chain.
func (c *Chain) VerifyChain(ctx context.Context, limit int) (*models.VerifyResult, error) {
	entries, err := c.store.List(ctx, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindDependency, "audit: list entries", err)
	}

	result := &models.VerifyResult{Total: len(entries)}
	var prevHash *string
	for _, e := range entries {
		mismatchFound := false

		recomputed, err := computeHash(e)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.KindPersistentInternal, "audit: recompute hash", err)
		}
		if recomputed != e.Hash {
			result.Errors = append(result.Errors, models.VerifyMismatch{
				EntryID: e.ID,
				Reason:  "hash mismatch: recomputed hash does not match stored hash",
			})
			mismatchFound = true
		}

		if prevHash != nil {
			wantPrev := *prevHash
			gotPrev := ""
			if e.PreviousHash != nil {
				gotPrev = *e.PreviousHash
			}
			if gotPrev != wantPrev {
				result.Errors = append(result.Errors, models.VerifyMismatch{
					EntryID: e.ID,
					Reason:  fmt.Sprintf("chain break: previous_hash %q does not match prior entry hash %q", gotPrev, wantPrev),
				})
				mismatchFound = true
			}
		} else if e.PreviousHash != nil {
			result.Errors = append(result.Errors, models.VerifyMismatch{
				EntryID: e.ID,
				Reason:  "genesis entry unexpectedly carries a previous_hash",
			})
			mismatchFound = true
		}

		if !mismatchFound {
			result.Verified++
		}
		h := e.Hash
		prevHash = &h
	}

	result.Valid = len(result.Errors) == 0
	return result, nil
}
