package models

import "time"

// Severity classifies an audit entry's importance.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AuditLogEntry is one immutable node in the hash-linked audit chain.
// Hash is computed over the canonical JSON encoding of every field below
// except Hash itself, plus PreviousHash; see pkg/audit for the algorithm.
type AuditLogEntry struct {
	ID           int64     `db:"id" json:"id"`
	Action       string    `db:"action" json:"action"`
	UserID       *string   `db:"user_id" json:"user_id,omitempty"`
	ResourceType *string   `db:"resource_type" json:"resource_type,omitempty"`
	ResourceID   *string   `db:"resource_id" json:"resource_id,omitempty"`
	Details      JSONMap   `db:"details" json:"details,omitempty"`
	Severity     Severity  `db:"severity" json:"severity"`
	ClientOrigin string    `db:"client_origin" json:"client_origin,omitempty"`
	ClientAgent  string    `db:"client_agent" json:"client_agent,omitempty"`
	Hash         string    `db:"hash" json:"hash"`
	PreviousHash *string   `db:"previous_hash" json:"previous_hash,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Well-known audit actions referenced by multiple components.
const (
	ActionIngestComplete    = "ingest.complete"
	ActionIngestFail        = "ingest.fail"
	ActionSecurityViolation = "security.violation"
	ActionSearchQuery       = "search.query"
	ActionAuthLogin         = "auth.login"
	ActionAuthLogout        = "auth.logout"
	ActionWorkflowCreate    = "workflow.create"
	ActionWorkflowComplete  = "workflow.complete"
	ActionWorkflowAnswers   = "workflow.answers_submitted"
)

// VerifyResult is the outcome of walking the chain and recomputing hashes.
type VerifyResult struct {
	Valid    bool            `json:"valid"`
	Total    int             `json:"total"`
	Verified int             `json:"verified"`
	Errors   []VerifyMismatch `json:"errors,omitempty"`
}

// VerifyMismatch records a single detected break in the chain.
type VerifyMismatch struct {
	EntryID int64  `json:"entry_id"`
	Reason  string `json:"reason"`
}
