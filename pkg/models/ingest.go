// Package models holds the relational/domain types shared across the ingest
// and agents services: IngestJob, KnowledgeChunk, RBAC entities, audit log
// entries, and workflow execution state.
package models

import "time"

// SourceType enumerates the document formats the parser registry accepts.
type SourceType string

const (
	SourceTicketCSV SourceType = "ticket_csv"
	SourceWikiHTML  SourceType = "wiki_html"
	SourceWikiXML   SourceType = "wiki_xml"
	SourcePDF       SourceType = "pdf"
	SourceMarkdown  SourceType = "markdown"
	SourcePaste     SourceType = "paste"
	SourceCode      SourceType = "code"
	SourceDBSchema  SourceType = "db_schema"
	SourceZip       SourceType = "zip"
	SourceUnknown   SourceType = "unknown"
)

// Sensitivity classifies read access on a piece of ingested content.
type Sensitivity string

const (
	SensitivityPublic       Sensitivity = "public"
	SensitivityInternal     Sensitivity = "internal"
	SensitivityConfidential Sensitivity = "confidential"
	SensitivityRestricted   Sensitivity = "restricted"
)

// SensitivityPermission maps each sensitivity tier to the permission token
// required to read chunks at that tier. Public requires no permission.
var SensitivityPermission = map[Sensitivity]string{
	SensitivityPublic:       "",
	SensitivityInternal:     "data:view_sensitive",
	SensitivityConfidential: "data:view_confidential",
	SensitivityRestricted:   "data:view_restricted",
}

// Rank orders sensitivities from least to most restrictive, used to decide
// whether a caller's permission set covers a given chunk's tier.
func (s Sensitivity) Rank() int {
	switch s {
	case SensitivityPublic:
		return 0
	case SensitivityInternal:
		return 1
	case SensitivityConfidential:
		return 2
	case SensitivityRestricted:
		return 3
	default:
		return 99
	}
}

// JobStatus is the lifecycle state of an IngestJob.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// IngestJob is one submission through the ingestion pipeline.
type IngestJob struct {
	ID            string         `db:"id" json:"id"`
	SourceType    SourceType     `db:"source_type" json:"source_type"`
	Origin        string         `db:"origin" json:"origin"`
	Sensitivity   Sensitivity    `db:"sensitivity" json:"sensitivity"`
	Uploader      string         `db:"uploader" json:"uploader"`
	FilePointer   string         `db:"file_pointer" json:"file_pointer,omitempty"`
	ByteSize      int64          `db:"byte_size" json:"byte_size"`
	Metadata      JSONMap        `db:"metadata" json:"metadata,omitempty"`
	Status        JobStatus      `db:"status" json:"status"`
	ErrorMessage  *string        `db:"error_message" json:"error_message,omitempty"`
	ChunksCreated int            `db:"chunks_created" json:"chunks_created"`
	RetryCount    int            `db:"retry_count" json:"retry_count"`
	CreatedAt     time.Time      `db:"created_at" json:"created_at"`
	StartedAt     *time.Time     `db:"started_at" json:"started_at,omitempty"`
	CompletedAt   *time.Time     `db:"completed_at" json:"completed_at,omitempty"`
}

// CanRetry reports whether the job's current status permits a retry.
func (j *IngestJob) CanRetry() bool {
	return j.Status == JobFailed || j.Status == JobCompleted
}

// KnowledgeChunk is one semantic unit produced from an IngestJob (or
// manually indexed, in which case JobID is nil).
type KnowledgeChunk struct {
	ID             string      `db:"id" json:"id"`
	JobID          *string     `db:"job_id" json:"job_id,omitempty"`
	SourceType     SourceType  `db:"source_type" json:"source_type"`
	SourceLocation string      `db:"source_location" json:"source_location"`
	ChunkText      string      `db:"chunk_text" json:"chunk_text"`
	ChunkIndex     int         `db:"chunk_index" json:"chunk_index"`
	Metadata       JSONMap     `db:"metadata" json:"metadata,omitempty"`
	EmbeddingModel string      `db:"embedding_model" json:"embedding_model"`
	EmbeddingVersion string    `db:"embedding_version" json:"embedding_version"`
	VectorID       string      `db:"vector_id" json:"vector_id"`
	Sensitive      bool        `db:"sensitive" json:"sensitive"`
	Redacted       bool        `db:"redacted" json:"redacted"`
	PIITypes       StringSlice `db:"pii_types" json:"pii_types,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
}

// SensitivityTier reads the chunk's access tier out of its metadata, defaulting
// to internal when absent (fail toward the more restrictive side).
func (k *KnowledgeChunk) SensitivityTier() Sensitivity {
	if v, ok := k.Metadata["sensitivity"].(string); ok && v != "" {
		return Sensitivity(v)
	}
	return SensitivityInternal
}

// Origin reads the tenant tag out of chunk metadata.
func (k *KnowledgeChunk) Origin() string {
	if v, ok := k.Metadata["origin"].(string); ok {
		return v
	}
	return ""
}
