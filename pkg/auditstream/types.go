// Package auditstream delivers real-time workflow and ingest-job events to
// WebSocket clients via PostgreSQL NOTIFY/LISTEN for cross-pod fan-out,
// grounded on the teacher's pkg/events package.
package auditstream

// Persistent event types (stored in the stream_events table and NOTIFYed).
const (
	EventTypeWorkflowStatus = "workflow.status"
	EventTypeStageStatus    = "workflow.stage_status"
	EventTypeIngestJobDone  = "ingest_job.status"
)

// Transient event types (NOTIFY only, not persisted).
const (
	EventTypeIngestProgress = "ingest_job.progress"
)

// Stage lifecycle status values, mirrored from models.StepStatus for the
// wire payload.
const (
	StageStatusStarted   = "started"
	StageStatusCompleted = "completed"
	StageStatusFailed    = "failed"
	StageStatusSuspended = "waiting_for_input"
)

// GlobalWorkflowsChannel carries transient status summaries for the
// workflow list/dashboard view.
const GlobalWorkflowsChannel = "workflows"

// WorkflowChannel returns the per-execution channel name.
func WorkflowChannel(workflowID string) string {
	return "workflow:" + workflowID
}

// IngestJobChannel returns the per-job channel name.
func IngestJobChannel(jobID string) string {
	return "ingest_job:" + jobID
}

// ClientMessage is the JSON shape of client -> server WebSocket frames.
type ClientMessage struct {
	Action      string `json:"action"`
	Channel     string `json:"channel,omitempty"`
	LastEventID *int   `json:"last_event_id,omitempty"`
}

// WorkflowStatusPayload reports a workflow execution's terminal or
// suspended transition.
type WorkflowStatusPayload struct {
	EventType    string `json:"type"`
	WorkflowID   string `json:"workflow_id"`
	Status       string `json:"status"`
	CurrentStage string `json:"current_stage,omitempty"`
}

// StageStatusPayload reports one stage's lifecycle transition within a
// workflow execution.
type StageStatusPayload struct {
	EventType  string `json:"type"`
	WorkflowID string `json:"workflow_id"`
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// IngestJobStatusPayload reports an ingest job's terminal status.
type IngestJobStatusPayload struct {
	EventType   string `json:"type"`
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	ChunksCount int    `json:"chunks_count,omitempty"`
	Error       string `json:"error,omitempty"`
}

// IngestProgressPayload reports an in-flight ingest job's progress tick.
type IngestProgressPayload struct {
	EventType       string `json:"type"`
	JobID           string `json:"job_id"`
	ProcessedChunks int    `json:"processed_chunks"`
	TotalChunks     int    `json:"total_chunks"`
}
