package models

import "time"

// WorkflowType selects which stage graph an execution runs.
type WorkflowType string

const (
	WorkflowFull               WorkflowType = "full"
	WorkflowClarificationOnly  WorkflowType = "clarification_only"
	WorkflowSynthesisOnly      WorkflowType = "synthesis_only"
	WorkflowTaskGeneration     WorkflowType = "task_generation"
	WorkflowVerificationOnly   WorkflowType = "verification_only"
)

// WorkflowStatus is the union of every status value the source's two
// overlapping enums used; see DESIGN.md Open Question resolution.
type WorkflowStatus string

const (
	WorkflowPending         WorkflowStatus = "pending"
	WorkflowRunning         WorkflowStatus = "running"
	WorkflowWaitingForInput WorkflowStatus = "waiting_for_input"
	WorkflowCompleted       WorkflowStatus = "completed"
	WorkflowFailed          WorkflowStatus = "failed"
	WorkflowCancelled       WorkflowStatus = "cancelled"
	WorkflowTimeout         WorkflowStatus = "timeout"
)

// StepStatus is the lifecycle of one WorkflowStep.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// StageKind names the four agent stages plus the graph's structural nodes.
type StageKind string

const (
	StageRetrieveContext StageKind = "retrieve_context"
	StageClarifier       StageKind = "clarifier"
	StageSynthesizer     StageKind = "synthesizer"
	StageTaskmaster      StageKind = "taskmaster"
	StageVerifier        StageKind = "verifier"
)

// WorkflowStep is one node's execution record within a WorkflowExecution.
type WorkflowStep struct {
	Name        StageKind  `json:"name"`
	Status      StepStatus `json:"status"`
	Input       JSONMap    `json:"input,omitempty"`
	Output      JSONMap    `json:"output,omitempty"`
	Attempt     int        `json:"attempt"`
	Error       string     `json:"error,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// WorkflowContext is the shared typed state threaded through every stage.
// SharedData accumulates each completed step's output keyed by stage name;
// a step's builder reads only the keys for stages that precede it in the
// topological order, enforcing the "never observes downstream output"
// invariant at the call site (pkg/workflow).
type WorkflowContext struct {
	OriginalRequest string         `json:"original_request"`
	Origin          string         `json:"origin,omitempty"`
	SharedData      map[string]any `json:"shared_data"`
	Answers         map[string]string `json:"answers,omitempty"`
}

// WorkflowExecution is one invocation of the agent pipeline.
type WorkflowExecution struct {
	ID           string            `db:"id" json:"id"`
	WorkflowType WorkflowType      `db:"workflow_type" json:"workflow_type"`
	Status       WorkflowStatus    `db:"status" json:"status"`
	UserID       string            `db:"user_id" json:"user_id"`
	Request      string            `db:"request" json:"request"`
	Context      WorkflowContextJSON `db:"context" json:"context"`
	Steps        WorkflowStepsJSON `db:"steps" json:"steps"`
	CurrentStep  int               `db:"current_step" json:"current_step"`
	Results      JSONMap           `db:"results" json:"results,omitempty"`
	ErrorMessage *string           `db:"error_message" json:"error_message,omitempty"`
	Priority     int               `db:"priority" json:"priority"`
	CreatedAt    time.Time         `db:"created_at" json:"created_at"`
	StartedAt    *time.Time        `db:"started_at" json:"started_at,omitempty"`
	CompletedAt  *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
}

// ConfidenceBand buckets a numeric confidence score for display.
func ConfidenceBand(confidence float64) string {
	switch {
	case confidence >= 0.85:
		return "high"
	case confidence >= 0.6:
		return "medium"
	default:
		return "low"
	}
}

// StageOutputEnvelope is the common envelope every stage-specific payload
// variant embeds, per the tagged-variant design in §3/§9.
type StageOutputEnvelope struct {
	StageKind      StageKind `json:"stage_kind"`
	RequestID      string    `json:"request_id"`
	Confidence     float64   `json:"confidence"`
	ConfidenceBand string    `json:"confidence_band"`
	Reasoning      string    `json:"reasoning"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// NewEnvelope builds an envelope with the confidence band derived
// automatically from the confidence score.
func NewEnvelope(kind StageKind, requestID string, confidence float64, reasoning string, generatedAt time.Time) StageOutputEnvelope {
	return StageOutputEnvelope{
		StageKind:      kind,
		RequestID:      requestID,
		Confidence:     confidence,
		ConfidenceBand: ConfidenceBand(confidence),
		Reasoning:      reasoning,
		GeneratedAt:    generatedAt,
	}
}
