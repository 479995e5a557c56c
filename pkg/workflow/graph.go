// Package workflow drives a WorkflowExecution through its stage graph:
// retrieve_context, clarifier, synthesizer, taskmaster, verifier, with
// suspension at clarifier until answers arrive, per-stage timeouts and
// retries, an overall workflow deadline, and durable checkpointing after
// every stage via store.WorkflowRepo. It generalizes the teacher's
// pkg/agent/controller stage-sequencing loop from its fixed investigation
// pipeline to the five named graphs below.
package workflow

import (
	"github.com/analystcopilot/core/pkg/models"
)

// node is one stage slot in a graph. suspendIfNoAnswers marks the single
// conditional edge the engine understands: after this stage, if the
// execution has no user answers yet, the workflow suspends instead of
// advancing to the next node.
type node struct {
	stage              models.StageKind
	suspendIfNoAnswers bool
}

// graphs enumerates the five named stage graphs from §4.7. retrieve_context
// is a structural node handled by the engine directly (it populates
// shared_data from the search service) rather than by a pkg/stages.Stage,
// since it has no LLM call and no StageOutput payload of its own.
var graphs = map[models.WorkflowType][]node{
	models.WorkflowFull: {
		{stage: models.StageRetrieveContext},
		{stage: models.StageClarifier, suspendIfNoAnswers: true},
		{stage: models.StageSynthesizer},
		{stage: models.StageTaskmaster},
		{stage: models.StageVerifier},
	},
	models.WorkflowClarificationOnly: {
		{stage: models.StageRetrieveContext},
		{stage: models.StageClarifier},
	},
	models.WorkflowSynthesisOnly: {
		{stage: models.StageSynthesizer},
	},
	models.WorkflowTaskGeneration: {
		{stage: models.StageRetrieveContext},
		{stage: models.StageClarifier},
		{stage: models.StageSynthesizer},
		{stage: models.StageTaskmaster},
	},
	models.WorkflowVerificationOnly: {
		{stage: models.StageVerifier},
	},
}

// Graph returns the node sequence for wt, or nil if wt is not a known
// workflow type.
func Graph(wt models.WorkflowType) []node {
	g, ok := graphs[wt]
	if !ok {
		return nil
	}
	out := make([]node, len(g))
	copy(out, g)
	return out
}

// StepNames returns the ordered stage names a workflow_type will run,
// for callers (the jobs-create HTTP handler) that report steps_planned
// without needing the engine's unexported node type.
func StepNames(wt models.WorkflowType) []models.StageKind {
	g, ok := graphs[wt]
	if !ok {
		return nil
	}
	out := make([]models.StageKind, len(g))
	for i, n := range g {
		out[i] = n.stage
	}
	return out
}
