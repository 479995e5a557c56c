package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/models"
)

const taskmasterSystemPrompt = `You are the Taskmaster stage of an analyst-assist pipeline. Given a
to-be document and its gap analysis, break the work down into concrete
developer tasks. Respond with ONLY a JSON object shaped as:
{
  "tasks": [{"id": "...", "title": "...", "description": "...", "user_stories": ["..."], "technical_notes": ["..."], "estimated_effort": "...", "priority": "low|medium|high|critical", "dependencies": ["..."], "labels": ["..."], "epic": "..."}],
  "task_breakdown_summary": "...",
  "implementation_phases": ["..."],
  "resource_requirements": "...",
  "timeline_estimate": "...",
  "reasoning": "..."
}`

// TaskmasterStage breaks the Synthesizer's to-be document into discrete
// developer tasks. Per §4.8 it must reject input that lacks a to-be
// document rather than invent one.
type TaskmasterStage struct{}

func (TaskmasterStage) Kind() models.StageKind { return models.StageTaskmaster }

func (TaskmasterStage) Run(ctx context.Context, wfCtx *models.WorkflowContext, requestID string, identity models.Identity, collab Collaborators) (models.JSONMap, error) {
	raw, ok := wfCtx.SharedData[string(models.StageSynthesizer)]
	if !ok {
		return nil, apperrors.Wrap(apperrors.KindValidationFailed, "taskmaster: no synthesizer output in shared data", nil)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("taskmaster: re-marshaling synthesizer output: %w", err)
	}
	var synth models.SynthesizerOutput
	if err := json.Unmarshal(b, &synth); err != nil {
		return nil, fmt.Errorf("taskmaster: parsing synthesizer output: %w", err)
	}
	if synth.ToBeDocument.Title == "" {
		return nil, apperrors.Wrap(apperrors.KindValidationFailed, "taskmaster: synthesizer output is missing to_be_document", nil)
	}

	toBeJSON, _ := json.Marshal(synth.ToBeDocument)
	gapJSON, _ := json.Marshal(synth.GapAnalysis)

	userPrompt := fmt.Sprintf(
		"To-be document:\n%s\n\nGap analysis:\n%s\n\nImplementation approach:\n%s\n",
		string(toBeJSON), string(gapJSON), synth.ImplementationApproach,
	)

	var out models.TaskmasterOutput
	if err := generateJSON(ctx, collab.LLM, taskmasterSystemPrompt, userPrompt, &out); err != nil {
		return nil, err
	}

	confidence := taskmasterConfidence(out)
	out.StageOutputEnvelope = nowEnvelope(models.StageTaskmaster, requestID, confidence, out.Reasoning)

	return toMap(out)
}

// taskmasterConfidence rewards a non-trivial task list where every task
// carries an estimate and priority, since a list of bare titles with no
// estimation data isn't actionable for planning.
func taskmasterConfidence(out models.TaskmasterOutput) float64 {
	if len(out.Tasks) == 0 {
		return 0
	}
	complete := 0
	for _, t := range out.Tasks {
		if t.EstimatedEffort != "" && t.Priority != "" {
			complete++
		}
	}
	countScore := min(1.0, float64(len(out.Tasks))/5.0)
	completeness := float64(complete) / float64(len(out.Tasks))
	return (countScore + completeness) / 2.0
}
