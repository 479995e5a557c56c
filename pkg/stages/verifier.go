package stages

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/analystcopilot/core/pkg/models"
)

const verifierSystemPrompt = `You are the Verifier stage of an analyst-assist pipeline. Given the
to-be document, gap analysis, and generated tasks, run accuracy,
feasibility, and compliance checks plus cross-stage consistency checks.
Respond with ONLY a JSON object shaped as:
{
  "verification_checks": [{"name": "...", "category": "accuracy|feasibility|compliance|other", "passed": true, "detail": "..."}],
  "consistency_checks": [{"name": "...", "category": "other", "passed": true, "detail": "..."}],
  "overall_validation": {"valid": true, "errors": ["..."], "warnings": ["..."], "score": 0.9},
  "recommendations": ["..."],
  "flagged_issues": ["..."],
  "reasoning": "..."
}
Do not set approval_status yourself; it is derived deterministically from
your checks and score.`

// VerifierStage runs the final validation pass over the synthesized
// document and generated tasks, deriving approval_status deterministically
// from the model's own check results rather than trusting a model-chosen
// disposition (§4.8).
type VerifierStage struct{}

func (VerifierStage) Kind() models.StageKind { return models.StageVerifier }

func (VerifierStage) Run(ctx context.Context, wfCtx *models.WorkflowContext, requestID string, identity models.Identity, collab Collaborators) (models.JSONMap, error) {
	synthRaw := wfCtx.SharedData[string(models.StageSynthesizer)]
	taskRaw := wfCtx.SharedData[string(models.StageTaskmaster)]
	synthJSON, _ := json.Marshal(synthRaw)
	taskJSON, _ := json.Marshal(taskRaw)

	userPrompt := fmt.Sprintf(
		"Synthesized document and gap analysis:\n%s\n\nGenerated tasks:\n%s\n",
		string(synthJSON), string(taskJSON),
	)

	var out models.VerifierOutput
	if err := generateJSON(ctx, collab.LLM, verifierSystemPrompt, userPrompt, &out); err != nil {
		return nil, err
	}

	allChecks := append(append([]models.VerificationCheck{}, out.VerificationChecks...), out.ConsistencyChecks...)
	out.ApprovalStatus = models.DeriveApprovalStatus(allChecks, out.OverallValidation.Score)

	confidence := out.OverallValidation.Score
	out.StageOutputEnvelope = nowEnvelope(models.StageVerifier, requestID, confidence, out.Reasoning)

	return toMap(out)
}
