package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/models"
)

const synthesizerSystemPrompt = `You are the Synthesizer stage of an analyst-assist pipeline. Given the
original request, the Clarifier's questions and any user-supplied
answers, and supporting knowledge context, produce an as-is/to-be
document pair, a gap analysis, an implementation approach, and risks with
mitigations. Respond with ONLY a JSON object shaped as:
{
  "as_is_document": {"title": "...", "executive_summary": "...", "sections": [{"id": "...", "title": "...", "content": "...", "kind": "...", "order": 0}]},
  "to_be_document": {"title": "...", "executive_summary": "...", "sections": [...]},
  "gap_analysis": [{"area": "...", "current": "...", "future": "...", "impact": "..."}],
  "implementation_approach": "...",
  "risks_and_mitigation": [{"risk": "...", "mitigation": "...", "severity": "low|medium|high"}],
  "reasoning": "..."
}`

// SynthesizerStage produces the as-is/to-be documents and gap analysis
// that downstream Taskmaster/Verifier stages consume.
type SynthesizerStage struct{}

func (SynthesizerStage) Kind() models.StageKind { return models.StageSynthesizer }

// Run reads the Clarifier's output (if present in SharedData) plus any
// user answers, gathers further knowledge context, and parses the
// model's response into a models.SynthesizerOutput.
func (SynthesizerStage) Run(ctx context.Context, wfCtx *models.WorkflowContext, requestID string, identity models.Identity, collab Collaborators) (models.JSONMap, error) {
	var clarifierSummary string
	if raw, ok := wfCtx.SharedData[string(models.StageClarifier)]; ok {
		if b, err := json.Marshal(raw); err == nil {
			var prior models.ClarifierOutput
			if json.Unmarshal(b, &prior) == nil {
				clarifierSummary = prior.AnalysisSummary
			}
		}
	}

	var knowledgeExcerpt string
	if collab.Search != nil {
		results, err := collab.Search.Search(ctx, wfCtx.OriginalRequest, 8, 0.5, nil, identity)
		if err == nil {
			var b strings.Builder
			for _, r := range results {
				fmt.Fprintf(&b, "- %s\n", truncate(r.Chunk.ChunkText, 500))
			}
			knowledgeExcerpt = b.String()
		}
	}

	answers, _ := json.Marshal(wfCtx.Answers)

	userPrompt := fmt.Sprintf(
		"Original request:\n%s\n\nClarifier analysis:\n%s\n\nUser answers:\n%s\n\nKnowledge context:\n%s\n",
		wfCtx.OriginalRequest, clarifierSummary, string(answers), knowledgeExcerpt,
	)

	var out models.SynthesizerOutput
	if err := generateJSON(ctx, collab.LLM, synthesizerSystemPrompt, userPrompt, &out); err != nil {
		return nil, err
	}
	if out.ToBeDocument.Title == "" {
		return nil, apperrors.Wrap(apperrors.KindValidationFailed, "synthesizer: response missing to_be_document", nil)
	}

	confidence := synthesizerConfidence(out)
	out.StageOutputEnvelope = nowEnvelope(models.StageSynthesizer, requestID, confidence, out.Reasoning)

	return toMap(out)
}

// synthesizerConfidence rewards a document pair with non-trivial section
// counts and a gap analysis that actually names deltas, since an empty
// gap_analysis usually means the model didn't engage with the as-is
// state at all.
func synthesizerConfidence(out models.SynthesizerOutput) float64 {
	sectionScore := min(1.0, float64(len(out.AsIsDocument.Sections)+len(out.ToBeDocument.Sections))/6.0)
	gapScore := min(1.0, float64(len(out.GapAnalysis))/3.0)
	riskScore := 0.5
	if len(out.RisksAndMitigation) > 0 {
		riskScore = 1.0
	}
	return (sectionScore + gapScore + riskScore) / 3.0
}
