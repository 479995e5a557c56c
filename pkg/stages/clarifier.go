package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/analystcopilot/core/pkg/models"
)

const clarifierSystemPrompt = `You are the Clarifier stage of an analyst-assist pipeline. Given a raw
change request and any supporting knowledge context, identify the
requirements, constraints, and stakeholders that are still ambiguous.
Respond with ONLY a JSON object shaped as:
{
  "questions": [{"id": "...", "text": "...", "kind": "requirement|constraint|scope|stakeholder|technical|business|timeline|integration|data|security", "importance": "critical|high|medium|low", "suggested_answers": ["..."], "context": "..."}],
  "analysis_summary": "...",
  "identified_gaps": ["..."],
  "assumptions": ["..."],
  "reasoning": "..."
}`

// ClarifierStage raises clarifying questions on the original request,
// grounded in whatever knowledge context the search service surfaces.
type ClarifierStage struct {
	MaxQuestions int
}

func (ClarifierStage) Kind() models.StageKind { return models.StageClarifier }

// Run builds the clarifier prompt from wfCtx.OriginalRequest plus a
// knowledge-context excerpt pulled from the search service, then parses
// the model's response into a models.ClarifierOutput.
func (s ClarifierStage) Run(ctx context.Context, wfCtx *models.WorkflowContext, requestID string, identity models.Identity, collab Collaborators) (models.JSONMap, error) {
	maxQ := s.MaxQuestions
	if maxQ <= 0 {
		maxQ = 5
	}

	var knowledgeExcerpt string
	var knowledgeHits int
	if collab.Search != nil {
		results, err := collab.Search.Search(ctx, wfCtx.OriginalRequest, 5, 0.6, nil, identity)
		if err == nil {
			knowledgeHits = len(results)
			var b strings.Builder
			for _, r := range results {
				fmt.Fprintf(&b, "- %s\n", truncate(r.Chunk.ChunkText, 400))
			}
			knowledgeExcerpt = b.String()
		}
	}

	userPrompt := fmt.Sprintf(
		"Original request:\n%s\n\nKnowledge context (%d excerpts found):\n%s\nRaise at most %d clarifying questions, ordered by importance.",
		wfCtx.OriginalRequest, knowledgeHits, knowledgeExcerpt, maxQ,
	)

	var out models.ClarifierOutput
	if err := generateJSON(ctx, collab.LLM, clarifierSystemPrompt, userPrompt, &out); err != nil {
		return nil, err
	}
	if len(out.Questions) > maxQ {
		out.Questions = out.Questions[:maxQ]
	}

	confidence := clarifierConfidence(wfCtx, out, knowledgeHits, maxQ)
	out.StageOutputEnvelope = nowEnvelope(models.StageClarifier, requestID, confidence, out.Reasoning)

	return toMap(out)
}

// clarifierConfidence blends four signals per §4.8: how specific the raw
// request reads, whether knowledge context was found to ground the
// analysis, how many open questions remain relative to the cap, and
// whether the request carries any domain/business context at all. Each
// signal contributes equally; a request with no ambiguity left and solid
// grounding lands near 1.0, a vague request with no context found lands
// low.
func clarifierConfidence(wfCtx *models.WorkflowContext, out models.ClarifierOutput, knowledgeHits, maxQuestions int) float64 {
	clarity := requestClarity(wfCtx.OriginalRequest)

	grounding := 0.0
	if knowledgeHits > 0 {
		grounding = min(1.0, float64(knowledgeHits)/3.0)
	}

	remaining := 1.0 - float64(len(out.Questions))/float64(maxQuestions)
	if remaining < 0 {
		remaining = 0
	}

	domainContext := 0.0
	if wfCtx.Origin != "" {
		domainContext = 1.0
	}

	return (clarity + grounding + remaining + domainContext) / 4.0
}

// requestClarity is a cheap heuristic: longer, more structured requests
// (multiple sentences, explicit nouns) read as clearer than a one-line
// request with no punctuation.
func requestClarity(request string) float64 {
	words := len(strings.Fields(request))
	sentences := strings.Count(request, ".") + strings.Count(request, "!") + strings.Count(request, "?")
	score := 0.3
	if words >= 15 {
		score += 0.3
	}
	if words >= 40 {
		score += 0.2
	}
	if sentences >= 2 {
		score += 0.2
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
