// Package stages implements the four agent stages in §4.8: Clarifier,
// Synthesizer, Taskmaster, Verifier. Every stage shares the same shape
// (stage_input, collaborators) -> StageOutput, invokes the LLM with a
// stage-specific system prompt, and expects a JSON payload matching its
// declared schema back; a parse failure triggers one reformatting retry
// before the stage gives up, mirroring the teacher's controller retry
// shape in pkg/agent (structured-output parsing with a single corrective
// follow-up turn).
package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/audit"
	"github.com/analystcopilot/core/pkg/llmclient"
	"github.com/analystcopilot/core/pkg/models"
	"github.com/analystcopilot/core/pkg/search"
)

// Collaborators bundles the dependencies every stage is allowed to use,
// per §4.8's "(stage_input, collaborators)" shape.
type Collaborators struct {
	LLM    *llmclient.Client
	Search *search.Service
	Audit  *audit.Chain
}

// Stage is implemented by each of the four agent stages.
type Stage interface {
	Kind() models.StageKind
	Run(ctx context.Context, wfCtx *models.WorkflowContext, requestID string, identity models.Identity, collab Collaborators) (models.JSONMap, error)
}

// reformatRetries is the number of corrective follow-up turns attempted
// when the model's response fails to parse as the expected JSON shape.
const reformatRetries = 1

// generateJSON invokes the LLM with systemPrompt/userPrompt, parses the
// response into out (a pointer to the stage's output struct), and retries
// once with an explicit reformatting instruction if parsing fails.
func generateJSON(ctx context.Context, llm *llmclient.Client, systemPrompt, userPrompt string, out any) error {
	messages := []llmclient.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	}

	var lastErr error
	for attempt := 0; attempt <= reformatRetries; attempt++ {
		resp, err := llm.Generate(ctx, llmclient.GenerateRequest{Messages: messages})
		if err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(extractJSON(resp.Content)), out); err == nil {
			return nil
		} else {
			lastErr = err
		}
		messages = append(messages,
			llmclient.Message{Role: "assistant", Content: resp.Content},
			llmclient.Message{Role: "user", Content: "That response was not valid JSON matching the required schema. Reply with ONLY the JSON object, no commentary."},
		)
	}
	return apperrors.Wrap(apperrors.KindValidationFailed, "stage: model did not return parseable JSON after retry", lastErr)
}

// extractJSON trims a leading/trailing code fence some models wrap JSON
// responses in despite instructions not to.
func extractJSON(s string) string {
	start := -1
	for i, r := range s {
		if r == '{' || r == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return s
	}
	end := -1
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '}' || s[i] == ']' {
			end = i
			break
		}
	}
	if end < start {
		return s
	}
	return s[start : end+1]
}

// toMap round-trips a stage output struct through JSON into a
// models.JSONMap, the shape shared_data and persisted Results columns use.
func toMap(v any) (models.JSONMap, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("stages: marshaling output: %w", err)
	}
	var m models.JSONMap
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("stages: remarshaling output: %w", err)
	}
	return m, nil
}

func nowEnvelope(kind models.StageKind, requestID string, confidence float64, reasoning string) models.StageOutputEnvelope {
	return models.NewEnvelope(kind, requestID, confidence, reasoning, time.Now())
}
