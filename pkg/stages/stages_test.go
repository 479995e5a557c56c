package stages_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/analystcopilot/core/pkg/llmclient"
	"github.com/analystcopilot/core/pkg/models"
	"github.com/analystcopilot/core/pkg/stages"
)

// sseServer responds to every chat-completions call with body as a single
// SSE data frame, mimicking the teacher's fake-provider test servers.
func sseServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		frame := fmt.Sprintf(`{"choices":[{"delta":{"content":%q},"finish_reason":"stop"}]}`, body)
		fmt.Fprintf(w, "data: %s\n\n", frame)
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, body string) *llmclient.Client {
	srv := sseServer(t, body)
	return llmclient.New(llmclient.Config{Endpoint: srv.URL, Model: "test-model"})
}

func TestClarifierStageRun(t *testing.T) {
	body := `{"questions":[{"id":"q1","text":"What is the target platform?","kind":"technical","importance":"high"}],"analysis_summary":"needs platform clarity","identified_gaps":["platform"],"assumptions":[],"reasoning":"missing platform detail"}`
	client := newClient(t, body)

	stage := stages.ClarifierStage{MaxQuestions: 5}
	wfCtx := &models.WorkflowContext{OriginalRequest: "Build a reporting dashboard for sales data across regions."}

	out, err := stage.Run(context.Background(), wfCtx, "req-1", models.Identity{}, stages.Collaborators{LLM: client})
	require.NoError(t, err)
	assert.Equal(t, string(models.StageClarifier), out["stage_kind"])
	questions, ok := out["questions"].([]any)
	require.True(t, ok)
	assert.Len(t, questions, 1)
}

func TestClarifierStageCapsQuestionCount(t *testing.T) {
	body := `{"questions":[{"id":"q1","text":"a"},{"id":"q2","text":"b"},{"id":"q3","text":"c"}],"analysis_summary":"s","reasoning":"r"}`
	client := newClient(t, body)

	stage := stages.ClarifierStage{MaxQuestions: 2}
	wfCtx := &models.WorkflowContext{OriginalRequest: "short request"}

	out, err := stage.Run(context.Background(), wfCtx, "req-2", models.Identity{}, stages.Collaborators{LLM: client})
	require.NoError(t, err)
	questions := out["questions"].([]any)
	assert.Len(t, questions, 2)
}

func TestSynthesizerStageRun(t *testing.T) {
	body := `{"as_is_document":{"title":"As-Is","executive_summary":"s","sections":[{"id":"s1","title":"t","content":"c","kind":"k","order":0}]},"to_be_document":{"title":"To-Be","executive_summary":"s","sections":[{"id":"s1","title":"t","content":"c","kind":"k","order":0}]},"gap_analysis":[{"area":"a","current":"c","future":"f","impact":"i"}],"implementation_approach":"phased","risks_and_mitigation":[{"risk":"r","mitigation":"m","severity":"low"}],"reasoning":"done"}`
	client := newClient(t, body)

	wfCtx := &models.WorkflowContext{OriginalRequest: "migrate billing to new provider", SharedData: map[string]any{}}
	out, err := stages.SynthesizerStage{}.Run(context.Background(), wfCtx, "req-3", models.Identity{}, stages.Collaborators{LLM: client})
	require.NoError(t, err)
	assert.Equal(t, string(models.StageSynthesizer), out["stage_kind"])
}

func TestSynthesizerStageRejectsMissingToBeDocument(t *testing.T) {
	body := `{"as_is_document":{"title":"As-Is"},"to_be_document":{},"reasoning":"r"}`
	client := newClient(t, body)

	wfCtx := &models.WorkflowContext{OriginalRequest: "x", SharedData: map[string]any{}}
	_, err := stages.SynthesizerStage{}.Run(context.Background(), wfCtx, "req-4", models.Identity{}, stages.Collaborators{LLM: client})
	assert.Error(t, err)
}

func TestTaskmasterStageRejectsMissingSynthesizerOutput(t *testing.T) {
	client := newClient(t, `{}`)
	wfCtx := &models.WorkflowContext{OriginalRequest: "x", SharedData: map[string]any{}}
	_, err := stages.TaskmasterStage{}.Run(context.Background(), wfCtx, "req-5", models.Identity{}, stages.Collaborators{LLM: client})
	assert.Error(t, err)
}

func TestTaskmasterStageRun(t *testing.T) {
	body := `{"tasks":[{"id":"t1","title":"Build API","description":"d","estimated_effort":"3d","priority":"high"}],"task_breakdown_summary":"s","implementation_phases":["phase1"],"resource_requirements":"2 engineers","timeline_estimate":"2 weeks","reasoning":"r"}`
	client := newClient(t, body)

	wfCtx := &models.WorkflowContext{
		OriginalRequest: "x",
		SharedData: map[string]any{
			string(models.StageSynthesizer): map[string]any{
				"to_be_document": map[string]any{"title": "To-Be", "executive_summary": "s", "sections": []any{}},
			},
		},
	}
	out, err := stages.TaskmasterStage{}.Run(context.Background(), wfCtx, "req-6", models.Identity{}, stages.Collaborators{LLM: client})
	require.NoError(t, err)
	tasks := out["tasks"].([]any)
	assert.Len(t, tasks, 1)
}

func TestVerifierStageDerivesApprovalStatus(t *testing.T) {
	body := `{"verification_checks":[{"name":"accuracy check","category":"accuracy","passed":false,"detail":"mismatch"}],"consistency_checks":[],"overall_validation":{"valid":false,"score":0.9},"recommendations":[],"flagged_issues":["mismatch"],"reasoning":"failed accuracy"}`
	client := newClient(t, body)

	wfCtx := &models.WorkflowContext{OriginalRequest: "x", SharedData: map[string]any{}}
	out, err := stages.VerifierStage{}.Run(context.Background(), wfCtx, "req-7", models.Identity{}, stages.Collaborators{LLM: client})
	require.NoError(t, err)
	// a failing accuracy check forces rejection regardless of the high score
	assert.Equal(t, string(models.ApprovalRejected), out["approval_status"])
}

func TestVerifierStageApprovesOnHighScoreNoFailures(t *testing.T) {
	body := `{"verification_checks":[{"name":"accuracy check","category":"accuracy","passed":true}],"consistency_checks":[],"overall_validation":{"valid":true,"score":0.95},"recommendations":[],"flagged_issues":[],"reasoning":"all good"}`
	client := newClient(t, body)

	wfCtx := &models.WorkflowContext{OriginalRequest: "x", SharedData: map[string]any{}}
	out, err := stages.VerifierStage{}.Run(context.Background(), wfCtx, "req-8", models.Identity{}, stages.Collaborators{LLM: client})
	require.NoError(t, err)
	assert.Equal(t, string(models.ApprovalApproved), out["approval_status"])
}
