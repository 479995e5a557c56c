package workflow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/models"
	"github.com/analystcopilot/core/pkg/stages"
	"github.com/analystcopilot/core/pkg/workflow"
)

type fakeStore struct {
	checkpoints []models.WorkflowExecution
}

func (s *fakeStore) Get(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	return nil, apperrors.NotFound
}

func (s *fakeStore) Checkpoint(ctx context.Context, w *models.WorkflowExecution) error {
	cp := *w
	cp.Steps = append([]models.WorkflowStep{}, w.Steps...)
	s.checkpoints = append(s.checkpoints, cp)
	return nil
}

type fakeStage struct {
	kind   models.StageKind
	output models.JSONMap
	err    error
}

func (f fakeStage) Kind() models.StageKind { return f.kind }

func (f fakeStage) Run(ctx context.Context, wfCtx *models.WorkflowContext, requestID string, identity models.Identity, collab stages.Collaborators) (models.JSONMap, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

func newExecution(wt models.WorkflowType, request string) *models.WorkflowExecution {
	return &models.WorkflowExecution{
		ID:           "wf-1",
		WorkflowType: wt,
		Context:      models.WorkflowContextJSON{OriginalRequest: request, SharedData: map[string]any{}},
	}
}

func TestEngineRunsClarificationOnlyGraphToCompletion(t *testing.T) {
	store := &fakeStore{}
	clarifier := fakeStage{kind: models.StageClarifier, output: models.JSONMap{"questions": []any{}}}
	eng := workflow.New(workflow.DefaultConfig(), store, stages.Collaborators{}, clarifier)

	exec := newExecution(models.WorkflowClarificationOnly, "do the thing")
	err := eng.Run(context.Background(), exec, models.Identity{})
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowCompleted, exec.Status)
	assert.NotEmpty(t, store.checkpoints)
}

func TestEngineSuspendsFullGraphAtClarifierWithoutAnswers(t *testing.T) {
	store := &fakeStore{}
	clarifier := fakeStage{kind: models.StageClarifier, output: models.JSONMap{"questions": []any{"q1"}}}
	synthesizer := fakeStage{kind: models.StageSynthesizer, output: models.JSONMap{}}
	eng := workflow.New(workflow.DefaultConfig(), store, stages.Collaborators{}, clarifier, synthesizer)

	exec := newExecution(models.WorkflowFull, "do the thing")
	err := eng.Run(context.Background(), exec, models.Identity{})
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowWaitingForInput, exec.Status)
	// suspended right after clarifier, before synthesizer runs
	assert.Len(t, exec.Steps, 2) // retrieve_context + clarifier
}

func TestEngineRunsFullGraphWhenAnswersAlreadySupplied(t *testing.T) {
	store := &fakeStore{}
	clarifier := fakeStage{kind: models.StageClarifier, output: models.JSONMap{"questions": []any{}}}
	synthesizer := fakeStage{kind: models.StageSynthesizer, output: models.JSONMap{"to_be_document": map[string]any{"title": "t"}}}
	taskmaster := fakeStage{kind: models.StageTaskmaster, output: models.JSONMap{"tasks": []any{}}}
	verifier := fakeStage{kind: models.StageVerifier, output: models.JSONMap{"approval_status": "approved"}}
	eng := workflow.New(workflow.DefaultConfig(), store, stages.Collaborators{}, clarifier, synthesizer, taskmaster, verifier)

	exec := newExecution(models.WorkflowFull, "do the thing")
	exec.Context.Answers = map[string]string{"q1": "yes"}

	err := eng.Run(context.Background(), exec, models.Identity{})
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowCompleted, exec.Status)
	assert.Len(t, exec.Steps, 5)
}

func TestEngineFailsWorkflowOnPermanentStageError(t *testing.T) {
	store := &fakeStore{}
	clarifier := fakeStage{kind: models.StageClarifier, err: apperrors.Wrap(apperrors.KindValidationFailed, "missing prerequisite", nil)}
	eng := workflow.New(workflow.DefaultConfig(), store, stages.Collaborators{}, clarifier)

	exec := newExecution(models.WorkflowClarificationOnly, "do the thing")
	err := eng.Run(context.Background(), exec, models.Identity{})
	require.NoError(t, err) // Run itself doesn't error; it records failure on the execution
	assert.Equal(t, models.WorkflowFailed, exec.Status)
	require.NotNil(t, exec.ErrorMessage)
}

func TestEngineRejectsUnknownWorkflowType(t *testing.T) {
	store := &fakeStore{}
	eng := workflow.New(workflow.DefaultConfig(), store, stages.Collaborators{})

	exec := newExecution(models.WorkflowType("bogus"), "x")
	err := eng.Run(context.Background(), exec, models.Identity{})
	assert.Error(t, err)
}
