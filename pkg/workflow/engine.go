package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/audit"
	"github.com/analystcopilot/core/pkg/models"
	"github.com/analystcopilot/core/pkg/resilience"
	"github.com/analystcopilot/core/pkg/search"
	"github.com/analystcopilot/core/pkg/stages"
)

// Config tunes per-stage and overall workflow timing, per §4.7's defaults.
type Config struct {
	PerStageTimeout   time.Duration
	WorkflowTimeout   time.Duration
	StageRetryConfig  resilience.RetryConfig
	MaxConcurrent     int
}

// DefaultConfig matches §4.7's documented defaults.
func DefaultConfig() Config {
	return Config{
		PerStageTimeout: 5 * time.Minute,
		WorkflowTimeout: 30 * time.Minute,
		StageRetryConfig: resilience.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    10 * time.Second,
		},
		MaxConcurrent: 10,
	}
}

// ExecutionStore is the subset of store.WorkflowRepo the engine needs.
type ExecutionStore interface {
	Get(ctx context.Context, id string) (*models.WorkflowExecution, error)
	Checkpoint(ctx context.Context, w *models.WorkflowExecution) error
}

// Engine drives WorkflowExecution records through their stage graph.
type Engine struct {
	cfg    Config
	store  ExecutionStore
	stages map[models.StageKind]stages.Stage
	search *search.Service
	audit  *audit.Chain
	llm    stages.Collaborators
	sem    chan struct{}
}

// New builds an Engine. collab.LLM/Search/Audit are threaded into every
// stage invocation; the four built-in stage implementations are wired
// automatically and need not appear in extra.
func New(cfg Config, store ExecutionStore, collab stages.Collaborators, extra ...stages.Stage) *Engine {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 10
	}
	reg := map[models.StageKind]stages.Stage{
		models.StageClarifier:   stages.ClarifierStage{MaxQuestions: 5},
		models.StageSynthesizer: stages.SynthesizerStage{},
		models.StageTaskmaster:  stages.TaskmasterStage{},
		models.StageVerifier:    stages.VerifierStage{},
	}
	for _, s := range extra {
		reg[s.Kind()] = s
	}
	return &Engine{
		cfg:    cfg,
		store:  store,
		stages: reg,
		search: collab.Search,
		audit:  collab.Audit,
		llm:    collab,
		sem:    make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Run drives w from its current step through the end of its graph (or
// until suspension, cancellation, or timeout), checkpointing after every
// stage. It blocks until the run ends one way or another; callers that
// want true concurrency across many workflows should call Run from
// separate goroutines, each gated by the engine's own semaphore.
func (e *Engine) Run(ctx context.Context, w *models.WorkflowExecution, identity models.Identity) error {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.sem }()

	graph := Graph(w.WorkflowType)
	if graph == nil {
		return apperrors.Wrap(apperrors.KindValidationFailed, "workflow: unknown workflow_type "+string(w.WorkflowType), nil)
	}

	deadline := time.Now().Add(e.cfg.WorkflowTimeout)
	if w.StartedAt != nil {
		deadline = w.StartedAt.Add(e.cfg.WorkflowTimeout)
	}
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	if w.Context.SharedData == nil {
		w.Context.SharedData = map[string]any{}
	}
	w.Status = models.WorkflowRunning

	for w.CurrentStep < len(graph) {
		select {
		case <-runCtx.Done():
			if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
				w.Status = models.WorkflowTimeout
			} else {
				w.Status = models.WorkflowCancelled
			}
			w.ErrorMessage = strPtr(runCtx.Err().Error())
			e.auditTransition(ctx, w)
			return e.checkpoint(ctx, w)
		default:
		}

		n := graph[w.CurrentStep]
		if err := e.runStage(runCtx, w, n, identity); err != nil {
			w.Status = models.WorkflowFailed
			w.ErrorMessage = strPtr(err.Error())
			e.auditTransition(ctx, w)
			return e.checkpoint(ctx, w)
		}
		w.CurrentStep++
		if err := e.checkpoint(ctx, w); err != nil {
			return err
		}

		if n.suspendIfNoAnswers && len(w.Context.Answers) == 0 {
			w.Status = models.WorkflowWaitingForInput
			return e.checkpoint(ctx, w)
		}
	}

	w.Status = models.WorkflowCompleted
	w.Results = w.Context.SharedData
	e.auditTransition(ctx, w)
	return e.checkpoint(ctx, w)
}

// auditTransition records the workflow's terminal status change in the
// audit chain, best-effort: a failure to append here must never mask the
// workflow's own outcome, so errors are only logged.
func (e *Engine) auditTransition(ctx context.Context, w *models.WorkflowExecution) {
	if e.audit == nil {
		return
	}
	userID := w.UserID
	resourceID := w.ID
	resourceType := "workflow_execution"
	_, err := e.audit.Append(ctx, audit.Entry{
		Action:       "workflow." + string(w.Status),
		UserID:       &userID,
		ResourceType: &resourceType,
		ResourceID:   &resourceID,
		Details:      models.JSONMap{"workflow_type": string(w.WorkflowType), "current_step": w.CurrentStep},
		Severity:     models.SeverityLow,
	})
	if err != nil {
		slog.Error("failed to audit workflow transition", "workflow_id", w.ID, "error", err)
	}
}

// runStage executes one graph node: builds its step record, invokes the
// stage (or the structural retrieve_context node) with a per-stage
// deadline and retry policy, and on success stores its output in
// shared_data.
func (e *Engine) runStage(ctx context.Context, w *models.WorkflowExecution, n node, identity models.Identity) error {
	started := time.Now()
	step := models.WorkflowStep{Name: n.stage, Status: models.StepRunning, StartedAt: &started}
	w.Steps = append(w.Steps, step)
	idx := len(w.Steps) - 1

	var output models.JSONMap
	err := resilience.Do(ctx, e.cfg.StageRetryConfig, func(ctx context.Context) error {
		w.Steps[idx].Attempt++
		stageCtx, cancel := context.WithTimeout(ctx, e.cfg.PerStageTimeout)
		defer cancel()

		out, runErr := e.invoke(stageCtx, n.stage, w, identity)
		if runErr == nil {
			output = out
			return nil
		}
		if isTransient(runErr) {
			return resilience.Retryable(runErr)
		}
		return runErr
	})

	completed := time.Now()
	w.Steps[idx].CompletedAt = &completed
	if err != nil {
		w.Steps[idx].Status = models.StepFailed
		w.Steps[idx].Error = err.Error()
		return fmt.Errorf("stage %s: %w", n.stage, err)
	}

	w.Steps[idx].Status = models.StepCompleted
	w.Steps[idx].Output = output
	w.Context.SharedData[string(n.stage)] = map[string]any(output)
	return nil
}

func (e *Engine) invoke(ctx context.Context, kind models.StageKind, w *models.WorkflowExecution, identity models.Identity) (models.JSONMap, error) {
	if kind == models.StageRetrieveContext {
		return e.retrieveContext(ctx, w, identity)
	}
	stage, ok := e.stages[kind]
	if !ok {
		return nil, apperrors.Wrap(apperrors.KindValidationFailed, "workflow: no stage registered for "+string(kind), nil)
	}
	wfCtx := models.WorkflowContext(w.Context)
	out, runErr := stage.Run(ctx, &wfCtx, w.ID, identity, e.llm)
	w.Context = models.WorkflowContextJSON(wfCtx)
	return out, runErr
}

// retrieveContext is the structural first node: it runs a broad search
// over the original request and records the hit count in shared_data. The
// clarifier does not read this count: its confidence heuristic uses the
// results of its own search, with its own query construction.
func (e *Engine) retrieveContext(ctx context.Context, w *models.WorkflowExecution, identity models.Identity) (models.JSONMap, error) {
	if e.search == nil {
		return models.JSONMap{"hits": 0}, nil
	}
	results, err := e.search.Search(ctx, w.Context.OriginalRequest, 10, 0.5, nil, identity)
	if err != nil {
		slog.Warn("retrieve_context search failed, proceeding without grounding", "workflow_id", w.ID, "error", err)
		return models.JSONMap{"hits": 0}, nil
	}
	return models.JSONMap{"hits": len(results)}, nil
}

func (e *Engine) checkpoint(ctx context.Context, w *models.WorkflowExecution) error {
	if err := e.store.Checkpoint(ctx, w); err != nil {
		return fmt.Errorf("workflow: checkpointing: %w", err)
	}
	return nil
}

// isTransient matches §4.7's "transient stage errors (LLM timeout,
// upstream 5xx)" against the dependency_error kind; everything else
// (schema mismatch, missing prerequisite) fails the workflow immediately.
func isTransient(err error) bool {
	return errors.Is(err, apperrors.Dependency)
}

func strPtr(s string) *string { return &s }
