package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/models"
	"github.com/analystcopilot/core/pkg/store"
	"github.com/analystcopilot/core/pkg/workflow"
)

type agentsHandlers struct {
	deps *Dependencies
}

// NewAgentsRouter builds the Agents Service's gin engine: workflow job
// create/list/get/answers/results, per §6's Agents Service endpoint table.
func NewAgentsRouter(deps *Dependencies, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), securityHeaders(), requestLogger(), corsMiddleware(cfg.AllowedOrigins))
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps))
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	registerHealthRoutes(r, deps)

	h := &agentsHandlers{deps: deps}
	jobs := r.Group("/api/v1/jobs")
	jobs.Use(authMiddleware(deps), rateLimitMiddleware(deps))
	jobs.POST("", requirePermission(models.PermWorkflowCreate), h.create)
	jobs.GET("", h.list)
	jobs.GET("/:id", h.get)
	jobs.POST("/:id/answers", h.answers)
	jobs.GET("/:id/results", h.results)

	return r
}

type createJobRequest struct {
	WorkflowType models.WorkflowType `json:"workflow_type" binding:"required"`
	UserRequest  string              `json:"user_request" binding:"required"`
	Priority     int                 `json:"priority"`
	Context      map[string]any      `json:"context"`
	Metadata     map[string]any      `json:"metadata"`
	Origin       string              `json:"origin"`
}

// create handles POST /api/v1/jobs: persists a pending WorkflowExecution
// and drives it in the background, mirroring the teacher's
// go s.processSession(sess) fire-and-forget pattern in pkg/api/handlers.go.
func (h *agentsHandlers) create(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		writeError(c, apperrors.Unauthenticated)
		return
	}
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if workflow.Graph(req.WorkflowType) == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown workflow_type: " + string(req.WorkflowType)})
		return
	}

	shared := map[string]any{}
	for k, v := range req.Context {
		shared[k] = v
	}
	if len(req.Metadata) > 0 {
		shared["metadata"] = req.Metadata
	}

	w := &models.WorkflowExecution{
		WorkflowType: req.WorkflowType,
		UserID:       identity.UserID,
		Request:      req.UserRequest,
		Priority:     req.Priority,
		Context: models.WorkflowContextJSON{
			OriginalRequest: req.UserRequest,
			Origin:          req.Origin,
			SharedData:      shared,
		},
	}
	if err := h.deps.Workflows.Create(c.Request.Context(), w); err != nil {
		writeError(c, apperrors.Wrap(apperrors.KindDependency, "creating workflow execution", err))
		return
	}
	h.deps.Metrics.RecordWorkflowStarted(string(w.WorkflowType))

	go h.run(w, identity)

	c.JSON(http.StatusOK, gin.H{
		"workflow_id":   w.ID,
		"status":        w.Status,
		"steps_planned": workflow.StepNames(w.WorkflowType),
	})
}

// run drives a workflow to completion or suspension on a background
// context, detached from the originating request per §5's "do not rely on
// caller-initiated fire-and-forget" guidance: the pool a production
// deployment runs (store.WorkflowRepo.ListByStatus for crash recovery)
// would replace this direct goroutine, but the entrypoint is identical.
func (h *agentsHandlers) run(w *models.WorkflowExecution, identity models.Identity) {
	if h.deps.Engine == nil {
		return
	}
	if err := h.deps.Engine.Run(context.Background(), w, identity); err != nil {
		slog.Error("workflow run failed", "workflow_id", w.ID, "error", err)
	}
}

// list handles GET /api/v1/jobs.
func (h *agentsHandlers) list(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		writeError(c, apperrors.Unauthenticated)
		return
	}
	filter := store.WorkflowFilter{
		Status: models.WorkflowStatus(c.Query("status")),
		Skip:   atoiOr(c.Query("skip"), 0),
		Limit:  atoiOr(c.Query("limit"), 50),
	}
	if !identity.IsAdmin {
		filter.UserID = identity.UserID
	}
	executions, err := h.deps.Workflows.ListFiltered(c.Request.Context(), filter)
	if err != nil {
		writeError(c, apperrors.Wrap(apperrors.KindDependency, "listing workflow executions", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": executions, "skip": filter.Skip, "limit": filter.Limit})
}

// get handles GET /api/v1/jobs/{id}.
func (h *agentsHandlers) get(c *gin.Context) {
	w, err := h.loadOwned(c)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"workflow_id":  w.ID,
		"status":       w.Status,
		"current_step": w.CurrentStep,
		"total_steps":  len(workflow.StepNames(w.WorkflowType)),
		"steps":        w.Steps,
	})
}

type answersRequest struct {
	Answers []struct {
		QuestionID string `json:"question_id"`
		Answer     string `json:"answer"`
	} `json:"answers" binding:"required"`
}

// answers handles POST /api/v1/jobs/{id}/answers: only valid while the
// workflow is waiting_for_input, per §4.7's suspend/resume contract.
func (h *agentsHandlers) answers(c *gin.Context) {
	w, err := h.loadOwned(c)
	if err != nil {
		writeError(c, err)
		return
	}
	if w.Status != models.WorkflowWaitingForInput {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workflow is not waiting for input"})
		return
	}
	var req answersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if w.Context.Answers == nil {
		w.Context.Answers = map[string]string{}
	}
	for _, a := range req.Answers {
		w.Context.Answers[a.QuestionID] = a.Answer
	}
	if err := h.deps.Workflows.Checkpoint(c.Request.Context(), w); err != nil {
		writeError(c, apperrors.Wrap(apperrors.KindDependency, "recording answers", err))
		return
	}

	identity, _ := currentIdentity(c)
	go h.run(w, identity)

	c.JSON(http.StatusOK, gin.H{"workflow_id": w.ID, "status": models.WorkflowRunning})
}

// results handles GET /api/v1/jobs/{id}/results.
func (h *agentsHandlers) results(c *gin.Context) {
	w, err := h.loadOwned(c)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"workflow_id": w.ID,
		"status":      w.Status,
		"results":     w.Results,
		"error":       w.ErrorMessage,
	})
}

func (h *agentsHandlers) loadOwned(c *gin.Context) (*models.WorkflowExecution, error) {
	identity, ok := currentIdentity(c)
	if !ok {
		return nil, apperrors.Unauthenticated
	}
	w, err := h.deps.Workflows.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	if w.UserID != identity.UserID && !identity.IsAdmin {
		return nil, apperrors.Forbidden
	}
	return w, nil
}
