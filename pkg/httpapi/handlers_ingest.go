package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/analystcopilot/core/pkg/apperrors"
	"github.com/analystcopilot/core/pkg/audit"
	"github.com/analystcopilot/core/pkg/export"
	"github.com/analystcopilot/core/pkg/models"
	"github.com/analystcopilot/core/pkg/parser"
	"github.com/analystcopilot/core/pkg/store"
)

type ingestHandlers struct {
	deps *Dependencies
}

func ingestJobPingFilter() store.IngestJobFilter {
	return store.IngestJobFilter{Limit: 1}
}

// upload handles POST /ingest/upload: a multipart file plus origin,
// sensitivity, optional source_type, and a JSON-encoded metadata string.
func (h *ingestHandlers) upload(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		writeError(c, apperrors.Unauthenticated)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.deps.maxUploadBytes())
	fileHeader, err := c.FormFile("file")
	if err != nil {
		if strings.Contains(err.Error(), "http: request body too large") {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload exceeds maximum size"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required: " + err.Error()})
		return
	}

	origin := c.PostForm("origin")
	sensitivity := models.Sensitivity(c.PostForm("sensitivity"))
	if origin == "" || sensitivity == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "origin and sensitivity are required"})
		return
	}

	sourceType := models.SourceType(c.PostForm("source_type"))
	if sourceType == "" {
		sourceType = parser.Detect(fileHeader.Filename, fileHeader.Header.Get("Content-Type"))
	}

	metadata := models.JSONMap{}
	if raw := c.PostForm("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "metadata must be valid JSON: " + err.Error()})
			return
		}
	}

	src, err := fileHeader.Open()
	if err != nil {
		writeError(c, apperrors.Wrap(apperrors.KindDependency, "opening upload", err))
		return
	}
	defer src.Close()

	pointer, size, err := h.deps.Blobs.Save(c.Request.Context(), fileHeader.Filename, src)
	if err != nil {
		writeError(c, err)
		return
	}

	job := &models.IngestJob{
		SourceType:  sourceType,
		Origin:      origin,
		Sensitivity: sensitivity,
		Uploader:    identity.UserID,
		FilePointer: pointer,
		ByteSize:    size,
		Metadata:    metadata,
	}
	if err := h.deps.Jobs.Create(c.Request.Context(), job); err != nil {
		writeError(c, apperrors.Wrap(apperrors.KindDependency, "creating ingest job", err))
		return
	}
	h.deps.Metrics.RecordIngestJob(string(job.Status), string(job.SourceType), 0)

	c.JSON(http.StatusOK, gin.H{
		"job_id": job.ID,
		"status": job.Status,
		"file_info": gin.H{
			"filename":  fileHeader.Filename,
			"byte_size": size,
			"pointer":   pointer,
		},
	})
}

type pasteRequest struct {
	Text       string          `json:"text" binding:"required"`
	Origin     string          `json:"origin" binding:"required"`
	Sensitivity string         `json:"sensitivity" binding:"required"`
	TicketID   string          `json:"ticket_id"`
	Metadata   models.JSONMap  `json:"metadata"`
}

// paste handles POST /ingest/paste: a pasted text blob stored as a
// source_paste blob so it flows through the same pipeline as a file.
func (h *ingestHandlers) paste(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		writeError(c, apperrors.Unauthenticated)
		return
	}
	var req pasteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text must not be empty"})
		return
	}

	metadata := req.Metadata
	if metadata == nil {
		metadata = models.JSONMap{}
	}
	if req.TicketID != "" {
		metadata["ticket_id"] = req.TicketID
	}

	pointer, size, err := h.deps.Blobs.Save(c.Request.Context(), "paste.txt", strings.NewReader(req.Text))
	if err != nil {
		writeError(c, err)
		return
	}

	job := &models.IngestJob{
		SourceType:  models.SourcePaste,
		Origin:      req.Origin,
		Sensitivity: models.Sensitivity(req.Sensitivity),
		Uploader:    identity.UserID,
		FilePointer: pointer,
		ByteSize:    size,
		Metadata:    metadata,
	}
	if err := h.deps.Jobs.Create(c.Request.Context(), job); err != nil {
		writeError(c, apperrors.Wrap(apperrors.KindDependency, "creating ingest job", err))
		return
	}
	h.deps.Metrics.RecordIngestJob(string(job.Status), string(job.SourceType), 0)

	c.JSON(http.StatusOK, gin.H{
		"job_id":      job.ID,
		"status":      job.Status,
		"text_length": len(req.Text),
	})
}

// status handles GET /ingest/status/{job_id}.
func (h *ingestHandlers) status(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		writeError(c, apperrors.Unauthenticated)
		return
	}
	job, err := h.deps.Jobs.Get(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if job.Uploader != identity.UserID && !identity.IsAdmin {
		writeError(c, apperrors.Forbidden)
		return
	}
	c.JSON(http.StatusOK, job)
}

// listJobs handles GET /ingest/jobs, scoped to the caller unless admin.
func (h *ingestHandlers) listJobs(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		writeError(c, apperrors.Unauthenticated)
		return
	}
	filter := store.IngestJobFilter{
		Status:     models.JobStatus(c.Query("status")),
		Origin:     c.Query("origin"),
		SourceType: models.SourceType(c.Query("source_type")),
		Skip:       atoiOr(c.Query("skip"), 0),
		Limit:      atoiOr(c.Query("limit"), 50),
	}
	if !identity.IsAdmin {
		filter.Uploader = identity.UserID
	}
	jobs, err := h.deps.Jobs.ListFiltered(c.Request.Context(), filter)
	if err != nil {
		writeError(c, apperrors.Wrap(apperrors.KindDependency, "listing ingest jobs", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "skip": filter.Skip, "limit": filter.Limit})
}

// deleteJob handles DELETE /ingest/jobs/{id}: cascades to the job's
// knowledge chunks and vectors via search.Service.DeleteBy before removing
// the job row itself.
func (h *ingestHandlers) deleteJob(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		writeError(c, apperrors.Unauthenticated)
		return
	}
	id := c.Param("id")
	job, err := h.deps.Jobs.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if job.Uploader != identity.UserID && !identity.IsAdmin {
		writeError(c, apperrors.Forbidden)
		return
	}
	if h.deps.Search != nil {
		if _, err := h.deps.Search.DeleteBy(c.Request.Context(), id); err != nil {
			writeError(c, err)
			return
		}
	}
	if err := h.deps.Jobs.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "job_id": id})
}

// retryJob handles POST /ingest/jobs/{id}/retry: only jobs in a terminal
// retryable state (failed or completed) may be retried, per
// models.IngestJob.CanRetry.
func (h *ingestHandlers) retryJob(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		writeError(c, apperrors.Unauthenticated)
		return
	}
	id := c.Param("id")
	job, err := h.deps.Jobs.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if job.Uploader != identity.UserID && !identity.IsAdmin {
		writeError(c, apperrors.Forbidden)
		return
	}
	if !job.CanRetry() {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("job in status %s cannot be retried", job.Status)})
		return
	}
	if _, err := h.deps.Jobs.IncrementRetry(c.Request.Context(), id); err != nil {
		writeError(c, apperrors.Wrap(apperrors.KindDependency, "retrying ingest job", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"job_id": id, "status": models.JobPending})
}

type searchRequest struct {
	Query               string         `json:"query" binding:"required"`
	Limit               int            `json:"limit"`
	SimilarityThreshold float32        `json:"similarity_threshold"`
	Filters             map[string]any `json:"filters"`
}

func (r searchRequest) normalized() (int, float32) {
	limit := r.Limit
	if limit <= 0 {
		limit = 10
	}
	threshold := r.SimilarityThreshold
	if threshold <= 0 {
		threshold = 0.5
	}
	return limit, threshold
}

// search handles POST /search.
func (h *ingestHandlers) search(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		writeError(c, apperrors.Unauthenticated)
		return
	}
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, threshold := req.normalized()

	started := requestStart()
	results, err := h.deps.Search.Search(c.Request.Context(), req.Query, limit, threshold, req.Filters, identity)
	if err != nil {
		writeError(c, err)
		return
	}
	h.deps.Metrics.RecordSearch("search", time.Since(started), len(results))
	h.auditSearch(identity.UserID, req.Query, len(results))

	c.JSON(http.StatusOK, gin.H{
		"query":              req.Query,
		"results":            results,
		"processing_time_ms": elapsedMillis(started),
		"filters_applied":    req.Filters,
	})
}

// auditSearch records a search.query entry per §4.9/§4.6: every knowledge
// access is audited, with the result count taken post-access-filter (i.e.
// after hydrateAndFilter has already dropped anything the caller's
// identity can't view) rather than the raw vector-index hit count.
func (h *ingestHandlers) auditSearch(userID, query string, resultCount int) {
	if h.deps.AuditChain == nil {
		return
	}
	_, _ = h.deps.AuditChain.Append(context.Background(), audit.Entry{
		Action:       models.ActionSearchQuery,
		UserID:       &userID,
		ResourceType: strPtrHTTP("search_query"),
		Details:      models.JSONMap{"query": query, "result_count": resultCount},
		Severity:     models.SeverityLow,
	})
}

func strPtrHTTP(s string) *string { return &s }

// similar handles GET /search/similar/{chunk_id}.
func (h *ingestHandlers) similar(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		writeError(c, apperrors.Unauthenticated)
		return
	}
	limit := atoiOr(c.Query("limit"), 10)
	threshold := atofOr(c.Query("similarity_threshold"), 0.5)

	started := requestStart()
	results, err := h.deps.Search.SimilarTo(c.Request.Context(), c.Param("chunk_id"), limit, threshold, identity)
	if err != nil {
		writeError(c, err)
		return
	}
	h.deps.Metrics.RecordSearch("similar", time.Since(started), len(results))
	c.JSON(http.StatusOK, gin.H{
		"query":              c.Param("chunk_id"),
		"results":            results,
		"processing_time_ms": elapsedMillis(started),
	})
}

// searchExport handles POST /search/export per §4.10: runs the same search
// as /search, renders the results in the requested format via pkg/export,
// and streams the generated file back. "zip" bundles the rendered file
// alongside a manifest.json into a single package.
func (h *ingestHandlers) searchExport(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		writeError(c, apperrors.Unauthenticated)
		return
	}
	if h.deps.Export == nil {
		writeError(c, apperrors.Wrap(apperrors.KindDependency, "export service is not configured", nil))
		return
	}
	var req struct {
		searchRequest
		Format string `json:"format"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	limit, threshold := req.normalized()
	results, err := h.deps.Search.Search(c.Request.Context(), req.Query, limit, threshold, req.Filters, identity)
	if err != nil {
		writeError(c, err)
		return
	}

	format := export.Format(req.Format)
	if format == "" {
		format = export.FormatJSON
	}

	renderFormat := format
	if format == export.FormatZip {
		renderFormat = export.FormatJSON
	}
	rendered, err := h.deps.Export.ExportSearchResults(results, renderFormat, "search results: "+req.Query)
	if err != nil {
		writeError(c, err)
		return
	}

	out := rendered
	if format == export.FormatZip {
		packaged, err := h.deps.Export.CreatePackage([]*export.Result{rendered}, "search_export")
		if err != nil {
			writeError(c, err)
			return
		}
		out = packaged
	}

	data, err := os.ReadFile(out.FilePath)
	if err != nil {
		writeError(c, fmt.Errorf("reading rendered export: %w", err))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, out.Filename))
	c.Data(http.StatusOK, exportContentType(out.Format), data)
}

func exportContentType(format export.Format) string {
	switch format {
	case export.FormatCSV:
		return "text/csv"
	case export.FormatTXT:
		return "text/plain"
	case export.FormatMarkdown:
		return "text/markdown"
	case export.FormatHTML:
		return "text/html"
	case export.FormatZip:
		return "application/zip"
	default:
		return "application/json"
	}
}

func requestStart() time.Time { return time.Now() }

func elapsedMillis(started time.Time) int64 { return time.Since(started).Milliseconds() }

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func atofOr(s string, fallback float32) float32 {
	if s == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return fallback
	}
	return float32(n)
}
