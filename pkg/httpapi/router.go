package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RouterConfig carries the handful of knobs routing needs beyond
// Dependencies itself.
type RouterConfig struct {
	AllowedOrigins []string
}

// NewIngestRouter builds the Ingest Service's gin engine: upload/paste/
// status/jobs/search/auth/health/metrics/stream, per §6's Ingest Service
// endpoint table.
func NewIngestRouter(deps *Dependencies, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), securityHeaders(), requestLogger(), corsMiddleware(cfg.AllowedOrigins))
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps))
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	h := &ingestHandlers{deps: deps}

	registerHealthRoutes(r, deps)

	auth := r.Group("/auth")
	auth.POST("/login", h.login)
	auth.POST("/logout", authMiddleware(deps), h.logout)

	if deps.Stream != nil {
		r.GET("/stream", h.streamWS)
	}

	api := r.Group("")
	api.Use(authMiddleware(deps), rateLimitMiddleware(deps))
	{
		ingestGrp := api.Group("/ingest")
		ingestGrp.POST("/upload", requirePermission("ingest:upload"), h.upload)
		ingestGrp.POST("/paste", requirePermission("ingest:upload"), h.paste)
		ingestGrp.GET("/status/:job_id", h.status)
		ingestGrp.GET("/jobs", h.listJobs)
		ingestGrp.DELETE("/jobs/:id", h.deleteJob)
		ingestGrp.POST("/jobs/:id/retry", h.retryJob)

		searchGrp := api.Group("/search")
		searchGrp.POST("", h.search)
		searchGrp.GET("/similar/:chunk_id", h.similar)
		searchGrp.POST("/export", h.searchExport)
	}

	return r
}

func registerHealthRoutes(r *gin.Engine, deps *Dependencies) {
	health := &healthHandlers{deps: deps}
	r.GET("/health", health.status)
	r.GET("/health/live", health.live)
	r.GET("/health/ready", health.ready)
	r.GET("/health/startup", health.ready)
}

type healthHandlers struct{ deps *Dependencies }

func (h *healthHandlers) live(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "alive"}) }

func (h *healthHandlers) ready(c *gin.Context) {
	components := gin.H{}
	ok := true
	if h.deps.Jobs != nil {
		if _, err := h.deps.Jobs.ListFiltered(c.Request.Context(), ingestJobPingFilter()); err != nil {
			components["database"] = "unavailable"
			ok = false
		} else {
			components["database"] = "ok"
		}
	}
	if h.deps.Cache != nil {
		if err := h.deps.Cache.Ping(c.Request.Context()); err != nil {
			components["cache"] = "unavailable"
			ok = false
		} else {
			components["cache"] = "ok"
		}
	}
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": boolStatus(ok), "components": components})
}

func (h *healthHandlers) status(c *gin.Context) { h.ready(c) }

func boolStatus(ok bool) string {
	if ok {
		return "ok"
	}
	return "degraded"
}
