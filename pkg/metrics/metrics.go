// Package metrics collects Prometheus metrics for the ingest and agents
// services, grounded directly on kadirpekel-hector's
// pkg/observability/metrics.go: one struct holding pre-registered
// CounterVec/HistogramVec/GaugeVec fields grouped by subsystem, nil-safe
// Record* methods so a disabled Metrics instance is a no-op, and a
// promhttp.Handler for the `/metrics` endpoint §6 names.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every registered collector. A nil *Metrics is valid and
// every method on it is a no-op, so call sites never need a feature-flag
// check of their own.
type Metrics struct {
	registry *prometheus.Registry

	ingestJobsTotal      *prometheus.CounterVec
	ingestJobDuration    *prometheus.HistogramVec
	ingestChunksTotal    *prometheus.CounterVec
	ingestParseErrors    *prometheus.CounterVec

	embeddingCalls    *prometheus.CounterVec
	embeddingDuration *prometheus.HistogramVec
	embeddingErrors   *prometheus.CounterVec

	llmCalls        *prometheus.CounterVec
	llmCallDuration *prometheus.HistogramVec
	llmTokens       *prometheus.CounterVec
	llmErrors       *prometheus.CounterVec

	searchQueries        *prometheus.CounterVec
	searchDuration       *prometheus.HistogramVec
	searchResultsCount   *prometheus.HistogramVec

	workflowsStarted  *prometheus.CounterVec
	workflowsActive   *prometheus.GaugeVec
	stageDuration     *prometheus.HistogramVec
	stageErrors       *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New builds a Metrics instance with every collector registered under
// namespace (e.g. "analystcopilot_ingest" or "analystcopilot_agents").
func New(namespace string) *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.initIngest(namespace)
	m.initEmbedding(namespace)
	m.initLLM(namespace)
	m.initSearch(namespace)
	m.initWorkflow(namespace)
	m.initHTTP(namespace)
	return m
}

func (m *Metrics) initIngest(ns string) {
	m.ingestJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "ingest", Name: "jobs_total", Help: "Ingest jobs processed, by terminal status.",
	}, []string{"status", "source_type"})
	m.ingestJobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "ingest", Name: "job_duration_seconds", Help: "Ingest job wall-clock duration.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	}, []string{"source_type"})
	m.ingestChunksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "ingest", Name: "chunks_persisted_total", Help: "Knowledge chunks persisted.",
	}, []string{"source_type"})
	m.ingestParseErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "ingest", Name: "parse_errors_total", Help: "Parser warnings/errors raised during ingestion.",
	}, []string{"source_type", "severity"})
	m.registry.MustRegister(m.ingestJobsTotal, m.ingestJobDuration, m.ingestChunksTotal, m.ingestParseErrors)
}

func (m *Metrics) initEmbedding(ns string) {
	m.embeddingCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "embedding", Name: "calls_total", Help: "Embedding provider calls.",
	}, []string{"model"})
	m.embeddingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "embedding", Name: "call_duration_seconds", Help: "Embedding call duration.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"model"})
	m.embeddingErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "embedding", Name: "errors_total", Help: "Embedding call failures.",
	}, []string{"model"})
	m.registry.MustRegister(m.embeddingCalls, m.embeddingDuration, m.embeddingErrors)
}

func (m *Metrics) initLLM(ns string) {
	m.llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "llm", Name: "calls_total", Help: "LLM provider calls.",
	}, []string{"model", "stage"})
	m.llmCallDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "llm", Name: "call_duration_seconds", Help: "LLM call duration.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	}, []string{"model", "stage"})
	m.llmTokens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "llm", Name: "tokens_total", Help: "Prompt/completion tokens consumed.",
	}, []string{"model", "direction"})
	m.llmErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "llm", Name: "errors_total", Help: "LLM call failures.",
	}, []string{"model", "stage"})
	m.registry.MustRegister(m.llmCalls, m.llmCallDuration, m.llmTokens, m.llmErrors)
}

func (m *Metrics) initSearch(ns string) {
	m.searchQueries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "search", Name: "queries_total", Help: "Search queries served.",
	}, []string{"kind"})
	m.searchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "search", Name: "query_duration_seconds", Help: "Search query duration.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"kind"})
	m.searchResultsCount = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "search", Name: "results_count", Help: "Results returned per search query.",
		Buckets: prometheus.LinearBuckets(0, 5, 11),
	}, []string{"kind"})
	m.registry.MustRegister(m.searchQueries, m.searchDuration, m.searchResultsCount)
}

func (m *Metrics) initWorkflow(ns string) {
	m.workflowsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "workflow", Name: "started_total", Help: "Workflow executions started, by workflow_type.",
	}, []string{"workflow_type"})
	m.workflowsActive = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns, Subsystem: "workflow", Name: "active", Help: "Workflow executions currently running.",
	}, []string{"workflow_type"})
	m.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "workflow", Name: "stage_duration_seconds", Help: "Per-stage execution duration.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
	}, []string{"stage"})
	m.stageErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "workflow", Name: "stage_errors_total", Help: "Per-stage execution failures.",
	}, []string{"stage", "kind"})
	m.registry.MustRegister(m.workflowsStarted, m.workflowsActive, m.stageDuration, m.stageErrors)
}

func (m *Metrics) initHTTP(ns string) {
	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Subsystem: "http", Name: "requests_total", Help: "HTTP requests served.",
	}, []string{"method", "route", "status"})
	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Subsystem: "http", Name: "request_duration_seconds", Help: "HTTP request duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
	m.registry.MustRegister(m.httpRequests, m.httpDuration)
}

func (m *Metrics) RecordIngestJob(status, sourceType string, d time.Duration) {
	if m == nil {
		return
	}
	m.ingestJobsTotal.WithLabelValues(status, sourceType).Inc()
	m.ingestJobDuration.WithLabelValues(sourceType).Observe(d.Seconds())
}

func (m *Metrics) RecordChunksPersisted(sourceType string, n int) {
	if m == nil {
		return
	}
	m.ingestChunksTotal.WithLabelValues(sourceType).Add(float64(n))
}

func (m *Metrics) RecordParseIssue(sourceType, severity string) {
	if m == nil {
		return
	}
	m.ingestParseErrors.WithLabelValues(sourceType, severity).Inc()
}

func (m *Metrics) RecordEmbeddingCall(model string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.embeddingCalls.WithLabelValues(model).Inc()
	m.embeddingDuration.WithLabelValues(model).Observe(d.Seconds())
	if err != nil {
		m.embeddingErrors.WithLabelValues(model).Inc()
	}
}

func (m *Metrics) RecordLLMCall(model, stage string, d time.Duration, promptTokens, outputTokens int, err error) {
	if m == nil {
		return
	}
	m.llmCalls.WithLabelValues(model, stage).Inc()
	m.llmCallDuration.WithLabelValues(model, stage).Observe(d.Seconds())
	m.llmTokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	m.llmTokens.WithLabelValues(model, "completion").Add(float64(outputTokens))
	if err != nil {
		m.llmErrors.WithLabelValues(model, stage).Inc()
	}
}

func (m *Metrics) RecordSearch(kind string, d time.Duration, resultCount int) {
	if m == nil {
		return
	}
	m.searchQueries.WithLabelValues(kind).Inc()
	m.searchDuration.WithLabelValues(kind).Observe(d.Seconds())
	m.searchResultsCount.WithLabelValues(kind).Observe(float64(resultCount))
}

func (m *Metrics) RecordWorkflowStarted(workflowType string) {
	if m == nil {
		return
	}
	m.workflowsStarted.WithLabelValues(workflowType).Inc()
}

func (m *Metrics) SetWorkflowsActive(workflowType string, n int) {
	if m == nil {
		return
	}
	m.workflowsActive.WithLabelValues(workflowType).Set(float64(n))
}

func (m *Metrics) RecordStage(stage string, d time.Duration, errKind string) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if errKind != "" {
		m.stageErrors.WithLabelValues(stage, errKind).Inc()
	}
}

func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// Handler serves the Prometheus text exposition format for `/metrics`.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) })
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
