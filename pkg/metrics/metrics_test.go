package metrics_test

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/analystcopilot/core/pkg/metrics"
)

func TestRecordIngestJobIncrementsCountersAndServesHandler(t *testing.T) {
	m := metrics.New("analystcopilot_ingest_test")
	m.RecordIngestJob("completed", "confluence", 2*time.Second)
	m.RecordChunksPersisted("confluence", 10)
	m.RecordParseIssue("confluence", "warning")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "ingest_jobs_total")
	assert.Contains(t, body, "ingest_chunks_persisted_total")
	assert.Contains(t, body, "ingest_parse_errors_total")
}

func TestRecordLLMCallTracksTokensAndErrors(t *testing.T) {
	m := metrics.New("analystcopilot_agents_test")
	m.RecordLLMCall("gpt-4o", "synthesizer", 500*time.Millisecond, 120, 340, nil)
	m.RecordLLMCall("gpt-4o", "synthesizer", 100*time.Millisecond, 10, 0, assert.AnError)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, "llm_tokens_total")
	assert.Contains(t, body, "llm_errors_total")
}

func TestNilMetricsIsANoOp(t *testing.T) {
	var m *metrics.Metrics
	m.RecordIngestJob("completed", "confluence", time.Second)
	m.RecordLLMCall("gpt-4o", "synthesizer", time.Second, 1, 1, nil)
	m.RecordStage("clarifier", time.Second, "")
	m.SetWorkflowsActive("full", 3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 503, rec.Code)
}

func TestRecordHTTPRequestBucketsStatusClass(t *testing.T) {
	m := metrics.New("analystcopilot_http_test")
	m.RecordHTTPRequest("GET", "/api/v1/search", 200, 10*time.Millisecond)
	m.RecordHTTPRequest("POST", "/api/v1/workflows", 500, 1500*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `status="2xx"`)
	assert.Contains(t, body, `status="5xx"`)
}
