package httpapi_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/analystcopilot/core/pkg/httpapi"
)

func TestHealthLiveNeedsNoDependencies(t *testing.T) {
	router := httpapi.NewIngestRouter(&httpapi.Dependencies{}, httpapi.RouterConfig{})
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health/live")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthReadyOKWhenNoDependenciesWired(t *testing.T) {
	router := httpapi.NewIngestRouter(&httpapi.Dependencies{}, httpapi.RouterConfig{})
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, "absent components are skipped, not treated as failures")
}

func TestCORSPreflightIsAllowedForRegisteredOrigin(t *testing.T) {
	router := httpapi.NewIngestRouter(&httpapi.Dependencies{}, httpapi.RouterConfig{AllowedOrigins: []string{"https://app.example.com"}})
	srv := httptest.NewServer(router)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/ingest/jobs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSOmitsHeaderForUnlistedOrigin(t *testing.T) {
	router := httpapi.NewIngestRouter(&httpapi.Dependencies{}, httpapi.RouterConfig{AllowedOrigins: []string{"https://app.example.com"}})
	srv := httptest.NewServer(router)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/ingest/jobs", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSecurityHeadersAppliedToEveryResponse(t *testing.T) {
	router := httpapi.NewIngestRouter(&httpapi.Dependencies{}, httpapi.RouterConfig{})
	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health/live")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}
