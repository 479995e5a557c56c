package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/analystcopilot/core/pkg/cache"
	"github.com/analystcopilot/core/pkg/httpapi"
	"github.com/analystcopilot/core/pkg/models"
	"github.com/analystcopilot/core/pkg/rbac"
)

var errNotFound = errors.New("not found")

type fakeUserStore struct {
	byUsername map[string]*models.User
	byID       map[string]*models.User
}

func (f *fakeUserStore) GetByUsername(_ context.Context, username string) (*models.User, error) {
	if u, ok := f.byUsername[username]; ok {
		return u, nil
	}
	return nil, errNotFound
}

func (f *fakeUserStore) GetByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, errNotFound
}

type fakeRoleStore struct{ roles []*models.Role }

func (f *fakeRoleStore) ListAll(_ context.Context) ([]*models.Role, error) { return f.roles, nil }

type fakeAPIKeyStore struct{}

func (fakeAPIKeyStore) GetByHash(_ context.Context, _ string) (*models.APIKey, error) {
	return nil, errNotFound
}
func (fakeAPIKeyStore) TouchLastUsed(_ context.Context, _ string) error { return nil }

func newAuthedRouter(t *testing.T) (*httptest.Server, *cache.Client) {
	t.Helper()

	hash, err := rbac.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	users := &fakeUserStore{
		byUsername: map[string]*models.User{
			"alice": {ID: "u-1", Username: "alice", PasswordHash: hash, Roles: []string{models.RoleAnalyst}},
		},
		byID: map[string]*models.User{
			"u-1": {ID: "u-1", Username: "alice", PasswordHash: hash, Roles: []string{models.RoleAnalyst}},
		},
	}
	roles := &fakeRoleStore{roles: rbac.BuiltinRoles()}

	issuer, err := rbac.NewTokenIssuer([]byte("test-secret-at-least-32-bytes!!"), "analystcopilot-test", rbac.TokenTTL)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cacheClient := cache.NewFromClient(rdb)

	authSvc := rbac.New(users, roles, fakeAPIKeyStore{}, issuer, cacheClient)

	deps := &httpapi.Dependencies{
		Auth:      authSvc,
		Tokens:    issuer,
		Cache:     cacheClient,
		RateLimit: httpapi.RateLimit{Limit: 120, Window: 0},
	}
	router := httpapi.NewIngestRouter(deps, httpapi.RouterConfig{})
	return httptest.NewServer(router), cacheClient
}

func TestLoginSucceedsWithValidCredentials(t *testing.T) {
	srv, _ := newAuthedRouter(t)
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "correct horse battery staple"})
	resp, err := http.Post(srv.URL+"/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out["access_token"])
	require.Equal(t, "bearer", out["token_type"])
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	srv, _ := newAuthedRouter(t)
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "wrong"})
	resp, err := http.Post(srv.URL+"/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginRejectsMissingFields(t *testing.T) {
	srv, _ := newAuthedRouter(t)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/auth/login", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProtectedRouteRejectsMissingToken(t *testing.T) {
	srv, _ := newAuthedRouter(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ingest/jobs")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogoutThenTokenIsRejected(t *testing.T) {
	srv, _ := newAuthedRouter(t)
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"username": "alice", "password": "correct horse battery staple"})
	loginResp, err := http.Post(srv.URL+"/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer loginResp.Body.Close()
	var tok map[string]any
	require.NoError(t, json.NewDecoder(loginResp.Body).Decode(&tok))
	token := tok["access_token"].(string)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	logoutResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer logoutResp.Body.Close()
	require.Equal(t, http.StatusOK, logoutResp.StatusCode)

	req2, _ := http.NewRequest(http.MethodPost, srv.URL+"/ingest/paste", nil)
	req2.Header.Set("Authorization", "Bearer "+token)
	resp2, err := http.DefaultClient.Do(req2)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}
