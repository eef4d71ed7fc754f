package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/skycrane/skycrane/internal/errors"
	"github.com/skycrane/skycrane/internal/observability"
	"github.com/skycrane/skycrane/pkg/jobs"
	"github.com/skycrane/skycrane/pkg/statestore"
)

type fakeStore struct {
	servers     map[string]*statestore.ServerRecord
	deployments []*statestore.DeploymentRecord
}

func (s *fakeStore) GetServer(_ context.Context, name string) (*statestore.ServerRecord, error) {
	srv, ok := s.servers[name]
	if !ok {
		return nil, statestore.ErrServerNotFound
	}
	return srv, nil
}

func (s *fakeStore) ListServers(_ context.Context) ([]*statestore.ServerRecord, error) {
	out := make([]*statestore.ServerRecord, 0, len(s.servers))
	for _, srv := range s.servers {
		out = append(out, srv)
	}
	return out, nil
}

func (s *fakeStore) ListDeployments(_ context.Context, server string, limit int) ([]*statestore.DeploymentRecord, error) {
	out := make([]*statestore.DeploymentRecord, 0)
	for _, d := range s.deployments {
		if d.Server == server {
			out = append(out, d)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newTestServer(t *testing.T) (*Server, *jobs.Manager, *fakeStore) {
	t.Helper()
	snap := jobs.NewFileSnapshot(filepath.Join(t.TempDir(), "jobs.json"))
	m, err := jobs.NewManager(snap, zap.NewNop())
	require.NoError(t, err)

	reg := jobs.NewRegistry()
	reg.Register("app.deploy", func(_ context.Context, _ *jobs.Job) (map[string]any, error) {
		return nil, nil
	})

	store := &fakeStore{servers: map[string]*statestore.ServerRecord{}}
	srv := New("127.0.0.1", 0, Deps{
		Manager:  m,
		Registry: reg,
		Store:    store,
		Metrics:  observability.NewMetrics(),
		Version:  "test",
		Logger:   zap.NewNop(),
	})
	return srv, m, store
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apperrors.HTTPErrorResponse {
	t.Helper()
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Error.Code)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/version", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "METHOD_NOT_ALLOWED", decodeError(t, rec).Error.Code)
}

func TestServer_RoutesRegistered(t *testing.T) {
	srv, _, _ := newTestServer(t)

	endpoints := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/healthz", http.StatusOK},
		{"GET", "/version", http.StatusOK},
		{"GET", "/metrics", http.StatusOK},
		{"GET", "/v1/jobs", http.StatusOK},
		{"GET", "/v1/servers", http.StatusOK},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			req := httptest.NewRequest(ep.method, ep.path, nil)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			assert.Equal(t, ep.want, rec.Code)
		})
	}
}

func TestServer_Port(t *testing.T) {
	srv, _, _ := newTestServer(t)
	assert.Equal(t, 0, srv.Port())
}

func TestCreateJob(t *testing.T) {
	srv, m, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]any{
		"job_type": "app.deploy",
		"params":   map[string]any{"server": "web-1", "app": "caddy"},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var job jobs.Job
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&job))
	assert.Equal(t, "app.deploy", job.Type)
	assert.Equal(t, jobs.StatusPending, job.Status)

	stored, err := m.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, stored.Status)
}

func TestCreateJobUnknownType(t *testing.T) {
	srv, _, _ := newTestServer(t)

	body, _ := json.Marshal(map[string]any{"job_type": "not.a.thing"})
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "BAD_REQUEST", decodeError(t, rec).Error.Code)
}

func TestGetJobNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/nope", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decodeError(t, rec).Error.Code)
}

func TestListJobsFilters(t *testing.T) {
	srv, m, _ := newTestServer(t)
	m.Create("app.deploy", nil)
	m.Create("server.create", nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs?type=app.deploy", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Jobs []*jobs.Job `json:"jobs"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, "app.deploy", resp.Jobs[0].Type)
}

func TestListJobsBadLimit(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs?limit=banana", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelJob(t *testing.T) {
	srv, m, _ := newTestServer(t)
	job := m.Create("app.deploy", nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/"+job.ID+"/cancel", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, true, resp["cancelled"])

	stored, err := m.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCancelled, stored.Status)
}

func TestCancelJobNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/nope/cancel", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetServerEndpoints(t *testing.T) {
	srv, _, store := newTestServer(t)
	store.servers["web-1"] = &statestore.ServerRecord{
		Name:   "web-1",
		Status: statestore.ServerStatusReady,
		Apps:   []string{"postgres", "n8n"},
	}
	store.deployments = []*statestore.DeploymentRecord{
		{Server: "web-1", App: "postgres", Status: statestore.DeploymentStatusInstalled},
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/servers/web-1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got statestore.ServerRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, []string{"postgres", "n8n"}, got.Apps)

	req = httptest.NewRequest(http.MethodGet, "/v1/servers/web-1/deployments", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/servers/ghost", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecovererConvertsPanics(t *testing.T) {
	srv, _, _ := newTestServer(t)

	h := srv.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	assert.Contains(t, body.Error.Message, "boom")
}
