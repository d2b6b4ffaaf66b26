package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/workflow-pulse/app/collector"
	"github.com/lysyi3m/workflow-pulse/app/database"
	"github.com/lysyi3m/workflow-pulse/app/ingest"
	"github.com/lysyi3m/workflow-pulse/app/status"
)

type mockRepo struct {
	workflows  []database.Workflow
	lastFilter database.ListFilter
	listCalls  int
	listErr    error
	pingErr    error
}

func (m *mockRepo) ListWorkflows(ctx context.Context, filter database.ListFilter) ([]database.Workflow, error) {
	m.listCalls++
	m.lastFilter = filter
	return m.workflows, m.listErr
}

func (m *mockRepo) GetWorkflowCount(ctx context.Context) (int, error) {
	return len(m.workflows), nil
}

func (m *mockRepo) Ping(ctx context.Context) error {
	return m.pingErr
}

type mockStatus struct {
	st status.Status
}

func (m *mockStatus) Infer(ctx context.Context) (status.Status, error) {
	return m.st, nil
}

type stubSource struct {
	name string
}

func (s *stubSource) Name() string                 { return s.name }
func (s *stubSource) Platform() collector.Platform { return collector.PlatformForum }
func (s *stubSource) Collect(ctx context.Context, country string) ([]collector.Item, error) {
	return nil, nil
}

type mockRunner struct {
	total     int
	err       error
	sources   []string
	countries []string
}

func (m *mockRunner) Run(ctx context.Context, sources []collector.Source, countries []string) (*ingest.Report, error) {
	for _, s := range sources {
		m.sources = append(m.sources, s.Name())
	}
	m.countries = countries
	if m.err != nil {
		return &ingest.Report{}, m.err
	}
	return &ingest.Report{RunID: "run-1", Total: m.total}, nil
}

type mockCache struct {
	store  map[string][]byte
	sets   int
	keyErr error
}

func (m *mockCache) ListKey(ctx context.Context, platform, country string, limit int) (string, error) {
	if m.keyErr != nil {
		return "", m.keyErr
	}
	return platform + "|" + country, nil
}

func (m *mockCache) GetList(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := m.store[key]
	return v, ok, nil
}

func (m *mockCache) SetList(ctx context.Context, key string, payload []byte) error {
	m.sets++
	m.store[key] = payload
	return nil
}

const testSecret = "s3cret"

type testEnv struct {
	repo   *mockRepo
	runner *mockRunner
	status *mockStatus
	engine *gin.Engine
}

func newTestEnv(t *testing.T, listCache *mockCache) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		repo:   &mockRepo{},
		runner: &mockRunner{total: 7},
		status: &mockStatus{st: status.Status{IntervalHours: 6}},
	}
	registry := collector.NewRegistry(&stubSource{"youtube"}, &stubSource{"forum"}, &stubSource{"trends"})

	var handler *Handler
	if listCache != nil {
		handler = NewHandler(env.repo, env.status, registry, env.runner, listCache)
	} else {
		handler = NewHandler(env.repo, env.status, registry, env.runner, nil)
	}
	env.engine = NewServer(handler, testSecret, []string{"*"}, false)
	return env
}

func (e *testEnv) do(method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func TestGetHome(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "API is running")
}

func TestGetHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/health/", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])

	env.repo.pingErr = errors.New("connection refused")
	w = env.do(http.MethodGet, "/health/", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListWorkflows(t *testing.T) {
	env := newTestEnv(t, nil)
	seen := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	env.repo.workflows = []database.Workflow{{
		ID:        1,
		Name:      "Slack alerts",
		Platform:  "Forum",
		Country:   "US",
		SourceURL: "https://community.n8n.io/t/1",
		Metrics:   map[string]float64{"likes": 2},
		Score:     11,
		LastSeen:  &seen,
		CreatedAt: seen,
	}}

	w := env.do(http.MethodGet, "/api/workflows/?platform=forum&country=us", nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, database.ListFilter{Platform: "forum", Country: "us", Limit: 100}, env.repo.lastFilter)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 1)
	for _, key := range []string{"workflow", "platform", "country", "source_url", "popularity_metrics", "popularity_score", "last_seen", "created_at"} {
		assert.Contains(t, body[0], key)
	}
	assert.Equal(t, "Slack alerts", body[0]["workflow"])
	assert.Equal(t, 11.0, body[0]["popularity_score"])
}

func TestListWorkflowsLimit(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/workflows/?limit=5000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1000, env.repo.lastFilter.Limit)
	assert.Equal(t, "[]", w.Body.String())

	env.do(http.MethodGet, "/api/workflows/?limit=10", nil)
	assert.Equal(t, 10, env.repo.lastFilter.Limit)

	w = env.do(http.MethodGet, "/api/workflows/?limit=ten", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListWorkflowsDatabaseError(t *testing.T) {
	env := newTestEnv(t, nil)
	env.repo.listErr = errors.New("boom")

	w := env.do(http.MethodGet, "/api/workflows/", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestListWorkflowsCache(t *testing.T) {
	c := &mockCache{store: map[string][]byte{}}
	env := newTestEnv(t, c)
	env.repo.workflows = []database.Workflow{{Name: "a", Platform: "Forum", Country: "US"}}

	w := env.do(http.MethodGet, "/api/workflows/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	assert.Equal(t, 1, c.sets)

	w2 := env.do(http.MethodGet, "/api/workflows/", nil)
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, "HIT", w2.Header().Get("X-Cache"))
	assert.Equal(t, w.Body.String(), w2.Body.String())
	assert.Equal(t, 1, env.repo.listCalls)
}

func TestListWorkflowsCacheKeyError(t *testing.T) {
	c := &mockCache{store: map[string][]byte{}, keyErr: errors.New("connection refused")}
	env := newTestEnv(t, c)
	env.repo.workflows = []database.Workflow{{Name: "a", Platform: "Forum", Country: "US"}}

	w := env.do(http.MethodGet, "/api/workflows/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-Cache"))
	assert.Equal(t, 0, c.sets)
	assert.Equal(t, 1, env.repo.listCalls)
}

func TestGetStatus(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/api/status/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"last_run":null,"next_run":null,"interval_hours":6}`, w.Body.String())

	last := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	next := last.Add(6 * time.Hour)
	env.status.st = status.Status{LastRun: &last, NextRun: &next, IntervalHours: 6}

	w = env.do(http.MethodGet, "/api/status/", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		LastRun time.Time `json:"last_run"`
		NextRun time.Time `json:"next_run"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.LastRun.Equal(last))
	assert.True(t, body.NextRun.Equal(next))
}

func TestTriggerCollection(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/trigger/forum/US/", map[string]string{"X-Trigger-Secret": testSecret})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"source":"forum","country":"US","count":7}`, w.Body.String())
	assert.Equal(t, []string{"forum"}, env.runner.sources)
	assert.Equal(t, []string{"US"}, env.runner.countries)
}

func TestTriggerCollectionNormalizesCountry(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodPost, "/trigger/trends/in/", map[string]string{"X-Trigger-Secret": testSecret})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"IN"}, env.runner.countries)
}

func TestTriggerCollectionRejections(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		secret string
		want   int
	}{
		{"missing secret", http.MethodPost, "/trigger/forum/US/", "", http.StatusForbidden},
		{"wrong secret", http.MethodPost, "/trigger/forum/US/", "nope", http.StatusForbidden},
		{"unknown source", http.MethodPost, "/trigger/reddit/US/", testSecret, http.StatusBadRequest},
		{"all is not a trigger source", http.MethodPost, "/trigger/all/US/", testSecret, http.StatusBadRequest},
		{"get not allowed", http.MethodGet, "/trigger/forum/US/", testSecret, http.StatusMethodNotAllowed},
		{"country too long", http.MethodPost, "/trigger/trends/UNITEDSTATES/", testSecret, http.StatusBadRequest},
		{"country with digits", http.MethodPost, "/trigger/trends/U1/", testSecret, http.StatusBadRequest},
		{"single letter country", http.MethodPost, "/trigger/trends/U/", testSecret, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			header := map[string]string{}
			if tt.secret != "" {
				header["X-Trigger-Secret"] = tt.secret
			}

			w := env.do(tt.method, tt.path, header)
			assert.Equal(t, tt.want, w.Code)
			assert.Empty(t, env.runner.sources, "collection must not run")
		})
	}
}

func TestTriggerCollectionFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.runner.err = errors.New("database is locked")

	w := env.do(http.MethodPost, "/trigger/trends/IN/", map[string]string{"X-Trigger-Secret": testSecret})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"database is locked"}`, w.Body.String())
}

func TestTriggerLockedWithoutSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := collector.NewRegistry(&stubSource{"forum"})
	runner := &mockRunner{}
	engine := NewServer(NewHandler(&mockRepo{}, &mockStatus{}, registry, runner, nil), "", []string{"*"}, false)

	req := httptest.NewRequest(http.MethodPost, "/trigger/forum/US/", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, runner.sources)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
