package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexconsult/precatorios/internal/logger"
	"github.com/nexconsult/precatorios/internal/models"
	"github.com/nexconsult/precatorios/internal/pipeline"
	"github.com/nexconsult/precatorios/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRuns struct {
	started []pipeline.RunRequest
	runs    map[string]services.RunState
	active  string
	err     error
	events  chan models.ProgressEvent
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{runs: make(map[string]services.RunState)}
}

func (f *fakeRuns) Start(req pipeline.RunRequest) (services.RunState, error) {
	if f.err != nil {
		return services.RunState{}, f.err
	}
	if req.RunID == "" {
		req.RunID = "generated"
	}
	f.started = append(f.started, req)
	state := services.RunState{ID: req.RunID, Status: services.RunQueued, Request: req, StartedAt: time.Now()}
	f.runs[req.RunID] = state
	return state, nil
}

func (f *fakeRuns) Get(id string) (services.RunState, error) {
	state, ok := f.runs[id]
	if !ok {
		return services.RunState{}, services.ErrRunNotFound
	}
	return state, nil
}

func (f *fakeRuns) List() []services.RunState {
	out := make([]services.RunState, 0, len(f.runs))
	for _, state := range f.runs {
		out = append(out, state)
	}
	return out
}

func (f *fakeRuns) Active() (string, bool) {
	return f.active, f.active != ""
}

func (f *fakeRuns) Subscribe(id string) (<-chan models.ProgressEvent, func(), error) {
	if _, ok := f.runs[id]; !ok {
		return nil, nil, services.ErrRunNotFound
	}
	return f.events, func() {}, nil
}

type fakeJournal struct {
	outcomes map[string][]models.PartitionOutcome
	err      error
}

func (j *fakeJournal) Load(ctx context.Context, runID string) ([]models.PartitionOutcome, error) {
	return j.outcomes[runID], j.err
}

type fakeLister struct {
	partitions map[models.Regime][]models.Partition
	err        error
}

func (l *fakeLister) ListPartitions(ctx context.Context, regime models.Regime) ([]models.Partition, error) {
	return l.partitions[regime], l.err
}

type fakeChecker map[string]interface{}

func (f fakeChecker) Health() map[string]interface{} { return f }

type fakeStats map[string]interface{}

func (f fakeStats) GetStats() map[string]interface{} { return f }

type fakePool pipeline.PoolStats

func (f fakePool) Stats() pipeline.PoolStats { return pipeline.PoolStats(f) }

func testLister() *fakeLister {
	return &fakeLister{partitions: map[models.Regime][]models.Partition{
		models.RegimeGeral: {
			{ID: 1, Name: "Estado do Rio de Janeiro", ExpectedRecords: 100, Regime: models.RegimeGeral},
			{ID: 2, Name: "Município do Rio de Janeiro", ExpectedRecords: 20, Regime: models.RegimeGeral},
		},
		models.RegimeEspecial: {
			{ID: 42, Name: "Município de Niterói", ExpectedRecords: 35, Regime: models.RegimeEspecial},
		},
	}}
}

func newTestRouter(runs *fakeRuns, journal *fakeJournal, lister *fakeLister) *gin.Engine {
	log := logger.Discard()
	router := gin.New()

	h := NewRunsHandler(runs, journal, lister, pipeline.NewGapDetector(0.95), models.RegimeGeral, log)
	router.POST("/api/v1/runs", h.StartRun)
	router.GET("/api/v1/runs", h.ListRuns)
	router.GET("/api/v1/runs/:id", h.GetRun)
	router.GET("/api/v1/runs/:id/outcomes", h.GetOutcomes)
	router.GET("/api/v1/runs/:id/gaps", h.GetGaps)
	router.GET("/api/v1/runs/:id/events", h.GetEvents)

	p := NewPartitionsHandler(lister, models.RegimeGeral, log)
	router.GET("/api/v1/partitions", p.ListPartitions)
	return router
}

func do(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, models.StandardResponse) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp models.StandardResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func TestStartRun(t *testing.T) {
	runs := newFakeRuns()
	router := newTestRouter(runs, &fakeJournal{}, testLister())

	w, resp := do(t, router, http.MethodPost, "/api/v1/runs", `{"regime":"especial","entity_id":42,"workers":4,"skip_recovery":true}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, models.ResponseSuccess, resp.Status)
	assert.Equal(t, "/api/v1/runs/generated", w.Header().Get("Location"))

	require.Len(t, runs.started, 1)
	assert.Equal(t, pipeline.RunRequest{Regime: models.RegimeEspecial, EntityID: 42, Workers: 4, SkipRecovery: true, RunID: "generated"}, runs.started[0])
}

func TestStartRunWithoutBody(t *testing.T) {
	runs := newFakeRuns()
	router := newTestRouter(runs, &fakeJournal{}, testLister())

	w, _ := do(t, router, http.MethodPost, "/api/v1/runs", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, runs.started, 1)
	assert.Equal(t, models.Regime(""), runs.started[0].Regime)
}

func TestStartRunValidation(t *testing.T) {
	router := newTestRouter(newFakeRuns(), &fakeJournal{}, testLister())

	for _, body := range []string{`{"regime":"misto"}`, `{"workers":-1}`, `{"workers":`} {
		w, resp := do(t, router, http.MethodPost, "/api/v1/runs", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		require.NotNil(t, resp.Error)
		assert.Equal(t, models.ErrorCodeInvalidRequest, resp.Error.Code)
	}
}

func TestStartRunConflict(t *testing.T) {
	runs := newFakeRuns()
	runs.err = services.ErrRunInProgress
	runs.active = "busy"
	router := newTestRouter(runs, &fakeJournal{}, testLister())

	w, resp := do(t, router, http.MethodPost, "/api/v1/runs", `{}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.ErrorCodeRunInProgress, resp.Error.Code)
	assert.Equal(t, map[string]interface{}{"active_run": "busy"}, resp.Error.Details)
}

func TestStartRunInternalError(t *testing.T) {
	runs := newFakeRuns()
	runs.err = errors.New("boom")
	router := newTestRouter(runs, &fakeJournal{}, testLister())

	w, resp := do(t, router, http.MethodPost, "/api/v1/runs", `{}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, models.ErrorCodeInternalError, resp.Error.Code)
}

func TestGetRun(t *testing.T) {
	runs := newFakeRuns()
	runs.runs["r1"] = services.RunState{
		ID:     "r1",
		Status: services.RunCompleted,
		Result: &models.RunResult{RunID: "r1", Outcomes: []models.PartitionOutcome{{PartitionID: 1}}},
	}
	router := newTestRouter(runs, &fakeJournal{}, testLister())

	w, resp := do(t, router, http.MethodGet, "/api/v1/runs/r1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "r1", data["run_id"])
	assert.Equal(t, "completed", data["status"])

	w, resp = do(t, router, http.MethodGet, "/api/v1/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, models.ErrorCodeRunNotFound, resp.Error.Code)
}

func TestListRunsDropsOutcomes(t *testing.T) {
	runs := newFakeRuns()
	result := &models.RunResult{RunID: "r1", Outcomes: []models.PartitionOutcome{{PartitionID: 1}}}
	runs.runs["r1"] = services.RunState{ID: "r1", Status: services.RunCompleted, Result: result}
	router := newTestRouter(runs, &fakeJournal{}, testLister())

	w, resp := do(t, router, http.MethodGet, "/api/v1/runs", "")
	assert.Equal(t, http.StatusOK, w.Code)
	list := resp.Data.([]interface{})
	require.Len(t, list, 1)
	listed := list[0].(map[string]interface{})["result"].(map[string]interface{})
	assert.Nil(t, listed["outcomes"])
	assert.Len(t, result.Outcomes, 1)
}

func TestGetOutcomes(t *testing.T) {
	runs := newFakeRuns()
	journal := &fakeJournal{outcomes: map[string][]models.PartitionOutcome{
		"old": {{PartitionID: 1, Pass: models.PassPrimary, Status: models.StatusSuccess, RecordsExtracted: 100}},
	}}
	router := newTestRouter(runs, journal, testLister())

	w, resp := do(t, router, http.MethodGet, "/api/v1/runs/old/outcomes", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data.([]interface{}), 1)

	w, resp = do(t, router, http.MethodGet, "/api/v1/runs/unknown/outcomes", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, models.ErrorCodeRunNotFound, resp.Error.Code)

	journal.err = errors.New("redis down")
	w, resp = do(t, router, http.MethodGet, "/api/v1/runs/old/outcomes", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, models.ErrorCodeJournalError, resp.Error.Code)
}

func TestGetGaps(t *testing.T) {
	runs := newFakeRuns()
	journal := &fakeJournal{outcomes: map[string][]models.PartitionOutcome{
		"r1": {{PartitionID: 1, Pass: models.PassPrimary, Status: models.StatusSuccess, RecordsExtracted: 100, ExpectedRecords: 100}},
	}}
	router := newTestRouter(runs, journal, testLister())

	w, resp := do(t, router, http.MethodGet, "/api/v1/runs/r1/gaps", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(2), data["partitions"])
	assert.Equal(t, float64(1), data["flagged"])
	gap := data["gaps"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "not_attempted", gap["status"])

	w, _ = do(t, router, http.MethodGet, "/api/v1/runs/r1/gaps?regime=misto", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetGapsUsesRunScope(t *testing.T) {
	runs := newFakeRuns()
	runs.runs["r1"] = services.RunState{ID: "r1", Request: pipeline.RunRequest{Regime: models.RegimeEspecial, EntityID: 42}}
	router := newTestRouter(runs, &fakeJournal{}, testLister())

	w, resp := do(t, router, http.MethodGet, "/api/v1/runs/r1/gaps", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "especial", data["regime"])
	assert.Equal(t, float64(1), data["partitions"])
}

func TestListPartitions(t *testing.T) {
	lister := testLister()
	router := newTestRouter(newFakeRuns(), &fakeJournal{}, lister)

	w, resp := do(t, router, http.MethodGet, "/api/v1/partitions", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(2), data["count"])
	assert.Equal(t, float64(120), data["expected_records"])

	w, resp = do(t, router, http.MethodGet, "/api/v1/partitions?regime=especial", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "especial", resp.Data.(map[string]interface{})["regime"])

	lister.err = errors.New("portal down")
	w, resp = do(t, router, http.MethodGet, "/api/v1/partitions", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, models.ErrorCodeListingFailed, resp.Error.Code)
}

func TestHealthEndpoints(t *testing.T) {
	checker := fakeChecker{
		"cache":   map[string]interface{}{"status": "degraded"},
		"browser": map[string]interface{}{"status": "healthy"},
	}
	h := NewHealthHandler(checker, logger.Discard())
	router := gin.New()
	router.GET("/health", h.GetHealth)
	router.GET("/health/ready", h.GetReadiness)
	router.GET("/health/live", h.GetLiveness)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var health models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "degraded", health.Status)

	checker["browser"] = map[string]interface{}{"status": "unhealthy", "error": "closed"}
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetrics(t *testing.T) {
	runs := newFakeRuns()
	runs.runs["a"] = services.RunState{ID: "a", Status: services.RunCompleted}
	runs.runs["b"] = services.RunState{ID: "b", Status: services.RunRunning}
	runs.active = "b"

	h := NewMetricsHandler(
		fakePool{PagesOK: 10, PagesFailed: 2, WorkersStarted: 3},
		runs,
		fakeStats{"redis_enabled": false, "hits": int64(3), "misses": int64(1), "memory_size": 2},
		fakeStats{"active_browsers": int64(1), "max_browsers": 11, "launched": int64(4)},
		fakeStats{"active_clients": 1},
		logger.Discard(),
	)
	router := gin.New()
	router.GET("/metrics", h.GetMetrics)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var metrics models.MetricsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &metrics))
	assert.Equal(t, int64(10), metrics.Pipeline.PagesOK)
	assert.Equal(t, models.RunMetrics{Active: true, ActiveID: "b", Total: 2, Completed: 1}, metrics.Runs)
	assert.InDelta(t, 75.0, metrics.Cache.HitRate, 0.001)
	assert.Equal(t, 2, metrics.Cache.Size)
	assert.Equal(t, 11, metrics.Browser.MaxBrowsers)
	assert.Equal(t, int64(4), metrics.Browser.Launched)
}

// closeNotifyingRecorder satisfies the http.CloseNotifier that gin streams need
type closeNotifyingRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyingRecorder) CloseNotify() <-chan bool {
	return r.closed
}

func TestGetEvents(t *testing.T) {
	runs := newFakeRuns()
	runs.runs["r1"] = services.RunState{ID: "r1", Status: services.RunRunning, StartedAt: time.Now()}
	runs.events = make(chan models.ProgressEvent, 2)
	runs.events <- models.ProgressEvent{Kind: models.ProgressPhase, Phase: models.PhaseExtraction}
	close(runs.events)
	router := newTestRouter(runs, &fakeJournal{}, testLister())

	w := &closeNotifyingRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool)}
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/r1/events", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "event:status")
	assert.Contains(t, body, "event:progress")
	assert.Contains(t, body, `"phase":"extraction"`)
	// the fake run never finishes, so the stream ends with its status
	assert.Equal(t, 2, strings.Count(body, "event:status"))
}

func TestGetEventsUnknownRun(t *testing.T) {
	router := newTestRouter(newFakeRuns(), &fakeJournal{}, testLister())
	w, resp := do(t, router, http.MethodGet, "/api/v1/runs/nope/events", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, models.ErrorCodeRunNotFound, resp.Error.Code)
}
