package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Spectra/internal/domain"
	"github.com/shaiso/Spectra/internal/engine"
	"github.com/shaiso/Spectra/internal/orchestrator"
	"github.com/shaiso/Spectra/internal/repo"
	"github.com/shaiso/Spectra/internal/stages"
)

type fakeRuns struct {
	runs   []domain.Run
	filter repo.RunFilter
	err    error
}

func (f *fakeRuns) List(_ context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	f.filter = filter
	return f.runs, f.err
}

func (f *fakeRuns) GetByID(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	for i := range f.runs {
		if f.runs[i].ID == id {
			return &f.runs[i], nil
		}
	}
	return nil, repo.ErrNotFound
}

type fakeInstances map[uuid.UUID][]domain.Instance

func (f fakeInstances) ListByRun(_ context.Context, runID uuid.UUID) ([]domain.Instance, error) {
	return f[runID], nil
}

type fakeSchedules []domain.Schedule

func (f fakeSchedules) List(context.Context) ([]domain.Schedule, error) {
	return f, nil
}

type fakeActive []orchestrator.ActiveRun

func (f fakeActive) ActiveRuns() []orchestrator.ActiveRun { return f }

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	dag, err := engine.BuildDAG(stages.Catalog())
	require.NoError(t, err)
	cfg.DAG = dag

	mux := http.NewServeMux()
	NewHandler(cfg).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, Config{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("spectra_runs_total 1\n"))
	})
	srv := newTestServer(t, Config{Metrics: metrics})

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListStages(t *testing.T) {
	srv := newTestServer(t, Config{})

	var body struct {
		Data  []StageResponse `json:"data"`
		Total int             `json:"total"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/stages", &body))
	assert.Equal(t, len(stages.Catalog().Stages), body.Total)
	assert.Equal(t, stages.ReportStage, body.Data[len(body.Data)-1].Name)
}

func TestGetGraph(t *testing.T) {
	srv := newTestServer(t, Config{})

	resp, err := http.Get(srv.URL + "/api/v1/graph")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))
}

func TestRuns(t *testing.T) {
	run := domain.NewRun(stages.PipelineName, []string{"a", "b"}, domain.DefaultParams())
	run.MarkRunning()
	run.MarkSucceeded()

	runs := &fakeRuns{runs: []domain.Run{*run}}
	instances := fakeInstances{run.ID: {{ID: uuid.New(), RunID: run.ID, Stage: "search_engine", SampleID: "a", Status: domain.InstanceStatusSucceeded}}}
	srv := newTestServer(t, Config{RunRepo: runs, InstanceRepo: instances})

	var list struct {
		Data []RunResponse `json:"data"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/runs?status=SUCCEEDED&limit=5", &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, run.ID, list.Data[0].ID)
	assert.Equal(t, domain.RunStatusSucceeded, runs.filter.Status)
	assert.Equal(t, 5, runs.filter.Limit)

	var one struct {
		Data RunResponse `json:"data"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/runs/"+run.ID.String(), &one))
	assert.Equal(t, []string{"a", "b"}, one.Data.Samples)

	var inst struct {
		Data []InstanceResponse `json:"data"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/runs/"+run.ID.String()+"/instances", &inst))
	require.Len(t, inst.Data, 1)
	assert.Equal(t, "search_engine", inst.Data[0].Stage)

	var errBody ErrorResponse
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/v1/runs/"+uuid.NewString(), &errBody))
	assert.Equal(t, ErrCodeNotFound, errBody.Error.Code)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/runs/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/api/v1/runs?limit=-1", nil))
}

func TestRuns_RepoError(t *testing.T) {
	srv := newTestServer(t, Config{RunRepo: &fakeRuns{err: errors.New("connection refused")}})

	var errBody ErrorResponse
	assert.Equal(t, http.StatusInternalServerError, getJSON(t, srv.URL+"/api/v1/runs", &errBody))
	assert.Equal(t, ErrCodeInternalError, errBody.Error.Code)
}

func TestHistoryDisabled(t *testing.T) {
	srv := newTestServer(t, Config{})

	for _, path := range []string{"/api/v1/runs", "/api/v1/runs/" + uuid.NewString(), "/api/v1/schedules"} {
		var errBody ErrorResponse
		assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, srv.URL+path, &errBody), path)
		assert.Equal(t, ErrCodeUnavailable, errBody.Error.Code)
	}
}

func TestListActiveRuns(t *testing.T) {
	runID := uuid.New()
	active := fakeActive{{
		RunID:     runID,
		Pipeline:  stages.PipelineName,
		Samples:   3,
		StartedAt: time.Now(),
		Stats:     orchestrator.RunStats{Total: 10, Completed: 6, Running: 2, Pending: 2},
	}}
	srv := newTestServer(t, Config{Active: active})

	var body struct {
		Data []ActiveRunResponse `json:"data"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/active", &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, runID, body.Data[0].RunID)
	assert.Equal(t, 6, body.Data[0].Completed)
	assert.Equal(t, 2, body.Data[0].Running)
}

func TestListActiveRuns_Empty(t *testing.T) {
	srv := newTestServer(t, Config{})

	var body ListResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/active", &body))
	assert.Equal(t, 0, body.Total)
	assert.Equal(t, []any{}, body.Data)
}

func TestListSchedules(t *testing.T) {
	sched := domain.NewSchedule("nightly", "0 2 * * *", "UTC")
	srv := newTestServer(t, Config{ScheduleRepo: fakeSchedules{*sched}})

	var body struct {
		Data []ScheduleResponse `json:"data"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/schedules", &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "nightly", body.Data[0].Name)
	assert.True(t, body.Data[0].Enabled)
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Chain(Recovery(logger), Logging(logger))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
