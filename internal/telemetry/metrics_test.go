package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Spectra/internal/domain"
)

func TestMetrics_Instances(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.InstanceStarted("search_engine")
	m.InstanceStarted("search_engine")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.running.WithLabelValues("search_engine")))

	m.InstanceFinished("search_engine", domain.InstanceStatusSucceeded, time.Second)
	m.InstanceFinished("search_engine", domain.InstanceStatusFailed, time.Second)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.running.WithLabelValues("search_engine")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.instances.WithLabelValues("search_engine", "SUCCEEDED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.instances.WithLabelValues("search_engine", "FAILED")))
}

func TestMetrics_RunFinished(t *testing.T) {
	m := NewMetrics(nil)
	m.RunFinished(domain.RunStatusSucceeded, time.Minute)
	m.RunFinished(domain.RunStatusFailed, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("SUCCEEDED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("FAILED")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.InstanceStarted("x")
		m.InstanceFinished("x", domain.InstanceStatusSucceeded, time.Second)
		m.RunFinished(domain.RunStatusSucceeded, time.Second)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RunFinished(domain.RunStatusSucceeded, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "spectra_runs_total"))
}
