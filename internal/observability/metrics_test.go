package observability

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycrane/skycrane/pkg/jobs"
)

func TestNewMetricsIndependentInstances(t *testing.T) {
	// Two instances must not collide on registration.
	m1 := NewMetrics()
	m2 := NewMetrics()
	assert.NotNil(t, m1)
	assert.NotNil(t, m2)
}

func TestMetricsHandlerExposesCounters(t *testing.T) {
	m := NewMetrics()
	m.JobsCreated.WithLabelValues("app.deploy").Inc()
	m.JobsFailed.WithLabelValues("app.deploy").Inc()
	m.DeploySteps.WithLabelValues("installed").Add(3)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `skycrane_jobs_created_total{job_type="app.deploy"} 1`)
	assert.Contains(t, body, `skycrane_jobs_failed_total{job_type="app.deploy"} 1`)
	assert.Contains(t, body, `skycrane_deploy_steps_total{status="installed"} 3`)
}

func TestInstrumentJobCountsOutcomes(t *testing.T) {
	m := NewMetrics()
	ctx := context.Background()
	job := &jobs.Job{ID: "j1", Type: "server.create"}

	ok := m.InstrumentJob("server.create", func(context.Context, *jobs.Job) (map[string]any, error) {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsInFlight))
		return map[string]any{"done": true}, nil
	})
	_, err := ok(ctx, job)
	require.NoError(t, err)

	failing := m.InstrumentJob("server.create", func(context.Context, *jobs.Job) (map[string]any, error) {
		return nil, errors.New("provider exploded")
	})
	_, err = failing(ctx, job)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsCompleted.WithLabelValues("server.create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsFailed.WithLabelValues("server.create")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.JobsInFlight))
}

func TestInstrumentJobCountsPanicsAsFailures(t *testing.T) {
	m := NewMetrics()
	panicking := m.InstrumentJob("app.deploy", func(context.Context, *jobs.Job) (map[string]any, error) {
		panic("installer blew up")
	})

	assert.Panics(t, func() {
		_, _ = panicking(context.Background(), &jobs.Job{ID: "j2", Type: "app.deploy"})
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsFailed.WithLabelValues("app.deploy")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.JobsInFlight))
}

func TestInstrumentRegistryWrapsEveryType(t *testing.T) {
	m := NewMetrics()
	reg := jobs.NewRegistry()
	reg.Register("server.create", func(context.Context, *jobs.Job) (map[string]any, error) {
		return nil, nil
	})
	reg.Register("app.deploy", func(context.Context, *jobs.Job) (map[string]any, error) {
		return nil, errors.New("nope")
	})
	m.InstrumentRegistry(reg)

	for _, jobType := range reg.Types() {
		fn, err := reg.Lookup(jobType)
		require.NoError(t, err)
		_, _ = fn(context.Background(), &jobs.Job{ID: jobType, Type: jobType})
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsCompleted.WithLabelValues("server.create")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsFailed.WithLabelValues("app.deploy")))
}

func TestInitRejectsBadLevel(t *testing.T) {
	assert.Error(t, Init("shouting", "console"))
	assert.NoError(t, Init("debug", "structured"))
	assert.NoError(t, Init("info", "console"))
}
