package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycrane/skycrane/internal/config"
	"github.com/skycrane/skycrane/pkg/jobs"
	"github.com/skycrane/skycrane/pkg/orchestrator"
)

func testRuntimeConfig(t *testing.T) *config.Config {
	t.Helper()
	dataDir := t.TempDir()

	catalogDir := filepath.Join(dataDir, "apps")
	require.NoError(t, os.MkdirAll(catalogDir, 0755))
	manifest := `apps:
  - name: caddy
    image: caddy:2
  - name: n8n
    image: n8nio/n8n
    depends_on: [caddy]
`
	require.NoError(t, os.WriteFile(filepath.Join(catalogDir, "apps.yaml"), []byte(manifest), 0644))

	return &config.Config{
		DataDir: dataDir,
		Catalog: config.CatalogConfig{Dir: catalogDir},
		Deploy:  config.DeployConfig{SettleDelay: time.Millisecond},
	}
}

func withTestConfig(t *testing.T, c *config.Config) {
	t.Helper()
	orig := cfg
	cfg = c
	t.Cleanup(func() { cfg = orig })
}

func TestRunJobInlineCompletesAndInstruments(t *testing.T) {
	withTestConfig(t, testRuntimeConfig(t))

	rt, err := openRuntime(context.Background())
	require.NoError(t, err)
	defer rt.Close()

	job, err := rt.runJobInline(context.Background(), orchestrator.JobTypeCreateServer, map[string]any{
		"name":     "web-1",
		"provider": "hetzner",
	})
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, job.Status)
	assert.Equal(t, "web-1", job.Result["name"])

	// The instrumented registry counts the run, inline or dispatched.
	assert.Equal(t, 1.0, testutil.ToFloat64(rt.metrics.JobsCreated.WithLabelValues(orchestrator.JobTypeCreateServer)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rt.metrics.JobsCompleted.WithLabelValues(orchestrator.JobTypeCreateServer)))
	assert.Equal(t, 0.0, testutil.ToFloat64(rt.metrics.JobsInFlight))
}

func TestRunJobInlineWritesJobLogFile(t *testing.T) {
	withTestConfig(t, testRuntimeConfig(t))

	rt, err := openRuntime(context.Background())
	require.NoError(t, err)
	defer rt.Close()

	_, err = rt.runJobInline(context.Background(), orchestrator.JobTypeCreateServer, map[string]any{
		"name": "web-1",
	})
	require.NoError(t, err)

	job := rt.manager.List(jobs.ListOptions{})[0]
	assert.NotEmpty(t, job.LogPath)

	lines, err := rt.capture.GetRecentLogs(job.ID, 50)
	require.NoError(t, err)
	assert.NotEmpty(t, lines, "progress steps should land in the job log file")
}

func TestRunJobInlineFailureCountsDeploySteps(t *testing.T) {
	withTestConfig(t, testRuntimeConfig(t))

	rt, err := openRuntime(context.Background())
	require.NoError(t, err)
	defer rt.Close()

	created, err := rt.runJobInline(context.Background(), orchestrator.JobTypeCreateServer, map[string]any{
		"name": "web-1",
	})
	require.NoError(t, err)
	require.Equal(t, jobs.StatusCompleted, created.Status)

	deployed, err := rt.runJobInline(context.Background(), orchestrator.JobTypeDeployApp, map[string]any{
		"server": "web-1",
		"app":    "n8n",
	})
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, deployed.Status)

	// caddy then n8n, both recorded as installed steps.
	assert.Equal(t, 2.0, testutil.ToFloat64(rt.metrics.DeploySteps.WithLabelValues("installed")))
}
