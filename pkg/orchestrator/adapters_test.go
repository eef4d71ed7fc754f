package orchestrator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skycrane/skycrane/pkg/jobs"
	"github.com/skycrane/skycrane/pkg/statestore"
)

func mustServer(name string) *statestore.ServerRecord {
	return &statestore.ServerRecord{Name: name, Status: statestore.ServerStatusReady}
}

func newTestJobs(t *testing.T) (*jobs.Manager, *jobs.Registry) {
	t.Helper()
	snap := jobs.NewFileSnapshot(filepath.Join(t.TempDir(), "jobs.json"))
	m, err := jobs.NewManager(snap, zap.NewNop())
	require.NoError(t, err)
	return m, jobs.NewRegistry()
}

func TestRegisterAllBindsEveryJobType(t *testing.T) {
	rig := newTestRig(t)
	m, reg := newTestJobs(t)
	RegisterAll(reg, rig.orch, m)

	for _, jt := range []string{
		JobTypeCreateServer,
		JobTypeSetupServer,
		JobTypeDeleteServer,
		JobTypeDeployApp,
		JobTypeUndeployApp,
	} {
		_, err := reg.Lookup(jt)
		assert.NoError(t, err, jt)
	}
}

func TestCreateServerJob(t *testing.T) {
	rig := newTestRig(t)
	m, reg := newTestJobs(t)
	RegisterAll(reg, rig.orch, m)

	job := m.Create(JobTypeCreateServer, map[string]any{
		"name":        "web-1",
		"provider":    "hetzner",
		"server_type": "cx22",
		"region":      "fsn1",
		"image":       "ubuntu-24.04",
	})
	fn, err := reg.Lookup(JobTypeCreateServer)
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background(), job.ID, fn))

	done, err := m.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, done.Status)
	assert.Equal(t, "web-1", done.Result["name"])
	assert.Equal(t, "203.0.113.10", done.Result["ip_address"])
	assert.Equal(t, 100, done.Progress)
}

func TestDeployAppJobReportsProgress(t *testing.T) {
	rig := newTestRig(t)
	rig.store.servers["web-1"] = mustServer("web-1")
	m, reg := newTestJobs(t)
	RegisterAll(reg, rig.orch, m)

	job := m.Create(JobTypeDeployApp, map[string]any{
		"server": "web-1",
		"app":    "n8n",
	})
	fn, err := reg.Lookup(JobTypeDeployApp)
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background(), job.ID, fn))

	done, err := m.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, done.Status)
	assert.ElementsMatch(t, []any{"postgres", "redis", "n8n"}, done.Result["installed"])
	assert.NotEmpty(t, done.Logs, "progress updates append job log entries")
}

func TestDeployAppJobFailureSurfacesPartialInstalls(t *testing.T) {
	rig := newTestRig(t)
	rig.store.servers["web-1"] = mustServer("web-1")
	rig.inst.failOn = "redis"
	m, reg := newTestJobs(t)
	RegisterAll(reg, rig.orch, m)

	job := m.Create(JobTypeDeployApp, map[string]any{
		"server": "web-1",
		"app":    "n8n",
	})
	fn, err := reg.Lookup(JobTypeDeployApp)
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background(), job.ID, fn))

	done, err := m.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, done.Status)
	assert.Contains(t, done.Error, "redis")
	assert.Nil(t, done.Result)

	var sawPartial bool
	for _, entry := range done.Logs {
		if entry.Message == "installed before failure: [postgres]" {
			sawPartial = true
		}
	}
	assert.True(t, sawPartial, "partial install list should be logged on the job")
}

func TestDeleteServerJob(t *testing.T) {
	rig := newTestRig(t)
	rig.store.servers["web-1"] = mustServer("web-1")
	m, reg := newTestJobs(t)
	RegisterAll(reg, rig.orch, m)

	job := m.Create(JobTypeDeleteServer, map[string]any{"name": "web-1"})
	fn, err := reg.Lookup(JobTypeDeleteServer)
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background(), job.ID, fn))

	done, err := m.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, done.Status)
	assert.Equal(t, "web-1", done.Result["deleted"])
}

func TestSetupServerJobDecodesAppList(t *testing.T) {
	rig := newTestRig(t)
	rig.store.servers["web-1"] = mustServer("web-1")
	m, reg := newTestJobs(t)
	RegisterAll(reg, rig.orch, m)

	// Params arrive as generic JSON shapes, []any included.
	job := m.Create(JobTypeSetupServer, map[string]any{
		"name": "web-1",
		"apps": []any{"caddy"},
	})
	fn, err := reg.Lookup(JobTypeSetupServer)
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background(), job.ID, fn))

	done, err := m.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, done.Status)
	assert.Equal(t, []string{"caddy"}, rig.inst.installed)
}

func TestUndeployAppJobUnknownServerFailsJob(t *testing.T) {
	rig := newTestRig(t)
	m, reg := newTestJobs(t)
	RegisterAll(reg, rig.orch, m)

	job := m.Create(JobTypeUndeployApp, map[string]any{
		"server": "ghost",
		"app":    "caddy",
	})
	fn, err := reg.Lookup(JobTypeUndeployApp)
	require.NoError(t, err)
	require.NoError(t, m.Run(context.Background(), job.ID, fn))

	done, err := m.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, done.Status)
	assert.NotEmpty(t, done.Error)
}
