package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skycrane/skycrane/pkg/jobs"
)

func TestSetVersionInfo(t *testing.T) {
	origVersion := versionInfo.Version
	origCommit := versionInfo.Commit
	origBuildDate := versionInfo.BuildDate
	defer func() {
		versionInfo.Version = origVersion
		versionInfo.Commit = origCommit
		versionInfo.BuildDate = origBuildDate
	}()

	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
	}{
		{name: "release build", version: "1.2.0", commit: "abc123", buildDate: "2026-08-01"},
		{name: "dev build", version: "dev", commit: "HEAD", buildDate: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetVersionInfo(tt.version, tt.commit, tt.buildDate)

			assert.Equal(t, tt.version, versionInfo.Version)
			assert.Equal(t, tt.commit, versionInfo.Commit)
			assert.Equal(t, tt.buildDate, versionInfo.BuildDate)
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitGeneralError, ExitCode(errors.New("plain error")))
	assert.Equal(t, ExitResourceNotFound, ExitCode(exitError(ExitResourceNotFound, "missing", nil)))

	wrapped := exitError(ExitExecutionFailed, "install failed", errors.New("boom"))
	assert.Equal(t, ExitExecutionFailed, ExitCode(wrapped))
	assert.ErrorContains(t, wrapped, "install failed")
	assert.ErrorContains(t, wrapped, "boom")
}

func TestParseSetValues(t *testing.T) {
	got, err := parseSetValues([]string{"db_host=10.0.0.5", "replicas=3", "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"db_host":  "10.0.0.5",
		"replicas": "3",
		"note":     "a=b",
	}, got)

	_, err = parseSetValues([]string{"no-separator"})
	assert.Error(t, err)

	got, err = parseSetValues(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestResolveJobByPrefix(t *testing.T) {
	m, err := jobs.NewManager(nil, nil)
	require.NoError(t, err)
	job := m.Create("server.create", map[string]any{"name": "web-1"})

	byFull, err := resolveJob(m, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, byFull.ID)

	byPrefix, err := resolveJob(m, job.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, job.ID, byPrefix.ID)

	_, err = resolveJob(m, "ffffffff")
	assert.Error(t, err)

	_, err = resolveJob(m, "  ")
	assert.Error(t, err)
}

func TestShortJobID(t *testing.T) {
	assert.Equal(t, "abc", shortJobID("abc"))
	assert.Equal(t, "0123456789ab", shortJobID("0123456789abcdef-0000"))
}
