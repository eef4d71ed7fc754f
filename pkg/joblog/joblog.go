// Package joblog captures free-text job output to per-job log files.
//
// Layout on disk:
//
//	<root>/<job_id>/job.log
//
// Whatever wraps a job run brackets it with StartJobLogging and
// StopJobLogging; GetRecentLogs tails the file afterwards.
package joblog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Capture manages per-job log files under a root directory.
type Capture struct {
	root string

	mu   sync.Mutex
	open map[string]*os.File
}

func NewCapture(root string) *Capture {
	return &Capture{
		root: root,
		open: make(map[string]*os.File),
	}
}

// JobDir returns the directory holding one job's log artifacts.
func (c *Capture) JobDir(jobID string) string {
	return filepath.Join(c.root, jobID)
}

// LogPath returns the path of one job's log file.
func (c *Capture) LogPath(jobID string) string {
	return filepath.Join(c.JobDir(jobID), "job.log")
}

// StartJobLogging opens the log file for a job and returns its path. Calling
// it twice for the same id returns the already-open file's path.
func (c *Capture) StartJobLogging(jobID string) (string, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return "", fmt.Errorf("job id is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.open[jobID]; ok {
		return c.LogPath(jobID), nil
	}

	if err := os.MkdirAll(c.JobDir(jobID), 0755); err != nil {
		return "", fmt.Errorf("create job log dir: %w", err)
	}
	f, err := os.OpenFile(c.LogPath(jobID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("create job log: %w", err)
	}
	c.open[jobID] = f
	return c.LogPath(jobID), nil
}

// Write appends one timestamped line to a job's open log. Lines written to a
// job that has no open log are dropped.
func (c *Capture) Write(jobID string, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.open[jobID]
	if !ok {
		return
	}
	_, _ = fmt.Fprintf(f, "%s %s\n", time.Now().UTC().Format(time.RFC3339), message)
}

// StopJobLogging closes a job's log file. Stopping an unknown or already
// stopped id is a no-op.
func (c *Capture) StopJobLogging(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.open[jobID]
	if !ok {
		return
	}
	_ = f.Close()
	delete(c.open, jobID)
}

// GetRecentLogs returns the last limit lines of a job's log file, oldest
// first. A missing file yields an empty slice, not an error: a job may
// legitimately have produced no output.
func (c *Capture) GetRecentLogs(jobID string, limit int) ([]string, error) {
	f, err := os.Open(c.LogPath(jobID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return tailLines(f, limit)
}

// tailLines keeps a sliding window of the last n lines while scanning.
func tailLines(r io.Reader, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	scanner := bufio.NewScanner(r)
	buf := make([]string, 0, n)

	for scanner.Scan() {
		line := scanner.Text()
		if len(buf) < n {
			buf = append(buf, line)
			continue
		}
		copy(buf, buf[1:])
		buf[n-1] = line
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return buf, nil
}
