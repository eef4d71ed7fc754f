// Package jobs implements tracked asynchronous units of work: the Job
// record, the Manager that owns and persists them, the executor-function
// registry, and the background Executor loop that dispatches pending jobs.
package jobs

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Job.
//
// NOTE: These values are persisted in the jobs snapshot and are part of the
// stable on-disk contract.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is a final state with no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// LogEntry is one timestamped line appended to a Job's log during a run.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Job is the persistent record for one asynchronous operation.
//
// Status only moves forward through pending -> running -> terminal. Cancelled
// is reachable only from pending. Result and Error are mutually exclusive:
// exactly one of them is set once the job reaches completed or failed.
//
// The schema is designed for backward-compatible extension (additive fields).
type Job struct {
	ID          string         `json:"job_id"`
	Type        string         `json:"job_type"`
	Status      Status         `json:"status"`
	Params      map[string]any `json:"params,omitempty"`
	Progress    int            `json:"progress"`
	CurrentStep string         `json:"current_step,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Logs []LogEntry `json:"logs,omitempty"`

	// LogPath points at an external per-job log artifact owned by the log
	// capture collaborator, not by the job itself.
	LogPath string `json:"log_path,omitempty"`
}

// New allocates a pending Job with a fresh id.
func New(jobType string, params map[string]any) *Job {
	return &Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Status:    StatusPending,
		Params:    params,
		CreatedAt: time.Now().UTC(),
	}
}

// MarkStarted moves the job into the running state and stamps started_at.
func (j *Job) MarkStarted() {
	now := time.Now().UTC()
	j.Status = StatusRunning
	j.StartedAt = &now
}

// UpdateProgress records a progress step and appends it to the job log.
// Progress is clamped to 0..100 and never moves backwards within a run.
func (j *Job) UpdateProgress(percent int, step string) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if percent > j.Progress {
		j.Progress = percent
	}
	j.CurrentStep = step
	j.AddLog(step)
}

// AddLog appends a timestamped message to the job log. The log is append-only
// and never truncated during a run.
func (j *Job) AddLog(message string) {
	j.Logs = append(j.Logs, LogEntry{Time: time.Now().UTC(), Message: message})
}

// MarkCompleted moves the job into a terminal state. An empty errMsg means
// success: status becomes completed, progress is forced to 100, and result is
// kept. A non-empty errMsg means failure: status becomes failed, the message
// is recorded, and any result is discarded.
func (j *Job) MarkCompleted(result map[string]any, errMsg string) {
	now := time.Now().UTC()
	j.CompletedAt = &now
	if errMsg != "" {
		j.Status = StatusFailed
		j.Error = errMsg
		j.Result = nil
		return
	}
	j.Status = StatusCompleted
	j.Result = result
	j.Error = ""
	j.Progress = 100
}

// MarkCancelled moves the job into the cancelled state. Callers are
// responsible for only cancelling pending jobs; see Manager.Cancel.
func (j *Job) MarkCancelled() {
	now := time.Now().UTC()
	j.Status = StatusCancelled
	j.CompletedAt = &now
}

// Clone returns a deep-enough copy for safe hand-off across goroutines once
// the job has been read out of the manager.
func (j *Job) Clone() *Job {
	cp := *j
	if j.Logs != nil {
		cp.Logs = make([]LogEntry, len(j.Logs))
		copy(cp.Logs, j.Logs)
	}
	return &cp
}
