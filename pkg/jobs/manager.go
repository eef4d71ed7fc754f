package jobs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Func is an executor function bound to a job type. It performs the actual
// work for one job and returns a result map or an error. Errors never escape
// Manager.Run; they are converted into a failed terminal state.
type Func func(ctx context.Context, job *Job) (map[string]any, error)

// Manager owns the set of all jobs and their persistence.
//
// The internal map and the snapshot write are the only structures touched by
// more than one goroutine, so every mutation happens under the manager lock.
// Each job's task runs in its own goroutine and reports progress back through
// the manager, keyed by job id.
type Manager struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	snap   Snapshotter
	sink   LogSink
	logger *zap.Logger
}

// LogSink receives every log line recorded on a job, so an external log
// capture can mirror the job's activity into per-job files. The sink is
// called after the manager lock is released and must not call back into
// the manager.
type LogSink func(jobID, message string)

// NewManager constructs a manager and loads any previously persisted jobs.
// The snapshot must reconstruct jobs faithfully, including status and logs.
func NewManager(snap Snapshotter, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		jobs:   make(map[string]*Job),
		snap:   snap,
		logger: logger,
	}
	if snap != nil {
		loaded, err := snap.LoadJobs()
		if err != nil {
			return nil, fmt.Errorf("load jobs: %w", err)
		}
		for _, j := range loaded {
			if j == nil || strings.TrimSpace(j.ID) == "" {
				continue
			}
			m.jobs[j.ID] = j
		}
	}
	return m, nil
}

// CreateOption customizes job creation.
type CreateOption func(*Job)

// WithID overrides the generated job id. Used by callers that allocate ids
// up front (e.g. to return them before the job is dispatched).
func WithID(id string) CreateOption {
	return func(j *Job) {
		if strings.TrimSpace(id) != "" {
			j.ID = id
		}
	}
}

// Create allocates a new pending job, inserts it, and persists the snapshot.
func (m *Manager) Create(jobType string, params map[string]any, opts ...CreateOption) *Job {
	j := New(jobType, params)
	for _, opt := range opts {
		opt(j)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[j.ID] = j
	m.persistLocked()

	m.logger.Debug("job created",
		zap.String("job_id", j.ID),
		zap.String("job_type", j.Type))
	return j.Clone()
}

// Get returns a copy of the job with the given id.
func (m *Manager) Get(id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, &JobError{Op: "Get", JobID: id, Err: ErrJobNotFound}
	}
	return j.Clone(), nil
}

// ListOptions filters the job listing. Zero values mean "no filter".
type ListOptions struct {
	Status Status
	Type   string
	Limit  int
}

// List returns jobs matching the filter, newest-first by creation time.
// Limit truncates after ordering, so a limited listing always returns the
// most recently created matches.
func (m *Manager) List(opts ListOptions) []*Job {
	m.mu.Lock()
	out := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.Type != "" && j.Type != opts.Type {
			continue
		}
		out = append(out, j.Clone())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

// Run executes fn against the job with the given id.
//
// The only error Run returns is ErrJobNotFound for an unknown id. Everything
// raised by the task itself, panics included, is caught and converted into a
// failed terminal state with a human-readable error string, so the job always
// ends terminal with either a result or an error.
func (m *Manager) Run(ctx context.Context, id string, fn Func) error {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok {
		m.mu.Unlock()
		return &JobError{Op: "Run", JobID: id, Err: ErrJobNotFound}
	}
	if j.Status.Terminal() {
		// Cancelled (or already finished) between listing and dispatch.
		m.mu.Unlock()
		return nil
	}
	j.MarkStarted()
	m.persistLocked()
	handle := j.Clone()
	m.mu.Unlock()

	m.logger.Info("job started",
		zap.String("job_id", id),
		zap.String("job_type", handle.Type))

	result, err := m.invoke(ctx, fn, handle)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		j.MarkCompleted(nil, err.Error())
		m.logger.Warn("job failed",
			zap.String("job_id", id),
			zap.String("job_type", handle.Type),
			zap.Error(err))
	} else {
		j.MarkCompleted(result, "")
		m.logger.Info("job completed",
			zap.String("job_id", id),
			zap.String("job_type", handle.Type))
	}
	m.persistLocked()
	return nil
}

// invoke calls fn with panic recovery so a crashing task still yields a
// terminal failed job instead of taking the process down.
func (m *Manager) invoke(ctx context.Context, fn Func, job *Job) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()
	return fn(ctx, job)
}

// UpdateProgress records a progress step on a running job. Executor functions
// report progress through the manager so mutations stay serialized with
// readers and snapshot writes.
func (m *Manager) UpdateProgress(id string, percent int, step string) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if ok {
		j.UpdateProgress(percent, step)
		m.persistLocked()
	}
	sink := m.sink
	m.mu.Unlock()

	if ok && sink != nil && step != "" {
		sink(id, step)
	}
}

// AddLog appends a log line to a job.
func (m *Manager) AddLog(id string, message string) {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if ok {
		j.AddLog(message)
		m.persistLocked()
	}
	sink := m.sink
	m.mu.Unlock()

	if ok && sink != nil {
		sink(id, message)
	}
}

// SetLogSink wires a log mirror. Set once at the composition root, before
// any job runs.
func (m *Manager) SetLogSink(sink LogSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

// SetLogPath records the external log artifact reference for a job.
func (m *Manager) SetLogPath(id string, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return
	}
	j.LogPath = path
	m.persistLocked()
}

// Cancel marks a pending job cancelled and returns true. For any other
// status, including an unknown id, it is a no-op returning false: a job that
// has been dispatched runs to completion.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.Status != StatusPending {
		return false
	}
	j.MarkCancelled()
	m.persistLocked()
	m.logger.Info("job cancelled", zap.String("job_id", id))
	return true
}

// CleanupOldJobs removes terminal jobs whose completed_at is older than
// maxAge and returns how many were removed. Pending and running jobs are
// never removed regardless of age.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, j := range m.jobs {
		if !j.Status.Terminal() || j.CompletedAt == nil {
			continue
		}
		if j.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		m.persistLocked()
		m.logger.Info("cleaned up old jobs", zap.Int("removed", removed))
	}
	return removed
}

// Reset drops every job and persists the empty set. Intended for test
// isolation and explicit operator resets, never called by normal execution.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = make(map[string]*Job)
	m.persistLocked()
}

// persistLocked snapshots the full job set. Callers must hold m.mu, which is
// what keeps two partial snapshot writes from interleaving.
func (m *Manager) persistLocked() {
	if m.snap == nil {
		return
	}
	out := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	if err := m.snap.SaveJobs(out); err != nil {
		m.logger.Error("persist jobs snapshot", zap.Error(err))
	}
}
