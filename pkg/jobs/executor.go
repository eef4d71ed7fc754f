package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultPollInterval is how often the executor asks the manager for
// pending jobs when no interval is configured.
const DefaultPollInterval = 2 * time.Second

// ExecutorConfig tunes the background dispatch loop.
type ExecutorConfig struct {
	// PollInterval is the sleep between pending-job scans.
	PollInterval time.Duration

	// MaxDispatchPerSecond bounds how fast pending jobs are handed to the
	// manager. Zero means no limit.
	MaxDispatchPerSecond float64
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// Executor is the background loop that dispatches pending jobs.
//
// It repeatedly lists pending jobs, resolves each job's executor function in
// the registry, and hands the pair to Manager.Run in a fresh goroutine. A job
// whose type has no registered function is run through an erroring task so it
// still passes through running on its way to failed. Errors raised by the
// polling itself are logged and the loop continues on the next tick.
type Executor struct {
	manager  *Manager
	registry *Registry
	cfg      ExecutorConfig
	logger   *zap.Logger
	limiter  *rate.Limiter

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	inflight map[string]struct{}
}

func NewExecutor(manager *Manager, registry *Registry, cfg ExecutorConfig, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	var limiter *rate.Limiter
	if cfg.MaxDispatchPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.MaxDispatchPerSecond), 1)
	}

	return &Executor{
		manager:  manager,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		limiter:  limiter,
		inflight: make(map[string]struct{}),
	}
}

// Start launches the dispatch loop. Calling Start on a running executor is a
// no-op.
func (e *Executor) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	go e.loop(e.stopCh, e.doneCh)
	e.logger.Info("job executor started",
		zap.Duration("poll_interval", e.cfg.PollInterval))
}

// Stop ends the dispatch loop and waits for it to exit. No new jobs are
// dispatched after Stop returns; already-dispatched jobs keep running to
// completion. Stopping a stopped (or never started) executor is safe.
func (e *Executor) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	stopCh, doneCh := e.stopCh, e.doneCh
	e.mu.Unlock()

	close(stopCh)
	<-doneCh
	e.logger.Info("job executor stopped")
}

func (e *Executor) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			e.dispatchPending(stopCh)
		}
	}
}

// dispatchPending hands every pending, not-yet-dispatched job to the manager.
func (e *Executor) dispatchPending(stopCh <-chan struct{}) {
	pending := e.manager.List(ListOptions{Status: StatusPending})

	for _, j := range pending {
		select {
		case <-stopCh:
			return
		default:
		}

		if !e.claim(j.ID) {
			continue
		}

		if e.limiter != nil {
			if err := e.limiter.Wait(context.Background()); err != nil {
				e.release(j.ID)
				return
			}
		}

		fn, err := e.registry.Lookup(j.Type)
		if err != nil {
			// Still dispatched through Run so the job transitions
			// pending -> running -> failed like every other job.
			jobType := j.Type
			fn = func(context.Context, *Job) (map[string]any, error) {
				return nil, &JobError{Op: "Dispatch", Err: ErrUnknownJobType}
			}
			e.logger.Warn("no executor function for job type",
				zap.String("job_id", j.ID),
				zap.String("job_type", jobType))
		}

		go func(id string, fn Func) {
			defer e.release(id)
			if err := e.manager.Run(context.Background(), id, fn); err != nil {
				// Run only fails for unknown ids (e.g. the job was
				// cleaned up between listing and dispatch).
				e.logger.Warn("dispatch failed", zap.String("job_id", id), zap.Error(err))
			}
		}(j.ID, fn)
	}
}

func (e *Executor) claim(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.inflight[id]; ok {
		return false
	}
	e.inflight[id] = struct{}{}
	return true
}

func (e *Executor) release(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, id)
}
