package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/skycrane/skycrane/internal/drivers"
	"github.com/skycrane/skycrane/internal/observability"
	"github.com/skycrane/skycrane/pkg/catalog"
	"github.com/skycrane/skycrane/pkg/deploy"
	"github.com/skycrane/skycrane/pkg/joblog"
	"github.com/skycrane/skycrane/pkg/jobs"
	"github.com/skycrane/skycrane/pkg/orchestrator"
	"github.com/skycrane/skycrane/pkg/statestore"
)

// appRuntime is the composition root: every collaborator constructed once
// and passed by reference, no package-level singletons.
type appRuntime struct {
	db       *sql.DB
	store    *statestore.Store
	catalog  *catalog.Catalog
	manager  *jobs.Manager
	registry *jobs.Registry
	orch     *orchestrator.Orchestrator
	capture  *joblog.Capture
	metrics  *observability.Metrics
}

func openRuntime(ctx context.Context) (*appRuntime, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	scfg := statestore.Config{URL: cfg.State.URL, AuthToken: cfg.State.AuthToken}
	if scfg.URL == "" {
		scfg.Path = cfg.StatePath()
	}
	db, err := statestore.Open(ctx, scfg)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	if err := statestore.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate state store: %w", err)
	}
	store := statestore.NewStore(db)

	cat, err := catalog.Load(cfg.Catalog.Dir)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load app catalog: %w", err)
	}

	logger := observability.CLILogger
	manager, err := jobs.NewManager(jobs.NewFileSnapshot(cfg.SnapshotPath()), logger)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("load jobs: %w", err)
	}

	metrics := observability.NewMetrics()
	stepObserver := func(status string) {
		metrics.DeploySteps.WithLabelValues(status).Inc()
	}

	installer := &drivers.DryRunInstaller{Logger: logger}
	deployer := deploy.NewManager(store, cat, installer,
		deploy.Config{SettleDelay: cfg.Deploy.SettleDelay, StepObserver: stepObserver}, logger)

	orch := orchestrator.New(
		store,
		&drivers.DryRunProvisioner{Logger: logger},
		&drivers.DryRunConfigurer{Logger: logger},
		deployer,
		cat,
		installer,
		orchestrator.Config{SettleDelay: cfg.Deploy.SettleDelay, StepObserver: stepObserver},
		logger,
	)

	capture := joblog.NewCapture(cfg.JobLogDir())
	manager.SetLogSink(capture.Write)

	registry := jobs.NewRegistry()
	orchestrator.RegisterAll(registry, orch, manager)
	metrics.InstrumentRegistry(registry)
	for _, jobType := range registry.Types() {
		fn, err := registry.Lookup(jobType)
		if err != nil {
			continue
		}
		registry.Register(jobType, withJobLogging(capture, manager, fn))
	}

	return &appRuntime{
		db:       db,
		store:    store,
		catalog:  cat,
		manager:  manager,
		registry: registry,
		orch:     orch,
		capture:  capture,
		metrics:  metrics,
	}, nil
}

// withJobLogging brackets a job run with per-job log capture, so progress
// and log lines recorded through the manager land in the job's log file no
// matter whether the background executor or an inline CLI command ran it.
func withJobLogging(capture *joblog.Capture, m *jobs.Manager, fn jobs.Func) jobs.Func {
	return func(ctx context.Context, job *jobs.Job) (map[string]any, error) {
		if path, err := capture.StartJobLogging(job.ID); err == nil {
			m.SetLogPath(job.ID, path)
			defer capture.StopJobLogging(job.ID)
		}
		return fn(ctx, job)
	}
}

func (r *appRuntime) Close() {
	_ = r.db.Close()
}

// runJobInline creates a job and executes it in the foreground through the
// same instrumented registry function the background executor would use.
// Used by the direct CLI commands; 'serve' dispatches through the executor
// instead.
func (r *appRuntime) runJobInline(ctx context.Context, jobType string, params map[string]any) (*jobs.Job, error) {
	job := r.manager.Create(jobType, params)
	r.metrics.JobsCreated.WithLabelValues(jobType).Inc()

	fn, err := r.registry.Lookup(jobType)
	if err != nil {
		return nil, err
	}

	if err := r.manager.Run(ctx, job.ID, fn); err != nil {
		return nil, err
	}
	return r.manager.Get(job.ID)
}
