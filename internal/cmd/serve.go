package cmd

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skycrane/skycrane/internal/observability"
	"github.com/skycrane/skycrane/internal/server"
	"github.com/skycrane/skycrane/pkg/jobs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the background executor and HTTP API",
	Long: `Run the orchestration daemon: the background job executor that
dispatches pending jobs, a periodic cleanup of old terminal jobs, and the
HTTP API for job submission and inspection.

Example:
  skycrane serve
  skycrane serve --config /etc/skycrane/skycrane.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx)
	if err != nil {
		return exitError(ExitServiceUnavailable, "runtime startup failed", err)
	}
	defer rt.Close()

	logger := observability.NewComponentLogger("serve")

	executor := jobs.NewExecutor(rt.manager, rt.registry, jobs.ExecutorConfig{
		PollInterval:         cfg.Jobs.PollInterval,
		MaxDispatchPerSecond: cfg.Jobs.MaxDispatchPerSecond,
	}, logger)
	executor.Start()
	defer executor.Stop()

	// Old terminal jobs are garbage collected on a slow cadence while the
	// daemon runs; pending and running jobs are never touched.
	cleanupDone := make(chan struct{})
	go func() {
		defer close(cleanupDone)
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := rt.manager.CleanupOldJobs(cfg.Jobs.CleanupMaxAge)
				if removed > 0 {
					logger.Info("job cleanup", zap.Int("removed", removed))
				}
			}
		}
	}()

	srv := server.New(cfg.Server.Host, cfg.Server.Port, server.Deps{
		Manager:  rt.manager,
		Registry: rt.registry,
		Store:    rt.store,
		Logs:     rt.capture,
		Metrics:  rt.metrics,
		Version:  versionInfo.Version,
		Logger:   logger,
	})

	err = srv.ListenAndServe(ctx,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		cfg.Server.IdleTimeout,
		cfg.Server.ShutdownTimeout,
	)
	<-cleanupDone
	if err != nil {
		return exitError(ExitServiceUnavailable, "http server failed", err)
	}

	logger.Info("shutdown complete")
	return nil
}
