// Package cmd implements the skycrane command tree.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/skycrane/skycrane/internal/config"
	"github.com/skycrane/skycrane/internal/observability"
)

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata injected by the linker.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "skycrane",
	Short: "Provision cloud servers and deploy containerized applications",
	Long: `skycrane provisions cloud servers and deploys interdependent
containerized applications onto them.

Operations run as tracked asynchronous jobs with progress reporting,
dependency-aware ordering, and partial-failure recovery. Run 'skycrane serve'
for the background executor and HTTP API, or use the subcommands directly.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return exitError(ExitInvalidArgument, "invalid configuration", err)
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if err := observability.Init(cfg.Logging.Level, cfg.Logging.Profile); err != nil {
			return exitError(ExitInvalidArgument, "invalid log level", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
}

// Execute runs the command tree to completion.
func Execute(ctx context.Context) error {
	defer observability.Sync()
	return rootCmd.ExecuteContext(ctx)
}
