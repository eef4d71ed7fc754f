package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skycrane/skycrane/pkg/orchestrator"
)

var deployCmd = &cobra.Command{
	Use:   "deploy <server> <app>",
	Short: "Deploy an application and its dependencies onto a server",
	Long: `Deploy an application onto a server. Unresolved dependencies are
installed first, in dependency order; applications already present are
skipped. A failure partway through keeps the successfully installed steps.

Example:
  skycrane deploy web-1 n8n
  skycrane deploy web-1 n8n --set domain=n8n.example.com`,
	Args: cobra.ExactArgs(2),
	RunE: runDeploy,
}

var undeployCmd = &cobra.Command{
	Use:   "undeploy <server> <app>",
	Short: "Remove an application from a server",
	Args:  cobra.ExactArgs(2),
	RunE:  runUndeploy,
}

var deploySetValues []string

func init() {
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(undeployCmd)

	deployCmd.Flags().StringArrayVar(&deploySetValues, "set", nil, "Deployment config values as key=value (repeatable)")
}

func runDeploy(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return exitError(ExitServiceUnavailable, "runtime startup failed", err)
	}
	defer rt.Close()

	config, err := parseSetValues(deploySetValues)
	if err != nil {
		return exitError(ExitInvalidArgument, "invalid --set value", err)
	}

	job, err := rt.runJobInline(cmd.Context(), orchestrator.JobTypeDeployApp, map[string]any{
		"server": strings.TrimSpace(args[0]),
		"app":    strings.TrimSpace(args[1]),
		"config": config,
	})
	if err != nil {
		return exitError(ExitExecutionFailed, "deploy app", err)
	}
	return reportJobOutcome(job)
}

func runUndeploy(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return exitError(ExitServiceUnavailable, "runtime startup failed", err)
	}
	defer rt.Close()

	job, err := rt.runJobInline(cmd.Context(), orchestrator.JobTypeUndeployApp, map[string]any{
		"server": strings.TrimSpace(args[0]),
		"app":    strings.TrimSpace(args[1]),
	})
	if err != nil {
		return exitError(ExitExecutionFailed, "undeploy app", err)
	}
	return reportJobOutcome(job)
}

func parseSetValues(values []string) (map[string]any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(values))
	for _, kv := range values {
		key, value, found := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", kv)
		}
		out[key] = value
	}
	return out, nil
}
