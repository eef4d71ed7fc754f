package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/skycrane/skycrane/pkg/jobs"
	"github.com/skycrane/skycrane/pkg/orchestrator"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage cloud servers",
}

var serverCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Provision a new server",
	Args:  cobra.ExactArgs(1),
	RunE:  runServerCreate,
}

var serverDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Tear down a server and remove its record",
	Args:  cobra.ExactArgs(1),
	RunE:  runServerDelete,
}

var serverListCmd = &cobra.Command{
	Use:   "list",
	Short: "List known servers",
	RunE:  runServerList,
}

var serverSetupCmd = &cobra.Command{
	Use:   "setup <name>",
	Short: "Apply base configuration and install a set of applications",
	Args:  cobra.ExactArgs(1),
	RunE:  runServerSetup,
}

var (
	serverCreateProvider string
	serverCreateType     string
	serverCreateRegion   string
	serverCreateImage    string
	serverSetupApps      []string
	serverJSON           bool
)

func init() {
	rootCmd.AddCommand(serverCmd)
	serverCmd.AddCommand(serverCreateCmd)
	serverCmd.AddCommand(serverDeleteCmd)
	serverCmd.AddCommand(serverListCmd)
	serverCmd.AddCommand(serverSetupCmd)

	serverCreateCmd.Flags().StringVar(&serverCreateProvider, "provider", "hetzner", "Cloud provider")
	serverCreateCmd.Flags().StringVar(&serverCreateType, "type", "cx22", "Server type")
	serverCreateCmd.Flags().StringVar(&serverCreateRegion, "region", "fsn1", "Region")
	serverCreateCmd.Flags().StringVar(&serverCreateImage, "image", "ubuntu-24.04", "OS image")
	serverSetupCmd.Flags().StringSliceVar(&serverSetupApps, "apps", nil, "Applications to install (comma-separated)")
	serverListCmd.Flags().BoolVar(&serverJSON, "json", false, "Output as JSON")
}

func runServerCreate(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return exitError(ExitServiceUnavailable, "runtime startup failed", err)
	}
	defer rt.Close()

	job, err := rt.runJobInline(cmd.Context(), orchestrator.JobTypeCreateServer, map[string]any{
		"name":        strings.TrimSpace(args[0]),
		"provider":    serverCreateProvider,
		"server_type": serverCreateType,
		"region":      serverCreateRegion,
		"image":       serverCreateImage,
	})
	if err != nil {
		return exitError(ExitExecutionFailed, "create server", err)
	}
	return reportJobOutcome(job)
}

func runServerDelete(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return exitError(ExitServiceUnavailable, "runtime startup failed", err)
	}
	defer rt.Close()

	job, err := rt.runJobInline(cmd.Context(), orchestrator.JobTypeDeleteServer, map[string]any{
		"name": strings.TrimSpace(args[0]),
	})
	if err != nil {
		return exitError(ExitExecutionFailed, "delete server", err)
	}
	return reportJobOutcome(job)
}

func runServerSetup(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return exitError(ExitServiceUnavailable, "runtime startup failed", err)
	}
	defer rt.Close()

	params := map[string]any{"name": strings.TrimSpace(args[0])}
	if len(serverSetupApps) > 0 {
		params["apps"] = serverSetupApps
	}

	job, err := rt.runJobInline(cmd.Context(), orchestrator.JobTypeSetupServer, params)
	if err != nil {
		return exitError(ExitExecutionFailed, "setup server", err)
	}
	return reportJobOutcome(job)
}

func runServerList(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return exitError(ExitServiceUnavailable, "runtime startup failed", err)
	}
	defer rt.Close()

	servers, err := rt.store.ListServers(cmd.Context())
	if err != nil {
		return exitError(ExitExecutionFailed, "list servers", err)
	}
	if len(servers) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No servers found")
		return nil
	}

	if serverJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(servers)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "NAME\tSTATUS\tIP\tREGION\tAPPS\tCREATED")
	for _, s := range servers {
		ip := s.IPAddress
		if ip == "" {
			ip = "-"
		}
		apps := strings.Join(s.Apps, ",")
		if apps == "" {
			apps = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Name, s.Status, ip, s.Region, apps,
			s.CreatedAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// reportJobOutcome prints a finished job and maps a failed job onto a
// non-zero exit code.
func reportJobOutcome(job *jobs.Job) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(job)

	if job.Status == jobs.StatusFailed {
		return exitError(ExitExecutionFailed, job.Error, nil)
	}
	return nil
}
