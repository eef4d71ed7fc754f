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
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage orchestration jobs",
	Long: `Manage job records for orchestration operations.

This command group is designed to be script-friendly:

- stable job ids (short prefixes accepted)
- predictable on-disk locations
- optional JSON output for machine parsing`,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE:  runJobsList,
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job_id>",
	Short: "Show status for a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsStatus,
}

var jobsLogsCmd = &cobra.Command{
	Use:   "logs <job_id>",
	Short: "Show logs for a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsLogs,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job_id>",
	Short: "Cancel a pending job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCancel,
}

var jobsGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Garbage collect old job records",
	RunE:  runJobsGC,
}

var (
	jobsListJSON   bool
	jobsListStatus string
	jobsListType   string
	jobsListLimit  int
	jobsStatusJSON bool
	jobsLogsTail   int
	jobsGCMaxAge   string
)

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsStatusCmd)
	jobsCmd.AddCommand(jobsLogsCmd)
	jobsCmd.AddCommand(jobsCancelCmd)
	jobsCmd.AddCommand(jobsGCCmd)

	jobsListCmd.Flags().BoolVar(&jobsListJSON, "json", false, "Output as JSON")
	jobsListCmd.Flags().StringVar(&jobsListStatus, "status", "", "Filter by status (pending, running, completed, failed, cancelled)")
	jobsListCmd.Flags().StringVar(&jobsListType, "type", "", "Filter by job type")
	jobsListCmd.Flags().IntVar(&jobsListLimit, "limit", 0, "Show at most N jobs (0 = all)")
	jobsStatusCmd.Flags().BoolVar(&jobsStatusJSON, "json", false, "Output as JSON")
	jobsLogsCmd.Flags().IntVar(&jobsLogsTail, "tail", 200, "Show last N lines (0 = no tail)")
	jobsGCCmd.Flags().StringVar(&jobsGCMaxAge, "max-age", "168h", "Delete terminal jobs older than this duration")
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return exitError(ExitServiceUnavailable, "runtime startup failed", err)
	}
	defer rt.Close()

	list := rt.manager.List(jobs.ListOptions{
		Status: jobs.Status(strings.TrimSpace(jobsListStatus)),
		Type:   strings.TrimSpace(jobsListType),
		Limit:  jobsListLimit,
	})
	if len(list) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No jobs found")
		return nil
	}

	if jobsListJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(list)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "JOB ID\tTYPE\tSTATUS\tPROGRESS\tSTEP\tCREATED\tCOMPLETED")
	for _, j := range list {
		step := j.CurrentStep
		if step == "" {
			step = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\t%s\t%s\n",
			shortJobID(j.ID),
			j.Type,
			j.Status,
			j.Progress,
			step,
			j.CreatedAt.UTC().Format(time.RFC3339),
			formatOptionalTime(j.CompletedAt),
		)
	}
	return nil
}

func runJobsStatus(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return exitError(ExitServiceUnavailable, "runtime startup failed", err)
	}
	defer rt.Close()

	job, err := resolveJob(rt.manager, args[0])
	if err != nil {
		return exitError(ExitResourceNotFound, "job not found", err)
	}

	if jobsStatusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	}

	_, _ = fmt.Fprintf(os.Stdout, "job_id=%s\n", job.ID)
	_, _ = fmt.Fprintf(os.Stdout, "job_type=%s\n", job.Type)
	_, _ = fmt.Fprintf(os.Stdout, "status=%s\n", job.Status)
	_, _ = fmt.Fprintf(os.Stdout, "progress=%d\n", job.Progress)
	if job.CurrentStep != "" {
		_, _ = fmt.Fprintf(os.Stdout, "current_step=%s\n", job.CurrentStep)
	}
	if job.Error != "" {
		_, _ = fmt.Fprintf(os.Stdout, "error=%s\n", job.Error)
	}
	_, _ = fmt.Fprintf(os.Stdout, "created_at=%s\n", job.CreatedAt.UTC().Format(time.RFC3339))
	if job.StartedAt != nil {
		_, _ = fmt.Fprintf(os.Stdout, "started_at=%s\n", job.StartedAt.UTC().Format(time.RFC3339))
	}
	if job.CompletedAt != nil {
		_, _ = fmt.Fprintf(os.Stdout, "completed_at=%s\n", job.CompletedAt.UTC().Format(time.RFC3339))
	}
	return nil
}

func runJobsLogs(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return exitError(ExitServiceUnavailable, "runtime startup failed", err)
	}
	defer rt.Close()

	job, err := resolveJob(rt.manager, args[0])
	if err != nil {
		return exitError(ExitResourceNotFound, "job not found", err)
	}

	for _, entry := range job.Logs {
		_, _ = fmt.Fprintf(os.Stdout, "%s %s\n", entry.Time.UTC().Format(time.RFC3339), entry.Message)
	}

	captured, err := rt.capture.GetRecentLogs(job.ID, jobsLogsTail)
	if err != nil {
		return err
	}
	for _, line := range captured {
		_, _ = fmt.Fprintln(os.Stdout, line)
	}
	return nil
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return exitError(ExitServiceUnavailable, "runtime startup failed", err)
	}
	defer rt.Close()

	job, err := resolveJob(rt.manager, args[0])
	if err != nil {
		return exitError(ExitResourceNotFound, "job not found", err)
	}

	if rt.manager.Cancel(job.ID) {
		_, _ = fmt.Fprintf(os.Stdout, "cancelled %s\n", shortJobID(job.ID))
		return nil
	}
	return exitError(ExitInvalidArgument,
		fmt.Sprintf("job %s is %s; only pending jobs can be cancelled", shortJobID(job.ID), job.Status), nil)
}

func runJobsGC(cmd *cobra.Command, _ []string) error {
	maxAge, err := time.ParseDuration(jobsGCMaxAge)
	if err != nil {
		return exitError(ExitInvalidArgument, "invalid --max-age", err)
	}

	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return exitError(ExitServiceUnavailable, "runtime startup failed", err)
	}
	defer rt.Close()

	removed := rt.manager.CleanupOldJobs(maxAge)
	_, _ = fmt.Fprintf(os.Stdout, "removed %d job(s)\n", removed)
	return nil
}

func shortJobID(jobID string) string {
	jobID = strings.TrimSpace(jobID)
	if len(jobID) <= 12 {
		return jobID
	}
	return jobID[:12]
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// resolveJob accepts a full job id or a unique prefix, so the short ids
// printed by 'jobs list' work as arguments.
func resolveJob(m *jobs.Manager, input string) (*jobs.Job, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("job_id is required")
	}

	if job, err := m.Get(input); err == nil {
		return job, nil
	}

	matches := make([]*jobs.Job, 0, 2)
	for _, j := range m.List(jobs.ListOptions{}) {
		if strings.HasPrefix(j.ID, input) {
			matches = append(matches, j)
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("job not found: %s", input)
	}
	if len(matches) > 1 {
		return nil, fmt.Errorf("job id prefix is ambiguous (%d matches); use the full job_id", len(matches))
	}
	return matches[0], nil
}
