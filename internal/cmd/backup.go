package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/skycrane/skycrane/internal/backup"
	"github.com/skycrane/skycrane/internal/observability"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload state files to object storage",
	Long: `Upload the state database and job snapshot to an S3-compatible bucket.

Configure the destination under the 'backup' config section or with
SKYCRANE_BACKUP_* environment variables. Files that do not exist yet
are skipped, not treated as errors.`,
	RunE: runBackup,
}

var backupJSON bool

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.Flags().BoolVar(&backupJSON, "json", false, "Output as JSON")
}

func runBackup(cmd *cobra.Command, _ []string) error {
	bcfg := backup.Config{
		Bucket:          cfg.Backup.Bucket,
		Prefix:          cfg.Backup.Prefix,
		Region:          cfg.Backup.Region,
		Endpoint:        cfg.Backup.Endpoint,
		AccessKeyID:     cfg.Backup.AccessKeyID,
		SecretAccessKey: cfg.Backup.SecretAccessKey,
		UsePathStyle:    cfg.Backup.UsePathStyle,
	}
	if err := bcfg.Validate(); err != nil {
		return exitError(ExitInvalidArgument, "backup is not configured", err)
	}

	mirror, err := backup.New(cmd.Context(), bcfg, observability.NewComponentLogger("backup"))
	if err != nil {
		return exitError(ExitServiceUnavailable, "backup client setup failed", err)
	}

	// A remote state database has no local file to mirror; back up its
	// provider-side copy with the provider's own tooling.
	files := []string{cfg.SnapshotPath()}
	if statePath := cfg.StatePath(); statePath != "" {
		files = append(files, statePath)
	} else {
		_, _ = fmt.Fprintln(os.Stdout, "state store is remote; mirroring the jobs snapshot only")
	}

	result, err := mirror.Run(cmd.Context(), files...)
	if err != nil {
		return exitError(ExitExecutionFailed, "backup failed", err)
	}

	if backupJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	for _, key := range result.Uploaded {
		_, _ = fmt.Fprintf(os.Stdout, "uploaded %s\n", key)
	}
	for _, p := range result.Skipped {
		_, _ = fmt.Fprintf(os.Stdout, "skipped %s (missing)\n", p)
	}
	return nil
}
