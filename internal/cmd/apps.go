package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/skycrane/skycrane/pkg/catalog"
)

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "Inspect the application catalog",
}

var appsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog applications",
	RunE:  runAppsList,
}

var appsResolveCmd = &cobra.Command{
	Use:   "resolve <app>",
	Short: "Show the installation order for an application",
	Args:  cobra.ExactArgs(1),
	RunE:  runAppsResolve,
}

var appsJSON bool

func init() {
	rootCmd.AddCommand(appsCmd)
	appsCmd.AddCommand(appsListCmd)
	appsCmd.AddCommand(appsResolveCmd)

	appsListCmd.Flags().BoolVar(&appsJSON, "json", false, "Output as JSON")
}

func runAppsList(_ *cobra.Command, _ []string) error {
	cat, err := catalog.Load(cfg.Catalog.Dir)
	if err != nil {
		return exitError(ExitFileNotFound, "load app catalog", err)
	}

	names := cat.Names()
	if appsJSON {
		apps := make([]*catalog.App, 0, len(names))
		for _, name := range names {
			app, _ := cat.Get(name)
			apps = append(apps, app)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(apps)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "NAME\tIMAGE\tSTATEFUL\tDEPENDS ON\tSUPERSEDES")
	for _, name := range names {
		app, _ := cat.Get(name)
		deps := strings.Join(app.DependsOn, ",")
		if deps == "" {
			deps = "-"
		}
		supersedes := strings.Join(app.Supersedes, ",")
		if supersedes == "" {
			supersedes = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%v\t%s\t%s\n",
			app.Name, app.Image, app.Stateful, deps, supersedes)
	}
	return nil
}

func runAppsResolve(_ *cobra.Command, args []string) error {
	cat, err := catalog.Load(cfg.Catalog.Dir)
	if err != nil {
		return exitError(ExitFileNotFound, "load app catalog", err)
	}

	name := strings.TrimSpace(args[0])
	chain, err := cat.ResolveDependencies(name)
	if err != nil {
		if catalog.IsNotFound(err) {
			return exitError(ExitResourceNotFound, "unknown application", err)
		}
		return exitError(ExitInvalidArgument, "dependency resolution failed", err)
	}

	for i, app := range chain {
		_, _ = fmt.Fprintf(os.Stdout, "%d. %s\n", i+1, app)
	}
	return nil
}
