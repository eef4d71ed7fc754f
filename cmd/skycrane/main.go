package main

import (
	"context"
	"fmt"
	"os"

	"github.com/skycrane/skycrane/internal/cmd"
)

// Set via -ldflags at release time.
var (
	version   = "dev"
	commit    = "HEAD"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	if err := cmd.Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "skycrane: %v\n", err)
		os.Exit(cmd.ExitCode(err))
	}
}
