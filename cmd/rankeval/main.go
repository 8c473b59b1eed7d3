package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/rankeval/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "rankeval",
		Short:   "Retrieval evaluation toolkit: embedding scoring and IR metrics",
		Version: fmt.Sprintf("%s (commit %s, built %s)", version.Version, version.Commit, version.Date),
	}

	rootCmd.AddCommand(newServeCommand(), newEvalCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
