package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/panelvox/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("panelvox %s\n", version.GitRelease)
		fmt.Printf("  Go:     %s\n", runtime.Version())
		fmt.Printf("  Commit: %s\n", version.GitCommit)
	},
}
