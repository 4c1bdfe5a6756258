package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/panelvox/internal/api"
	"github.com/jackzampolin/panelvox/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "panelvox",
	Short: "Comic and manga chapters turned into voiced audio scenes",
	Long: `PanelVox turns comic and manga chapters into voiced audio scenes.

Upload a chapter (images, a CBZ/ZIP archive, or a PDF) and the pipeline:
  - Detects speech bubbles and reading order on each page
  - Attributes lines to recurring speakers with stable voices
  - Synthesizes per-bubble audio with word-level timing
  - Serves the result as a playable chapter document`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.panelvox/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "panelvox home directory (default: ~/.panelvox)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
