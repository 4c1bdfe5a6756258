package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/panelvox/internal/api"
	"github.com/jackzampolin/panelvox/internal/config"
	"github.com/jackzampolin/panelvox/internal/home"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write a default config file to the panelvox home directory.

The generated file lists every supported vision and TTS provider with
${ENV_VAR} placeholders for API keys. Edit it and restart the server, or
let the running server pick up changes automatically.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		path := h.ConfigPath()
		if err := config.WriteDefault(path); err != nil {
			return err
		}

		fmt.Printf("wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		return api.Output(cm.Get())
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
