package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/panelvox/internal/config"
	"github.com/jackzampolin/panelvox/internal/home"
	"github.com/jackzampolin/panelvox/internal/server"
	"github.com/jackzampolin/panelvox/internal/store"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the PanelVox server",
	Long: `Start the PanelVox HTTP server.

The server accepts chapter uploads, processes them in the background, and
serves the resulting chapter documents, page images, and synthesized audio.
Chapters are persisted to a SQLite database under the panelvox home
directory, so processed chapters survive restarts.

Examples:
  panelvox serve                 # Start on default port 8399
  panelvox serve --port 3000     # Start on custom port
  panelvox serve --host 0.0.0.0  # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Set up logger
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		// Get home directory
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		// Config with hot reload
		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cm.WatchConfig()

		// SQLite store with a read-through cache in front
		sqlStore, err := store.OpenSQLite(h.DatabasePath())
		if err != nil {
			return err
		}
		st := store.NewCachedStore(sqlStore, 5*time.Minute)
		defer st.Close()

		srv, err := server.New(server.Config{
			Host:          serveHost,
			Port:          servePort,
			Store:         st,
			Home:          h,
			ConfigManager: cm,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default from config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default from config)")

	rootCmd.AddCommand(serveCmd)
}
