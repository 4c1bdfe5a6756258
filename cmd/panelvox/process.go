package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/panelvox/internal/api"
	"github.com/jackzampolin/panelvox/internal/config"
	"github.com/jackzampolin/panelvox/internal/home"
	"github.com/jackzampolin/panelvox/internal/ingest"
	"github.com/jackzampolin/panelvox/internal/pipeline"
	"github.com/jackzampolin/panelvox/internal/providers"
	"github.com/jackzampolin/panelvox/internal/store"
	"github.com/jackzampolin/panelvox/internal/types"
)

var (
	processTitle          string
	processMode           string
	processNarratorGender string
)

var processCmd = &cobra.Command{
	Use:   "process <file>...",
	Short: "Process a chapter without a running server",
	Long: `Process a chapter in one shot, without a running server.

Accepts the same inputs as an upload (images, CBZ/ZIP archives, PDFs),
runs the full pipeline, and prints the resulting chapter document.
Page images and audio are written under the panelvox home directory.

Examples:
  panelvox process ch1.cbz
  panelvox process page1.png page2.png --title "Chapter 1"
  panelvox process ch1.pdf --mode narrate`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		c := cm.Get()

		registry := providers.NewRegistryFromConfig(c.ToProviderRegistryConfig())
		registry.SetLogger(logger)

		uploads := make([]ingest.Upload, 0, len(args))
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			uploads = append(uploads, ingest.Upload{
				Filename: filepath.Base(path),
				Data:     data,
			})
		}

		res, err := ingest.Ingest(ctx, h, ingest.Request{
			Uploads: uploads,
			Title:   processTitle,
			Logger:  logger,
		})
		if err != nil {
			return err
		}

		vision, err := registry.GetVision(c.Defaults.VisionProvider)
		if err != nil {
			return err
		}
		synth := pipeline.NewSynthesizer(
			registry.TTSChain(),
			&pipeline.DiskAudioStore{Root: h.AudioPath(), URLPrefix: "/audio"},
			time.Duration(c.Defaults.RetryBaseSecs*float64(time.Second)),
			time.Duration(c.Defaults.RetryCapSecs*float64(time.Second)),
			logger,
		)

		st := store.NewMemoryStore()
		processor := pipeline.NewProcessor(st, vision, synth, logger)

		narratorGender := processNarratorGender
		if narratorGender == "" {
			narratorGender = c.Defaults.NarratorGender
		}

		jobID := uuid.New().String()
		if err := st.CreateJob(ctx, &types.JobRecord{
			JobID:  jobID,
			Status: types.JobQueued,
		}); err != nil {
			return err
		}

		if err := processor.ProcessChapter(ctx, &pipeline.ChapterRequest{
			JobID:          jobID,
			ChapterID:      res.ChapterID,
			Title:          res.Title,
			Mode:           types.ParseProcessingMode(processMode),
			NarratorGender: narratorGender,
			Pages:          res.Pages,
		}); err != nil {
			return err
		}

		chapter, err := st.GetChapter(ctx, res.ChapterID)
		if err != nil {
			return err
		}
		return api.Output(chapter)
	},
}

func init() {
	processCmd.Flags().StringVar(&processTitle, "title", "", "Chapter title (default derived from filename)")
	processCmd.Flags().StringVar(&processMode, "mode", "", "Processing mode: bring_to_life or narrate")
	processCmd.Flags().StringVar(&processNarratorGender, "narrator-gender", "", "Narrator voice gender for narrate mode")

	rootCmd.AddCommand(processCmd)
}
