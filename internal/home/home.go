package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the panelvox home directory.
	DefaultDirName = ".panelvox"

	// UploadsDirName is the subdirectory for ingested page images.
	UploadsDirName = "uploads"

	// AudioDirName is the subdirectory for synthesized audio files.
	AudioDirName = "audio"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"

	// DatabaseFileName is the sqlite database file name.
	DatabaseFileName = "panelvox.db"
)

// Dir represents the panelvox home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.panelvox).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// UploadsPath returns the path to the uploads directory.
func (d *Dir) UploadsPath() string {
	return filepath.Join(d.path, UploadsDirName)
}

// ChapterUploadsPath returns the uploads directory for one chapter.
func (d *Dir) ChapterUploadsPath(chapterID string) string {
	return filepath.Join(d.UploadsPath(), chapterID)
}

// AudioPath returns the path to the audio directory.
func (d *Dir) AudioPath() string {
	return filepath.Join(d.path, AudioDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// DatabasePath returns the path to the sqlite database.
func (d *Dir) DatabasePath() string {
	return filepath.Join(d.path, DatabaseFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, p := range []string{d.UploadsPath(), d.AudioPath()} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", p, err)
		}
	}
	return nil
}

// EnsureChapterUploadsDir creates the uploads directory for a chapter.
func (d *Dir) EnsureChapterUploadsDir(chapterID string) error {
	if err := os.MkdirAll(d.ChapterUploadsPath(chapterID), 0o755); err != nil {
		return fmt.Errorf("failed to create chapter uploads directory: %w", err)
	}
	return nil
}
