// Package store persists jobs and assembled chapters.
package store

import (
	"context"
	"errors"

	"github.com/jackzampolin/panelvox/internal/types"
)

// ErrNotFound is returned when a job or chapter does not exist.
var ErrNotFound = errors.New("not found")

// JobUpdate is a partial update to a job record. Nil fields are left
// untouched, which is how a failed job's progress stays frozen.
type JobUpdate struct {
	Status    *types.JobState
	Progress  *int
	ChapterID *string
	Error     *string
}

// Store persists jobs and chapters.
type Store interface {
	// CreateJob stores a new job record.
	CreateJob(ctx context.Context, job *types.JobRecord) error

	// GetJob returns a job by id, or ErrNotFound.
	GetJob(ctx context.Context, jobID string) (*types.JobRecord, error)

	// UpdateJob applies a partial update to a job, or returns ErrNotFound.
	UpdateJob(ctx context.Context, jobID string, update JobUpdate) error

	// SaveChapter stores or replaces a chapter payload.
	SaveChapter(ctx context.Context, chapter *types.ChapterPayload) error

	// GetChapter returns a chapter by id, or ErrNotFound.
	GetChapter(ctx context.Context, chapterID string) (*types.ChapterPayload, error)

	// ListChapterIDs returns the ids of all stored chapters.
	ListChapterIDs(ctx context.Context) ([]string, error)

	// MutateChapter applies fn to the stored chapter under the store's
	// write lock and persists the result. Used for speaker corrections,
	// which must not race with page updates.
	MutateChapter(ctx context.Context, chapterID string, fn func(*types.ChapterPayload) error) error

	// Close releases store resources.
	Close() error
}

// StatusPtr returns a pointer to the given job state, for JobUpdate literals.
func StatusPtr(s types.JobState) *types.JobState { return &s }

// IntPtr returns a pointer to the given int, for JobUpdate literals.
func IntPtr(i int) *int { return &i }

// StringPtr returns a pointer to the given string, for JobUpdate literals.
func StringPtr(s string) *string { return &s }
