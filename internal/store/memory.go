package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jackzampolin/panelvox/internal/types"
)

// MemoryStore is an in-memory Store for tests and one-shot processing.
type MemoryStore struct {
	mu       sync.RWMutex
	jobs     map[string]*types.JobRecord
	chapters map[string]*types.ChapterPayload
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:     make(map[string]*types.JobRecord),
		chapters: make(map[string]*types.ChapterPayload),
	}
}

// CreateJob stores a new job record.
func (s *MemoryStore) CreateJob(_ context.Context, job *types.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.JobID]; exists {
		return fmt.Errorf("job already exists: %s", job.JobID)
	}
	clone := *job
	s.jobs[job.JobID] = &clone
	return nil
}

// GetJob returns a job by id.
func (s *MemoryStore) GetJob(_ context.Context, jobID string) (*types.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *job
	return &clone, nil
}

// UpdateJob applies a partial update to a job.
func (s *MemoryStore) UpdateJob(_ context.Context, jobID string, update JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	applyJobUpdate(job, update)
	return nil
}

// SaveChapter stores or replaces a chapter payload.
func (s *MemoryStore) SaveChapter(_ context.Context, chapter *types.ChapterPayload) error {
	clone, err := cloneChapter(chapter)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chapters[chapter.ChapterID] = clone
	return nil
}

// GetChapter returns a chapter by id.
func (s *MemoryStore) GetChapter(_ context.Context, chapterID string) (*types.ChapterPayload, error) {
	s.mu.RLock()
	chapter, ok := s.chapters[chapterID]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	return cloneChapter(chapter)
}

// ListChapterIDs returns the ids of all stored chapters.
func (s *MemoryStore) ListChapterIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.chapters))
	for id := range s.chapters {
		ids = append(ids, id)
	}
	return ids, nil
}

// MutateChapter applies fn to the stored chapter under the write lock.
func (s *MemoryStore) MutateChapter(_ context.Context, chapterID string, fn func(*types.ChapterPayload) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chapter, ok := s.chapters[chapterID]
	if !ok {
		return ErrNotFound
	}

	working, err := cloneChapter(chapter)
	if err != nil {
		return err
	}
	if err := fn(working); err != nil {
		return err
	}
	s.chapters[chapterID] = working
	return nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// applyJobUpdate copies non-nil fields onto the record.
func applyJobUpdate(job *types.JobRecord, update JobUpdate) {
	if update.Status != nil {
		job.Status = *update.Status
	}
	if update.Progress != nil {
		job.Progress = *update.Progress
	}
	if update.ChapterID != nil {
		job.ChapterID = *update.ChapterID
	}
	if update.Error != nil {
		job.Error = *update.Error
	}
}

// cloneChapter deep-copies a chapter payload so callers never share the
// stored pages slice.
func cloneChapter(chapter *types.ChapterPayload) (*types.ChapterPayload, error) {
	data, err := json.Marshal(chapter)
	if err != nil {
		return nil, fmt.Errorf("failed to clone chapter: %w", err)
	}
	var clone types.ChapterPayload
	if err := json.Unmarshal(data, &clone); err != nil {
		return nil, fmt.Errorf("failed to clone chapter: %w", err)
	}
	return &clone, nil
}

// Verify interface
var _ Store = (*MemoryStore)(nil)
