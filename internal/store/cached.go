package store

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/jackzampolin/panelvox/internal/types"
)

// CachedStore wraps a Store with a read-through cache for chapter payloads.
// Ready chapters are read far more often than they are written (every
// player poll hits GetChapter), so the cache sits in front of the backing
// store and is invalidated on every write.
type CachedStore struct {
	Store
	chapters *gocache.Cache
}

// NewCachedStore wraps backing with a chapter cache.
func NewCachedStore(backing Store, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedStore{
		Store:    backing,
		chapters: gocache.New(ttl, 2*ttl),
	}
}

// GetChapter returns a cached chapter, falling back to the backing store.
func (s *CachedStore) GetChapter(ctx context.Context, chapterID string) (*types.ChapterPayload, error) {
	if cached, ok := s.chapters.Get(chapterID); ok {
		if chapter, ok := cached.(*types.ChapterPayload); ok {
			return cloneChapter(chapter)
		}
	}

	chapter, err := s.Store.GetChapter(ctx, chapterID)
	if err != nil {
		return nil, err
	}

	clone, err := cloneChapter(chapter)
	if err != nil {
		return nil, err
	}
	s.chapters.SetDefault(chapterID, clone)
	return chapter, nil
}

// SaveChapter writes through and invalidates the cache entry.
func (s *CachedStore) SaveChapter(ctx context.Context, chapter *types.ChapterPayload) error {
	if err := s.Store.SaveChapter(ctx, chapter); err != nil {
		return err
	}
	s.chapters.Delete(chapter.ChapterID)
	return nil
}

// MutateChapter mutates through and invalidates the cache entry.
func (s *CachedStore) MutateChapter(ctx context.Context, chapterID string, fn func(*types.ChapterPayload) error) error {
	if err := s.Store.MutateChapter(ctx, chapterID, fn); err != nil {
		return err
	}
	s.chapters.Delete(chapterID)
	return nil
}

// Verify interface
var _ Store = (*CachedStore)(nil)
