// Package jobs runs chapter processing in the background.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackzampolin/panelvox/internal/pipeline"
)

// ErrChapterActive is returned when a chapter is already queued or being
// processed. At most one job runs per chapter at a time.
var ErrChapterActive = errors.New("chapter already queued or processing")

// ErrRunnerStopped is returned by Enqueue after Stop has begun.
var ErrRunnerStopped = errors.New("runner is stopped")

// ErrQueueFull is returned by Enqueue when the chapter queue is at capacity.
var ErrQueueFull = errors.New("chapter queue full")

// defaultQueueSize bounds how many chapters can wait for a worker.
const defaultQueueSize = 64

// ChapterProcessor runs one chapter job end to end.
type ChapterProcessor interface {
	ProcessChapter(ctx context.Context, req *pipeline.ChapterRequest) error
}

// Runner dispatches chapter jobs to a fixed pool of workers. Chapters are
// keyed by id: a chapter that is queued or processing cannot be enqueued
// again, so two jobs never write the same chapter concurrently.
type Runner struct {
	processor ChapterProcessor
	logger    *slog.Logger

	queue   chan *pipeline.ChapterRequest
	workers int

	mu      sync.Mutex
	active  map[string]bool
	stopped bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewRunner creates a runner with the given worker count.
func NewRunner(processor ChapterProcessor, workers int, logger *slog.Logger) *Runner {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		processor: processor,
		logger:    logger.With("component", "runner"),
		queue:     make(chan *pipeline.ChapterRequest, defaultQueueSize),
		workers:   workers,
		active:    make(map[string]bool),
	}
}

// Start launches the worker pool. Workers exit when the queue is drained
// after Stop, or immediately when ctx is canceled.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(ctx, i)
	}
	r.logger.Info("runner started", "workers", r.workers)
}

// Enqueue queues one chapter job. Returns ErrChapterActive if the chapter
// already has a queued or running job.
func (r *Runner) Enqueue(req *pipeline.ChapterRequest) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return ErrRunnerStopped
	}
	if r.active[req.ChapterID] {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrChapterActive, req.ChapterID)
	}
	r.active[req.ChapterID] = true
	r.mu.Unlock()

	select {
	case r.queue <- req:
		r.logger.Info("chapter queued", "chapter_id", req.ChapterID, "job_id", req.JobID)
		return nil
	default:
		r.release(req.ChapterID)
		return fmt.Errorf("%w: %s", ErrQueueFull, req.ChapterID)
	}
}

// Active reports whether the chapter has a queued or running job.
func (r *Runner) Active(chapterID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active[chapterID]
}

// Stop drains the queue: no new jobs are accepted, queued jobs still run,
// and Stop returns when every worker has finished or ctx expires. An
// expired ctx cancels in-flight jobs.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.queue)

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("runner drained")
		return nil
	case <-ctx.Done():
		r.logger.Warn("drain timed out, canceling in-flight jobs")
		r.cancel()
		<-done
		return ctx.Err()
	}
}

func (r *Runner) worker(ctx context.Context, id int) {
	defer r.wg.Done()

	for req := range r.queue {
		if ctx.Err() != nil {
			r.release(req.ChapterID)
			continue
		}

		logger := r.logger.With("worker", id, "chapter_id", req.ChapterID, "job_id", req.JobID)
		logger.Info("processing chapter")

		if err := r.processor.ProcessChapter(ctx, req); err != nil {
			logger.Error("chapter processing failed", "error", err)
		} else {
			logger.Info("chapter processed")
		}
		r.release(req.ChapterID)
	}
}

func (r *Runner) release(chapterID string) {
	r.mu.Lock()
	delete(r.active, chapterID)
	r.mu.Unlock()
}
