package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackzampolin/panelvox/internal/pipeline"
)

// fakeProcessor records processed chapters and optionally blocks until
// released.
type fakeProcessor struct {
	mu        sync.Mutex
	processed []string
	block     chan struct{}
	calls     atomic.Int64
}

func (f *fakeProcessor) ProcessChapter(ctx context.Context, req *pipeline.ChapterRequest) error {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	f.processed = append(f.processed, req.ChapterID)
	f.mu.Unlock()
	return nil
}

func (f *fakeProcessor) processedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.processed...)
}

func TestRunnerProcessesQueuedChapters(t *testing.T) {
	proc := &fakeProcessor{}
	r := NewRunner(proc, 2, nil)
	r.Start(context.Background())

	for _, id := range []string{"ch-1", "ch-2", "ch-3"} {
		if err := r.Enqueue(&pipeline.ChapterRequest{ChapterID: id, JobID: "job-" + id}); err != nil {
			t.Fatalf("Enqueue(%s) error: %v", id, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	if got := proc.processedIDs(); len(got) != 3 {
		t.Errorf("processed %v, want 3 chapters", got)
	}
	for _, id := range []string{"ch-1", "ch-2", "ch-3"} {
		if r.Active(id) {
			t.Errorf("chapter %s still active after drain", id)
		}
	}
}

func TestRunnerRejectsDuplicateChapter(t *testing.T) {
	proc := &fakeProcessor{block: make(chan struct{})}
	r := NewRunner(proc, 1, nil)
	r.Start(context.Background())

	if err := r.Enqueue(&pipeline.ChapterRequest{ChapterID: "ch-1"}); err != nil {
		t.Fatalf("first Enqueue() error: %v", err)
	}

	err := r.Enqueue(&pipeline.ChapterRequest{ChapterID: "ch-1"})
	if !errors.Is(err, ErrChapterActive) {
		t.Fatalf("duplicate Enqueue() err = %v, want ErrChapterActive", err)
	}

	// A different chapter is fine.
	if err := r.Enqueue(&pipeline.ChapterRequest{ChapterID: "ch-2"}); err != nil {
		t.Fatalf("Enqueue(ch-2) error: %v", err)
	}

	close(proc.block)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	// ch-1 is re-enqueueable once its job finished.
	if r.Active("ch-1") {
		t.Error("ch-1 still active after processing")
	}
}

func TestRunnerStopRejectsNewWork(t *testing.T) {
	proc := &fakeProcessor{}
	r := NewRunner(proc, 1, nil)
	r.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}

	if err := r.Enqueue(&pipeline.ChapterRequest{ChapterID: "late"}); !errors.Is(err, ErrRunnerStopped) {
		t.Fatalf("Enqueue() after stop err = %v, want ErrRunnerStopped", err)
	}
}

func TestRunnerStopCancelsInFlightOnTimeout(t *testing.T) {
	proc := &fakeProcessor{block: make(chan struct{})}
	r := NewRunner(proc, 1, nil)
	r.Start(context.Background())

	if err := r.Enqueue(&pipeline.ChapterRequest{ChapterID: "ch-slow"}); err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}

	// Wait for the worker to pick it up.
	deadline := time.Now().Add(2 * time.Second)
	for proc.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("worker never started the job")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := r.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop() err = %v, want deadline exceeded", err)
	}

	// The blocked job was canceled, not completed.
	if got := proc.processedIDs(); len(got) != 0 {
		t.Errorf("processed %v, want none", got)
	}
}
