package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/panelvox/internal/providers"
	"github.com/jackzampolin/panelvox/internal/store"
	"github.com/jackzampolin/panelvox/internal/types"
)

// progressRecorder wraps a store and records every job progress update in
// order.
type progressRecorder struct {
	store.Store

	mu       sync.Mutex
	progress []int
}

func (r *progressRecorder) UpdateJob(ctx context.Context, jobID string, update store.JobUpdate) error {
	if update.Progress != nil {
		r.mu.Lock()
		r.progress = append(r.progress, *update.Progress)
		r.mu.Unlock()
	}
	return r.Store.UpdateJob(ctx, jobID, update)
}

func testProcessor(t *testing.T, st store.Store, vision providers.VisionProvider, tts ...providers.TTSProvider) *Processor {
	t.Helper()

	synth := NewSynthesizer(tts, newMemAudioStore(), time.Millisecond, 10*time.Millisecond, nil)
	p := NewProcessor(st, vision, synth, nil)
	p.readFile = func(path string) ([]byte, error) {
		return []byte("fake image bytes for " + path), nil
	}
	return p
}

// testPages produces page files with dimensions pre-filled so no image
// decoding happens in tests.
func testPages(n int) []types.PageFile {
	pages := make([]types.PageFile, 0, n)
	for i := 0; i < n; i++ {
		pages = append(pages, types.PageFile{
			Filename: fmt.Sprintf("page_%03d.jpg", i),
			ImageURL: fmt.Sprintf("/uploads/ch/page_%03d.jpg", i),
			Path:     fmt.Sprintf("/tmp/pages/page_%03d.jpg", i),
			Width:    800,
			Height:   800,
		})
	}
	return pages
}

func createJob(t *testing.T, st store.Store, jobID string) {
	t.Helper()
	if err := st.CreateJob(context.Background(), &types.JobRecord{
		JobID:  jobID,
		Status: types.JobQueued,
	}); err != nil {
		t.Fatalf("CreateJob() error: %v", err)
	}
}

func TestProcessChapter(t *testing.T) {
	mem := store.NewMemoryStore()
	rec := &progressRecorder{Store: mem}
	createJob(t, rec, "job-1")

	// Two candidates out of reading order, plus a junk echo and a sound
	// effect that must not reach the output. Boxes cover the page so no
	// gap band reaches the 380px recovery threshold.
	vision := providers.NewMockVisionProvider()
	vision.Latency = 0
	vision.Candidates = []providers.Candidate{
		{Box: []float64{0, 420, 400, 800}, Text: "Just a traveler.", Analysis: types.CharacterAnalysis{CharacterType: "adult_male", Emotion: "calm"}},
		{Box: []float64{0, 0, 400, 500}, Text: "Who goes there?", Analysis: types.CharacterAnalysis{CharacterType: "adult_female", Emotion: "angry"}},
		{Box: []float64{400, 0, 800, 300}, Text: "json", Analysis: types.CharacterAnalysis{}},
		{Box: []float64{400, 300, 800, 800}, Text: "KRAKOOM", Analysis: types.CharacterAnalysis{CharacterType: "sfx"}},
	}

	tts := providers.NewMockTTSProvider()
	tts.Latency = 0

	p := testProcessor(t, rec, vision, tts)
	req := &ChapterRequest{
		JobID:     "job-1",
		ChapterID: "abcdef123456",
		Title:     "Chapter One",
		Mode:      types.ModeBringToLife,
		Pages:     testPages(2),
	}

	if err := p.ProcessChapter(context.Background(), req); err != nil {
		t.Fatalf("ProcessChapter() error: %v", err)
	}

	job, err := rec.GetJob(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("GetJob() error: %v", err)
	}
	if job.Status != types.JobReady {
		t.Errorf("job status = %v, want ready", job.Status)
	}
	if job.Progress != 100 {
		t.Errorf("job progress = %d, want 100", job.Progress)
	}
	if job.ChapterID != "abcdef123456" {
		t.Errorf("job chapter id = %q", job.ChapterID)
	}

	// 10 on start, 50 after page one, 90 after page two, 100 on ready.
	want := []int{10, 50, 90, 100}
	if len(rec.progress) != len(want) {
		t.Fatalf("progress updates = %v, want %v", rec.progress, want)
	}
	for i := range want {
		if rec.progress[i] != want[i] {
			t.Fatalf("progress updates = %v, want %v", rec.progress, want)
		}
	}

	chapter, err := rec.GetChapter(context.Background(), "abcdef123456")
	if err != nil {
		t.Fatalf("GetChapter() error: %v", err)
	}
	if chapter.Status != types.JobReady || chapter.Progress != 100 {
		t.Errorf("chapter status/progress = %v/%d", chapter.Status, chapter.Progress)
	}
	if len(chapter.Pages) != 2 {
		t.Fatalf("got %d pages, want 2", len(chapter.Pages))
	}

	page := chapter.Pages[0]
	if len(page.Items) != 2 {
		t.Fatalf("page 0 has %d bubbles, want 2 (junk and sfx dropped)", len(page.Items))
	}

	// Reading order is by top edge, not candidate order.
	if page.Items[0].Text != "Who goes there?" || page.Items[1].Text != "Just a traveler." {
		t.Errorf("bubbles out of reading order: %q then %q", page.Items[0].Text, page.Items[1].Text)
	}
	if len(page.ReadingOrder) != 2 {
		t.Fatalf("reading order has %d entries", len(page.ReadingOrder))
	}
	if page.ReadingOrder[0] != page.Items[0].BubbleID || page.ReadingOrder[1] != page.Items[1].BubbleID {
		t.Errorf("reading order %v does not match items", page.ReadingOrder)
	}

	for _, bubble := range page.Items {
		if !strings.HasPrefix(bubble.SpeakerID, "abcdef_speaker_0_") {
			t.Errorf("speaker id = %q, want abcdef_speaker_0_ prefix", bubble.SpeakerID)
		}
		if bubble.AudioURL == "" {
			t.Errorf("bubble %s has no audio", bubble.BubbleID)
		}
		if len(bubble.WordTimes) == 0 {
			t.Errorf("bubble %s has no word times", bubble.BubbleID)
		}
	}

	if page.Items[1].SpeakerName != "Adult Male" {
		t.Errorf("speaker name = %q, want Adult Male", page.Items[1].SpeakerName)
	}

	// Second page bubbles carry the page index in their ids.
	if chapter.Pages[1].Items[0].BubbleID != "bubble_1_0" && chapter.Pages[1].Items[0].BubbleID != "bubble_1_1" {
		t.Errorf("page 1 bubble id = %q", chapter.Pages[1].Items[0].BubbleID)
	}
}

func TestProcessChapterFailureFreezesProgress(t *testing.T) {
	mem := store.NewMemoryStore()
	createJob(t, mem, "job-2")

	vision := providers.NewMockVisionProvider()
	vision.Latency = 0
	vision.Candidates = []providers.Candidate{
		{Box: []float64{0, 0, 800, 800}, Text: "Hello there.", Analysis: types.CharacterAnalysis{CharacterType: "adult_male"}},
	}

	tts := providers.NewMockTTSProvider()
	tts.Latency = 0

	p := testProcessor(t, mem, vision, tts)
	p.readFile = func(path string) ([]byte, error) {
		if strings.Contains(path, "page_001") {
			return nil, errors.New("disk gone")
		}
		return []byte("fake image bytes"), nil
	}

	req := &ChapterRequest{
		JobID:     "job-2",
		ChapterID: "ffff00000000",
		Mode:      types.ModeBringToLife,
		Pages:     testPages(2),
	}

	if err := p.ProcessChapter(context.Background(), req); err == nil {
		t.Fatal("ProcessChapter() succeeded, want failure on page 1")
	}

	job, err := mem.GetJob(context.Background(), "job-2")
	if err != nil {
		t.Fatalf("GetJob() error: %v", err)
	}
	if job.Status != types.JobFailed {
		t.Errorf("job status = %v, want failed", job.Status)
	}
	// Progress stays where the last completed page left it.
	if job.Progress != 50 {
		t.Errorf("job progress = %d, want frozen at 50", job.Progress)
	}
	if job.Error == "" {
		t.Error("job error is empty")
	}

	chapter, err := mem.GetChapter(context.Background(), "ffff00000000")
	if err != nil {
		t.Fatalf("GetChapter() error: %v", err)
	}
	if chapter.Status != types.JobFailed {
		t.Errorf("chapter status = %v, want failed", chapter.Status)
	}
}

func TestProcessChapterEmptyPagePlaceholder(t *testing.T) {
	mem := store.NewMemoryStore()
	createJob(t, mem, "job-3")

	vision := providers.NewMockVisionProvider()
	vision.Latency = 0
	// No candidates anywhere on the page.

	tts := providers.NewMockTTSProvider()
	tts.Latency = 0

	p := testProcessor(t, mem, vision, tts)
	req := &ChapterRequest{
		JobID:     "job-3",
		ChapterID: "123456789abc",
		Mode:      types.ModeBringToLife,
		Pages:     testPages(1),
	}

	if err := p.ProcessChapter(context.Background(), req); err != nil {
		t.Fatalf("ProcessChapter() error: %v", err)
	}

	chapter, err := mem.GetChapter(context.Background(), "123456789abc")
	if err != nil {
		t.Fatalf("GetChapter() error: %v", err)
	}
	page := chapter.Pages[0]
	if len(page.Items) != 1 {
		t.Fatalf("got %d bubbles, want the placeholder", len(page.Items))
	}
	bubble := page.Items[0]
	if bubble.Text != "No text detected on this page." {
		t.Errorf("placeholder text = %q", bubble.Text)
	}
	if bubble.Type != types.BubbleNarration {
		t.Errorf("placeholder type = %v, want narration", bubble.Type)
	}
	if bubble.AudioURL == "" {
		t.Error("placeholder has no audio")
	}
	if chapter.Status != types.JobReady {
		t.Errorf("chapter status = %v, want ready", chapter.Status)
	}
}

func TestProcessChapterNarrateModeSingleVoice(t *testing.T) {
	mem := store.NewMemoryStore()
	createJob(t, mem, "job-4")

	vision := providers.NewMockVisionProvider()
	vision.Latency = 0
	vision.Candidates = []providers.Candidate{
		{Box: []float64{0, 0, 400, 500}, Text: "Who goes there?", Analysis: types.CharacterAnalysis{CharacterType: "adult_female"}},
		{Box: []float64{0, 420, 400, 800}, Text: "Just a traveler.", Analysis: types.CharacterAnalysis{CharacterType: "adult_male"}},
		{Box: []float64{400, 300, 800, 800}, Text: "WHAM", Analysis: types.CharacterAnalysis{CharacterType: "adult_male"}},
	}

	tts := providers.NewMockTTSProvider()
	tts.Latency = 0

	p := testProcessor(t, mem, vision, tts)
	req := &ChapterRequest{
		JobID:          "job-4",
		ChapterID:      "cccccc111111",
		Mode:           types.ModeNarrate,
		NarratorGender: "male",
		Pages:          testPages(1),
	}

	if err := p.ProcessChapter(context.Background(), req); err != nil {
		t.Fatalf("ProcessChapter() error: %v", err)
	}

	chapter, err := mem.GetChapter(context.Background(), "cccccc111111")
	if err != nil {
		t.Fatalf("GetChapter() error: %v", err)
	}
	page := chapter.Pages[0]

	// "WHAM" reclassifies as a sound effect in narrate mode and is dropped.
	if len(page.Items) != 2 {
		t.Fatalf("got %d bubbles, want 2", len(page.Items))
	}
	for _, bubble := range page.Items {
		if bubble.VoiceID != "voice_narrator_m" {
			t.Errorf("bubble %s voice = %q, want voice_narrator_m", bubble.BubbleID, bubble.VoiceID)
		}
		if bubble.SpeakerName != "Narrator" {
			t.Errorf("bubble %s speaker name = %q, want Narrator", bubble.BubbleID, bubble.SpeakerName)
		}
	}
}

func TestProcessChapterNoProvidersFails(t *testing.T) {
	mem := store.NewMemoryStore()
	createJob(t, mem, "job-5")

	vision := providers.NewMockVisionProvider()
	vision.Latency = 0
	vision.Candidates = []providers.Candidate{
		{Box: []float64{0, 0, 800, 800}, Text: "Hello there.", Analysis: types.CharacterAnalysis{CharacterType: "adult_male"}},
	}

	p := testProcessor(t, mem, vision) // empty TTS chain

	req := &ChapterRequest{
		JobID:     "job-5",
		ChapterID: "dddddd222222",
		Mode:      types.ModeBringToLife,
		Pages:     testPages(1),
	}

	err := p.ProcessChapter(context.Background(), req)
	if !errors.Is(err, ErrNoProviders) {
		t.Fatalf("err = %v, want ErrNoProviders", err)
	}

	job, getErr := mem.GetJob(context.Background(), "job-5")
	if getErr != nil {
		t.Fatalf("GetJob() error: %v", getErr)
	}
	if job.Status != types.JobFailed {
		t.Errorf("job status = %v, want failed", job.Status)
	}
}

func TestUpdateSpeaker(t *testing.T) {
	mem := store.NewMemoryStore()

	vision := providers.NewMockVisionProvider()
	tts := providers.NewMockTTSProvider()
	tts.Latency = 0

	p := testProcessor(t, mem, vision, tts)

	chapter := &types.ChapterPayload{
		ChapterID: "abc123def456",
		Status:    types.JobReady,
		Progress:  100,
		Pages: []types.Page{{
			PageIndex: 0,
			Items: []types.Bubble{
				{
					BubbleID:  "bubble_0_0",
					SpeakerID: "abc123_speaker_0_0",
					VoiceID:   "voice_adult_m",
					Text:      "Who goes there?",
					AudioURL:  "/audio/tts/voice_adult_m/old.mp3",
				},
				{
					BubbleID:  "bubble_0_1",
					SpeakerID: "abc123_speaker_0_1",
					VoiceID:   "voice_adult_f",
					Text:      "Just a traveler.",
					AudioURL:  "/audio/tts/voice_adult_f/old.mp3",
				},
			},
			ReadingOrder: []string{"bubble_0_0", "bubble_0_1"},
		}},
	}
	if err := mem.SaveChapter(context.Background(), chapter); err != nil {
		t.Fatalf("SaveChapter() error: %v", err)
	}

	t.Run("rename only", func(t *testing.T) {
		n, err := p.UpdateSpeaker(context.Background(), "abc123_speaker_0_0", types.SpeakerUpdate{DisplayName: "Captain Vex"})
		if err != nil {
			t.Fatalf("UpdateSpeaker() error: %v", err)
		}
		if n != 1 {
			t.Errorf("updated %d bubbles, want 1", n)
		}

		got, err := mem.GetChapter(context.Background(), "abc123def456")
		if err != nil {
			t.Fatalf("GetChapter() error: %v", err)
		}
		bubble := got.Pages[0].Items[0]
		if bubble.SpeakerName != "Captain Vex" {
			t.Errorf("speaker name = %q", bubble.SpeakerName)
		}
		// A rename must not touch the audio.
		if bubble.AudioURL != "/audio/tts/voice_adult_m/old.mp3" {
			t.Errorf("rename regenerated audio: %q", bubble.AudioURL)
		}
	})

	t.Run("voice change resynthesizes", func(t *testing.T) {
		n, err := p.UpdateSpeaker(context.Background(), "abc123_speaker_0_1", types.SpeakerUpdate{VoiceID: "voice_young_f"})
		if err != nil {
			t.Fatalf("UpdateSpeaker() error: %v", err)
		}
		if n != 1 {
			t.Errorf("updated %d bubbles, want 1", n)
		}

		got, err := mem.GetChapter(context.Background(), "abc123def456")
		if err != nil {
			t.Fatalf("GetChapter() error: %v", err)
		}
		bubble := got.Pages[0].Items[1]
		if bubble.VoiceID != "voice_young_f" {
			t.Errorf("voice = %q, want voice_young_f", bubble.VoiceID)
		}
		if !strings.Contains(bubble.AudioURL, "tts/voice_young_f/") {
			t.Errorf("audio url = %q, want new voice key", bubble.AudioURL)
		}
		// Text is never rewritten by a correction.
		if bubble.Text != "Just a traveler." {
			t.Errorf("text changed: %q", bubble.Text)
		}
	})

	t.Run("unknown speaker updates nothing", func(t *testing.T) {
		n, err := p.UpdateSpeaker(context.Background(), "nope_speaker_9_9", types.SpeakerUpdate{DisplayName: "Ghost"})
		if err != nil {
			t.Fatalf("UpdateSpeaker() error: %v", err)
		}
		if n != 0 {
			t.Errorf("updated %d bubbles, want 0", n)
		}
	})

	t.Run("empty update rejected", func(t *testing.T) {
		if _, err := p.UpdateSpeaker(context.Background(), "abc123_speaker_0_0", types.SpeakerUpdate{}); err == nil {
			t.Fatal("empty update accepted")
		}
	})
}

func TestExtractRegionPacedByVisionBudget(t *testing.T) {
	vision := providers.NewMockVisionProvider()
	vision.Latency = 0
	vision.RPS = 0.001 // burst of 1 token, refill far beyond the test window

	p := testProcessor(t, store.NewMemoryStore(), vision)

	// First extraction consumes the only token.
	if _, err := p.extractRegion(context.Background(), []byte("region"), 0); err != nil {
		t.Fatalf("extractRegion() error: %v", err)
	}
	if vision.RequestCount() != 1 {
		t.Fatalf("vision called %d times, want 1", vision.RequestCount())
	}

	// Second extraction must block on the limiter until the context
	// expires, never reaching the provider.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := p.extractRegion(ctx, []byte("region"), 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if vision.RequestCount() != 1 {
		t.Errorf("vision called %d times, want 1", vision.RequestCount())
	}
}
