package pipeline

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/panelvox/internal/providers"
)

// memAudioStore keeps synthesized audio in memory for tests.
type memAudioStore struct {
	files map[string][]byte
}

func newMemAudioStore() *memAudioStore {
	return &memAudioStore{files: make(map[string][]byte)}
}

func (s *memAudioStore) Put(key string, data []byte) (string, error) {
	s.files[key] = append([]byte(nil), data...)
	return "/audio/" + key, nil
}

func testSynthesizer(chain ...providers.TTSProvider) (*Synthesizer, *memAudioStore) {
	audio := newMemAudioStore()
	return NewSynthesizer(chain, audio, time.Millisecond, 10*time.Millisecond, nil), audio
}

func TestSynthesizeFallsThroughToNextProvider(t *testing.T) {
	failing := providers.NewMockTTSProvider()
	failing.ProviderName = "first"
	failing.ShouldFail = true

	working := providers.NewMockTTSProvider()
	working.ProviderName = "second"
	working.Audio = []byte("second provider audio")
	working.Latency = 0

	s, audio := testSynthesizer(failing, working)

	result, err := s.Synthesize(context.Background(), &providers.TTSRequest{Text: "Hello there", Voice: "voice_adult_m"})
	if err != nil {
		t.Fatalf("Synthesize() error: %v", err)
	}
	if result.Degraded {
		t.Fatal("result degraded despite a working provider")
	}
	if result.Provider != "second" {
		t.Errorf("Provider = %q, want second", result.Provider)
	}
	if !strings.HasPrefix(result.AudioURL, "/audio/tts/voice_adult_m/") {
		t.Errorf("AudioURL = %q, want tts/voice_adult_m key", result.AudioURL)
	}
	key := strings.TrimPrefix(result.AudioURL, "/audio/")
	if !bytes.Equal(audio.files[key], []byte("second provider audio")) {
		t.Errorf("stored audio did not come from the second provider")
	}
	// Non-rate-limit failures fall through without retrying.
	if failing.RequestCount() != 1 {
		t.Errorf("failing provider called %d times, want 1", failing.RequestCount())
	}
}

func TestSynthesizeRetriesRateLimits(t *testing.T) {
	limited := providers.NewMockTTSProvider()
	limited.RateLimitFirst = 2
	limited.Latency = 0
	limited.Audio = []byte("audio after backoff")

	s, _ := testSynthesizer(limited)

	result, err := s.Synthesize(context.Background(), &providers.TTSRequest{Text: "Hi", Voice: "voice_adult_m"})
	if err != nil {
		t.Fatalf("Synthesize() error: %v", err)
	}
	if result.Degraded {
		t.Fatal("result degraded, want success after rate limit retries")
	}
	if limited.RequestCount() != 3 {
		t.Errorf("provider called %d times, want 3 (two 429s then success)", limited.RequestCount())
	}
}

func TestSynthesizeRateLimitExhaustionDegrades(t *testing.T) {
	limited := providers.NewMockTTSProvider()
	limited.RateLimitFirst = 100
	limited.Latency = 0

	s, _ := testSynthesizer(limited)

	result, err := s.Synthesize(context.Background(), &providers.TTSRequest{Text: "Hello there friend", Voice: "voice_adult_m"})
	if err != nil {
		t.Fatalf("Synthesize() error: %v", err)
	}
	if !result.Degraded {
		t.Fatal("result not degraded after exhausting retries")
	}
	if result.AudioURL != "" {
		t.Errorf("degraded result has AudioURL %q", result.AudioURL)
	}
	if len(result.WordTimes) != 3 {
		t.Errorf("got %d approximate word times, want 3", len(result.WordTimes))
	}
	if limited.RequestCount() != 5 {
		t.Errorf("provider called %d times, want the retry budget of 5", limited.RequestCount())
	}
}

func TestSynthesizeEmptyChain(t *testing.T) {
	s, _ := testSynthesizer()
	_, err := s.Synthesize(context.Background(), &providers.TTSRequest{Text: "Hi", Voice: "voice_adult_m"})
	if !errors.Is(err, ErrNoProviders) {
		t.Fatalf("err = %v, want ErrNoProviders", err)
	}
}

func TestSynthesizeContextCancellation(t *testing.T) {
	limited := providers.NewMockTTSProvider()
	limited.RateLimitFirst = 100
	limited.Latency = 0

	s, _ := testSynthesizer(limited)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Synthesize(ctx, &providers.TTSRequest{Text: "Hi", Voice: "voice_adult_m"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestSynthesizeWaitsForProviderBudget(t *testing.T) {
	slow := providers.NewMockTTSProvider()
	slow.Latency = 0
	slow.RPS = 0.001 // burst of 1 token, refill far beyond the test window

	s, _ := testSynthesizer(slow)

	// First call consumes the only token.
	if _, err := s.Synthesize(context.Background(), &providers.TTSRequest{Text: "Hi", Voice: "voice_adult_m"}); err != nil {
		t.Fatalf("Synthesize() error: %v", err)
	}

	// Second call must block on the limiter until the context expires,
	// never reaching the provider.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Synthesize(ctx, &providers.TTSRequest{Text: "Hi again", Voice: "voice_adult_m"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
	if slow.RequestCount() != 1 {
		t.Errorf("provider called %d times, want 1", slow.RequestCount())
	}
}

func TestSynthesizeRateLimitDrainsBudget(t *testing.T) {
	limited := providers.NewMockTTSProvider()
	limited.Latency = 0
	limited.RPS = 20 // 50ms per token once drained
	limited.RateLimitFirst = 1

	s, _ := testSynthesizer(limited)

	start := time.Now()
	result, err := s.Synthesize(context.Background(), &providers.TTSRequest{Text: "Hello", Voice: "voice_adult_m"})
	if err != nil {
		t.Fatalf("Synthesize() error: %v", err)
	}
	if result.Degraded {
		t.Fatal("result degraded, want success on the retry")
	}
	if limited.RequestCount() != 2 {
		t.Errorf("provider called %d times, want 2", limited.RequestCount())
	}
	// The 429 drains the bucket, so the retry waits for a token refill.
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("retry came back in %v, want >= 40ms token refill wait", elapsed)
	}
}

func TestApproximateWordTimes(t *testing.T) {
	times := ApproximateWordTimes("Hi supercalifragilistic")
	if len(times) != 2 {
		t.Fatalf("got %d word times, want 2", len(times))
	}

	// "Hi" is floored at 0.25s.
	if times[0].Start != 0 || times[0].End != 0.25 {
		t.Errorf("times[0] = %+v, want [0, 0.25]", times[0])
	}

	// 20 chars at 0.04s/char, starting where the first word ended.
	want := 0.25 + 20*0.04
	if times[1].Start != 0.25 || !closeTo(times[1].End, want) {
		t.Errorf("times[1] = %+v, want [0.25, %v]", times[1], want)
	}

	if got := ApproximateWordTimes("   "); got != nil {
		t.Errorf("blank text produced %v", got)
	}
}

func closeTo(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
