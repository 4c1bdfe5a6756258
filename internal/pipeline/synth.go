package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/jackzampolin/panelvox/internal/providers"
	"github.com/jackzampolin/panelvox/internal/types"
)

// ErrNoProviders means synthesis was requested with an empty provider
// chain. This is a hard pipeline error, not a degraded result.
var ErrNoProviders = errors.New("no TTS providers configured")

const (
	// rateLimitAttempts is how many times one provider is retried on 429
	// before falling through to the next provider in the chain.
	rateLimitAttempts = 5

	// approxSecondsPerChar drives word timing approximation when no
	// provider produced audio.
	approxSecondsPerChar = 0.04

	// approxMinWordSeconds floors very short words.
	approxMinWordSeconds = 0.25
)

// AudioStore persists synthesized audio and returns a serving URL.
type AudioStore interface {
	Put(key string, data []byte) (string, error)
}

// DiskAudioStore writes audio under a root directory and serves it from
// a URL prefix.
type DiskAudioStore struct {
	Root      string
	URLPrefix string
}

// Put writes data to Root/key and returns URLPrefix/key.
func (s *DiskAudioStore) Put(key string, data []byte) (string, error) {
	path := filepath.Join(s.Root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write audio file: %w", err)
	}
	return strings.TrimSuffix(s.URLPrefix, "/") + "/" + key, nil
}

// SynthesisResult is the orchestrator's output for one bubble.
type SynthesisResult struct {
	// AudioURL is empty for a degraded result.
	AudioURL string

	// WordTimes are provider timings when available, approximations
	// otherwise.
	WordTimes []types.WordTime

	// Degraded is true when every provider failed and the result carries
	// approximate timings only.
	Degraded bool

	// Provider is the name of the provider that produced the audio.
	Provider string
}

// Synthesizer runs the TTS provider chain with per-provider rate
// limiting and retry, and graceful degradation.
type Synthesizer struct {
	chain     []providers.TTSProvider
	limiters  map[string]*providers.RateLimiter
	audio     AudioStore
	baseDelay time.Duration
	delayCap  time.Duration
	logger    *slog.Logger
}

// NewSynthesizer creates a synthesizer over the given provider chain.
// Each provider with a positive RequestsPerSecond gets its own limiter.
func NewSynthesizer(chain []providers.TTSProvider, audio AudioStore, baseDelay, delayCap time.Duration, logger *slog.Logger) *Synthesizer {
	if baseDelay <= 0 {
		baseDelay = 2 * time.Second
	}
	if delayCap <= 0 {
		delayCap = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	limiters := make(map[string]*providers.RateLimiter, len(chain))
	for _, p := range chain {
		if rps := p.RequestsPerSecond(); rps > 0 {
			limiters[p.Name()] = providers.NewRateLimiter(rps)
		}
	}
	return &Synthesizer{
		chain:     chain,
		limiters:  limiters,
		audio:     audio,
		baseDelay: baseDelay,
		delayCap:  delayCap,
		logger:    logger.With("component", "synthesizer"),
	}
}

// Synthesize tries each provider in order. Rate limits retry the same
// provider with linear backoff; any other error falls through to the next
// provider immediately. With all providers exhausted it returns a
// degraded result; with an empty chain it returns ErrNoProviders.
func (s *Synthesizer) Synthesize(ctx context.Context, req *providers.TTSRequest) (*SynthesisResult, error) {
	if len(s.chain) == 0 {
		return nil, ErrNoProviders
	}

	for _, provider := range s.chain {
		result, err := s.attemptProvider(ctx, provider, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("provider failed, falling through",
				"provider", provider.Name(), "error", err)
			continue
		}

		url, err := s.storeAudio(req.Voice, result)
		if err != nil {
			s.logger.Warn("failed to store audio", "provider", provider.Name(), "error", err)
			continue
		}

		wordTimes := result.WordTimes
		if len(wordTimes) == 0 {
			wordTimes = ApproximateWordTimes(req.Text)
		}
		return &SynthesisResult{
			AudioURL:  url,
			WordTimes: wordTimes,
			Provider:  provider.Name(),
		}, nil
	}

	// Every configured provider failed. Degrade: no audio, approximate
	// timings, so the transcript stays usable.
	s.logger.Warn("all providers exhausted, degrading", "chars", len(req.Text))
	return &SynthesisResult{
		WordTimes: ApproximateWordTimes(req.Text),
		Degraded:  true,
	}, nil
}

// attemptProvider calls one provider, retrying only on rate limits.
// Each attempt waits on the provider's token bucket first, and a 429
// drains the bucket so concurrent bubbles back off too.
func (s *Synthesizer) attemptProvider(ctx context.Context, provider providers.TTSProvider, req *providers.TTSRequest) (*providers.TTSResult, error) {
	var result *providers.TTSResult
	limiter := s.limiters[provider.Name()]

	err := retry.Do(
		func() error {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return err
				}
			}
			r, err := provider.Generate(ctx, req)
			if err != nil {
				if _, ok := providers.IsRateLimitError(err); ok && limiter != nil {
					limiter.Record429()
				}
				return err
			}
			result = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(rateLimitAttempts),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			_, ok := providers.IsRateLimitError(err)
			return ok
		}),
		retry.DelayType(func(n uint, err error, _ *retry.Config) time.Duration {
			// Linear backoff: base x attempt, capped. A Retry-After
			// hint from the provider wins when longer.
			delay := s.baseDelay * time.Duration(n+1)
			if delay > s.delayCap {
				delay = s.delayCap
			}
			if rle, ok := providers.IsRateLimitError(err); ok && rle.RetryAfter > delay {
				delay = rle.RetryAfter
			}
			return delay
		}),
	)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// storeAudio persists the audio under tts/{voice}/{uuid}.{format}.
func (s *Synthesizer) storeAudio(voice string, result *providers.TTSResult) (string, error) {
	format := result.Format
	if format == "" {
		format = "mp3"
	}
	key := fmt.Sprintf("tts/%s/%s.%s", voice, uuid.New().String(), format)
	return s.audio.Put(key, result.Audio)
}

// ApproximateWordTimes estimates timings when no provider alignment is
// available: duration proportional to character count with a floor,
// cumulative offsets.
func ApproximateWordTimes(text string) []types.WordTime {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	times := make([]types.WordTime, 0, len(words))
	cursor := 0.0
	for _, word := range words {
		duration := float64(len(word)) * approxSecondsPerChar
		if duration < approxMinWordSeconds {
			duration = approxMinWordSeconds
		}
		times = append(times, types.WordTime{
			Word:  word,
			Start: cursor,
			End:   cursor + duration,
		})
		cursor += duration
	}
	return times
}
