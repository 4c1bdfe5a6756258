package providers

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// MockVisionProvider is a VisionProvider for testing.
type MockVisionProvider struct {
	// Configurable behavior
	ProviderName string
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int // Fail after N requests (0 = never)
	Candidates   []Candidate

	// Rate limiting
	RPS        float64
	Retries    int
	RetryDelay time.Duration

	// State
	requestCount atomic.Int64
}

// NewMockVisionProvider creates a new mock vision provider with sensible defaults.
func NewMockVisionProvider() *MockVisionProvider {
	return &MockVisionProvider{
		ProviderName: "mock-vision",
		Latency:      10 * time.Millisecond,
		RPS:          10.0,
		Retries:      3,
		RetryDelay:   time.Second,
	}
}

// Name returns the provider identifier.
func (p *MockVisionProvider) Name() string {
	return p.ProviderName
}

// RequestsPerSecond returns the rate limit.
func (p *MockVisionProvider) RequestsPerSecond() float64 {
	return p.RPS
}

// MaxRetries returns the max retry count.
func (p *MockVisionProvider) MaxRetries() int {
	return p.Retries
}

// RetryDelayBase returns the base retry delay.
func (p *MockVisionProvider) RetryDelayBase() time.Duration {
	return p.RetryDelay
}

// Extract returns the configured candidates.
func (p *MockVisionProvider) Extract(ctx context.Context, req *ExtractionRequest) (*ExtractionResult, error) {
	start := time.Now()
	count := p.requestCount.Add(1)

	result := &ExtractionResult{}

	if p.ShouldFail {
		result.ErrorMessage = "mock vision provider configured to fail"
		result.ExecutionTime = time.Since(start)
		return result, fmt.Errorf("mock vision provider configured to fail")
	}
	if p.FailAfter > 0 && int(count) > p.FailAfter {
		result.ErrorMessage = fmt.Sprintf("mock vision provider failed after %d requests", p.FailAfter)
		result.ExecutionTime = time.Since(start)
		return result, fmt.Errorf("mock vision provider failed after %d requests", p.FailAfter)
	}

	select {
	case <-time.After(p.Latency):
	case <-ctx.Done():
		result.ErrorMessage = ctx.Err().Error()
		result.ExecutionTime = time.Since(start)
		return result, ctx.Err()
	}

	result.Success = true
	result.Candidates = append([]Candidate(nil), p.Candidates...)
	result.ExecutionTime = time.Since(start)
	return result, nil
}

// RequestCount returns the number of requests made.
func (p *MockVisionProvider) RequestCount() int64 {
	return p.requestCount.Load()
}

// Reset resets the request counter.
func (p *MockVisionProvider) Reset() {
	p.requestCount.Store(0)
}

// Verify interface
var _ VisionProvider = (*MockVisionProvider)(nil)

// MockTTSProvider is a TTSProvider for testing.
type MockTTSProvider struct {
	// Configurable behavior
	ProviderName   string
	Latency        time.Duration
	ShouldFail     bool
	FailAfter      int // Fail after N requests (0 = never)
	RateLimitFirst int // First N requests fail with RateLimitError
	Audio          []byte

	// Rate limiting
	RPS        float64
	Retries    int
	RetryDelay time.Duration

	// State
	requestCount atomic.Int64
}

// NewMockTTSProvider creates a new mock TTS provider with sensible defaults.
func NewMockTTSProvider() *MockTTSProvider {
	return &MockTTSProvider{
		ProviderName: "mock-tts",
		Latency:      10 * time.Millisecond,
		Audio:        []byte("mock audio"),
		RPS:          10.0,
		Retries:      3,
		RetryDelay:   time.Millisecond,
	}
}

// Name returns the provider identifier.
func (p *MockTTSProvider) Name() string {
	return p.ProviderName
}

// RequestsPerSecond returns the rate limit.
func (p *MockTTSProvider) RequestsPerSecond() float64 {
	return p.RPS
}

// MaxRetries returns the max retry count.
func (p *MockTTSProvider) MaxRetries() int {
	return p.Retries
}

// RetryDelayBase returns the base retry delay.
func (p *MockTTSProvider) RetryDelayBase() time.Duration {
	return p.RetryDelay
}

// Generate returns the configured audio.
func (p *MockTTSProvider) Generate(ctx context.Context, req *TTSRequest) (*TTSResult, error) {
	start := time.Now()
	count := p.requestCount.Add(1)

	result := &TTSResult{CharCount: len(req.Text)}

	if p.RateLimitFirst > 0 && int(count) <= p.RateLimitFirst {
		err := &RateLimitError{
			Message:    "mock TTS provider rate limited",
			StatusCode: 429,
		}
		result.ErrorMessage = err.Error()
		result.ExecutionTime = time.Since(start)
		return result, err
	}
	if p.ShouldFail {
		result.ErrorMessage = "mock TTS provider configured to fail"
		result.ExecutionTime = time.Since(start)
		return result, fmt.Errorf("mock TTS provider configured to fail")
	}
	if p.FailAfter > 0 && int(count) > p.FailAfter {
		result.ErrorMessage = fmt.Sprintf("mock TTS provider failed after %d requests", p.FailAfter)
		result.ExecutionTime = time.Since(start)
		return result, fmt.Errorf("mock TTS provider failed after %d requests", p.FailAfter)
	}

	select {
	case <-time.After(p.Latency):
	case <-ctx.Done():
		result.ErrorMessage = ctx.Err().Error()
		result.ExecutionTime = time.Since(start)
		return result, ctx.Err()
	}

	result.Success = true
	result.Audio = append([]byte(nil), p.Audio...)
	result.Format = "mp3"
	result.ExecutionTime = time.Since(start)
	return result, nil
}

// RequestCount returns the number of requests made.
func (p *MockTTSProvider) RequestCount() int64 {
	return p.requestCount.Load()
}

// Reset resets the request counter.
func (p *MockTTSProvider) Reset() {
	p.requestCount.Store(0)
}

// Verify interface
var _ TTSProvider = (*MockTTSProvider)(nil)
