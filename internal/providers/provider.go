package providers

import (
	"context"
	"time"

	"github.com/jackzampolin/panelvox/internal/types"
)

// Candidate is one text detection returned by a vision provider.
// Box is [x0, y0, x1, y1] relative to the image that was submitted;
// callers translate boxes when they submit crops.
type Candidate struct {
	Box      []float64               `json:"box"`
	Text     string                  `json:"text"`
	Analysis types.CharacterAnalysis `json:"analysis"`
}

// ExtractionRequest is a request to extract text candidates from an image.
type ExtractionRequest struct {
	// Image is the encoded image (PNG or JPEG).
	Image []byte

	// PageIndex identifies the page for logging and request tracking.
	PageIndex int

	// Timeout overrides the provider default if set.
	Timeout time.Duration
}

// ExtractionResult is the response from a vision provider.
type ExtractionResult struct {
	Success bool `json:"success"`

	// Candidates are ordered top-to-bottom, left-to-right.
	// May be empty.
	Candidates []Candidate `json:"candidates"`

	ExecutionTime time.Duration `json:"execution_time"`
	ErrorMessage  string        `json:"error_message,omitempty"`
}

// VisionProvider extracts text candidates from page images.
// Separate from TTS because it has different rate limiting, retry patterns,
// and result handling.
type VisionProvider interface {
	// Name returns the provider identifier (e.g., "openrouter").
	Name() string

	// Extract returns the text candidates found in an image region.
	Extract(ctx context.Context, req *ExtractionRequest) (*ExtractionResult, error)

	// Rate limiting properties
	RequestsPerSecond() float64
	MaxRetries() int
	RetryDelayBase() time.Duration
}

// TTSRequest is a request to synthesize speech.
type TTSRequest struct {
	// Text is the (delivery-shaped) text to speak.
	Text string

	// Voice is a logical voice id (e.g., "voice_adult_m"); providers
	// resolve it to their own voice identifiers.
	Voice string

	// Voice expressiveness parameters (0.0-1.0).
	Stability       float64
	SimilarityBoost float64
	Style           float64

	// Instructions is an optional delivery hint for providers that
	// support it (e.g., OpenAI gpt-4o-mini-tts).
	Instructions string

	// Format is the output format (provider default if empty).
	Format string
}

// TTSResult is the response from a TTS provider.
type TTSResult struct {
	Success bool `json:"success"`

	// Audio is the raw encoded audio.
	Audio []byte `json:"-"`

	// WordTimes are word-level timestamps when the provider reports them.
	// Empty when the provider has no alignment support; callers fall back
	// to approximation.
	WordTimes []types.WordTime `json:"word_times,omitempty"`

	Format        string        `json:"format"`
	CharCount     int           `json:"char_count"`
	ExecutionTime time.Duration `json:"execution_time"`
	ErrorMessage  string        `json:"error_message,omitempty"`
}

// TTSProvider converts text to speech.
type TTSProvider interface {
	// Name returns the provider identifier (e.g., "elevenlabs").
	Name() string

	// Generate converts text to audio.
	Generate(ctx context.Context, req *TTSRequest) (*TTSResult, error)

	// Rate limiting properties
	RequestsPerSecond() float64
	MaxRetries() int
	RetryDelayBase() time.Duration
}

// Voice represents a selectable TTS voice.
type Voice struct {
	VoiceID     string `json:"voice_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// VoicesLister is implemented by TTS providers that can enumerate voices.
type VoicesLister interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}
