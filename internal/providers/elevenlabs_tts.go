package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jackzampolin/panelvox/internal/types"
)

const (
	ElevenLabsTTSName      = "elevenlabs"
	ElevenLabsAPIBaseURL   = "https://api.elevenlabs.io/v1"
	ElevenLabsDefaultModel = "eleven_multilingual_v2"
)

// elevenVoiceMap resolves logical voice ids to ElevenLabs voice ids.
// Logical ids are what the voice assignment engine produces; keeping the
// mapping in the provider lets other TTS backends resolve the same ids.
var elevenVoiceMap = map[string]string{
	"voice_child_m":     "SOYHLrjzK2X1ezoPC6cr", // Harry
	"voice_child_f":     "jsCqWAovK2LkecY7zXl4", // Freya
	"voice_young_m":     "pNInz6obpgDQGcFmaJgB", // Antoni
	"voice_young_f":     "21m00Tcm4TlvDq8ikWAM", // Rachel
	"voice_adult_m":     "TxGEqnHWrfWFTfGW9XjX", // Josh
	"voice_adult_f":     "AZnzlk1XvdvUeBnXmlld", // Bella
	"voice_androgynous": "ErXwobaYiN019PkySvjV", // Domi
	"voice_narrator_m":  "onwK4e9ZLuTAKqWW03F9", // Daniel
	"voice_narrator_f":  "EXAVITQu4vr4xnSDxMaL", // Sarah
	"voice_system":      "onwK4e9ZLuTAKqWW03F9", // Daniel
}

// ElevenLabsTTSConfig holds configuration for the ElevenLabs TTS client.
type ElevenLabsTTSConfig struct {
	APIKey     string
	Model      string  // e.g., "eleven_multilingual_v2", "eleven_turbo_v2_5"
	Format     string  // Output format: mp3_44100_128, mp3_22050_32, etc.
	Speed      float64 // Speaking speed (0.7-1.2, default: 1.0)
	Timeout    time.Duration
	RateLimit  float64 // Requests per second
	MaxRetries int
	RetryDelay time.Duration
	BaseURL    string // Optional (tests)
}

// ElevenLabsTTSClient implements TTSProvider using the ElevenLabs API.
// It uses the with-timestamps endpoint so bubbles get real word timings.
type ElevenLabsTTSClient struct {
	apiKey     string
	model      string
	format     string
	speed      float64
	rateLimit  float64
	maxRetries int
	retryDelay time.Duration
	baseURL    string
	client     *http.Client
}

// NewElevenLabsTTSClient creates a new ElevenLabs TTS client.
func NewElevenLabsTTSClient(cfg ElevenLabsTTSConfig) *ElevenLabsTTSClient {
	if cfg.Model == "" {
		cfg.Model = ElevenLabsDefaultModel
	}
	if cfg.Format == "" {
		cfg.Format = "mp3_44100_128"
	}
	if cfg.Speed == 0 {
		cfg.Speed = 1.0
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10.0
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = ElevenLabsAPIBaseURL
	}

	return &ElevenLabsTTSClient{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		format:     cfg.Format,
		speed:      cfg.Speed,
		rateLimit:  cfg.RateLimit,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		baseURL:    cfg.BaseURL,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Name returns the provider identifier.
func (c *ElevenLabsTTSClient) Name() string {
	return ElevenLabsTTSName
}

// RequestsPerSecond returns the rate limit.
func (c *ElevenLabsTTSClient) RequestsPerSecond() float64 {
	return c.rateLimit
}

// MaxRetries returns the maximum retry attempts.
func (c *ElevenLabsTTSClient) MaxRetries() int {
	return c.maxRetries
}

// RetryDelayBase returns the base delay for backoff.
func (c *ElevenLabsTTSClient) RetryDelayBase() time.Duration {
	return c.retryDelay
}

// HealthCheck verifies the ElevenLabs API is reachable and the API key is valid.
func (c *ElevenLabsTTSClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/user", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("invalid API key")
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// Generate converts text to audio with word-level timestamps.
func (c *ElevenLabsTTSClient) Generate(ctx context.Context, req *TTSRequest) (*TTSResult, error) {
	start := time.Now()

	voice := resolveElevenVoice(req.Voice)
	if voice == "" {
		err := fmt.Errorf("voice is required")
		return &TTSResult{
			Success:       false,
			ErrorMessage:  err.Error(),
			CharCount:     len(req.Text),
			ExecutionTime: time.Since(start),
		}, err
	}

	format := req.Format
	if format == "" {
		format = c.format
	}

	ttsReq := elevenLabsTTSRequest{
		Text:    req.Text,
		ModelID: c.model,
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       req.Stability,
			SimilarityBoost: req.SimilarityBoost,
			Style:           req.Style,
			Speed:           c.speed,
			UseSpeakerBoost: true,
		},
	}

	resp, err := c.doRequest(ctx, voice, format, ttsReq)
	if err != nil {
		return &TTSResult{
			Success:       false,
			ErrorMessage:  err.Error(),
			CharCount:     len(req.Text),
			ExecutionTime: time.Since(start),
		}, err
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
	if err != nil {
		err = fmt.Errorf("failed to decode audio payload: %w", err)
		return &TTSResult{
			Success:       false,
			ErrorMessage:  err.Error(),
			CharCount:     len(req.Text),
			ExecutionTime: time.Since(start),
		}, err
	}

	return &TTSResult{
		Success:       true,
		Audio:         audio,
		WordTimes:     wordTimesFromAlignment(resp.Alignment),
		Format:        strings.SplitN(format, "_", 2)[0],
		CharCount:     len(req.Text),
		ExecutionTime: time.Since(start),
	}, nil
}

// resolveElevenVoice maps a logical voice id to an ElevenLabs voice id.
// Ids not present in the map are passed through, so callers may also use
// raw ElevenLabs voice ids directly.
func resolveElevenVoice(voice string) string {
	if v, ok := elevenVoiceMap[voice]; ok {
		return v
	}
	return voice
}

// doRequest calls the with-timestamps TTS endpoint.
func (c *ElevenLabsTTSClient) doRequest(ctx context.Context, voiceID, format string, body elevenLabsTTSRequest) (*elevenLabsTTSResponse, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s/with-timestamps?output_format=%s", c.baseURL, voiceID, format)
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp elevenLabsErrorResponse
		errMsg := string(respBody)
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Detail.Message != "" {
			errMsg = errResp.Detail.Message
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			return nil, &RateLimitError{
				Message:    fmt.Sprintf("ElevenLabs rate limited: %s", errMsg),
				RetryAfter: retryAfter,
				StatusCode: resp.StatusCode,
			}
		}

		return nil, fmt.Errorf("ElevenLabs TTS error (status %d): %s", resp.StatusCode, errMsg)
	}

	var ttsResp elevenLabsTTSResponse
	if err := json.Unmarshal(respBody, &ttsResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &ttsResp, nil
}

// ListVoices retrieves available voices from ElevenLabs.
func (c *ElevenLabsTTSClient) ListVoices(ctx context.Context) ([]Voice, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to list voices (status %d): %s", resp.StatusCode, string(body))
	}

	var result elevenLabsVoicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	voices := make([]Voice, 0, len(result.Voices))
	for _, v := range result.Voices {
		voices = append(voices, Voice{
			VoiceID:     v.VoiceID,
			Name:        v.Name,
			Description: v.Description,
		})
	}

	return voices, nil
}

// Model returns the model being used.
func (c *ElevenLabsTTSClient) Model() string {
	return c.model
}

// ElevenLabs API types

type elevenLabsTTSRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	Speed           float64 `json:"speed,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

type elevenLabsTTSResponse struct {
	AudioBase64 string               `json:"audio_base64"`
	Alignment   *elevenLabsAlignment `json:"alignment"`
}

// elevenLabsAlignment is the character-level alignment returned by the
// with-timestamps endpoint.
type elevenLabsAlignment struct {
	Characters              []string  `json:"characters"`
	CharacterStartTimesSecs []float64 `json:"character_start_times_seconds"`
	CharacterEndTimesSecs   []float64 `json:"character_end_times_seconds"`
}

type elevenLabsErrorResponse struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

type elevenLabsVoicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

type elevenLabsVoice struct {
	VoiceID     string `json:"voice_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// wordTimesFromAlignment folds character-level alignment into word times.
// Whitespace characters delimit words; the word's span is the span of its
// characters.
func wordTimesFromAlignment(a *elevenLabsAlignment) []types.WordTime {
	if a == nil || len(a.Characters) == 0 {
		return nil
	}

	var words []types.WordTime
	var current strings.Builder
	var wordStart float64
	var wordEnd float64
	inWord := false

	flush := func() {
		if !inWord {
			return
		}
		words = append(words, types.WordTime{
			Word:  current.String(),
			Start: wordStart,
			End:   wordEnd,
		})
		current.Reset()
		inWord = false
	}

	for i, ch := range a.Characters {
		if strings.TrimSpace(ch) == "" {
			flush()
			continue
		}
		if !inWord {
			inWord = true
			if i < len(a.CharacterStartTimesSecs) {
				wordStart = a.CharacterStartTimesSecs[i]
			}
		}
		if i < len(a.CharacterEndTimesSecs) {
			wordEnd = a.CharacterEndTimesSecs[i]
		}
		current.WriteString(ch)
	}
	flush()

	return words
}

// Verify interfaces
var _ TTSProvider = (*ElevenLabsTTSClient)(nil)
var _ VoicesLister = (*ElevenLabsTTSClient)(nil)
