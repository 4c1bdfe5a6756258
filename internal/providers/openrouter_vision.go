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

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	OpenRouterVisionName = "openrouter"
	OpenRouterBaseURL    = "https://openrouter.ai/api/v1"

	openRouterDefaultVisionModel = "anthropic/claude-3.5-sonnet"
)

// extractionPrompt asks the model for every speech bubble, caption, and
// sound effect in the image, with per-bubble character analysis.
const extractionPrompt = `Identify every speech bubble, thought bubble, narration caption, and sound effect in this comic page image.

For each one return:
- "box": pixel bounding box [x0, y0, x1, y1] in the image you were given
- "text": the exact text, preserving the original wording
- "analysis": who is speaking and how, with fields:
  - "character_type": short speaker archetype like "adult male", "young female", "narrator", "system", or "unknown"
  - "emotion": one word, e.g. "neutral", "angry", "excited", "sad", "calm"
  - "tone": short free-form delivery note
  - "voice_suggestion": leave empty unless a specific voice id is clearly required

Order results top to bottom, then left to right. Return ONLY a JSON object of the form {"candidates": [...]} with no markdown and no commentary. If the image contains no text, return {"candidates": []}.`

// extractionSchema validates the model's reply before it is trusted.
const extractionSchema = `{
  "type": "object",
  "required": ["candidates"],
  "properties": {
    "candidates": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["box", "text"],
        "properties": {
          "box": {
            "type": "array",
            "items": {"type": "number"},
            "minItems": 4,
            "maxItems": 4
          },
          "text": {"type": "string"},
          "analysis": {
            "type": "object",
            "properties": {
              "character_type":   {"type": "string"},
              "emotion":          {"type": "string"},
              "tone":             {"type": "string"},
              "voice_suggestion": {"type": "string"}
            }
          }
        }
      }
    }
  }
}`

// OpenRouterVisionConfig holds configuration for the OpenRouter vision client.
type OpenRouterVisionConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	RPS        float64       // Requests per second (default: 2)
	MaxRetries int           // Max retry attempts (default: 3)
	RetryDelay time.Duration // Base delay between retries (default: 1s)
}

// OpenRouterVisionClient implements VisionProvider using OpenRouter chat
// completions with image attachments.
type OpenRouterVisionClient struct {
	apiKey     string
	baseURL    string
	model      string
	client     *http.Client
	rps        float64
	maxRetries int
	retryDelay time.Duration
	schema     *jsonschema.Schema
}

// NewOpenRouterVisionClient creates a new OpenRouter vision client.
func NewOpenRouterVisionClient(cfg OpenRouterVisionConfig) (*OpenRouterVisionClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenRouterBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openRouterDefaultVisionModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.RPS == 0 {
		cfg.RPS = 2.0
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("extraction.json", strings.NewReader(extractionSchema)); err != nil {
		return nil, fmt.Errorf("failed to load extraction schema: %w", err)
	}
	schema, err := compiler.Compile("extraction.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile extraction schema: %w", err)
	}

	return &OpenRouterVisionClient{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		client:     &http.Client{Timeout: cfg.Timeout},
		rps:        cfg.RPS,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		schema:     schema,
	}, nil
}

// Name returns the provider identifier.
func (c *OpenRouterVisionClient) Name() string {
	return OpenRouterVisionName
}

// RequestsPerSecond returns the RPS limit for rate limiting.
func (c *OpenRouterVisionClient) RequestsPerSecond() float64 {
	return c.rps
}

// MaxRetries returns the maximum retry attempts.
func (c *OpenRouterVisionClient) MaxRetries() int {
	return c.maxRetries
}

// RetryDelayBase returns the base delay between retries.
func (c *OpenRouterVisionClient) RetryDelayBase() time.Duration {
	return c.retryDelay
}

// Model returns the vision model being used.
func (c *OpenRouterVisionClient) Model() string {
	return c.model
}

// Extract sends the image to the vision model and parses the candidates.
// A positive req.Timeout bounds this call, overriding the client default.
func (c *OpenRouterVisionClient) Extract(ctx context.Context, req *ExtractionRequest) (*ExtractionResult, error) {
	start := time.Now()

	if req == nil || len(req.Image) == 0 {
		err := fmt.Errorf("image is required")
		return &ExtractionResult{
			Success:       false,
			ErrorMessage:  err.Error(),
			ExecutionTime: time.Since(start),
		}, err
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	orReq := openRouterVisionRequest{
		Model: c.model,
		Messages: []openRouterVisionMessage{
			{
				Role: "user",
				Content: []openRouterVisionContent{
					{Type: "text", Text: extractionPrompt},
					{
						Type: "image_url",
						ImageURL: &openRouterVisionImageURL{
							URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(req.Image),
						},
					},
				},
			},
		},
		Temperature: 0.1,
	}

	content, err := c.doRequest(ctx, &orReq)
	if err != nil {
		return &ExtractionResult{
			Success:       false,
			ErrorMessage:  err.Error(),
			ExecutionTime: time.Since(start),
		}, err
	}

	candidates, err := c.parseCandidates(content)
	if err != nil {
		err = fmt.Errorf("page %d: %w", req.PageIndex, err)
		return &ExtractionResult{
			Success:       false,
			ErrorMessage:  err.Error(),
			ExecutionTime: time.Since(start),
		}, err
	}

	return &ExtractionResult{
		Success:       true,
		Candidates:    candidates,
		ExecutionTime: time.Since(start),
	}, nil
}

// parseCandidates recovers JSON from model output, validates it against the
// extraction schema, and decodes the candidate list.
func (c *OpenRouterVisionClient) parseCandidates(content string) ([]Candidate, error) {
	raw, err := parseStructuredJSON(content)
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode extraction output: %w", err)
	}
	if err := c.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("extraction output does not match schema: %w", err)
	}

	var parsed struct {
		Candidates []Candidate `json:"candidates"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode candidates: %w", err)
	}
	return parsed.Candidates, nil
}

// doRequest makes the chat completion request and returns the message content.
func (c *OpenRouterVisionClient) doRequest(ctx context.Context, orReq *openRouterVisionRequest) (string, error) {
	bodyBytes, err := json.Marshal(orReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", "https://github.com/jackzampolin/panelvox")
	req.Header.Set("X-Title", "Panelvox")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &RateLimitError{
			Message:    "OpenRouter rate limited",
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			StatusCode: resp.StatusCode,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("OpenRouter error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var orResp openRouterVisionResponse
	if err := json.Unmarshal(respBody, &orResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(orResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	switch content := orResp.Choices[0].Message.Content.(type) {
	case string:
		return content, nil
	default:
		b, err := json.Marshal(content)
		if err != nil {
			return "", fmt.Errorf("failed to marshal content: %w", err)
		}
		return string(b), nil
	}
}

// parseStructuredJSON parses JSON from model output, with lightweight recovery
// for markdown code fences and surrounding text.
func parseStructuredJSON(content string) (json.RawMessage, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("empty structured output")
	}

	candidates := []string{content}
	if stripped := stripCodeFences(content); stripped != "" && stripped != content {
		candidates = append(candidates, stripped)
	}
	if extracted := extractJSONCandidate(content); extracted != "" && extracted != content {
		candidates = append(candidates, extracted)
	}

	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if _, ok := seen[candidate]; ok {
			continue
		}
		seen[candidate] = struct{}{}

		var parsed any
		if err := json.Unmarshal([]byte(candidate), &parsed); err == nil {
			normalized, mErr := json.Marshal(parsed)
			if mErr != nil {
				return nil, fmt.Errorf("failed to normalize structured output: %w", mErr)
			}
			return normalized, nil
		}
	}

	return nil, fmt.Errorf("failed to parse structured JSON")
}

func stripCodeFences(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return ""
	}

	lines := strings.Split(trimmed, "\n")
	if len(lines) < 2 {
		return ""
	}

	// Drop first fence line.
	lines = lines[1:]
	// Drop trailing fence if present.
	if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func extractJSONCandidate(content string) string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ""
	}

	objectStart := strings.Index(trimmed, "{")
	arrayStart := strings.Index(trimmed, "[")

	start := -1
	closeChar := ""
	switch {
	case objectStart >= 0 && arrayStart >= 0:
		if objectStart < arrayStart {
			start = objectStart
			closeChar = "}"
		} else {
			start = arrayStart
			closeChar = "]"
		}
	case objectStart >= 0:
		start = objectStart
		closeChar = "}"
	case arrayStart >= 0:
		start = arrayStart
		closeChar = "]"
	default:
		return ""
	}

	end := strings.LastIndex(trimmed, closeChar)
	if end < start {
		return ""
	}
	return strings.TrimSpace(trimmed[start : end+1])
}

// OpenRouter API types

type openRouterVisionRequest struct {
	Model       string                    `json:"model"`
	Messages    []openRouterVisionMessage `json:"messages"`
	Temperature float64                   `json:"temperature,omitempty"`
	MaxTokens   int                       `json:"max_tokens,omitempty"`
}

type openRouterVisionMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []openRouterVisionContent
}

type openRouterVisionContent struct {
	Type     string                    `json:"type"`
	Text     string                    `json:"text,omitempty"`
	ImageURL *openRouterVisionImageURL `json:"image_url,omitempty"`
}

type openRouterVisionImageURL struct {
	URL string `json:"url"`
}

type openRouterVisionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content any    `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Verify interface
var _ VisionProvider = (*OpenRouterVisionClient)(nil)
