package providers

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiter(t *testing.T) {
	t.Run("try consume respects burst", func(t *testing.T) {
		rl := NewRateLimiter(2.0)

		if !rl.TryConsume() {
			t.Fatal("first TryConsume() = false, want true")
		}
		if !rl.TryConsume() {
			t.Fatal("second TryConsume() = false, want true")
		}
		if rl.TryConsume() {
			t.Error("third TryConsume() = true, want false (bucket drained)")
		}
	})

	t.Run("wait blocks until token available", func(t *testing.T) {
		rl := NewRateLimiter(50.0)
		for rl.TryConsume() {
		}

		start := time.Now()
		if err := rl.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("Wait() took %v, expected well under a second at 50 rps", elapsed)
		}
	})

	t.Run("wait honors context cancellation", func(t *testing.T) {
		rl := NewRateLimiter(0.1)
		for rl.TryConsume() {
		}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		if err := rl.Wait(ctx); err == nil {
			t.Error("Wait() error = nil, want context deadline exceeded")
		}
	})

	t.Run("record429 drains bucket", func(t *testing.T) {
		rl := NewRateLimiter(100.0)
		rl.Record429()

		if rl.TryConsume() {
			t.Error("TryConsume() = true right after Record429(), want false")
		}
		status := rl.Status()
		if status.Last429Time.IsZero() {
			t.Error("Status().Last429Time is zero after Record429()")
		}
	})
}

func TestRateLimitError(t *testing.T) {
	t.Run("detected through wrapping", func(t *testing.T) {
		var err error = &RateLimitError{Message: "slow down", StatusCode: 429}

		rle, ok := IsRateLimitError(err)
		if !ok {
			t.Fatal("IsRateLimitError() = false, want true")
		}
		if rle.StatusCode != 429 {
			t.Errorf("StatusCode = %d, want 429", rle.StatusCode)
		}
	})

	t.Run("plain errors are not rate limit errors", func(t *testing.T) {
		if _, ok := IsRateLimitError(context.DeadlineExceeded); ok {
			t.Error("IsRateLimitError() = true for non-rate-limit error")
		}
	})

	t.Run("error string includes retry hint", func(t *testing.T) {
		err := &RateLimitError{Message: "limited", RetryAfter: 3 * time.Second}
		if got := err.Error(); got != "limited (retry after 3s)" {
			t.Errorf("Error() = %q", got)
		}
	})
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"empty", "", 0},
		{"seconds", "5", 5 * time.Second},
		{"zero", "0", 0},
		{"negative", "-3", 0},
		{"garbage", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRetryAfter(tt.value); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestVoiceResolution(t *testing.T) {
	t.Run("logical ids resolve for every provider", func(t *testing.T) {
		logical := []string{
			"voice_child_m", "voice_child_f",
			"voice_young_m", "voice_young_f",
			"voice_adult_m", "voice_adult_f",
			"voice_androgynous",
			"voice_narrator_m", "voice_narrator_f",
			"voice_system",
		}

		for _, id := range logical {
			if resolveElevenVoice(id) == id {
				t.Errorf("elevenlabs has no mapping for %s", id)
			}
			if resolveOpenAIVoice(id) == id {
				t.Errorf("openai has no mapping for %s", id)
			}
		}
	})

	t.Run("raw voice ids pass through", func(t *testing.T) {
		if got := resolveElevenVoice("21m00Tcm4TlvDq8ikWAM"); got != "21m00Tcm4TlvDq8ikWAM" {
			t.Errorf("resolveElevenVoice passthrough = %q", got)
		}
		if got := resolveOpenAIVoice("fable"); got != "fable" {
			t.Errorf("resolveOpenAIVoice passthrough = %q", got)
		}
	})
}
