package pipeline

import (
	"strings"

	"github.com/jackzampolin/panelvox/internal/types"
)

// BuildToneHint produces a short delivery instruction for TTS providers
// that accept one, combining the extracted emotion and tone notes.
func BuildToneHint(analysis types.CharacterAnalysis, kind types.BubbleType) string {
	var parts []string

	emotion := strings.ToLower(strings.TrimSpace(analysis.Emotion))
	if emotion != "" && emotion != "neutral" {
		parts = append(parts, "Speak in a "+emotion+" tone.")
	}

	switch kind {
	case types.BubbleThought:
		parts = append(parts, "Deliver as an inner thought, quiet and introspective.")
	case types.BubbleNarration:
		parts = append(parts, "Deliver as even, measured narration.")
	}

	if tone := strings.TrimSpace(analysis.Tone); tone != "" {
		parts = append(parts, tone)
	}
	return strings.Join(parts, " ")
}

// BuildDeliveryText shapes the text handed to synthesis so punctuation
// carries the emotion the page implies. The stored bubble text is never
// changed, only the spoken form.
func BuildDeliveryText(text string, analysis types.CharacterAnalysis, kind types.BubbleType) string {
	shaped := strings.TrimSpace(text)
	if shaped == "" {
		return shaped
	}

	emotion := strings.ToLower(strings.TrimSpace(analysis.Emotion))
	endsInPunct := strings.ContainsAny(shaped[len(shaped)-1:], ".!?…")

	switch {
	case containsAny(emotion, "angry", "furious", "excited", "energetic"):
		if !strings.HasSuffix(shaped, "!") {
			shaped = strings.TrimRight(shaped, ".") + "!"
		}
	case containsAny(emotion, "sad", "somber", "tired"):
		if !endsInPunct {
			shaped += "..."
		}
	default:
		if !endsInPunct {
			shaped += "."
		}
	}

	if kind == types.BubbleThought && !strings.HasPrefix(shaped, "(") {
		shaped = "(" + shaped + ")"
	}
	return shaped
}
