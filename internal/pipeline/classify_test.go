package pipeline

import (
	"testing"

	"github.com/jackzampolin/panelvox/internal/types"
)

func TestKindFromAnalysis(t *testing.T) {
	tests := []struct {
		characterType string
		want          types.BubbleType
	}{
		{"adult male", types.BubbleDialogue},
		{"young female", types.BubbleDialogue},
		{"", types.BubbleDialogue},
		{"unknown", types.BubbleDialogue},
		{"narrator", types.BubbleNarration},
		{"narration box", types.BubbleNarration},
		{"system", types.BubbleNarration},
		{"UI element", types.BubbleNarration},
		{"computer screen", types.BubbleNarration},
		{"panel text", types.BubbleNarration},
		{"thought bubble", types.BubbleThought},
		{"sfx", types.BubbleSFX},
		{"sound effect", types.BubbleSFX},
	}

	for _, tt := range tests {
		t.Run(tt.characterType, func(t *testing.T) {
			if got := KindFromAnalysis(tt.characterType); got != tt.want {
				t.Errorf("KindFromAnalysis(%q) = %v, want %v", tt.characterType, got, tt.want)
			}
		})
	}
}

func TestHasStretchedLetters(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"lowercase run", "aaaah", true},
		{"uppercase run", "GRRR", true},
		{"mixed case run", "Grrr", true},
		{"run with trailing punctuation", "whoooosh!", true},
		{"double letters only", "bookkeeper", false},
		{"run broken by punctuation", "ha-ha-ha", false},
		{"digits do not count", "1111", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hasStretchedLetters(tt.text); got != tt.want {
				t.Errorf("hasStretchedLetters(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestLooksLikeSFX(t *testing.T) {
	tests := []struct {
		name string
		text string
		want bool
	}{
		{"short all caps", "CRASH", true},
		{"three caps words", "BOOM BANG POW", true},
		{"known onomatopoeia lowercase", "boom!", true},
		{"stretched letters", "grrrr", true},
		{"normal sentence", "What was that noise?", false},
		{"long uppercase sentence", "I SAID GET OUT OF MY HOUSE RIGHT NOW", false},
		{"empty", "", false},
		{"short mixed case dialogue", "Oh no", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LooksLikeSFX(tt.text); got != tt.want {
				t.Errorf("LooksLikeSFX(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
