package pipeline

import (
	"testing"

	"github.com/jackzampolin/panelvox/internal/types"
)

func TestArchetypeVoice(t *testing.T) {
	tests := []struct {
		characterType string
		kind          types.BubbleType
		want          string
	}{
		{"adult_male", types.BubbleDialogue, "voice_adult_m"},
		{"adult_female", types.BubbleDialogue, "voice_adult_f"},
		{"young man", types.BubbleDialogue, "voice_young_m"},
		{"teen girl", types.BubbleDialogue, "voice_young_f"},
		{"child_male", types.BubbleDialogue, "voice_child_m"},
		{"kid female", types.BubbleDialogue, "voice_child_f"},
		{"system", types.BubbleDialogue, "voice_system"},
		{"narrator", types.BubbleDialogue, "voice_narrator_f"},
		{"adult_male", types.BubbleNarration, "voice_narrator_f"},
		{"unknown", types.BubbleDialogue, "voice_androgynous"},
		{"", types.BubbleDialogue, "voice_androgynous"},
	}

	for _, tt := range tests {
		if got := archetypeVoice(tt.characterType, tt.kind); got != tt.want {
			t.Errorf("archetypeVoice(%q, %v) = %q, want %q", tt.characterType, tt.kind, got, tt.want)
		}
	}
}

func TestEmotionBand(t *testing.T) {
	tests := []struct {
		emotion                 string
		stability, boost, style float64
	}{
		{"angry", 0.25, 0.75, 0.8},
		{"Excited", 0.25, 0.75, 0.8},
		{"sad", 0.7, 0.75, 0.35},
		{"calm", 0.7, 0.75, 0.35},
		{"neutral", 0.5, 0.75, 0.2},
		{"", 0.5, 0.75, 0.2},
	}

	for _, tt := range tests {
		s, b, st := emotionBand(tt.emotion)
		if s != tt.stability || b != tt.boost || st != tt.style {
			t.Errorf("emotionBand(%q) = (%v, %v, %v), want (%v, %v, %v)",
				tt.emotion, s, b, st, tt.stability, tt.boost, tt.style)
		}
	}
}

func TestVoiceAssignerContinuity(t *testing.T) {
	a := NewVoiceAssigner(types.ModeBringToLife, "female")

	first := a.Assign(types.CharacterAnalysis{CharacterType: "adult_male", Emotion: "angry"}, types.BubbleDialogue)
	// Same archetype later in the chapter, different emotion: continuity
	// wins and the first parameters stick.
	second := a.Assign(types.CharacterAnalysis{CharacterType: "Adult_Male", Emotion: "calm"}, types.BubbleDialogue)

	if first != second {
		t.Errorf("same archetype got different params:\nfirst:  %+v\nsecond: %+v", first, second)
	}
	if first.VoiceID != "voice_adult_m" {
		t.Errorf("VoiceID = %q, want voice_adult_m", first.VoiceID)
	}
	if first.Stability != 0.25 {
		t.Errorf("Stability = %v, want the angry band's 0.25", first.Stability)
	}
}

func TestVoiceAssignerMemoExclusions(t *testing.T) {
	a := NewVoiceAssigner(types.ModeBringToLife, "female")

	// Unknown archetypes carry no continuity: each bubble recomputes.
	u1 := a.Assign(types.CharacterAnalysis{CharacterType: "unknown", Emotion: "angry"}, types.BubbleDialogue)
	u2 := a.Assign(types.CharacterAnalysis{CharacterType: "unknown", Emotion: "calm"}, types.BubbleDialogue)
	if u1.Stability == u2.Stability {
		t.Errorf("unknown archetype was memoized: %+v vs %+v", u1, u2)
	}

	// Narration boxes never pin their archetype's voice.
	a.Assign(types.CharacterAnalysis{CharacterType: "adult_male", Emotion: "calm"}, types.BubbleNarration)
	d := a.Assign(types.CharacterAnalysis{CharacterType: "adult_male", Emotion: "angry"}, types.BubbleDialogue)
	if d.Stability != 0.25 {
		t.Errorf("narration bubble polluted the memo: %+v", d)
	}
}

func TestVoiceAssignerNarrateMode(t *testing.T) {
	tests := []struct {
		gender string
		want   string
	}{
		{"female", "voice_narrator_f"},
		{"male", "voice_narrator_m"},
		{"m", "voice_narrator_m"},
		{"", "voice_narrator_f"},
	}

	for _, tt := range tests {
		a := NewVoiceAssigner(types.ModeNarrate, tt.gender)
		got := a.Assign(types.CharacterAnalysis{CharacterType: "adult_male", VoiceSuggestion: "custom_voice"}, types.BubbleDialogue)
		if got.VoiceID != tt.want {
			t.Errorf("narrate mode with gender %q picked %q, want %q", tt.gender, got.VoiceID, tt.want)
		}
		if got.Stability != 0.7 || got.SimilarityBoost != 0.85 || got.Style != 0.25 {
			t.Errorf("narrator params = %+v", got)
		}
	}
}

func TestVoiceAssignerOverrides(t *testing.T) {
	a := NewVoiceAssigner(types.ModeBringToLife, "female")

	got := a.Assign(types.CharacterAnalysis{
		CharacterType:   "adult_female",
		Emotion:         "neutral",
		VoiceSuggestion: "21m00Tcm4TlvDq8ikWAM",
		Stability:       0.42,
		Style:           0.6,
	}, types.BubbleDialogue)

	if got.VoiceID != "21m00Tcm4TlvDq8ikWAM" {
		t.Errorf("VoiceID = %q, want the suggestion to win", got.VoiceID)
	}
	if got.Stability != 0.42 {
		t.Errorf("Stability = %v, want the per-bubble override 0.42", got.Stability)
	}
	if got.SimilarityBoost != 0.75 {
		t.Errorf("SimilarityBoost = %v, want the band default 0.75", got.SimilarityBoost)
	}
	if got.Style != 0.6 {
		t.Errorf("Style = %v, want the per-bubble override 0.6", got.Style)
	}
}
