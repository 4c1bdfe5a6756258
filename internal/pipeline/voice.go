package pipeline

import (
	"strings"

	"github.com/jackzampolin/panelvox/internal/types"
)

// VoiceParams are the synthesis parameters chosen for one bubble.
type VoiceParams struct {
	VoiceID         string
	Stability       float64
	SimilarityBoost float64
	Style           float64
}

// VoiceAssigner maps character archetypes and emotions to voice
// parameters, memoizing per archetype so a character sounds the same
// across a chapter. One assigner is created per chapter job and never
// shared between jobs.
type VoiceAssigner struct {
	mode           types.ProcessingMode
	narratorGender string
	memo           map[string]VoiceParams
}

// NewVoiceAssigner creates an assigner for one chapter job.
func NewVoiceAssigner(mode types.ProcessingMode, narratorGender string) *VoiceAssigner {
	return &VoiceAssigner{
		mode:           mode,
		narratorGender: strings.ToLower(strings.TrimSpace(narratorGender)),
		memo:           make(map[string]VoiceParams),
	}
}

// Assign returns voice parameters for a bubble. In narrate mode every
// bubble gets the single narrator voice. Otherwise the archetype and
// emotion tables apply, with the memo enforcing continuity.
func (a *VoiceAssigner) Assign(analysis types.CharacterAnalysis, kind types.BubbleType) VoiceParams {
	if a.mode == types.ModeNarrate {
		return a.narratorParams()
	}

	memoKey := normalizeArchetype(analysis.CharacterType)
	if a.memoEligible(memoKey, kind) {
		if cached, ok := a.memo[memoKey]; ok {
			return cached
		}
	}

	params := a.compute(analysis, kind)
	if a.memoEligible(memoKey, kind) {
		a.memo[memoKey] = params
	}
	return params
}

// memoEligible excludes archetypes with no continuity meaning: unknowns,
// sound effects, and narration boxes.
func (a *VoiceAssigner) memoEligible(memoKey string, kind types.BubbleType) bool {
	if memoKey == "" || memoKey == "unknown" {
		return false
	}
	if containsAny(memoKey, "sfx", "sound", "fx") {
		return false
	}
	if kind == types.BubbleSFX || kind == types.BubbleNarration {
		return false
	}
	return true
}

func (a *VoiceAssigner) compute(analysis types.CharacterAnalysis, kind types.BubbleType) VoiceParams {
	voiceID := strings.TrimSpace(analysis.VoiceSuggestion)
	if voiceID == "" {
		voiceID = archetypeVoice(analysis.CharacterType, kind)
	}

	stability, boost, style := emotionBand(analysis.Emotion)

	// Explicit per-bubble overrides from extraction win over the band.
	if analysis.Stability > 0 {
		stability = analysis.Stability
	}
	if analysis.SimilarityBoost > 0 {
		boost = analysis.SimilarityBoost
	}
	if analysis.Style > 0 {
		style = analysis.Style
	}

	return VoiceParams{
		VoiceID:         voiceID,
		Stability:       stability,
		SimilarityBoost: boost,
		Style:           style,
	}
}

func (a *VoiceAssigner) narratorParams() VoiceParams {
	voiceID := "voice_narrator_f"
	if a.narratorGender == "male" || a.narratorGender == "m" {
		voiceID = "voice_narrator_m"
	}
	return VoiceParams{
		VoiceID:         voiceID,
		Stability:       0.7,
		SimilarityBoost: 0.85,
		Style:           0.25,
	}
}

// normalizeArchetype is the memo key: lowercase, trimmed, single-spaced.
func normalizeArchetype(characterType string) string {
	return strings.Join(strings.Fields(strings.ToLower(characterType)), " ")
}

// archetypeVoice picks a logical voice id from the archetype tokens.
// Narration boxes always narrate regardless of archetype.
func archetypeVoice(characterType string, kind types.BubbleType) string {
	ct := normalizeArchetype(characterType)

	if kind == types.BubbleNarration || containsAny(ct, "narration", "narrator") {
		return "voice_narrator_f"
	}
	if containsAny(ct, "system", "ui", "computer", "panel") {
		return "voice_system"
	}

	male := containsAny(ct, "male", "man", "boy") && !containsAny(ct, "female", "woman", "girl")
	female := containsAny(ct, "female", "woman", "girl")

	switch {
	case containsAny(ct, "child", "kid"):
		if female {
			return "voice_child_f"
		}
		return "voice_child_m"
	case containsAny(ct, "young", "teen"):
		if female {
			return "voice_young_f"
		}
		return "voice_young_m"
	case male:
		return "voice_adult_m"
	case female:
		return "voice_adult_f"
	default:
		return "voice_androgynous"
	}
}

// emotionBand quantizes emotions into (stability, similarity_boost, style).
func emotionBand(emotion string) (float64, float64, float64) {
	e := strings.ToLower(strings.TrimSpace(emotion))
	switch {
	case containsAny(e, "angry", "furious", "excited", "energetic"):
		return 0.25, 0.75, 0.8
	case containsAny(e, "sad", "serious", "calm", "somber"):
		return 0.7, 0.75, 0.35
	default:
		return 0.5, 0.75, 0.2
	}
}
