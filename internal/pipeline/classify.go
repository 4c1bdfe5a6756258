package pipeline

import (
	"strings"
	"unicode"

	"github.com/jackzampolin/panelvox/internal/types"
)

// sfxKeywords are onomatopoeia that mark a candidate as a sound effect
// regardless of extraction metadata.
var sfxKeywords = map[string]struct{}{
	"boom": {}, "bang": {}, "crash": {}, "slam": {}, "thud": {},
	"whoosh": {}, "swoosh": {}, "pow": {}, "wham": {}, "smash": {},
	"crack": {}, "knock": {}, "ring": {}, "buzz": {}, "click": {},
	"clack": {}, "drip": {}, "splash": {}, "rumble": {}, "roar": {},
	"screech": {}, "thump": {}, "tap": {}, "swish": {}, "zoom": {},
	"vroom": {}, "beep": {}, "ding": {}, "clang": {}, "rattle": {},
}

// hasStretchedLetters reports drawn-out onomatopoeia like "aaaah" or
// "GRRR": three or more identical consecutive letters, case-insensitive.
func hasStretchedLetters(text string) bool {
	var prev rune
	run := 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			prev, run = 0, 0
			continue
		}
		r = unicode.ToLower(r)
		if r == prev {
			run++
			if run >= 3 {
				return true
			}
		} else {
			prev, run = r, 1
		}
	}
	return false
}

// KindFromAnalysis classifies a bubble from the extraction metadata's
// character type. Unrecognized types are dialogue.
func KindFromAnalysis(characterType string) types.BubbleType {
	ct := strings.ToLower(strings.TrimSpace(characterType))
	switch {
	case containsAny(ct, "system", "ui", "computer", "panel"):
		return types.BubbleNarration
	case containsAny(ct, "narration", "narrator"):
		return types.BubbleNarration
	case strings.Contains(ct, "thought"):
		return types.BubbleThought
	case containsAny(ct, "sfx", "sound", "fx"):
		return types.BubbleSFX
	default:
		return types.BubbleDialogue
	}
}

// LooksLikeSFX reports whether text reads as a sound effect: short and
// mostly uppercase, a known onomatopoeia, or stretched letters.
func LooksLikeSFX(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}

	words := strings.Fields(trimmed)
	if len(words) <= 3 && upperRatio(trimmed) >= 0.8 {
		return true
	}

	if len(words) <= 2 {
		for _, word := range words {
			key := strings.ToLower(strings.Trim(word, "!?.,*~"))
			if _, ok := sfxKeywords[key]; ok {
				return true
			}
		}
		if hasStretchedLetters(trimmed) {
			return true
		}
	}
	return false
}

// upperRatio is the share of cased letters that are uppercase.
func upperRatio(text string) float64 {
	upper, letters := 0, 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
