package pipeline

import (
	"strings"
	"unicode"
)

// apologyMarkers identify refusal/apology boilerplate that vision models
// occasionally emit instead of transcription. Any candidate containing one
// of these is junk, not page text.
var apologyMarkers = []string{
	"i'm sorry",
	"i am sorry",
	"i cannot",
	"i can't",
	"i'm unable",
	"i am unable",
	"as an ai",
	"no text detected",
	"unable to transcribe",
}

// NormalizeText cleans one extracted candidate for downstream comparison
// and synthesis. Steps, in order: artifact strip, quote trim, whitespace
// collapse, redundant-phrase collapse, caps humanization.
func NormalizeText(text string) string {
	text = stripArtifacts(text)
	text = trimQuotes(text)
	text = collapseWhitespace(text)
	text = collapseRepeats(text)
	text = humanizeCaps(text)
	return strings.TrimSpace(text)
}

// IsJunk reports whether a normalized candidate should be discarded
// outright: model apologies, schema echoes, and sub-lexical fragments.
func IsJunk(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}

	lower := strings.ToLower(trimmed)
	for _, marker := range apologyMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	if lower == "json" || lower == "jason" {
		return true
	}

	if len([]rune(trimmed)) < 2 {
		for _, r := range trimmed {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return false
			}
		}
		return true
	}
	return false
}

// StripSFXPrefix removes a leading "SFX:" or "FX:" label some models
// prepend to sound effects.
func StripSFXPrefix(text string) string {
	trimmed := strings.TrimSpace(text)
	lower := strings.ToLower(trimmed)
	for _, prefix := range []string{"sfx:", "fx:"} {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(trimmed[len(prefix):])
		}
	}
	return trimmed
}

// stripArtifacts removes characters extraction reliably gets wrong and
// folds newlines into spaces.
func stripArtifacts(text string) string {
	replacer := strings.NewReplacer(
		"|", "",
		";", "",
		"\r\n", " ",
		"\n", " ",
		"\r", " ",
	)
	return replacer.Replace(text)
}

// trimQuotes strips matched or unmatched surrounding quote characters.
func trimQuotes(text string) string {
	return strings.Trim(strings.TrimSpace(text), `"'“”‘’«»`)
}

// collapseWhitespace reduces runs of whitespace to single spaces.
func collapseWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// collapseRepeats drops immediately repeated word runs within each
// sentence segment, fixing stutter artifacts like
// "upside down upside down" -> "upside down". Comparison is
// case-insensitive; the first occurrence's casing is kept.
func collapseRepeats(text string) string {
	var out strings.Builder
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			out.WriteString(collapseSegmentRepeats(text[start:i]))
			out.WriteRune(r)
			start = i + len(string(r))
		}
	}
	out.WriteString(collapseSegmentRepeats(text[start:]))
	return out.String()
}

func collapseSegmentRepeats(segment string) string {
	words := strings.Fields(segment)
	if len(words) < 2 {
		return segment
	}

	maxWindow := len(words) / 2
	if maxWindow > 4 {
		maxWindow = 4
	}
	if maxWindow < 1 {
		maxWindow = 1
	}

	kept := make([]string, 0, len(words))
	for _, word := range words {
		kept = append(kept, word)
		for n := maxWindow; n >= 1; n-- {
			if len(kept) < 2*n {
				continue
			}
			if wordsEqualFold(kept[len(kept)-n:], kept[len(kept)-2*n:len(kept)-n]) {
				kept = kept[:len(kept)-n]
				break
			}
		}
	}

	joined := strings.Join(kept, " ")
	// Preserve the segment's original edge whitespace so punctuation
	// stitching stays intact.
	prefix := segment[:len(segment)-len(strings.TrimLeft(segment, " "))]
	suffix := segment[len(strings.TrimRight(segment, " ")):]
	return prefix + joined + suffix
}

func wordsEqualFold(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

// humanizeCaps lowercases fully uppercase alphabetic tokens so the speech
// engine does not shout them. Tokens with digits or periods (acronyms,
// versions) are untouched.
func humanizeCaps(text string) string {
	words := strings.Split(text, " ")
	for i, word := range words {
		if isShoutToken(word) {
			words[i] = strings.ToLower(word)
		}
	}
	return strings.Join(words, " ")
}

func isShoutToken(word string) bool {
	if word == "" {
		return false
	}
	for _, r := range word {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}
