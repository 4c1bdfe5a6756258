package pipeline

import (
	"strings"

	"github.com/jackzampolin/panelvox/internal/providers"
)

const (
	// substringLengthRatio is the minimum shorter/longer key length ratio
	// for a substring match to count as the same utterance.
	substringLengthRatio = 0.7

	// editSimilarityThreshold is the minimum normalized edit similarity
	// for two keys to count as the same utterance.
	editSimilarityThreshold = 0.88

	// minPartialKeyLength keeps best-window alignment from merging tiny
	// fragments ("no", "hey") into longer utterances that merely start
	// the same way.
	minPartialKeyLength = 8
)

// comparisonKey reduces text to a form stable across extraction passes:
// lowercase with spaces, hyphens, and line breaks removed.
func comparisonKey(text string) string {
	replacer := strings.NewReplacer(" ", "", "-", "", "\n", "", "\r", "")
	return replacer.Replace(strings.ToLower(text))
}

// areEquivalent reports whether two comparison keys describe the same
// utterance: either one is a substring of the other with a length ratio
// above 0.7, or their normalized edit similarity is at least 0.88.
func areEquivalent(keyA, keyB string) bool {
	if keyA == "" || keyB == "" {
		return keyA == keyB
	}
	if keyA == keyB {
		return true
	}

	shorter, longer := keyA, keyB
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if strings.Contains(longer, shorter) {
		if float64(len(shorter))/float64(len(longer)) > substringLengthRatio {
			return true
		}
	}

	return editSimilarity(keyA, keyB) >= editSimilarityThreshold
}

// editSimilarity is the normalized similarity between two keys. For keys
// of comparable length this is 1 - levenshtein/maxLen. When one key is a
// sizable fragment of the other (truncated detections from slice
// boundaries), the fragment is also aligned against every equal-length
// window of the longer key and the best window similarity wins, so
// "hellother" still matches "hellothere,friend!".
func editSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) > len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return 1.0
	}

	sim := 1.0 - float64(levenshtein(ra, rb))/float64(len(rb))

	if len(ra) >= minPartialKeyLength && len(ra) < len(rb) {
		if ws := bestWindowSimilarity(ra, rb); ws > sim {
			sim = ws
		}
	}
	return sim
}

// bestWindowSimilarity slides the shorter key over the longer and returns
// the highest similarity of any equal-length window.
func bestWindowSimilarity(shorter, longer []rune) float64 {
	best := 0.0
	for start := 0; start+len(shorter) <= len(longer); start++ {
		window := longer[start : start+len(shorter)]
		sim := 1.0 - float64(levenshtein(shorter, window))/float64(len(shorter))
		if sim > best {
			best = sim
		}
	}
	return best
}

// levenshtein computes edit distance with a two-row table.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// MergeCandidates collapses near-duplicate candidates into one per distinct
// utterance, keeping the member with the longest comparison key. Candidates
// join the first equivalence class they match; consumed candidates are not
// revisited. Relative order of the kept members is preserved.
func MergeCandidates(candidates []providers.Candidate) []providers.Candidate {
	if len(candidates) < 2 {
		return candidates
	}

	keys := make([]string, len(candidates))
	for i, c := range candidates {
		keys[i] = comparisonKey(c.Text)
	}

	consumed := make([]bool, len(candidates))
	merged := make([]providers.Candidate, 0, len(candidates))

	for i := range candidates {
		if consumed[i] {
			continue
		}
		consumed[i] = true
		best := i

		for j := i + 1; j < len(candidates); j++ {
			if consumed[j] {
				continue
			}
			if areEquivalent(keys[best], keys[j]) || areEquivalent(keys[i], keys[j]) {
				consumed[j] = true
				if len(keys[j]) > len(keys[best]) {
					best = j
				}
			}
		}
		merged = append(merged, candidates[best])
	}
	return merged
}
