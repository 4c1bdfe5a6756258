// Package pipeline turns uploaded page images into a finished chapter:
// segmentation, text extraction, gap recovery, dedup, classification,
// voice assignment, and synthesis.
package pipeline

const (
	// DefaultMaxSliceHeight is the tallest region handed to extraction in
	// one pass. Webtoon-style pages routinely run 10000px or more.
	DefaultMaxSliceHeight = 1500

	// DefaultSliceOverlap guarantees a bubble straddling a slice boundary
	// is fully contained in at least one slice. The duplicates this
	// produces are resolved by the merger.
	DefaultSliceOverlap = 1000

	// minSliceStep keeps pathological overlap settings from generating
	// thousands of slices.
	minSliceStep = 400
)

// SliceRange is a vertical [Start, End) band of a page.
type SliceRange struct {
	Start int
	End   int
}

// Segment splits a page of the given height into overlapping vertical
// slices. Pages at or under maxSliceHeight come back as a single
// full-height range. The final range always ends exactly at height.
func Segment(height, maxSliceHeight, overlap int) []SliceRange {
	if maxSliceHeight <= 0 {
		maxSliceHeight = DefaultMaxSliceHeight
	}
	if height <= maxSliceHeight {
		return []SliceRange{{Start: 0, End: height}}
	}

	if overlap > maxSliceHeight/2 {
		overlap = maxSliceHeight / 2
	}
	step := maxSliceHeight - overlap
	if step < minSliceStep {
		step = minSliceStep
	}

	var ranges []SliceRange
	for start := 0; ; start += step {
		end := start + maxSliceHeight
		if end >= height {
			ranges = append(ranges, SliceRange{Start: start, End: height})
			break
		}
		ranges = append(ranges, SliceRange{Start: start, End: end})
	}
	return ranges
}
