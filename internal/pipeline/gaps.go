package pipeline

import "sort"

const (
	// minGapHeight is the smallest uncovered vertical band worth a second
	// extraction pass.
	minGapHeight = 380

	// maxGapsPerPage bounds the extra extraction calls one page can cost.
	maxGapsPerPage = 5
)

// Gap is a vertical [Top, Bottom] band of a page not covered by any
// accepted bubble.
type Gap struct {
	Top    int
	Bottom int
}

// FindGaps walks bubble boxes sorted by top edge and returns vertical
// bands at least minGapHeight tall that no bubble covers, including a
// trailing band below the last bubble. At most maxGapsPerPage gaps are
// returned.
func FindGaps(boxes [][]float64, pageHeight int) []Gap {
	sorted := make([][]float64, 0, len(boxes))
	for _, box := range boxes {
		if len(box) >= 4 {
			sorted = append(sorted, box)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i][1] < sorted[j][1]
	})

	var gaps []Gap
	prevBottom := 0
	for _, box := range sorted {
		top := int(box[1])
		if top-prevBottom >= minGapHeight {
			gaps = append(gaps, Gap{Top: prevBottom, Bottom: top})
			if len(gaps) >= maxGapsPerPage {
				return gaps
			}
		}
		if bottom := int(box[3]); bottom > prevBottom {
			prevBottom = bottom
		}
	}

	if pageHeight-prevBottom >= minGapHeight {
		gaps = append(gaps, Gap{Top: prevBottom, Bottom: pageHeight})
	}
	return gaps
}
