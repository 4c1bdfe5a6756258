package pipeline

import (
	"sort"

	"github.com/jackzampolin/panelvox/internal/types"
)

// AssemblePage sorts a page's bubbles into reading order (ascending top
// edge) and derives reading_order from the sorted ids.
func AssemblePage(page *types.Page) {
	sort.SliceStable(page.Items, func(i, j int) bool {
		return bubbleTop(page.Items[i]) < bubbleTop(page.Items[j])
	})

	page.ReadingOrder = make([]string, len(page.Items))
	for i, bubble := range page.Items {
		page.ReadingOrder[i] = bubble.BubbleID
	}
}

func bubbleTop(b types.Bubble) float64 {
	if len(b.BubbleBox) >= 2 {
		return b.BubbleBox[1]
	}
	return 0
}
