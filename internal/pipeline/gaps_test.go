package pipeline

import "testing"

func TestFindGaps(t *testing.T) {
	box := func(top, bottom float64) []float64 {
		return []float64{0, top, 100, bottom}
	}

	t.Run("no bubbles yields one full-page gap", func(t *testing.T) {
		gaps := FindGaps(nil, 2000)
		if len(gaps) != 1 {
			t.Fatalf("got %d gaps, want 1", len(gaps))
		}
		if gaps[0].Top != 0 || gaps[0].Bottom != 2000 {
			t.Errorf("gap = %+v, want [0, 2000]", gaps[0])
		}
	})

	t.Run("short page with no bubbles has no gap", func(t *testing.T) {
		if gaps := FindGaps(nil, 300); len(gaps) != 0 {
			t.Errorf("got %v, want none under 380px", gaps)
		}
	})

	t.Run("gap under threshold ignored", func(t *testing.T) {
		gaps := FindGaps([][]float64{box(0, 100), box(479, 600)}, 600)
		if len(gaps) != 0 {
			t.Errorf("got %v, want none (gap is 379px)", gaps)
		}
	})

	t.Run("gap at threshold detected", func(t *testing.T) {
		gaps := FindGaps([][]float64{box(0, 100), box(480, 600)}, 600)
		if len(gaps) != 1 {
			t.Fatalf("got %d gaps, want 1", len(gaps))
		}
		if gaps[0].Top != 100 || gaps[0].Bottom != 480 {
			t.Errorf("gap = %+v, want [100, 480]", gaps[0])
		}
	})

	t.Run("trailing gap detected", func(t *testing.T) {
		gaps := FindGaps([][]float64{box(0, 200)}, 1000)
		if len(gaps) != 1 {
			t.Fatalf("got %d gaps, want 1", len(gaps))
		}
		if gaps[0].Top != 200 || gaps[0].Bottom != 1000 {
			t.Errorf("gap = %+v, want [200, 1000]", gaps[0])
		}
	})

	t.Run("unsorted boxes handled", func(t *testing.T) {
		gaps := FindGaps([][]float64{box(1500, 1600), box(0, 100)}, 1600)
		if len(gaps) != 1 {
			t.Fatalf("got %d gaps, want 1", len(gaps))
		}
		if gaps[0].Top != 100 || gaps[0].Bottom != 1500 {
			t.Errorf("gap = %+v, want [100, 1500]", gaps[0])
		}
	})

	t.Run("capped at five gaps", func(t *testing.T) {
		// Ten bubbles spaced 500px apart create nine-plus gaps.
		var boxes [][]float64
		for i := 0; i < 10; i++ {
			top := float64(i * 900)
			boxes = append(boxes, box(top, top+100))
		}
		gaps := FindGaps(boxes, 10000)
		if len(gaps) != 5 {
			t.Errorf("got %d gaps, want cap of 5", len(gaps))
		}
	})
}
