package pipeline

import "testing"

func TestSegment(t *testing.T) {
	t.Run("short page is a single range", func(t *testing.T) {
		ranges := Segment(1200, 1500, 1000)
		if len(ranges) != 1 {
			t.Fatalf("got %d ranges, want 1", len(ranges))
		}
		if ranges[0].Start != 0 || ranges[0].End != 1200 {
			t.Errorf("range = %+v, want [0, 1200)", ranges[0])
		}
	})

	t.Run("exact threshold is a single range", func(t *testing.T) {
		ranges := Segment(1500, 1500, 1000)
		if len(ranges) != 1 {
			t.Fatalf("got %d ranges, want 1", len(ranges))
		}
	})

	t.Run("tall page slices overlap and cover", func(t *testing.T) {
		const height = 8000
		ranges := Segment(height, 1500, 1000)

		if len(ranges) < 2 {
			t.Fatalf("got %d ranges, want several", len(ranges))
		}
		if ranges[0].Start != 0 {
			t.Errorf("first range starts at %d, want 0", ranges[0].Start)
		}
		if ranges[len(ranges)-1].End != height {
			t.Errorf("final range ends at %d, want %d", ranges[len(ranges)-1].End, height)
		}

		for i := 1; i < len(ranges); i++ {
			overlap := ranges[i-1].End - ranges[i].Start
			if overlap < 500 {
				t.Errorf("ranges %d and %d overlap by %d, want >= 500", i-1, i, overlap)
			}
			if ranges[i].Start <= ranges[i-1].Start {
				t.Errorf("range %d does not advance", i)
			}
		}
	})

	t.Run("overlap capped at half slice height", func(t *testing.T) {
		// overlap 1400 > 1500/2 caps to 750, so step = 750.
		ranges := Segment(4000, 1500, 1400)
		if step := ranges[1].Start - ranges[0].Start; step != 750 {
			t.Errorf("step = %d, want 750", step)
		}
	})

	t.Run("pathological overlap keeps a minimum step", func(t *testing.T) {
		ranges := Segment(10000, 1000, 900)
		if step := ranges[1].Start - ranges[0].Start; step < 400 {
			t.Errorf("step = %d, want >= 400", step)
		}
	})
}
