// Package consolidate merges overlapping per-frame detections into one
// canonical detection per physical plate. Multiple detections of the same
// plate arise when multi-angle passes are enabled, or when the detector
// emits near-duplicate boxes.
package consolidate

import (
	"sort"

	"platetrack/internal/domain/plate"
)

type Consolidator struct {
	// Overlap is the IOU above which two boxes are considered the same
	// physical plate.
	Overlap float64
}

func New(overlap float64) *Consolidator {
	return &Consolidator{Overlap: overlap}
}

// Consolidate returns at most one detection per overlap group. Within a
// group the winner is the highest-confidence detection; ties prefer the
// unrotated pass, then the larger box. Consolidated output is a fixed
// point: running Consolidate on its own output changes nothing.
func (c *Consolidator) Consolidate(dets []plate.Detection) []plate.Detection {
	if len(dets) == 0 {
		return nil
	}

	ordered := make([]plate.Detection, len(dets))
	copy(ordered, dets)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if (a.Rotation == 0) != (b.Rotation == 0) {
			return a.Rotation == 0
		}
		return a.Box.Area() > b.Box.Area()
	})

	// Greedy assignment: each detection joins the first winner it overlaps
	// with; otherwise it becomes a winner itself.
	var out []plate.Detection
	for _, d := range ordered {
		grouped := false
		for _, w := range out {
			if d.Box.IOU(w.Box) >= c.Overlap {
				grouped = true
				break
			}
		}
		if !grouped {
			out = append(out, d)
		}
	}
	return out
}
