// Package detect defines the plate detection capability and its concrete
// backends. A detector maps a frame and a confidence threshold to unranked
// plate candidates; identity across frames is someone else's problem.
package detect

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"platetrack/internal/domain/plate"
)

// Result is one plate candidate found in a frame. The box is expressed in
// the coordinate space of the original frame regardless of which detection
// pass produced it; the crop is taken from the pass that saw it.
type Result struct {
	Box        plate.Box
	Confidence float64
	Rotation   float64 // degrees of the pass that produced this result
	Crop       []byte  // PNG-encoded
}

// Detector finds plate candidates in a single frame.
type Detector interface {
	Detect(frame gocv.Mat, confThreshold float64) ([]Result, error)
}

// encodeCrop clamps the box to the frame and returns the region as PNG.
func encodeCrop(frame gocv.Mat, b plate.Box) ([]byte, error) {
	x1 := clamp(int(b.X), 0, frame.Cols()-1)
	y1 := clamp(int(b.Y), 0, frame.Rows()-1)
	x2 := clamp(int(b.X+b.W), x1+1, frame.Cols())
	y2 := clamp(int(b.Y+b.H), y1+1, frame.Rows())

	region := frame.Region(image.Rect(x1, y1, x2, y2))
	defer region.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, region)
	if err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
