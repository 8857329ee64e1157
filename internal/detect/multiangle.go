package detect

import (
	"fmt"

	"gocv.io/x/gocv"

	"platetrack/internal/domain/plate"
)

// Angles are the extra detection passes run by the multi-angle wrapper.
// 90 is clockwise, -90 counter-clockwise.
var Angles = []int{90, -90, 180}

// MultiAngle runs the inner detector on the original frame plus rotated
// copies, catching plates that sit sideways or upside down in the frame.
// Boxes from rotated passes are remapped into the original frame's
// coordinate space before they leave this wrapper; crops stay as the inner
// detector produced them, taken from the rotated frame where the plate was
// upright.
type MultiAngle struct {
	inner Detector
}

func NewMultiAngle(inner Detector) *MultiAngle {
	return &MultiAngle{inner: inner}
}

func (m *MultiAngle) Detect(frame gocv.Mat, confThreshold float64) ([]Result, error) {
	results, err := m.inner.Detect(frame, confThreshold)
	if err != nil {
		return nil, err
	}

	w, h := frame.Cols(), frame.Rows()
	for _, angle := range Angles {
		rotated := gocv.NewMat()
		gocv.Rotate(frame, &rotated, rotationCode(angle))

		passResults, err := m.inner.Detect(rotated, confThreshold)
		rotated.Close()
		if err != nil {
			return nil, fmt.Errorf("rotated pass %d: %w", angle, err)
		}

		for _, r := range passResults {
			r.Box = remapBox(r.Box, angle, w, h)
			r.Rotation = float64(angle)
			results = append(results, r)
		}
	}
	return results, nil
}

func rotationCode(angle int) gocv.RotateFlag {
	switch angle {
	case 90:
		return gocv.Rotate90Clockwise
	case -90:
		return gocv.Rotate90CounterClockwise
	default:
		return gocv.Rotate180Clockwise
	}
}

// remapBox maps a box found in a rotated frame back into the coordinate
// space of the original w×h frame. The 90-degree rotations swap the frame
// dimensions, so a box in the rotated frame has its width and height
// exchanged in the original.
func remapBox(b plate.Box, angle, w, h int) plate.Box {
	fw, fh := float64(w), float64(h)
	var out plate.Box
	switch angle {
	case 90:
		// Clockwise: original (x,y) lands at (h-y, x) in the rotated frame.
		out = plate.Box{
			X: b.Y,
			Y: fh - (b.X + b.W),
			W: b.H,
			H: b.W,
		}
	case -90:
		// Counter-clockwise: original (x,y) lands at (y, w-x).
		out = plate.Box{
			X: fw - (b.Y + b.H),
			Y: b.X,
			W: b.H,
			H: b.W,
		}
	case 180:
		out = plate.Box{
			X: fw - (b.X + b.W),
			Y: fh - (b.Y + b.H),
			W: b.W,
			H: b.H,
		}
	default:
		out = b
	}

	// Clamp to the frame; rounding at the borders can push a box out by a
	// pixel.
	out.X = max(0, min(out.X, fw-1))
	out.Y = max(0, min(out.Y, fh-1))
	out.W = min(out.W, fw-out.X)
	out.H = min(out.H, fh-out.Y)
	return out
}
