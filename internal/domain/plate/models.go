package plate

import (
	"time"

	"github.com/google/uuid"
)

// Box is an axis-aligned bounding box in the pixel space of the original
// frame.
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

func (b Box) Area() float64 {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// IOU returns the intersection-over-union of two boxes, in [0,1].
func (b Box) IOU(o Box) float64 {
	ix := max(b.X, o.X)
	iy := max(b.Y, o.Y)
	ix2 := min(b.X+b.W, o.X+o.W)
	iy2 := min(b.Y+b.H, o.Y+o.H)
	if ix2 <= ix || iy2 <= iy {
		return 0
	}
	inter := (ix2 - ix) * (iy2 - iy)
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Detection is one plate candidate in one frame. It is ephemeral: consumed
// by the track manager and discarded.
type Detection struct {
	Box        Box
	Confidence float64
	// Rotation is the angle (degrees) of the detection pass that produced
	// this box; 0 for the unrotated pass. The box itself is always in the
	// original frame's coordinate space.
	Rotation   float64
	Crop       []byte // PNG-encoded crop from the pass that saw it
	Timestamp  time.Time
	FrameIndex int64
}

// Sample is the stored best observation of a track.
type Sample struct {
	Crop       []byte
	Score      float64
	Confidence float64
	Rotation   float64
	Timestamp  time.Time
}

// Track is one physical plate's continuous visibility. Tracks are owned by
// the track manager; other components mutate individual fields through it
// but never create or retire one themselves.
type Track struct {
	ID         int64
	LastBox    Box
	FirstSeen  time.Time
	LastSeen   time.Time
	FirstFrame int64
	LastFrame  int64
	Frames     int64 // frames in which this track was matched

	// Best holds the highest-scoring sample seen so far. Its score is
	// monotonically non-decreasing over the track's lifetime.
	Best Sample

	Misses int

	Speed *float64 // m/s, set once at retirement, absent if not computable
}

// HasSample reports whether a best sample has been stored yet.
func (t *Track) HasSample() bool {
	return t.Best.Crop != nil
}

// Record is the immutable persisted outcome of one retired track.
type Record struct {
	TrackID    int64
	RunID      uuid.UUID
	Image      []byte
	Text       *string
	Score      float64
	Confidence float64
	Rotation   float64
	Speed      *float64 // m/s
	LowQuality bool
	CapturedAt time.Time // timestamp of the best sample, not of retirement

	FirstFrame int64
	LastFrame  int64
	Frames     int64
	LastBox    Box
}
