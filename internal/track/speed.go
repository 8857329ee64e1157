package track

import (
	"time"

	"platetrack/internal/domain/plate"
)

// SpeedEstimator derives a speed from the elapsed time a track stayed
// visible and the operator-supplied calibration distance the tracked path
// is assumed to span. It runs once, at retirement; a track's speed is never
// recomputed.
type SpeedEstimator struct {
	// DistanceMeters is the real-world distance covered by a plate that
	// crosses the whole camera view.
	DistanceMeters float64
	// MinElapsed guards against tracks seen too briefly to time. Shorter
	// tracks get no speed rather than a near-infinite one.
	MinElapsed time.Duration
	// MaxSpeed (m/s) discards implausible estimates as calibration error.
	// Zero disables the cap.
	MaxSpeed float64
}

// OnRetire sets the track's speed, or leaves it absent when the elapsed
// time is below MinElapsed or the estimate exceeds MaxSpeed.
func (e *SpeedEstimator) OnRetire(tr *plate.Track) {
	elapsed := tr.LastSeen.Sub(tr.FirstSeen)
	if elapsed <= 0 || elapsed < e.MinElapsed {
		return
	}
	v := e.DistanceMeters / elapsed.Seconds()
	if e.MaxSpeed > 0 && v > e.MaxSpeed {
		return
	}
	tr.Speed = &v
}

// KMH converts a speed in m/s to km/h.
func KMH(ms float64) float64 {
	return ms * 3.6
}
