// Package track maintains plate identity across frames: matching incoming
// detections to active tracks, keeping each track's best sample, estimating
// speed, and retiring tracks that fall out of view.
package track

import (
	"sort"

	"github.com/rs/zerolog"

	"platetrack/internal/domain/plate"
)

// RetireFunc receives each track exactly once, when it leaves the active
// set. The track must not be retained after the call returns.
type RetireFunc func(*plate.Track)

type ManagerConfig struct {
	// MatchOverlap is the minimum IOU between a detection and a track's
	// last-known box for the two to be considered the same plate.
	MatchOverlap float64
	// MissTolerance is how many consecutive frames a track may go unmatched
	// before it is retired.
	MissTolerance int
}

// Manager owns the set of active tracks. It is not safe for concurrent use;
// the pipeline feeds it one frame at a time.
type Manager struct {
	cfg      ManagerConfig
	selector *Selector
	speed    *SpeedEstimator // nil when speed estimation is disabled
	retire   RetireFunc
	log      zerolog.Logger

	active []*plate.Track
	nextID int64
}

func NewManager(cfg ManagerConfig, selector *Selector, speed *SpeedEstimator, retire RetireFunc, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		selector: selector,
		speed:    speed,
		retire:   retire,
		log:      log,
		nextID:   1,
	}
}

// ActiveCount returns the number of tracks currently in view.
func (m *Manager) ActiveCount() int {
	return len(m.active)
}

// Observe processes one frame's worth of consolidated detections. It must
// be called once per frame even when no detections were produced, so that
// unmatched tracks accumulate misses.
func (m *Manager) Observe(dets []plate.Detection) {
	matched := make(map[*plate.Track]bool, len(m.active))

	// Higher-confidence detections claim tracks first, so when two plates
	// overlap the weaker detection starts a new track instead of stealing
	// an existing one.
	ordered := make([]plate.Detection, len(dets))
	copy(ordered, dets)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Confidence > ordered[j].Confidence
	})

	for _, det := range ordered {
		tr := m.bestMatch(det, matched)
		if tr == nil {
			tr = m.open(det)
			m.active = append(m.active, tr)
			matched[tr] = true
			m.selector.Consider(tr, det)
			continue
		}
		matched[tr] = true
		tr.Misses = 0
		tr.LastBox = det.Box
		tr.LastSeen = det.Timestamp
		tr.LastFrame = det.FrameIndex
		tr.Frames++
		m.selector.Consider(tr, det)
	}

	// Unmatched tracks miss this frame; the stale ones retire.
	kept := m.active[:0]
	for _, tr := range m.active {
		if matched[tr] {
			kept = append(kept, tr)
			continue
		}
		tr.Misses++
		if tr.Misses > m.cfg.MissTolerance {
			m.retireTrack(tr)
			continue
		}
		kept = append(kept, tr)
	}
	m.active = kept
}

// Flush force-retires every remaining active track. Called at end of stream
// so no sighting is silently dropped.
func (m *Manager) Flush() {
	for _, tr := range m.active {
		m.retireTrack(tr)
	}
	m.active = nil
}

func (m *Manager) bestMatch(det plate.Detection, claimed map[*plate.Track]bool) *plate.Track {
	var best *plate.Track
	bestIOU := 0.0
	for _, tr := range m.active {
		if claimed[tr] {
			continue
		}
		iou := det.Box.IOU(tr.LastBox)
		if iou >= m.cfg.MatchOverlap && iou > bestIOU {
			best = tr
			bestIOU = iou
		}
	}
	return best
}

func (m *Manager) open(det plate.Detection) *plate.Track {
	tr := &plate.Track{
		ID:         m.nextID,
		LastBox:    det.Box,
		FirstSeen:  det.Timestamp,
		LastSeen:   det.Timestamp,
		FirstFrame: det.FrameIndex,
		LastFrame:  det.FrameIndex,
		Frames:     1,
	}
	m.nextID++
	m.log.Debug().
		Int64("track_id", tr.ID).
		Int64("frame", det.FrameIndex).
		Float64("confidence", det.Confidence).
		Msg("opened track")
	return tr
}

func (m *Manager) retireTrack(tr *plate.Track) {
	if m.speed != nil {
		m.speed.OnRetire(tr)
	}
	m.log.Debug().
		Int64("track_id", tr.ID).
		Int64("frames", tr.Frames).
		Float64("best_score", tr.Best.Score).
		Msg("retired track")
	m.retire(tr)
}
