package track

import (
	"github.com/rs/zerolog"

	"platetrack/internal/domain/plate"
)

// Scorer computes a sharpness score for an encoded image crop. Higher is
// sharper. Implementations must be deterministic and must not fail on
// degenerate input; a near-uniform crop simply scores near zero.
type Scorer interface {
	Score(crop []byte) (float64, error)
}

// Selector keeps the single best-quality sample per track. Quality policy
// lives here and nowhere else.
type Selector struct {
	scorer Scorer
	log    zerolog.Logger
}

func NewSelector(scorer Scorer, log zerolog.Logger) *Selector {
	return &Selector{scorer: scorer, log: log}
}

// Consider scores the detection's crop and replaces the track's best sample
// if and only if the new score is strictly greater than the stored one, or
// no sample is stored yet. It mutates only the track's best sample.
func (s *Selector) Consider(tr *plate.Track, det plate.Detection) {
	if len(det.Crop) == 0 {
		return
	}
	score, err := s.scorer.Score(det.Crop)
	if err != nil {
		s.log.Warn().Err(err).Int64("track_id", tr.ID).Msg("failed to score crop")
		return
	}
	if tr.HasSample() && score <= tr.Best.Score {
		return
	}
	tr.Best = plate.Sample{
		Crop:       det.Crop,
		Score:      score,
		Confidence: det.Confidence,
		Rotation:   det.Rotation,
		Timestamp:  det.Timestamp,
	}
}
