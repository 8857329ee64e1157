package track

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"platetrack/internal/domain/plate"
)

// scoreFunc adapts a function to the Scorer interface.
type scoreFunc func(crop []byte) (float64, error)

func (f scoreFunc) Score(crop []byte) (float64, error) { return f(crop) }

// byteScorer scores a crop by its first byte, making test scores explicit.
var byteScorer = scoreFunc(func(crop []byte) (float64, error) {
	return float64(crop[0]), nil
})

func detWithScore(score byte, ts time.Time) plate.Detection {
	return plate.Detection{
		Box:        plate.Box{X: 10, Y: 10, W: 40, H: 20},
		Confidence: 0.8,
		Crop:       []byte{score},
		Timestamp:  ts,
	}
}

func TestSelectorTracksRunningMaximum(t *testing.T) {
	s := NewSelector(byteScorer, zerolog.Nop())
	tr := &plate.Track{ID: 1}
	base := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	scores := []byte{5, 3, 8, 8, 2, 9}
	runningMax := 0.0
	for i, sc := range scores {
		if float64(sc) > runningMax {
			runningMax = float64(sc)
		}
		s.Consider(tr, detWithScore(sc, base.Add(time.Duration(i)*time.Second)))
		assert.Equal(t, runningMax, tr.Best.Score, "after presenting score %d", sc)
	}
	// The stored sample is the one that set the maximum, not a later equal one.
	assert.Equal(t, []byte{9}, tr.Best.Crop)
	assert.Equal(t, base.Add(5*time.Second), tr.Best.Timestamp)
}

func TestSelectorEqualScoreDoesNotReplace(t *testing.T) {
	s := NewSelector(byteScorer, zerolog.Nop())
	tr := &plate.Track{ID: 1}
	t0 := time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

	s.Consider(tr, detWithScore(8, t0))
	s.Consider(tr, detWithScore(8, t0.Add(time.Second)))
	assert.Equal(t, t0, tr.Best.Timestamp, "an equal score must not replace the stored sample")
}

func TestSelectorFirstSampleAlwaysStored(t *testing.T) {
	s := NewSelector(byteScorer, zerolog.Nop())
	tr := &plate.Track{ID: 1}

	// Even a zero score is stored when nothing is stored yet.
	s.Consider(tr, detWithScore(0, time.Now()))
	assert.True(t, tr.HasSample())
	assert.Equal(t, 0.0, tr.Best.Score)
}

func TestSelectorIgnoresMissingCropAndScorerError(t *testing.T) {
	failing := scoreFunc(func([]byte) (float64, error) {
		return 0, errors.New("decode failed")
	})
	s := NewSelector(failing, zerolog.Nop())
	tr := &plate.Track{ID: 1}

	s.Consider(tr, plate.Detection{Confidence: 0.9}) // no crop
	assert.False(t, tr.HasSample())

	s.Consider(tr, detWithScore(5, time.Now())) // scorer fails
	assert.False(t, tr.HasSample())
}
