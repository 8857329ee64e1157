package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platetrack/internal/domain/plate"
)

type captureSink struct {
	records []*plate.Record
}

func (s *captureSink) Enqueue(rec *plate.Record) { s.records = append(s.records, rec) }

type stubOCR struct {
	text string
	err  error
}

func (o stubOCR) ReadText([]byte) (string, error) { return o.text, o.err }

func retiredTrack(score float64) *plate.Track {
	sampleTime := time.Date(2026, 8, 25, 12, 0, 1, 0, time.UTC)
	speed := 12.5
	return &plate.Track{
		ID: 42,
		Best: plate.Sample{
			Crop:       []byte{1, 2, 3},
			Score:      score,
			Confidence: 0.87,
			Rotation:   90,
			Timestamp:  sampleTime,
		},
		FirstFrame: 10,
		LastFrame:  70,
		Frames:     55,
		Speed:      &speed,
	}
}

func TestFinalizeAssemblesRecord(t *testing.T) {
	sink := &captureSink{}
	runID := uuid.New()
	f := NewFinalizer(FinalizerConfig{MinScore: 100}, nil, sink, runID, zerolog.Nop())

	f.Finalize(retiredTrack(250))

	require.Len(t, sink.records, 1)
	rec := sink.records[0]
	assert.Equal(t, int64(42), rec.TrackID)
	assert.Equal(t, runID, rec.RunID)
	assert.Equal(t, []byte{1, 2, 3}, rec.Image)
	assert.Equal(t, 250.0, rec.Score)
	assert.Equal(t, 0.87, rec.Confidence)
	assert.Equal(t, 90.0, rec.Rotation)
	assert.False(t, rec.LowQuality)
	assert.Nil(t, rec.Text)
	require.NotNil(t, rec.Speed)
	assert.Equal(t, 12.5, *rec.Speed)
	// Captured at the best sample's time, not at retirement.
	assert.Equal(t, time.Date(2026, 8, 25, 12, 0, 1, 0, time.UTC), rec.CapturedAt)
}

func TestFinalizeFlagsLowQuality(t *testing.T) {
	sink := &captureSink{}
	f := NewFinalizer(FinalizerConfig{MinScore: 100}, nil, sink, uuid.New(), zerolog.Nop())

	f.Finalize(retiredTrack(40))

	require.Len(t, sink.records, 1)
	assert.True(t, sink.records[0].LowQuality)
}

func TestFinalizeDropsLowQualityWhenConfigured(t *testing.T) {
	sink := &captureSink{}
	f := NewFinalizer(FinalizerConfig{MinScore: 100, DropBelowMin: true}, nil, sink, uuid.New(), zerolog.Nop())

	f.Finalize(retiredTrack(40))
	assert.Empty(t, sink.records)

	f.Finalize(retiredTrack(150))
	assert.Len(t, sink.records, 1)
}

func TestFinalizeOCR(t *testing.T) {
	t.Run("text stored", func(t *testing.T) {
		sink := &captureSink{}
		f := NewFinalizer(FinalizerConfig{}, stubOCR{text: "34ABC123"}, sink, uuid.New(), zerolog.Nop())
		f.Finalize(retiredTrack(200))
		require.Len(t, sink.records, 1)
		require.NotNil(t, sink.records[0].Text)
		assert.Equal(t, "34ABC123", *sink.records[0].Text)
	})

	t.Run("failure degrades to absent text", func(t *testing.T) {
		sink := &captureSink{}
		f := NewFinalizer(FinalizerConfig{}, stubOCR{err: errors.New("tesseract crashed")}, sink, uuid.New(), zerolog.Nop())
		f.Finalize(retiredTrack(200))
		require.Len(t, sink.records, 1)
		assert.Nil(t, sink.records[0].Text)
	})

	t.Run("empty read stays absent", func(t *testing.T) {
		sink := &captureSink{}
		f := NewFinalizer(FinalizerConfig{}, stubOCR{text: ""}, sink, uuid.New(), zerolog.Nop())
		f.Finalize(retiredTrack(200))
		require.Len(t, sink.records, 1)
		assert.Nil(t, sink.records[0].Text)
	})
}

func TestFinalizeSkipsTrackWithoutSample(t *testing.T) {
	sink := &captureSink{}
	f := NewFinalizer(FinalizerConfig{}, nil, sink, uuid.New(), zerolog.Nop())

	f.Finalize(&plate.Track{ID: 7})
	assert.Empty(t, sink.records)
}
