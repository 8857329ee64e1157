package pipeline

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"platetrack/internal/domain/plate"
)

// TextReader is the optional OCR collaborator. It is called at most once
// per track, on the best sample, at finalization.
type TextReader interface {
	ReadText(crop []byte) (string, error)
}

// Sink receives finalized records for persistence. Enqueue may block
// briefly under backpressure but must not fail.
type Sink interface {
	Enqueue(rec *plate.Record)
}

type FinalizerConfig struct {
	// MinScore is the quality floor for a record. Zero disables the check.
	MinScore float64
	// DropBelowMin drops records under the floor entirely; otherwise they
	// are stored flagged as low quality.
	DropBelowMin bool
}

// Finalizer turns a retired track into a plate record and hands it to the
// sink. An OCR failure degrades to an absent text field, never to a lost
// record.
type Finalizer struct {
	cfg   FinalizerConfig
	ocr   TextReader // nil when OCR is disabled
	sink  Sink
	runID uuid.UUID
	log   zerolog.Logger
}

func NewFinalizer(cfg FinalizerConfig, ocr TextReader, sink Sink, runID uuid.UUID, log zerolog.Logger) *Finalizer {
	return &Finalizer{
		cfg:   cfg,
		ocr:   ocr,
		sink:  sink,
		runID: runID,
		log:   log,
	}
}

// Finalize assembles and enqueues the record for a retired track.
func (f *Finalizer) Finalize(tr *plate.Track) {
	if !tr.HasSample() {
		f.log.Warn().Int64("track_id", tr.ID).Msg("track retired without a usable sample")
		return
	}

	lowQuality := f.cfg.MinScore > 0 && tr.Best.Score < f.cfg.MinScore
	if lowQuality && f.cfg.DropBelowMin {
		f.log.Info().
			Int64("track_id", tr.ID).
			Float64("score", tr.Best.Score).
			Float64("min_score", f.cfg.MinScore).
			Msg("dropped low-quality plate record")
		return
	}

	rec := &plate.Record{
		TrackID:    tr.ID,
		RunID:      f.runID,
		Image:      tr.Best.Crop,
		Score:      tr.Best.Score,
		Confidence: tr.Best.Confidence,
		Rotation:   tr.Best.Rotation,
		Speed:      tr.Speed,
		LowQuality: lowQuality,
		CapturedAt: tr.Best.Timestamp,
		FirstFrame: tr.FirstFrame,
		LastFrame:  tr.LastFrame,
		Frames:     tr.Frames,
		LastBox:    tr.LastBox,
	}

	if f.ocr != nil {
		text, err := f.ocr.ReadText(tr.Best.Crop)
		switch {
		case err != nil:
			f.log.Warn().Err(err).Int64("track_id", tr.ID).Msg("OCR failed, storing record without text")
		case text != "":
			rec.Text = &text
		}
	}

	f.sink.Enqueue(rec)
}
