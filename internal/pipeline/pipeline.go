// Package pipeline drives the frame loop: detect, consolidate, track,
// finalize. All per-frame work is synchronous and single-threaded; only
// persistence happens on a separate worker behind the sink.
package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"platetrack/internal/consolidate"
	"platetrack/internal/detect"
	"platetrack/internal/domain/plate"
	"platetrack/internal/track"
	"platetrack/internal/video"
)

// FrameSource is a synchronous pull-based frame stream.
type FrameSource interface {
	Next() (video.Frame, bool)
}

type Config struct {
	// ConfThreshold is passed to the detector.
	ConfThreshold float64
	// MinConfidence gates which crops may compete for a track's best
	// sample. Detections below it still update track identity, but their
	// crops are not considered.
	MinConfidence float64
}

type Pipeline struct {
	cfg          Config
	detector     detect.Detector
	consolidator *consolidate.Consolidator
	tracks       *track.Manager
	log          zerolog.Logger

	framesSeen int64
}

func New(cfg Config, detector detect.Detector, consolidator *consolidate.Consolidator, tracks *track.Manager, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		cfg:          cfg,
		detector:     detector,
		consolidator: consolidator,
		tracks:       tracks,
		log:          log,
	}
}

// Run pulls frames until end of stream or context cancellation, then
// force-retires all remaining tracks. Every retirement reaches the
// finalizer before Run returns.
func (p *Pipeline) Run(ctx context.Context, src FrameSource) error {
	defer p.tracks.Flush()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Int64("frames", p.framesSeen).Msg("pipeline interrupted, flushing tracks")
			return ctx.Err()
		default:
		}

		frame, ok := src.Next()
		if !ok {
			p.log.Info().Int64("frames", p.framesSeen).Msg("end of stream, flushing tracks")
			return nil
		}
		p.ProcessFrame(frame)
	}
}

// ProcessFrame runs one frame through the pipeline. A detector failure
// skips the frame: active tracks accumulate a miss exactly as if nothing
// was detected.
func (p *Pipeline) ProcessFrame(frame video.Frame) {
	p.framesSeen++

	results, err := p.detector.Detect(frame.Mat, p.cfg.ConfThreshold)
	if err != nil {
		p.log.Error().Err(err).Int64("frame", frame.Index).Msg("detector failed, skipping frame")
		p.tracks.Observe(nil)
		return
	}

	dets := make([]plate.Detection, 0, len(results))
	for _, r := range results {
		d := plate.Detection{
			Box:        r.Box,
			Confidence: r.Confidence,
			Rotation:   r.Rotation,
			Crop:       r.Crop,
			Timestamp:  frame.Timestamp,
			FrameIndex: frame.Index,
		}
		if d.Confidence < p.cfg.MinConfidence {
			d.Crop = nil
		}
		dets = append(dets, d)
	}

	consolidated := p.consolidator.Consolidate(dets)
	if len(consolidated) > 0 {
		p.log.Debug().
			Int64("frame", frame.Index).
			Int("raw", len(dets)).
			Int("consolidated", len(consolidated)).
			Int("active_tracks", p.tracks.ActiveCount()).
			Msg("frame detections")
	}
	p.tracks.Observe(consolidated)
}
