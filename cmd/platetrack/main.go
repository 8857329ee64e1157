package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"platetrack/internal/config"
	"platetrack/internal/consolidate"
	"platetrack/internal/db"
	"platetrack/internal/detect"
	httpapi "platetrack/internal/http"
	"platetrack/internal/ocr"
	"platetrack/internal/pipeline"
	"platetrack/internal/quality"
	"platetrack/internal/repository"
	"platetrack/internal/service"
	"platetrack/internal/store"
	"platetrack/internal/track"
	"platetrack/internal/video"
)

func main() {
	var (
		configPath = pflag.String("config", "", "path to config file")
		source     = pflag.String("video", "", "video file path or camera index (overrides config)")
		multiAngle = pflag.Bool("multi-angle", false, "detect plates in rotated passes as well")
		useOCR     = pflag.Bool("ocr", false, "read plate text from the best sample")
		speed      = pflag.Bool("speed", false, "estimate vehicle speed from track duration")
		distance   = pflag.Float64("distance", 0, "calibration distance in meters (implies --speed)")
	)
	pflag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}

	// Flag overrides, original CLI style.
	if *source != "" {
		cfg.Video.Source = *source
	}
	if *multiAngle {
		cfg.Detector.MultiAngle = true
	}
	if *useOCR {
		cfg.OCR.Enabled = true
	}
	if *speed {
		cfg.Speed.Enabled = true
	}
	if *distance > 0 {
		cfg.Speed.Enabled = true
		cfg.Speed.DistanceMeters = *distance
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}
	if cfg.Video.Source == "" {
		log.Fatal().Msg("no video source: set video.source or pass --video")
	}

	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		log = log.Level(level)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("platetrack failed")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	runID := uuid.New()
	log.Info().Str("run_id", runID.String()).Str("source", cfg.Video.Source).Msg("starting platetrack")

	gdb, err := db.Connect(cfg.Storage.DSN)
	if err != nil {
		return err
	}
	repo := repository.NewRecordRepository(gdb)

	writer := store.NewWriter(repo, store.WriterConfig{
		QueueSize:  cfg.Storage.QueueSize,
		MaxRetries: cfg.Storage.MaxRetries,
		Backoff:    cfg.Storage.Backoff,
		SpillPath:  cfg.Storage.SpillPath,
	}, log)

	var reader pipeline.TextReader
	if cfg.OCR.Enabled {
		ocrReader, err := ocr.NewReader()
		if err != nil {
			return err
		}
		defer ocrReader.Close()
		reader = ocrReader
	}

	finalizer := pipeline.NewFinalizer(pipeline.FinalizerConfig{
		MinScore:     cfg.Quality.MinScore,
		DropBelowMin: cfg.Quality.DropBelowMin,
	}, reader, writer, runID, log)

	selector := track.NewSelector(quality.LaplacianScorer{}, log)

	var estimator *track.SpeedEstimator
	if cfg.Speed.Enabled {
		estimator = &track.SpeedEstimator{
			DistanceMeters: cfg.Speed.DistanceMeters,
			MinElapsed:     cfg.Speed.MinElapsed,
			MaxSpeed:       cfg.Speed.MaxSpeedKMH / 3.6,
		}
	}

	manager := track.NewManager(track.ManagerConfig{
		MatchOverlap:  cfg.Track.MatchOverlap,
		MissTolerance: cfg.Track.MissTolerance,
	}, selector, estimator, finalizer.Finalize, log)

	yolo, err := detect.NewYOLO(detect.YOLOConfig{
		ModelPath:   cfg.Detector.ModelPath,
		NMSThresh:   float32(cfg.Detector.NMSThreshold),
		InputWidth:  cfg.Detector.InputWidth,
		InputHeight: cfg.Detector.InputHeight,
	})
	if err != nil {
		return err
	}
	defer yolo.Close()

	var detector detect.Detector = yolo
	if cfg.Detector.MultiAngle {
		detector = detect.NewMultiAngle(yolo)
	}

	src, err := video.Open(cfg.Video.Source, cfg.Video.FPS)
	if err != nil {
		return err
	}
	defer src.Close()

	pl := pipeline.New(pipeline.Config{
		ConfThreshold: cfg.Detector.ConfidenceThreshold,
		MinConfidence: cfg.Detector.MinConfidence,
	}, detector, consolidate.New(cfg.Consolidate.OverlapThreshold), manager, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The API serves while the pipeline runs and goes down with it.
	apiCtx, apiCancel := context.WithCancel(ctx)
	defer apiCancel()

	g, gctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		return writer.Run(gctx)
	})

	g.Go(func() error {
		defer apiCancel()
		err := pl.Run(ctx, src)
		// All retirements are enqueued; let the writer drain and stop.
		writer.Close()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if cfg.HTTP.Enabled {
		records := service.NewRecordService(repo, log)
		engine := httpapi.NewEngine(httpapi.NewHandler(records, log), cfg.HTTP.JWTSecret)
		g.Go(func() error {
			return httpapi.Serve(apiCtx, cfg.HTTP.Addr, engine, log)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Str("run_id", runID.String()).Msg("platetrack finished")
	return nil
}
