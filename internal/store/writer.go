// Package store moves finalized plate records from the frame-processing
// loop to durable storage without ever blocking it on I/O. Records are
// handed off through a bounded queue drained by a single worker in
// submission order; a full queue applies backpressure instead of dropping.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"platetrack/internal/domain/plate"
)

// Store is the persistence collaborator: append-only inserts, nothing else.
type Store interface {
	Insert(ctx context.Context, rec *plate.Record) error
}

type WriterConfig struct {
	// QueueSize bounds the hand-off queue between the pipeline and the
	// worker. Enqueue blocks when it is full.
	QueueSize int
	// MaxRetries is how many times a failed insert is retried before the
	// record is spilled to disk.
	MaxRetries int
	// Backoff is the initial retry delay; it doubles per attempt.
	Backoff time.Duration
	// SpillPath is the JSONL file that receives records whose retries
	// exhausted. Empty disables spilling (and a record that cannot be
	// stored is then only logged, which is why the default config always
	// sets it).
	SpillPath string
}

func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		QueueSize:  64,
		MaxRetries: 5,
		Backoff:    200 * time.Millisecond,
		SpillPath:  "platetrack.spill.jsonl",
	}
}

// Writer is the storage worker. Start it with Run (typically in an
// errgroup), feed it with Enqueue, and Close it when the stream ends; Run
// returns once the queue has drained.
type Writer struct {
	store Store
	cfg   WriterConfig
	log   zerolog.Logger
	queue chan *plate.Record
}

func NewWriter(store Store, cfg WriterConfig, log zerolog.Logger) *Writer {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	return &Writer{
		store: store,
		cfg:   cfg,
		log:   log,
		queue: make(chan *plate.Record, cfg.QueueSize),
	}
}

// Enqueue hands a record to the worker, blocking when the queue is full.
// Records enqueued before Close are guaranteed to be either stored or
// spilled before Run returns.
func (w *Writer) Enqueue(rec *plate.Record) {
	w.queue <- rec
}

// Close signals that no more records will arrive. Enqueue must not be
// called afterwards.
func (w *Writer) Close() {
	close(w.queue)
}

// Run drains the queue until Close. The context bounds individual insert
// attempts, not the drain: cancelling it shortens retries but Run still
// processes every record already enqueued, so a shutdown never loses
// records that reached the queue.
func (w *Writer) Run(ctx context.Context) error {
	for rec := range w.queue {
		w.persist(ctx, rec)
	}
	return nil
}

func (w *Writer) persist(ctx context.Context, rec *plate.Record) {
	backoff := w.cfg.Backoff
	var err error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				// Shutdown in progress: skip the remaining waits and go
				// straight to the spill file.
				attempt = w.cfg.MaxRetries
			}
			backoff *= 2
		}
		if err = w.store.Insert(ctx, rec); err == nil {
			w.log.Info().
				Int64("track_id", rec.TrackID).
				Float64("score", rec.Score).
				Msg("stored plate record")
			return
		}
		w.log.Warn().
			Err(err).
			Int64("track_id", rec.TrackID).
			Int("attempt", attempt+1).
			Msg("failed to store plate record")
	}

	if spillErr := w.spill(rec); spillErr != nil {
		w.log.Error().
			Err(spillErr).
			Int64("track_id", rec.TrackID).
			Msg("failed to spill plate record, record lost")
		return
	}
	w.log.Error().
		Err(err).
		Int64("track_id", rec.TrackID).
		Str("spill_path", w.cfg.SpillPath).
		Msg("storage exhausted retries, record spilled to disk")
}

// spill appends the record as one JSON line. Image bytes are base64 inside
// the JSON, so the file can be replayed into storage later.
func (w *Writer) spill(rec *plate.Record) error {
	if w.cfg.SpillPath == "" {
		return fmt.Errorf("no spill path configured")
	}
	f, err := os.OpenFile(w.cfg.SpillPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = f.Write(data)
	return err
}
