package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platetrack/internal/domain/plate"
)

// flakyStore fails the first failures calls to Insert, then succeeds.
type flakyStore struct {
	failures int
	calls    int
	inserted []*plate.Record
}

func (s *flakyStore) Insert(_ context.Context, rec *plate.Record) error {
	s.calls++
	if s.calls <= s.failures {
		return errors.New("connection refused")
	}
	s.inserted = append(s.inserted, rec)
	return nil
}

func rec(trackID int64) *plate.Record {
	return &plate.Record{TrackID: trackID, Image: []byte{0xCA, 0xFE}, CapturedAt: time.Now()}
}

func runWriter(t *testing.T, w *Writer, records []*plate.Record) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	for _, r := range records {
		w.Enqueue(r)
	}
	w.Close()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("writer did not drain in time")
	}
}

func TestWriterStoresInOrder(t *testing.T) {
	s := &flakyStore{}
	w := NewWriter(s, WriterConfig{QueueSize: 2, MaxRetries: 1, Backoff: time.Millisecond}, zerolog.Nop())

	var records []*plate.Record
	for i := int64(1); i <= 5; i++ {
		records = append(records, rec(i))
	}
	runWriter(t, w, records)

	require.Len(t, s.inserted, 5)
	for i, r := range s.inserted {
		assert.Equal(t, int64(i+1), r.TrackID, "records must be stored in submission order")
	}
}

func TestWriterRetriesUntilSuccess(t *testing.T) {
	s := &flakyStore{failures: 3}
	w := NewWriter(s, WriterConfig{QueueSize: 1, MaxRetries: 5, Backoff: time.Millisecond}, zerolog.Nop())

	runWriter(t, w, []*plate.Record{rec(1), rec(2)})

	require.Len(t, s.inserted, 2)
	assert.Equal(t, int64(1), s.inserted[0].TrackID)
	assert.Equal(t, int64(2), s.inserted[1].TrackID)
	assert.Equal(t, 5, s.calls) // 3 failures + 2 successes
}

func TestWriterSpillsWhenRetriesExhaust(t *testing.T) {
	spillPath := filepath.Join(t.TempDir(), "spill.jsonl")
	s := &flakyStore{failures: 1 << 30} // never succeeds
	w := NewWriter(s, WriterConfig{
		QueueSize:  1,
		MaxRetries: 2,
		Backoff:    time.Millisecond,
		SpillPath:  spillPath,
	}, zerolog.Nop())

	runWriter(t, w, []*plate.Record{rec(7), rec(8)})
	assert.Empty(t, s.inserted)

	data, err := os.ReadFile(spillPath)
	require.NoError(t, err)

	var got []plate.Record
	for _, line := range splitLines(data) {
		var r plate.Record
		require.NoError(t, json.Unmarshal(line, &r))
		got = append(got, r)
	}
	require.Len(t, got, 2)
	assert.Equal(t, int64(7), got[0].TrackID)
	assert.Equal(t, int64(8), got[1].TrackID)
	assert.Equal(t, []byte{0xCA, 0xFE}, got[0].Image, "image bytes must survive the spill round trip")
}

func TestWriterBackpressureBlocksNotDrops(t *testing.T) {
	s := &flakyStore{}
	w := NewWriter(s, WriterConfig{QueueSize: 1, MaxRetries: 0, Backoff: time.Millisecond}, zerolog.Nop())

	// Enqueue more than the queue holds before the worker starts; Enqueue
	// must block until the worker frees space, and every record must land.
	done := make(chan error, 1)
	enqueued := make(chan struct{})
	go func() {
		for i := int64(1); i <= 10; i++ {
			w.Enqueue(rec(i))
		}
		close(enqueued)
		w.Close()
	}()
	go func() { done <- w.Run(context.Background()) }()

	select {
	case <-enqueued:
	case <-time.After(10 * time.Second):
		t.Fatal("enqueue stalled")
	}
	require.NoError(t, <-done)
	assert.Len(t, s.inserted, 10)
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lines = append(lines, data[start:i])
			}
			start = i + 1
		}
	}
	return lines
}
