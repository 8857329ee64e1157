// Package video supplies frames to the pipeline as a synchronous pull-based
// stream over gocv's VideoCapture.
package video

import (
	"fmt"
	"strconv"
	"time"

	"gocv.io/x/gocv"
)

// Frame is one decoded video frame. The Mat is owned by the source and is
// only valid until the next call to Next.
type Frame struct {
	Mat       gocv.Mat
	Index     int64
	Timestamp time.Time
}

// Source reads frames from a video file or a camera device. A numeric
// source string is treated as a device index, anything else as a file path
// or URL.
type Source struct {
	cap   *gocv.VideoCapture
	mat   gocv.Mat
	fps   float64
	live  bool
	start time.Time
	index int64
}

// Open opens the video source. fpsOverride, when positive, replaces the
// container's reported frame rate; file timestamps are derived from the
// frame rate, live sources use the wall clock.
func Open(source string, fpsOverride float64) (*Source, error) {
	var cap *gocv.VideoCapture
	var err error
	live := false

	if device, convErr := strconv.Atoi(source); convErr == nil {
		cap, err = gocv.OpenVideoCapture(device)
		live = true
	} else {
		cap, err = gocv.OpenVideoCapture(source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open video source %q: %w", source, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("video source %q did not open", source)
	}

	fps := cap.Get(gocv.VideoCaptureFPS)
	if fpsOverride > 0 {
		fps = fpsOverride
	}
	if fps <= 0 {
		fps = 30
	}

	return &Source{
		cap:   cap,
		mat:   gocv.NewMat(),
		fps:   fps,
		live:  live,
		start: time.Now(),
	}, nil
}

func (s *Source) FPS() float64 { return s.fps }

// Next returns the next frame, or ok=false at end of stream.
func (s *Source) Next() (Frame, bool) {
	if !s.cap.Read(&s.mat) || s.mat.Empty() {
		return Frame{}, false
	}
	f := Frame{
		Mat:   s.mat,
		Index: s.index,
	}
	if s.live {
		f.Timestamp = time.Now()
	} else {
		f.Timestamp = s.start.Add(time.Duration(float64(s.index) / s.fps * float64(time.Second)))
	}
	s.index++
	return f, true
}

func (s *Source) Close() error {
	s.mat.Close()
	return s.cap.Close()
}
