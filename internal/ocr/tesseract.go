// Package ocr reads plate text from a cropped image using Tesseract.
package ocr

import (
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"
)

// PlateChars is the character set plates can contain. Lowercase is excluded
// to avoid 0/O and 1/I confusion.
const PlateChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Reads outside this length range are treated as noise, not plates.
const (
	minTextLen = 4
	maxTextLen = 15
)

// Reader performs OCR on plate crops. Not safe for concurrent use; the
// pipeline calls it from a single goroutine.
type Reader struct {
	client *gosseract.Client
}

func NewReader() (*Reader, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage("eng"); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetWhitelist(PlateChars); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set character whitelist: %w", err)
	}

	// Plates aren't dictionary words; stop Tesseract from "correcting" them.
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")

	return &Reader{client: client}, nil
}

func (r *Reader) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ReadText returns the plate text read from the crop, or "" when no
// plausible text was found.
func (r *Reader) ReadText(crop []byte) (string, error) {
	processed, err := preprocess(crop)
	if err != nil {
		return "", err
	}

	if err := r.client.SetImageFromBytes(processed); err != nil {
		return "", fmt.Errorf("failed to set OCR image: %w", err)
	}
	text, err := r.client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}

	text = strings.ToUpper(strings.Join(strings.Fields(text), ""))
	if len(text) < minTextLen || len(text) > maxTextLen {
		return "", nil
	}
	return text, nil
}

// preprocess converts the crop to a denoised binary image: grayscale,
// median blur, Otsu threshold.
func preprocess(crop []byte) ([]byte, error) {
	img, err := gocv.IMDecode(crop, gocv.IMReadGrayscale)
	if err != nil {
		return nil, fmt.Errorf("failed to decode crop: %w", err)
	}
	defer img.Close()
	if img.Empty() {
		return nil, fmt.Errorf("empty crop")
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.MedianBlur(img, &blurred, 3)

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(blurred, &binary, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)

	buf, err := gocv.IMEncode(gocv.PNGFileExt, binary)
	if err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}
