package quality

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func uniformPNG(t *testing.T, w, h int, v uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return encodePNG(t, img)
}

func checkerboardPNG(t *testing.T, w, h, cell int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return encodePNG(t, img)
}

func TestScoreUniformImageIsZero(t *testing.T) {
	var s LaplacianScorer
	score, err := s.Score(uniformPNG(t, 64, 32, 128))
	require.NoError(t, err)
	assert.Zero(t, score, "a flat image has no edges to respond to")
}

func TestScoreSharpBeatsFlat(t *testing.T) {
	var s LaplacianScorer

	sharp, err := s.Score(checkerboardPNG(t, 64, 32, 4))
	require.NoError(t, err)
	flat, err := s.Score(uniformPNG(t, 64, 32, 128))
	require.NoError(t, err)

	assert.Greater(t, sharp, flat)
	assert.Greater(t, sharp, 0.0)
}

func TestScoreIsDeterministic(t *testing.T) {
	var s LaplacianScorer
	crop := checkerboardPNG(t, 40, 20, 2)

	first, err := s.Score(crop)
	require.NoError(t, err)
	second, err := s.Score(crop)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestScoreRejectsUndecodableCrop(t *testing.T) {
	var s LaplacianScorer
	_, err := s.Score([]byte("not an image"))
	assert.Error(t, err)
}
