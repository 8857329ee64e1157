// Package quality scores image crops for sharpness. The score is the
// variance of the Laplacian response over the grayscale crop: sharp edges
// produce a wide second-derivative distribution, defocused or occluded
// crops a narrow one.
package quality

import (
	"errors"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"
)

// LaplacianScorer implements track.Scorer. Scoring is deterministic and
// stateless; the zero value is ready to use.
type LaplacianScorer struct{}

// Score decodes the crop and returns the Laplacian variance. A degenerate
// crop (near-uniform, fully occluded) scores near zero rather than failing;
// only an undecodable crop is an error.
func (LaplacianScorer) Score(crop []byte) (float64, error) {
	img, err := gocv.IMDecode(crop, gocv.IMReadGrayscale)
	if err != nil {
		return 0, err
	}
	defer img.Close()
	if img.Empty() {
		return 0, errors.New("empty image")
	}

	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(img, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	vals, err := lap.DataPtrFloat64()
	if err != nil {
		return 0, err
	}
	return stat.PopVariance(vals, nil), nil
}
