package vision

import (
	"math"

	"github.com/nvr-ai/facematch/images"
	"gonum.org/v1/gonum/stat"
)

// Correlation compares two float images by the Pearson correlation of all
// their samples. This is the same quantity OpenCV computes for
// HISTCMP_CORREL when handed the raw float matrices.
type Correlation struct{}

// CompareHistograms returns the correlation of a and b.
//
// Arguments:
//   - a: The first image.
//   - b: The second image, same geometry as a.
//
// Returns:
//   - float64: A score in [-1, 1]. When either image is constant the score
//     is 1, as in OpenCV.
//   - error: ErrSizeMismatch if the images cannot be compared.
func (Correlation) CompareHistograms(a, b *images.FloatImage) (float64, error) {
	if err := CheckComparable(a, b); err != nil {
		return 0, err
	}

	x, y := a.Float64(), b.Float64()
	score := stat.Correlation(x, y, nil)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		// Zero variance on at least one side.
		return 1, nil
	}
	return score, nil
}

// Close is a no-op.
func (Correlation) Close() error { return nil }
