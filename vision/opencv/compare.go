package opencv

import (
	"runtime"
	"unsafe"

	"github.com/nvr-ai/facematch/images"
	"github.com/nvr-ai/facematch/vision"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// HistogramComparator scores float images with OpenCV's CompareHist using the
// correlation method, treating each CV_32F matrix as the histogram itself.
type HistogramComparator struct{}

// CompareHistograms returns the HistCmpCorrel score of a and b.
func (HistogramComparator) CompareHistograms(a, b *images.FloatImage) (float64, error) {
	if err := vision.CheckComparable(a, b); err != nil {
		return 0, err
	}

	ma, err := floatMat(a)
	if err != nil {
		return 0, err
	}
	defer ma.Close()

	mb, err := floatMat(b)
	if err != nil {
		return 0, err
	}
	defer mb.Close()

	score := gocv.CompareHist(ma, mb, gocv.HistCmpCorrel)
	// The mats may alias the Go sample slices.
	runtime.KeepAlive(a)
	runtime.KeepAlive(b)
	return float64(score), nil
}

// Close is a no-op.
func (HistogramComparator) Close() error { return nil }

// floatMat copies a FloatImage into a continuous CV_32FC<n> matrix.
func floatMat(f *images.FloatImage) (gocv.Mat, error) {
	var mt gocv.MatType
	switch f.Channels {
	case 1:
		mt = gocv.MatTypeCV32FC1
	case 3:
		mt = gocv.MatTypeCV32FC3
	case 4:
		mt = gocv.MatTypeCV32FC4
	default:
		return gocv.NewMat(), errors.Errorf("unsupported channel count %d", f.Channels)
	}

	raw := unsafe.Slice((*byte)(unsafe.Pointer(&f.Pix[0])), len(f.Pix)*4)
	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, mt, raw)
	if err != nil {
		return gocv.NewMat(), errors.Wrap(err, "build float mat")
	}
	return mat, nil
}
