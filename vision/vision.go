// Package vision - Face detection and histogram comparison capabilities.
//
// The frame pipeline depends only on the Backend interface defined here, so any
// vision library can be substituted. Concrete backends live in subpackages:
//
//	vision/opencv     gocv cascade classifier and CompareHist
//	vision/pigo       pure Go pico cascade detector
//	vision/ultraface  UltraFace ONNX model on onnxruntime
package vision

import (
	"context"
	"image"

	"github.com/nvr-ai/facematch/images"
	"github.com/pkg/errors"
)

// ErrSizeMismatch is returned when two images compared by histogram do not
// have the same geometry.
var ErrSizeMismatch = errors.New("images differ in size or channel count")

// Detector locates faces in an image.
type Detector interface {
	// DetectFaces returns zero or more face regions in unspecified order.
	DetectFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error)
	Close() error
}

// Comparator scores the similarity of two equally sized float images.
type Comparator interface {
	// CompareHistograms returns a correlation score in [-1, 1].
	CompareHistograms(a, b *images.FloatImage) (float64, error)
	Close() error
}

// Backend is the full capability set the classifier consumes.
type Backend interface {
	Detector
	Comparator
	// Name identifies the backend in logs.
	Name() string
}

type composite struct {
	name       string
	detector   Detector
	comparator Comparator
}

// Compose joins a detector and a comparator into a Backend.
func Compose(name string, d Detector, c Comparator) Backend {
	return &composite{name: name, detector: d, comparator: c}
}

func (c *composite) Name() string { return c.name }

func (c *composite) DetectFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	return c.detector.DetectFaces(ctx, img)
}

func (c *composite) CompareHistograms(a, b *images.FloatImage) (float64, error) {
	return c.comparator.CompareHistograms(a, b)
}

// Close closes both halves and returns the first error.
func (c *composite) Close() error {
	derr := c.detector.Close()
	cerr := c.comparator.Close()
	if derr != nil {
		return derr
	}
	return cerr
}

// CheckComparable validates that a and b can be compared sample by sample.
func CheckComparable(a, b *images.FloatImage) error {
	if a == nil || b == nil {
		return errors.Wrap(ErrSizeMismatch, "nil image")
	}
	if a.Width != b.Width || a.Height != b.Height || a.Channels != b.Channels || a.Len() != b.Len() {
		return errors.Wrapf(ErrSizeMismatch, "%dx%dx%d vs %dx%dx%d",
			a.Width, a.Height, a.Channels, b.Width, b.Height, b.Channels)
	}
	if a.Len() == 0 {
		return errors.Wrap(ErrSizeMismatch, "empty image")
	}
	return nil
}
