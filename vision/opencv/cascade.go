// Package opencv - Face detection and histogram comparison using OpenCV (via gocv).
package opencv

import (
	"context"
	"image"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// CascadeConfig configures the cascade classifier.
type CascadeConfig struct {
	// ModelPath is the LBP or Haar cascade XML file.
	ModelPath string
	// MinSize is the smallest face edge in pixels; 0 leaves OpenCV's default.
	MinSize int
	// MaxSize is the largest face edge in pixels; 0 leaves it unbounded.
	MaxSize int
	// ScaleFactor is the image pyramid step, 1.1 when unset.
	ScaleFactor float64
	// MinNeighbors is the number of overlapping hits a face needs, 3 when unset.
	MinNeighbors int
}

// CascadeDetector detects faces with an OpenCV cascade classifier, the
// LBP frontal-face model by default.
type CascadeDetector struct {
	classifier gocv.CascadeClassifier
	config     CascadeConfig
	mu         sync.Mutex
}

// NewCascadeDetector loads the cascade model.
//
// Arguments:
//   - config: The cascade configuration.
//
// Returns:
//   - *CascadeDetector: The loaded detector.
//   - error: An error if the model cannot be read.
func NewCascadeDetector(config CascadeConfig) (*CascadeDetector, error) {
	if config.ScaleFactor <= 1 {
		config.ScaleFactor = 1.1
	}
	if config.MinNeighbors <= 0 {
		config.MinNeighbors = 3
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(config.ModelPath) {
		classifier.Close()
		return nil, errors.Errorf("error reading cascade file: %s", config.ModelPath)
	}

	return &CascadeDetector{classifier: classifier, config: config}, nil
}

// DetectFaces runs multi-scale detection on img.
func (d *CascadeDetector) DetectFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, errors.Wrap(err, "convert frame to mat")
	}
	defer mat.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.config.MinSize == 0 && d.config.MaxSize == 0 {
		return d.classifier.DetectMultiScale(mat), nil
	}

	maxSize := image.Pt(d.config.MaxSize, d.config.MaxSize)
	return d.classifier.DetectMultiScaleWithParams(
		mat,
		d.config.ScaleFactor,
		d.config.MinNeighbors,
		0,
		image.Pt(d.config.MinSize, d.config.MinSize),
		maxSize,
	), nil
}

// Close releases the native classifier.
func (d *CascadeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.classifier.Close()
}
