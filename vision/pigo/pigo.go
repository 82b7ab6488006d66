// Package pigo - Pure Go face detection with the pico cascade (esimov/pigo).
package pigo

import (
	"context"
	"image"
	"sort"

	pico "github.com/esimov/pigo/core"
	"github.com/pkg/errors"
)

// Config holds the pico cascade parameters.
type Config struct {
	// MinSize is the smallest face edge in pixels.
	MinSize int
	// MaxSize is the largest face edge in pixels.
	MaxSize int
	// ShiftFactor is the sliding window step relative to the window size.
	ShiftFactor float64
	// ScaleFactor is the pyramid step between window sizes.
	ScaleFactor float64
	// IoUThreshold merges overlapping raw detections.
	IoUThreshold float64
	// MinQuality drops detections below this score.
	MinQuality float32
}

// DefaultConfig returns the parameters commonly used with the facefinder cascade.
func DefaultConfig() Config {
	return Config{
		MinSize:      20,
		MaxSize:      1000,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		MinQuality:   5.0,
	}
}

// Detector runs the unpacked pico cascade.
type Detector struct {
	classifier *pico.Pigo
	config     Config
}

// New unpacks a binary "facefinder" cascade.
func New(cascade []byte, config Config) (*Detector, error) {
	classifier, err := pico.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, errors.Wrap(err, "unpack pigo cascade")
	}
	return &Detector{classifier: classifier, config: config}, nil
}

// DetectFaces returns the clustered detections above MinQuality, strongest first.
func (d *Detector) DetectFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src := pico.ImgToNRGBA(img)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()

	params := pico.CascadeParams{
		MinSize:     d.config.MinSize,
		MaxSize:     d.config.MaxSize,
		ShiftFactor: d.config.ShiftFactor,
		ScaleFactor: d.config.ScaleFactor,
		ImageParams: pico.ImageParams{
			Pixels: pico.RgbToGrayscale(src),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := d.classifier.RunCascade(params, 0.0)
	dets = d.classifier.ClusterDetections(dets, d.config.IoUThreshold)
	sort.SliceStable(dets, func(i, j int) bool { return dets[i].Q > dets[j].Q })

	bounds := image.Rect(0, 0, cols, rows)
	rects := make([]image.Rectangle, 0, len(dets))
	for _, det := range dets {
		if det.Q < d.config.MinQuality {
			continue
		}
		half := det.Scale / 2
		r := image.Rect(det.Col-half, det.Row-half, det.Col+half, det.Row+half).Intersect(bounds)
		if !r.Empty() {
			rects = append(rects, r)
		}
	}
	return rects, nil
}

// Close is a no-op; the cascade is plain Go memory.
func (d *Detector) Close() error { return nil }
