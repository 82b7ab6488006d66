package vision

import (
	"context"
	"image"
)

// NopDetector never finds a face. It stands in for a detector whose model
// could not be loaded, which keeps the pipeline in pass-through mode.
type NopDetector struct {
	// Reason records why the real detector is unavailable.
	Reason error
}

// DetectFaces always returns no regions.
func (NopDetector) DetectFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	return nil, ctx.Err()
}

// Close is a no-op.
func (NopDetector) Close() error { return nil }
