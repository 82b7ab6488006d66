// Package opencv - Camera capture and on-screen display through gocv.
package opencv

import (
	"context"
	"image"
	"sync"
	"sync/atomic"

	"github.com/nvr-ai/facematch/camera"
	"github.com/nvr-ai/facematch/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// CaptureConfig selects what to open.
type CaptureConfig struct {
	// Devices are video files or stream URLs for cameras 0 and 1. When empty
	// the camera index passed to the opener is used.
	Devices camera.Devices
	// Resolution is requested from the camera; zero keeps the driver default.
	Resolution images.Resolution
}

// Capture reads frames from a gocv VideoCapture.
type Capture struct {
	cap  *gocv.VideoCapture
	mat  gocv.Mat
	size image.Point
	next atomic.Uint64
	mu   sync.Mutex
}

// Open opens the device or camera index and applies the requested resolution.
//
// Arguments:
//   - index: Camera index, or the position in config.Devices.
//   - config: Capture configuration.
//
// Returns:
//   - *Capture: The open capture.
//   - error: An error if the device cannot be opened.
func Open(index int, config CaptureConfig) (*Capture, error) {
	var device interface{} = index
	path, ok, err := config.Devices.Resolve(index)
	if err != nil {
		return nil, err
	}
	if ok {
		device = path
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, errors.Wrapf(err, "open video capture %v", device)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errors.Errorf("video capture %v did not open", device)
	}

	if px := config.Resolution.Pixels; px.Width > 0 && px.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(px.Width))
		vc.Set(gocv.VideoCaptureFrameHeight, float64(px.Height))
	}

	return &Capture{
		cap: vc,
		mat: gocv.NewMat(),
		size: image.Pt(
			int(vc.Get(gocv.VideoCaptureFrameWidth)),
			int(vc.Get(gocv.VideoCaptureFrameHeight)),
		),
	}, nil
}

// Opener returns a camera.Opener bound to config.
func Opener(config CaptureConfig) camera.Opener {
	return func(index int) (camera.Source, error) {
		return Open(index, config)
	}
}

// Read grabs the next frame. A failed read on a file or stream is reported as
// camera.EOF.
func (c *Capture) Read(ctx context.Context) (*images.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cap == nil {
		return nil, camera.ErrClosed
	}
	if ok := c.cap.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, camera.EOF
	}

	img, err := c.mat.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "convert captured frame")
	}
	frame := images.NewFrame(c.next.Add(1), img)
	c.size = frame.Size()
	return frame, nil
}

// Size returns the negotiated frame size.
func (c *Capture) Size() image.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Close releases the device.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cap == nil {
		return nil
	}
	err := c.cap.Close()
	c.mat.Close()
	c.cap = nil
	return err
}
