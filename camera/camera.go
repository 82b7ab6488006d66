// Package camera - Capture sources and the active camera selection.
package camera

import (
	"context"
	"image"
	"io"
	"sync/atomic"

	"github.com/nvr-ai/facematch/images"
	"github.com/pkg/errors"
)

// ErrClosed is returned when reading from a closed source.
var ErrClosed = errors.New("capture source closed")

// EOF is returned by finite sources (files, directories) after the last frame.
var EOF = io.EOF

// Source supplies frames one at a time.
type Source interface {
	// Read blocks until the next frame is available.
	Read(ctx context.Context) (*images.Frame, error)
	// Size returns the frame dimensions, known once the source is open.
	Size() image.Point
	Close() error
}

// Opener opens the source for a camera index.
type Opener func(index int) (Source, error)

// Selector holds the active camera index, which alternates between the two
// fixed indices 0 and 1.
type Selector struct {
	index atomic.Int32
}

// NewSelector starts at index, which must be 0 or 1.
func NewSelector(index int) (*Selector, error) {
	if index != 0 && index != 1 {
		return nil, errors.Errorf("camera index must be 0 or 1, got %d", index)
	}
	s := &Selector{}
	s.index.Store(int32(index))
	return s, nil
}

// Index returns the active camera.
func (s *Selector) Index() int {
	return int(s.index.Load())
}

// Toggle switches to the other camera and returns the new index.
func (s *Selector) Toggle() int {
	for {
		old := s.index.Load()
		if s.index.CompareAndSwap(old, old^1) {
			return int(old ^ 1)
		}
	}
}

// CompareAndSwap sets the index to next only if it is still old.
func (s *Selector) CompareAndSwap(old, next int) bool {
	return s.index.CompareAndSwap(int32(old), int32(next))
}

// Devices maps camera indices to video files or stream URLs. An empty list
// means the hardware cameras are opened by index.
type Devices []string

// Resolve returns the device configured for index.
//
// Arguments:
//   - index: The camera index, 0 or 1.
//
// Returns:
//   - string: The file or URL to open.
//   - bool: False when no devices are configured and the hardware index applies.
//   - error: An error when devices are configured but none is set for index.
func (d Devices) Resolve(index int) (string, bool, error) {
	if len(d) == 0 {
		return "", false, nil
	}
	if index < 0 || index >= len(d) || d[index] == "" {
		return "", false, errors.Errorf("no device configured for camera %d", index)
	}
	return d[index], true, nil
}
