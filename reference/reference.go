// Package reference - The single stored face every frame is compared against.
package reference

import (
	"image"
	"io"
	"sync/atomic"

	"github.com/nvr-ai/facematch/images"
	"github.com/pkg/errors"
)

// ErrAlreadyLoaded is returned when a second reference is stored.
var ErrAlreadyLoaded = errors.New("reference face already loaded")

// Face is a decoded reference image and its float representation.
type Face struct {
	Name   string
	Format images.ImageFormat
	Image  *image.RGBA
	Float  *images.FloatImage
}

// Size returns the reference dimensions every compared crop is resized to.
func (f *Face) Size() image.Point {
	return f.Image.Rect.Size()
}

// New wraps an already decoded image.
func New(name string, img image.Image) (*Face, error) {
	rgba := images.ToRGBA(img)
	if rgba.Rect.Empty() {
		return nil, errors.Errorf("reference %q is empty", name)
	}
	return &Face{
		Name:  name,
		Image: rgba,
		Float: images.ToFloat(rgba),
	}, nil
}

// Decode reads an encoded reference image.
//
// Arguments:
//   - r: The encoded PNG, JPEG, BMP or WebP image.
//   - name: Name used in logs and errors.
//
// Returns:
//   - *Face: The decoded reference.
//   - error: An error if decoding fails.
func Decode(r io.Reader, name string) (*Face, error) {
	img, format, err := images.Decode(r)
	if err != nil {
		return nil, errors.Wrapf(err, "decode reference %q", name)
	}
	face, err := New(name, img)
	if err != nil {
		return nil, err
	}
	face.Format = format
	return face, nil
}

// Store holds at most one reference face. It starts empty, accepts exactly
// one Set and never changes afterwards. Get is safe from any goroutine.
type Store struct {
	face atomic.Pointer[Face]
}

// Get returns the reference if one has been loaded.
func (s *Store) Get() (*Face, bool) {
	f := s.face.Load()
	return f, f != nil
}

// Set stores the reference. Only the first call succeeds.
func (s *Store) Set(f *Face) error {
	if f == nil {
		return errors.New("nil reference face")
	}
	if !s.face.CompareAndSwap(nil, f) {
		return ErrAlreadyLoaded
	}
	return nil
}

// Loaded reports whether a reference is present.
func (s *Store) Loaded() bool {
	return s.face.Load() != nil
}
