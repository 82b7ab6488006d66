package images

import (
	"image"
	"image/draw"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// ErrEmptyRegion is returned when a crop region does not overlap the source image.
var ErrEmptyRegion = errors.New("region does not overlap image")

// FloatImage is an interleaved float32 copy of an image's samples. It is the
// common representation both sides of a histogram comparison are converted to.
type FloatImage struct {
	Width    int
	Height   int
	Channels int
	// Pix holds Width*Height*Channels samples in row-major, channel-interleaved order.
	Pix []float32
}

// Len returns the number of samples.
func (f *FloatImage) Len() int {
	return len(f.Pix)
}

// Float64 returns the samples widened to float64.
func (f *FloatImage) Float64() []float64 {
	out := make([]float64, len(f.Pix))
	for i, v := range f.Pix {
		out[i] = float64(v)
	}
	return out
}

// ToRGBA returns img as an *image.RGBA whose bounds start at the origin. An
// RGBA already anchored at the origin is returned as is.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// Clone returns a deep copy of src.
func Clone(src *image.RGBA) *image.RGBA {
	dst := &image.RGBA{
		Pix:    make([]uint8, len(src.Pix)),
		Stride: src.Stride,
		Rect:   src.Rect,
	}
	copy(dst.Pix, src.Pix)
	return dst
}

// CopyInto copies src into dst, reallocating dst when the dimensions differ.
//
// Arguments:
//   - dst: The destination buffer, may be nil.
//   - src: The source image.
//
// Returns:
//   - *image.RGBA: dst or its replacement.
func CopyInto(dst, src *image.RGBA) *image.RGBA {
	if dst == nil || dst.Rect != src.Rect || len(dst.Pix) != len(src.Pix) {
		return Clone(src)
	}
	copy(dst.Pix, src.Pix)
	dst.Stride = src.Stride
	return dst
}

// Crop copies the part of src inside region. The region is clipped to the
// image bounds first.
//
// Returns:
//   - *image.RGBA: The cropped pixels anchored at the origin.
//   - error: ErrEmptyRegion if nothing of region lies inside src.
func Crop(src *image.RGBA, region image.Rectangle) (*image.RGBA, error) {
	clipped := region.Canon().Intersect(src.Bounds())
	if clipped.Empty() {
		return nil, errors.Wrapf(ErrEmptyRegion, "crop %v from %v", region, src.Bounds())
	}
	return ToRGBA(src.SubImage(clipped)), nil
}

// ResizeTo resamples img to exactly width x height using bilinear interpolation.
func ResizeTo(img image.Image, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid dimensions: width=%d, height=%d", width, height)
	}
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return ToRGBA(img), nil
	}
	return ToRGBA(resize.Resize(uint(width), uint(height), img, resize.Bilinear)), nil
}

// Grayscale converts img to an 8-bit luma image using the standard color model.
func Grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// ToFloat converts the 8-bit RGBA samples of img to a four channel FloatImage.
// Values keep their 0-255 range; only the sample type changes.
func ToFloat(img *image.RGBA) *FloatImage {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	out := &FloatImage{
		Width:    w,
		Height:   h,
		Channels: 4,
		Pix:      make([]float32, w*h*4),
	}

	i := 0
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for _, v := range row {
			out.Pix[i] = float32(v)
			i++
		}
	}
	return out
}
