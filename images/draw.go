package images

import (
	"image"
	"image/color"

	"github.com/fogleman/gg"
)

// DrawRectangles strokes the outline of each rectangle onto dst in place.
//
// Arguments:
//   - dst: The image to annotate.
//   - rects: The rectangles to outline, in image coordinates.
//   - c: Stroke color.
//   - thickness: Stroke width in pixels, centered on the rectangle edge.
func DrawRectangles(dst *image.RGBA, rects []image.Rectangle, c color.RGBA, thickness float64) {
	if len(rects) == 0 {
		return
	}

	dc := gg.NewContextForRGBA(dst)
	dc.SetRGBA255(int(c.R), int(c.G), int(c.B), int(c.A))
	dc.SetLineWidth(thickness)
	for _, r := range rects {
		r = r.Canon()
		dc.DrawRectangle(
			float64(r.Min.X-dst.Rect.Min.X),
			float64(r.Min.Y-dst.Rect.Min.Y),
			float64(r.Dx()),
			float64(r.Dy()),
		)
		dc.Stroke()
	}
}
