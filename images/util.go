package images

import (
	"crypto/md5"
	"fmt"
	"image"
)

// ComputeChecksum generates a deterministic checksum of an RGBA buffer's
// visible pixels, used to verify a frame passed through unmodified.
//
// Arguments:
// - img: The image to compute the checksum for.
//
// Returns:
// - A hex-encoded MD5 checksum string, "empty" for a nil or empty image.
//
// Example:
//
// ```go
//
//	before := ComputeChecksum(frame.Color)
//	result := classifier.Process(ctx, frame)
//	fmt.Println(before == ComputeChecksum(result.Frame.Color))
//
// ```
func ComputeChecksum(img *image.RGBA) string {
	if img == nil || img.Rect.Empty() {
		return "empty"
	}

	hash := md5.New()
	w := img.Rect.Dx() * 4
	for y := 0; y < img.Rect.Dy(); y++ {
		off := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		hash.Write(img.Pix[off : off+w])
	}
	return fmt.Sprintf("%x", hash.Sum(nil))
}
