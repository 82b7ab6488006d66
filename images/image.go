// Package images - Image definitions, decoding and pixel conversions used by the frame pipeline.
package images

import (
	"bufio"
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
	"golang.org/x/image/bmp"
)

// ImageFormat represents supported image formats.
type ImageFormat string

// ImageFormat constants
const (
	// FormatJPEG is the JPEG image format.
	FormatJPEG ImageFormat = "jpeg"
	// FormatWebP is the WebP image format.
	FormatWebP ImageFormat = "webp"
	// FormatPNG is the PNG image format.
	FormatPNG ImageFormat = "png"
	// FormatBMP is the BMP image format.
	FormatBMP ImageFormat = "bmp"
)

// ErrUnsupportedFormat is returned when the encoded bytes match no known signature.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Image represents an encoded image with a format, data, width, and height.
type Image struct {
	// The format of the image.
	Format ImageFormat `json:"format" yaml:"format"`
	// The data of the image.
	Data []byte `json:"data" yaml:"data"`
	// The width of the image.
	Width int `json:"width" yaml:"width"`
	// The height of the image.
	Height int `json:"height" yaml:"height"`
}

// DetectFormat sniffs the leading bytes of an encoded image.
//
// Arguments:
//   - header: At least the first 12 bytes of the encoded image.
//
// Returns:
//   - ImageFormat: The detected format.
//   - error: ErrUnsupportedFormat when no signature matches.
func DetectFormat(header []byte) (ImageFormat, error) {
	switch {
	case bytes.HasPrefix(header, []byte{0xFF, 0xD8, 0xFF}):
		return FormatJPEG, nil
	case bytes.HasPrefix(header, []byte("\x89PNG\r\n\x1a\n")):
		return FormatPNG, nil
	case bytes.HasPrefix(header, []byte("BM")):
		return FormatBMP, nil
	case len(header) >= 12 && bytes.Equal(header[0:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("WEBP")):
		return FormatWebP, nil
	}
	return "", ErrUnsupportedFormat
}

// Decode reads an encoded PNG, JPEG, BMP or WebP image.
//
// Arguments:
//   - r: Reader positioned at the start of the encoded image.
//
// Returns:
//   - image.Image: The decoded image.
//   - ImageFormat: The format that was decoded.
//   - error: An error if the format is unknown or decoding fails.
func Decode(r io.Reader) (image.Image, ImageFormat, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(12)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, "", errors.Wrap(err, "read image header")
	}

	format, err := DetectFormat(header)
	if err != nil {
		return nil, "", err
	}

	var img image.Image
	switch format {
	case FormatJPEG:
		img, err = jpeg.Decode(br)
	case FormatPNG:
		img, err = png.Decode(br)
	case FormatBMP:
		img, err = bmp.Decode(br)
	case FormatWebP:
		img, err = webp.Decode(br)
	}
	if err != nil {
		return nil, format, errors.Wrapf(err, "decode %s", format)
	}
	return img, format, nil
}

// EncodeJPEG encodes an image as a JPEG with the given quality.
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: quality}); err != nil {
		return errors.Wrap(err, "encode jpeg")
	}
	return nil
}
