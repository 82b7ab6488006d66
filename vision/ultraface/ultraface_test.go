package ultraface

import (
	"image"
	"image/color"
	"testing"

	"github.com/nvr-ai/facematch/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnchorCount(t *testing.T) {
	assert.Equal(t, 4420, AnchorCount(320, 240))
	assert.Equal(t, 17640, AnchorCount(640, 480))
}

func TestDecode(t *testing.T) {
	scores := []float32{
		0.9, 0.1, // background
		0.2, 0.8, // face
		0.05, 0.95, // face, degenerate box
		0.1, 0.9, // face, partly outside
	}
	boxes := []float32{
		0.1, 0.1, 0.2, 0.2,
		0.25, 0.5, 0.5, 1.0,
		0.5, 0.5, 0.5, 0.5,
		-0.1, 0.9, 0.2, 1.3,
	}

	got := Decode(scores, boxes, 0.7, image.Pt(200, 100))
	require.Len(t, got, 2)

	assert.InDelta(t, 0.9, got[0].Score, 1e-6, "sorted by score")
	assert.Equal(t, images.Rect{X1: 0, Y1: 90, X2: 40, Y2: 100}, got[0].Box, "clamped to the image")

	assert.InDelta(t, 0.8, got[1].Score, 1e-6)
	assert.Equal(t, images.Rect{X1: 50, Y1: 50, X2: 100, Y2: 100}, got[1].Box)
}

func TestDecodeTruncatedOutputs(t *testing.T) {
	got := Decode([]float32{0, 1, 0, 1}, []float32{0, 0, 0.5, 0.5}, 0.5, image.Pt(10, 10))
	assert.Len(t, got, 1)
}

func TestSuppressOverlaps(t *testing.T) {
	candidates := []Candidate{
		{Box: images.Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}, Score: 0.95},
		{Box: images.Rect{X1: 5, Y1: 5, X2: 105, Y2: 105}, Score: 0.9},
		{Box: images.Rect{X1: 200, Y1: 200, X2: 260, Y2: 260}, Score: 0.85},
		{Box: images.Rect{X1: 50, Y1: 50, X2: 150, Y2: 150}, Score: 0.8},
	}

	kept := SuppressOverlaps(candidates, 0.3)
	require.Len(t, kept, 3)
	assert.Equal(t, float32(0.95), kept[0].Score)
	assert.Equal(t, float32(0.85), kept[1].Score)
	assert.Equal(t, float32(0.8), kept[2].Score, "IoU 1/7 with the anchor is below the threshold")

	assert.Nil(t, SuppressOverlaps(nil, 0.3))
}

func TestPrepareInput(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 255, G: 127, B: 0, A: 255})
		}
	}

	dst := make([]float32, 3*4*3)
	prepareInput(img, 4, 3, dst)

	for i := 0; i < 12; i++ {
		assert.InDelta(t, 1.0, dst[i], 1e-6, "red plane")
		assert.InDelta(t, 0.0, dst[12+i], 1e-6, "green plane")
		assert.InDelta(t, -127.0/128.0, dst[24+i], 1e-6, "blue plane")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 320, cfg.InputWidth)
	assert.Equal(t, 240, cfg.InputHeight)
	assert.Equal(t, float32(0.7), cfg.ConfidenceThreshold)
}
