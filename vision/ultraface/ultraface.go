// Package ultraface - Face detection with the UltraFace ONNX model on onnxruntime.
package ultraface

import (
	"context"
	"image"
	"os"
	"sync"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// Detector owns an onnxruntime session with preallocated tensors.
type Detector struct {
	config  Config
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	scores  *ort.Tensor[float32]
	boxes   *ort.Tensor[float32]
	mu      sync.Mutex
}

// New initializes the onnxruntime environment (once per process) and loads the model.
//
// Arguments:
//   - config: The detector configuration.
//
// Returns:
//   - *Detector: The ready detector.
//   - error: An error if the runtime library or the model cannot be loaded.
func New(config Config) (*Detector, error) {
	if config.InputWidth <= 0 || config.InputHeight <= 0 {
		def := DefaultConfig()
		config.InputWidth, config.InputHeight = def.InputWidth, def.InputHeight
	}
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, errors.Wrap(err, "ultraface model")
	}

	if !ort.IsInitialized() {
		if config.LibraryPath != "" {
			if _, err := os.Stat(config.LibraryPath); err != nil {
				return nil, errors.Wrap(err, "ONNX Runtime library not found")
			}
			ort.SetSharedLibraryPath(config.LibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Wrap(err, "error initializing ORT environment")
		}
	}

	anchors := int64(AnchorCount(config.InputWidth, config.InputHeight))
	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(config.InputHeight), int64(config.InputWidth)))
	if err != nil {
		return nil, errors.Wrap(err, "error creating input tensor")
	}
	scores, err := ort.NewEmptyTensor[float32](ort.NewShape(1, anchors, 2))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrap(err, "error creating scores tensor")
	}
	boxes, err := ort.NewEmptyTensor[float32](ort.NewShape(1, anchors, 4))
	if err != nil {
		input.Destroy()
		scores.Destroy()
		return nil, errors.Wrap(err, "error creating boxes tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		scores.Destroy()
		boxes.Destroy()
		return nil, errors.Wrap(err, "error creating ORT session options")
	}
	defer options.Destroy()
	if config.IntraOpThreads > 0 {
		options.SetIntraOpNumThreads(config.IntraOpThreads)
	}

	session, err := ort.NewAdvancedSession(
		config.ModelPath,
		[]string{"input"},
		[]string{"scores", "boxes"},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{scores, boxes},
		options,
	)
	if err != nil {
		input.Destroy()
		scores.Destroy()
		boxes.Destroy()
		return nil, errors.Wrap(err, "error creating ORT session")
	}

	return &Detector{
		config:  config,
		session: session,
		input:   input,
		scores:  scores,
		boxes:   boxes,
	}, nil
}

// DetectFaces runs the model on img and returns the suppressed face boxes,
// highest score first.
func (d *Detector) DetectFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil {
		return nil, errors.New("model not loaded")
	}

	prepareInput(img, d.config.InputWidth, d.config.InputHeight, d.input.GetData())
	if err := d.session.Run(); err != nil {
		return nil, errors.Wrap(err, "run ultraface")
	}

	candidates := Decode(d.scores.GetData(), d.boxes.GetData(), d.config.ConfidenceThreshold, img.Bounds().Size())
	candidates = SuppressOverlaps(candidates, d.config.NMSThreshold)

	rects := make([]image.Rectangle, len(candidates))
	for i, c := range candidates {
		rects[i] = c.Box.Rectangle()
	}
	return rects, nil
}

// Close releases the session and tensors.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	if d.session != nil {
		err = d.session.Destroy()
		d.session = nil
	}
	for _, t := range []*ort.Tensor[float32]{d.input, d.scores, d.boxes} {
		if t != nil {
			t.Destroy()
		}
	}
	d.input, d.scores, d.boxes = nil, nil, nil
	return err
}

// prepareInput resizes img to the model input and writes it as CHW RGB
// normalized to (v - 127) / 128.
func prepareInput(img image.Image, width, height int, dst []float32) {
	resized := resize.Resize(uint(width), uint(height), img, resize.Bilinear)
	channelSize := width * height
	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]

	b := resized.Bounds()
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := resized.At(x, y).RGBA()
			red[i] = (float32(r>>8) - 127) / 128
			green[i] = (float32(g>>8) - 127) / 128
			blue[i] = (float32(bl>>8) - 127) / 128
			i++
		}
	}
}
