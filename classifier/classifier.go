// Package classifier - The per-frame decision pipeline: detect faces, annotate
// them, and compare the first one against the reference face.
//
// Pipeline Overview:
//
//	┌──────────────┐
//	│ Input Frame  │
//	└──────┬───────┘
//	┌──────────────────────────┐
//	│ DetectFaces (backend)    │──── error ──▶ pass frame through
//	└──────┬───────────────────┘
//	┌──────────────────────────────────────────────┐
//	│ Reference loaded and ≥1 face?                │
//	│   crop first face → resize to reference size │
//	│   → float → CompareHistograms                │──── error ──▶ pass frame through
//	└──────┬───────────────────────────────────────┘
//	┌──────────────────────────┐
//	│ Draw every face outline  │
//	└──────┬───────────────────┘
//	┌──────────────────────────┐
//	│ Notify decision, return  │
//	└──────────────────────────┘
package classifier

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/nvr-ai/facematch/images"
	"github.com/nvr-ai/facematch/notify"
	"github.com/nvr-ai/facematch/reference"
	"github.com/nvr-ai/facematch/vision"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// MatchThreshold is the correlation a face must exceed to match the reference.
const MatchThreshold = 0.8

// FaceRectThickness is the outline width in pixels.
const FaceRectThickness = 3.0

// FaceRectColor is the outline color.
var FaceRectColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// Sentinel errors wrapped into Result.Err.
var (
	ErrDetect  = errors.New("face detection failed")
	ErrMatch   = errors.New("face matching failed")
	ErrNoFrame = errors.New("no frame to process")
)

// ReferenceSource provides the reference face once it has been loaded.
type ReferenceSource interface {
	Get() (*reference.Face, bool)
}

// Timer measures named operations. The profiler satisfies it.
type Timer interface {
	StartOperation(name string) func()
}

type nopTimer struct{}

func (nopTimer) StartOperation(string) func() { return func() {} }

type nopNotifier struct{}

func (nopNotifier) Notify(notify.Event) {}

// Decision is the outcome of comparing the first face with the reference.
type Decision struct {
	Matched bool
	Score   float64
}

// Result is the outcome of processing one frame.
type Result struct {
	// Frame is the frame to display: annotated on success, the input on failure.
	Frame *images.Frame
	// Regions are the detected faces in detector order.
	Regions []image.Rectangle
	// Decision is set only when a reference is loaded and a face was found.
	Decision *Decision
	// Err reports a per-frame failure. The frame was passed through unmodified.
	Err error
}

// Classifier runs the frame pipeline. It is meant to be driven by a single
// goroutine; frames are processed one at a time.
type Classifier struct {
	backend  vision.Backend
	refs     ReferenceSource
	notifier notify.Notifier
	timer    Timer
	logger   zerolog.Logger

	// out is the per-session annotation buffer.
	out *image.RGBA
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithNotifier sets where decisions are announced.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Classifier) { c.notifier = n }
}

// WithTimer sets the operation timer.
func WithTimer(t Timer) Option {
	return func(c *Classifier) { c.timer = t }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// New creates a classifier.
//
// Arguments:
//   - backend: Face detection and histogram comparison.
//   - refs: The reference face store, read on every frame.
//   - opts: Optional notifier, timer and logger.
//
// Returns:
//   - *Classifier: The classifier, ready for Start.
func New(backend vision.Backend, refs ReferenceSource, opts ...Option) *Classifier {
	c := &Classifier{
		backend:  backend,
		refs:     refs,
		notifier: nopNotifier{},
		timer:    nopTimer{},
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start allocates the per-session buffers for frames of the given size.
func (c *Classifier) Start(width, height int) {
	c.out = image.NewRGBA(image.Rect(0, 0, width, height))
}

// Stop releases the per-session buffers.
func (c *Classifier) Stop() {
	c.out = nil
}

// Process classifies one frame. The returned frame's color buffer is owned by
// the classifier and is reused by the next call; copy it to keep it.
func (c *Classifier) Process(ctx context.Context, frame *images.Frame) (result Result) {
	if frame == nil || frame.Color == nil {
		return Result{Frame: frame, Err: ErrNoFrame}
	}
	defer c.timer.StartOperation("frame")()
	defer func() {
		if r := recover(); r != nil {
			result = Result{Frame: frame, Err: errors.Errorf("frame %d: panic: %v", frame.ID, r)}
		}
	}()

	stopDetect := c.timer.StartOperation("detect")
	regions, err := c.backend.DetectFaces(ctx, frame.Color)
	stopDetect()
	if err != nil {
		return Result{Frame: frame, Err: errors.Wrapf(ErrDetect, "frame %d: %v", frame.ID, err)}
	}
	if len(regions) == 0 {
		return Result{Frame: frame}
	}

	var decision *Decision
	if ref, ok := c.refs.Get(); ok {
		stopMatch := c.timer.StartOperation("match")
		d, err := Match(c.backend, frame.Color, regions[0], ref)
		stopMatch()
		if err != nil {
			return Result{Frame: frame, Regions: regions, Err: errors.Wrapf(ErrMatch, "frame %d: %v", frame.ID, err)}
		}
		decision = &d
	}

	c.out = images.CopyInto(c.out, frame.Color)
	images.DrawRectangles(c.out, regions, FaceRectColor, FaceRectThickness)

	if decision != nil {
		c.notifier.Notify(notify.NewEvent(decision.Matched, decision.Score, frame.ID))
		c.logger.Debug().
			Uint64("frame", frame.ID).
			Int("faces", len(regions)).
			Bool("matched", decision.Matched).
			Float64("score", decision.Score).
			Msg("face compared")
	}

	return Result{Frame: frame.WithColor(c.out), Regions: regions, Decision: decision}
}

// Match compares the face inside region of src against the reference.
//
// Arguments:
//   - cmp: The histogram comparator.
//   - src: The unannotated color buffer.
//   - region: The face to compare.
//   - ref: The reference face.
//
// Returns:
//   - Decision: Matched when the score exceeds MatchThreshold.
//   - error: An error if cropping, resizing or comparing fails.
func Match(cmp vision.Comparator, src *image.RGBA, region image.Rectangle, ref *reference.Face) (Decision, error) {
	crop, err := images.Crop(src, region)
	if err != nil {
		return Decision{}, err
	}

	size := ref.Size()
	resized, err := images.ResizeTo(crop, size.X, size.Y)
	if err != nil {
		return Decision{}, errors.Wrap(err, "resize face")
	}

	score, err := cmp.CompareHistograms(ref.Float, images.ToFloat(resized))
	if err != nil {
		return Decision{}, errors.Wrap(err, "compare histograms")
	}
	return Decision{Matched: IsMatch(score), Score: score}, nil
}

// IsMatch applies the fixed threshold.
func IsMatch(score float64) bool {
	return score > MatchThreshold
}

// String formats the decision for logs and CLI output.
func (d Decision) String() string {
	if d.Matched {
		return fmt.Sprintf("%s (score %.4f)", notify.MessageMatch, d.Score)
	}
	return fmt.Sprintf("%s (score %.4f)", notify.MessageNoMatch, d.Score)
}
