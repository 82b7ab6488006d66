package classifier

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/nvr-ai/facematch/images"
	"github.com/nvr-ai/facematch/notify"
	"github.com/nvr-ai/facematch/reference"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockBackend returns fixed faces and a fixed score.
type MockBackend struct {
	faces      []image.Rectangle
	score      float64
	detectErr  error
	compareErr error
	panicOn    bool

	compared int
	lastA    *images.FloatImage
	lastB    *images.FloatImage
}

func (m *MockBackend) Name() string { return "mock" }

func (m *MockBackend) DetectFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	if m.panicOn {
		panic("detector exploded")
	}
	if m.detectErr != nil {
		return nil, m.detectErr
	}
	return m.faces, nil
}

func (m *MockBackend) CompareHistograms(a, b *images.FloatImage) (float64, error) {
	m.compared++
	m.lastA, m.lastB = a, b
	if m.compareErr != nil {
		return 0, m.compareErr
	}
	return m.score, nil
}

func (m *MockBackend) Close() error { return nil }

// MockNotifier records every event.
type MockNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (m *MockNotifier) Notify(e notify.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *MockNotifier) Events() []notify.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.Event(nil), m.events...)
}

// MockTimer counts started operations.
type MockTimer struct {
	started map[string]int
}

func (m *MockTimer) StartOperation(name string) func() {
	if m.started == nil {
		m.started = map[string]int{}
	}
	m.started[name]++
	return func() {}
}

type emptyRefs struct{}

func (emptyRefs) Get() (*reference.Face, bool) { return nil, false }

func testFrame(t *testing.T, w, h int) *images.Frame {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 3), G: uint8(y * 2), B: 40, A: 255})
		}
	}
	return images.NewFrame(1, img)
}

func testStore(t *testing.T, w, h int) *reference.Store {
	t.Helper()
	face, err := reference.New("reference", image.NewRGBA(image.Rect(0, 0, w, h)))
	require.NoError(t, err)
	store := &reference.Store{}
	require.NoError(t, store.Set(face))
	return store
}

func newClassifier(t *testing.T, backend *MockBackend, refs ReferenceSource, n *MockNotifier) *Classifier {
	t.Helper()
	c := New(backend, refs, WithNotifier(n))
	c.Start(64, 48)
	t.Cleanup(c.Stop)
	return c
}

func isGreen(c color.RGBA) bool {
	return c.G > 200 && c.R < 60 && c.B < 60
}

// TestProcessNoFaces verifies an empty detection returns the frame untouched.
func TestProcessNoFaces(t *testing.T) {
	frame := testFrame(t, 64, 48)
	before := images.ComputeChecksum(frame.Color)

	backend := &MockBackend{}
	notifier := &MockNotifier{}
	c := newClassifier(t, backend, testStore(t, 16, 16), notifier)

	result := c.Process(context.Background(), frame)

	require.NoError(t, result.Err)
	assert.Empty(t, result.Regions)
	assert.Nil(t, result.Decision)
	assert.Equal(t, before, images.ComputeChecksum(result.Frame.Color))
	assert.Empty(t, notifier.Events())
	assert.Zero(t, backend.compared)
}

// TestProcessWithoutReference verifies detection-only mode draws every face
// and never compares or notifies.
func TestProcessWithoutReference(t *testing.T) {
	frame := testFrame(t, 64, 48)
	before := images.ComputeChecksum(frame.Color)

	backend := &MockBackend{faces: []image.Rectangle{
		image.Rect(4, 4, 20, 20),
		image.Rect(30, 10, 50, 40),
	}}
	notifier := &MockNotifier{}
	c := newClassifier(t, backend, emptyRefs{}, notifier)

	result := c.Process(context.Background(), frame)

	require.NoError(t, result.Err)
	assert.Len(t, result.Regions, 2)
	assert.Nil(t, result.Decision)
	assert.Zero(t, backend.compared)
	assert.Empty(t, notifier.Events())

	// Both outlines are drawn, the input buffer is not.
	assert.True(t, isGreen(result.Frame.Color.RGBAAt(4, 12)), "left edge of first face")
	assert.True(t, isGreen(result.Frame.Color.RGBAAt(30, 25)), "left edge of second face")
	assert.False(t, isGreen(result.Frame.Color.RGBAAt(12, 12)), "interior stays unpainted")
	assert.Equal(t, before, images.ComputeChecksum(frame.Color))
}

// TestProcessDecision covers the threshold on both sides.
func TestProcessDecision(t *testing.T) {
	tests := []struct {
		name    string
		score   float64
		matched bool
		message string
	}{
		{name: "strong match", score: 0.95, matched: true, message: notify.MessageMatch},
		{name: "exactly threshold", score: 0.8, matched: false, message: notify.MessageNoMatch},
		{name: "weak", score: 0.3, matched: false, message: notify.MessageNoMatch},
		{name: "anti-correlated", score: -0.7, matched: false, message: notify.MessageNoMatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &MockBackend{
				faces: []image.Rectangle{image.Rect(10, 10, 30, 34), image.Rect(40, 5, 60, 25)},
				score: tt.score,
			}
			notifier := &MockNotifier{}
			c := newClassifier(t, backend, testStore(t, 12, 16), notifier)

			result := c.Process(context.Background(), testFrame(t, 64, 48))

			require.NoError(t, result.Err)
			require.NotNil(t, result.Decision)
			assert.Equal(t, tt.matched, result.Decision.Matched)
			assert.InDelta(t, tt.score, result.Decision.Score, 1e-9)

			events := notifier.Events()
			require.Len(t, events, 1)
			assert.Equal(t, tt.message, events[0].Message)
			assert.Equal(t, uint64(1), events[0].FrameID)

			// Only the first face is compared, resized to the reference size.
			assert.Equal(t, 1, backend.compared)
			require.NotNil(t, backend.lastB)
			assert.Equal(t, 12, backend.lastB.Width)
			assert.Equal(t, 16, backend.lastB.Height)
			assert.Equal(t, backend.lastA.Len(), backend.lastB.Len())
		})
	}
}

// TestProcessDetectError verifies a detector failure passes the frame through.
func TestProcessDetectError(t *testing.T) {
	frame := testFrame(t, 64, 48)
	before := images.ComputeChecksum(frame.Color)

	notifier := &MockNotifier{}
	c := newClassifier(t, &MockBackend{detectErr: assert.AnError}, testStore(t, 8, 8), notifier)

	result := c.Process(context.Background(), frame)

	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, ErrDetect)
	assert.Same(t, frame, result.Frame)
	assert.Equal(t, before, images.ComputeChecksum(result.Frame.Color))
	assert.Empty(t, notifier.Events())
}

// TestProcessCompareError verifies a comparison failure passes the frame
// through without any outline or notification.
func TestProcessCompareError(t *testing.T) {
	frame := testFrame(t, 64, 48)
	before := images.ComputeChecksum(frame.Color)

	backend := &MockBackend{
		faces:      []image.Rectangle{image.Rect(10, 10, 30, 30)},
		compareErr: assert.AnError,
	}
	notifier := &MockNotifier{}
	c := newClassifier(t, backend, testStore(t, 8, 8), notifier)

	result := c.Process(context.Background(), frame)

	require.Error(t, result.Err)
	assert.ErrorIs(t, result.Err, ErrMatch)
	assert.Same(t, frame, result.Frame)
	assert.Equal(t, before, images.ComputeChecksum(result.Frame.Color))
	assert.Empty(t, notifier.Events())
}

// TestProcessFaceOutsideFrame verifies an unusable first region is a per-frame
// failure.
func TestProcessFaceOutsideFrame(t *testing.T) {
	frame := testFrame(t, 64, 48)
	backend := &MockBackend{faces: []image.Rectangle{image.Rect(100, 100, 120, 120)}}
	c := newClassifier(t, backend, testStore(t, 8, 8), &MockNotifier{})

	result := c.Process(context.Background(), frame)

	assert.ErrorIs(t, result.Err, ErrMatch)
	assert.Contains(t, result.Err.Error(), "does not overlap")
	assert.Same(t, frame, result.Frame)
}

// TestProcessRecoversPanic verifies a panicking backend does not take down the loop.
func TestProcessRecoversPanic(t *testing.T) {
	frame := testFrame(t, 64, 48)
	c := newClassifier(t, &MockBackend{panicOn: true}, emptyRefs{}, &MockNotifier{})

	result := c.Process(context.Background(), frame)

	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "detector exploded")
	assert.Same(t, frame, result.Frame)
}

func TestProcessWithoutFrame(t *testing.T) {
	notifier := &MockNotifier{}
	backend := &MockBackend{faces: []image.Rectangle{image.Rect(0, 0, 8, 8)}}
	c := newClassifier(t, backend, emptyRefs{}, notifier)

	result := c.Process(context.Background(), nil)
	assert.ErrorIs(t, result.Err, ErrNoFrame)
	assert.Nil(t, result.Frame)

	result = c.Process(context.Background(), &images.Frame{ID: 3})
	assert.ErrorIs(t, result.Err, ErrNoFrame)
	assert.Empty(t, notifier.Events())
}

// TestProcessTimesOperations verifies the timer sees every stage.
func TestProcessTimesOperations(t *testing.T) {
	timer := &MockTimer{}
	backend := &MockBackend{faces: []image.Rectangle{image.Rect(10, 10, 30, 30)}, score: 0.9}
	c := New(backend, testStore(t, 8, 8), WithTimer(timer))
	c.Start(64, 48)

	c.Process(context.Background(), testFrame(t, 64, 48))

	assert.Equal(t, 1, timer.started["frame"])
	assert.Equal(t, 1, timer.started["detect"])
	assert.Equal(t, 1, timer.started["match"])
}

// TestProcessReusesBuffer verifies the annotation buffer survives frames of a
// different size.
func TestProcessReusesBuffer(t *testing.T) {
	backend := &MockBackend{faces: []image.Rectangle{image.Rect(2, 2, 10, 10)}}
	c := New(backend, emptyRefs{})
	c.Start(64, 48)

	first := c.Process(context.Background(), testFrame(t, 64, 48))
	require.NoError(t, first.Err)
	second := c.Process(context.Background(), testFrame(t, 32, 24))
	require.NoError(t, second.Err)

	assert.Equal(t, image.Pt(32, 24), second.Frame.Size())
}

func TestIsMatch(t *testing.T) {
	assert.True(t, IsMatch(0.81))
	assert.True(t, IsMatch(1))
	assert.False(t, IsMatch(MatchThreshold))
	assert.False(t, IsMatch(0))
	assert.False(t, IsMatch(-1))
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "Face match found (score 0.9500)", Decision{Matched: true, Score: 0.95}.String())
	assert.Equal(t, "Face not matched (score 0.1000)", Decision{Score: 0.1}.String())
}
