package session

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nvr-ai/facematch/camera"
	"github.com/nvr-ai/facematch/classifier"
	"github.com/nvr-ai/facematch/images"
	"github.com/nvr-ai/facematch/reference"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockSource yields a fixed number of frames, or frames forever when limit is 0.
type MockSource struct {
	index  int
	limit  int
	read   atomic.Int32
	closed atomic.Bool
	err    error
}

func (m *MockSource) Read(ctx context.Context) (*images.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}
	n := int(m.read.Add(1))
	if m.limit > 0 && n > m.limit {
		return nil, camera.EOF
	}
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	return images.NewFrame(uint64(n), img), nil
}

func (m *MockSource) Size() image.Point { return image.Pt(32, 24) }

func (m *MockSource) Close() error {
	m.closed.Store(true)
	return nil
}

// MockOpener records which cameras were opened.
type MockOpener struct {
	mu      sync.Mutex
	opened  []int
	sources []*MockSource
	limit   int
	fail    map[int]bool
}

func (m *MockOpener) Open(index int) (camera.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[index] {
		return nil, errors.Errorf("camera %d unavailable", index)
	}
	src := &MockSource{index: index, limit: m.limit}
	m.opened = append(m.opened, index)
	m.sources = append(m.sources, src)
	return src, nil
}

func (m *MockOpener) Opened() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.opened...)
}

// MockBackend finds one face and scores it.
type MockBackend struct {
	faces []image.Rectangle
	score float64
	err   error
}

func (m *MockBackend) Name() string { return "mock" }

func (m *MockBackend) DetectFaces(ctx context.Context, img image.Image) ([]image.Rectangle, error) {
	return m.faces, m.err
}

func (m *MockBackend) CompareHistograms(a, b *images.FloatImage) (float64, error) {
	return m.score, nil
}

func (m *MockBackend) Close() error { return nil }

// MockDisplay counts shown frames.
type MockDisplay struct {
	shown atomic.Int32
}

func (m *MockDisplay) Show(ctx context.Context, frame *images.Frame) error {
	m.shown.Add(1)
	return nil
}

func pngReference(t *testing.T) reference.OpenFunc {
	t.Helper()
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.SetRGBA(1, 1, color.RGBA{R: 200, A: 255})
	require.NoError(t, png.Encode(&buf, img))
	data := buf.Bytes()
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
}

func newSession(t *testing.T, opener *MockOpener, backend *MockBackend, cfg Config) *Session {
	t.Helper()
	selector, err := camera.NewSelector(0)
	require.NoError(t, err)

	cfg.Opener = opener.Open
	cfg.Selector = selector
	if cfg.Store == nil {
		cfg.Store = &reference.Store{}
	}
	cfg.Classifier = classifier.New(backend, cfg.Store)

	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestRunUntilEOF(t *testing.T) {
	opener := &MockOpener{limit: 5}
	display := &MockDisplay{}
	var observed atomic.Int32

	s := newSession(t, opener, &MockBackend{faces: []image.Rectangle{image.Rect(2, 2, 12, 12)}}, Config{
		Display:   display,
		Observers: []Observer{func(classifier.Result) { observed.Add(1) }},
	})

	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, []int{0}, opener.Opened())
	assert.Equal(t, int32(5), display.shown.Load())
	assert.Equal(t, int32(5), observed.Load())
	assert.Equal(t, uint64(5), s.Stats().Frames.Load())
	assert.Equal(t, uint64(5), s.Stats().Faces.Load())
	assert.True(t, opener.sources[0].closed.Load())
}

func TestRunPerFrameFailuresContinue(t *testing.T) {
	opener := &MockOpener{limit: 3}
	display := &MockDisplay{}
	s := newSession(t, opener, &MockBackend{err: errors.New("detector offline")}, Config{Display: display})

	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, uint64(3), s.Stats().Failures.Load())
	assert.Equal(t, int32(3), display.shown.Load(), "failed frames are still displayed")
}

func TestRunReadError(t *testing.T) {
	selector, err := camera.NewSelector(0)
	require.NoError(t, err)
	s, err := New(Config{
		Opener: func(int) (camera.Source, error) {
			return &MockSource{err: errors.New("usb unplugged")}, nil
		},
		Selector:   selector,
		Classifier: classifier.New(&MockBackend{}, &reference.Store{}),
	})
	require.NoError(t, err)

	err = s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "usb unplugged")
}

func TestRunOpenError(t *testing.T) {
	opener := &MockOpener{fail: map[int]bool{0: true}}
	s := newSession(t, opener, &MockBackend{}, Config{})

	assert.Error(t, s.Run(context.Background()))
}

func TestRunCancelled(t *testing.T) {
	opener := &MockOpener{}
	s := newSession(t, opener, &MockBackend{}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Stats().Frames.Load() > 0 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
}

func TestSwapCamera(t *testing.T) {
	opener := &MockOpener{}
	s := newSession(t, opener, &MockBackend{}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Stats().Frames.Load() > 0 }, time.Second, time.Millisecond)

	assert.Equal(t, 1, s.SwapCamera())
	require.Eventually(t, func() bool { return s.CameraIndex() == 1 }, time.Second, time.Millisecond)

	assert.Equal(t, 0, s.SwapCamera())
	require.Eventually(t, func() bool { return s.Stats().Swaps.Load() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, s.CameraIndex())

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int{0, 1, 0}, opener.Opened())
	for _, src := range opener.sources {
		assert.True(t, src.closed.Load())
	}
}

func TestSwapCameraTwiceKeepsCamera(t *testing.T) {
	opener := &MockOpener{limit: 3}
	s := newSession(t, opener, &MockBackend{}, Config{})

	assert.Equal(t, 1, s.SwapCamera())
	assert.Equal(t, 0, s.SwapCamera())
	assert.Equal(t, 0, s.CameraIndex())

	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, 0, s.CameraIndex())
	assert.Equal(t, []int{0}, opener.Opened())
	assert.Zero(t, s.Stats().Swaps.Load())
}

func TestSwapCameraBeforeRun(t *testing.T) {
	opener := &MockOpener{limit: 2}
	s := newSession(t, opener, &MockBackend{}, Config{})

	assert.Equal(t, 1, s.SwapCamera())
	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, 1, s.CameraIndex())
	assert.Equal(t, []int{1}, opener.Opened())
}

func TestSwapCameraFailureRestores(t *testing.T) {
	opener := &MockOpener{fail: map[int]bool{1: true}}
	s := newSession(t, opener, &MockBackend{}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Stats().Frames.Load() > 0 }, time.Second, time.Millisecond)
	s.SwapCamera()
	require.Eventually(t, func() bool { return len(opener.Opened()) == 2 }, time.Second, time.Millisecond)

	assert.Equal(t, 0, s.CameraIndex())
	assert.Equal(t, 0, s.selector.Index())
	assert.Equal(t, uint64(0), s.Stats().Swaps.Load())

	cancel()
	require.NoError(t, <-done)
}

func TestReferenceLoadsOnceAcrossSwaps(t *testing.T) {
	var opens atomic.Int32
	open := pngReference(t)
	loader := &reference.Loader{
		Name: "reference.png",
		Open: func() (io.ReadCloser, error) {
			opens.Add(1)
			return open()
		},
	}
	store := &reference.Store{}
	opener := &MockOpener{}
	s := newSession(t, opener, &MockBackend{faces: []image.Rectangle{image.Rect(0, 0, 16, 16)}, score: 0.9}, Config{
		Loader: loader,
		Store:  store,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-s.ReferenceLoaded():
	case <-time.After(2 * time.Second):
		t.Fatal("reference never loaded")
	}
	assert.True(t, store.Loaded())

	s.SwapCamera()
	require.Eventually(t, func() bool { return s.Stats().Swaps.Load() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return s.Stats().Matches.Load() > 0 }, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), opens.Load())
}

func TestReferenceFailureRunsDetectionOnly(t *testing.T) {
	loader := &reference.Loader{
		Name: "missing.png",
		Open: func() (io.ReadCloser, error) { return nil, errors.New("not found") },
	}
	opener := &MockOpener{limit: 3}
	s := newSession(t, opener, &MockBackend{faces: []image.Rectangle{image.Rect(0, 0, 8, 8)}}, Config{Loader: loader})

	require.NoError(t, s.Run(context.Background()))
	<-s.ReferenceLoaded()

	assert.Equal(t, uint64(3), s.Stats().Frames.Load())
	assert.Zero(t, s.Stats().Failures.Load())
}

func TestStatsCollectMetrics(t *testing.T) {
	var stats Stats
	stats.record(classifier.Result{Regions: []image.Rectangle{{}, {}}, Decision: &classifier.Decision{Matched: true}})
	stats.record(classifier.Result{Regions: []image.Rectangle{{}}, Decision: &classifier.Decision{}})
	stats.record(classifier.Result{Err: errors.New("boom")})

	m := stats.CollectMetrics()
	assert.Equal(t, 3.0, m["frames_total"])
	assert.Equal(t, 3.0, m["faces_total"])
	assert.Equal(t, 1.0, m["matches_total"])
	assert.Equal(t, 1.0, m["nomatches_total"])
	assert.Equal(t, 1.0, m["failures_total"])
}
