// Package session - The capture loop: read a frame, classify it, show it, and
// apply camera swap requests between frames.
package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nvr-ai/facematch/camera"
	"github.com/nvr-ai/facematch/classifier"
	"github.com/nvr-ai/facematch/images"
	"github.com/nvr-ai/facematch/reference"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Display presents processed frames.
type Display interface {
	Show(ctx context.Context, frame *images.Frame) error
}

// Observer is called with every processed frame on the capture goroutine. The
// frame buffer is reused afterwards, so observers must copy what they keep.
type Observer func(result classifier.Result)

// Config wires a session together.
type Config struct {
	Opener     camera.Opener
	Selector   *camera.Selector
	Classifier *classifier.Classifier
	// Loader reads the reference face; nil runs detection only.
	Loader *reference.Loader
	Store  *reference.Store
	// Display is optional.
	Display   Display
	Observers []Observer
	Logger    zerolog.Logger
}

// Session owns the capture source for the lifetime of Run.
type Session struct {
	opener     camera.Opener
	selector   *camera.Selector
	classifier *classifier.Classifier
	loader     *reference.Loader
	store      *reference.Store
	display    Display
	observers  []Observer
	logger     zerolog.Logger

	active  atomic.Int32
	refOnce sync.Once
	refDone chan struct{}
	running atomic.Bool

	stats Stats
}

// New validates the configuration and creates a session.
func New(cfg Config) (*Session, error) {
	if cfg.Opener == nil {
		return nil, errors.New("session needs a camera opener")
	}
	if cfg.Selector == nil {
		return nil, errors.New("session needs a camera selector")
	}
	if cfg.Classifier == nil {
		return nil, errors.New("session needs a classifier")
	}
	if cfg.Store == nil {
		cfg.Store = &reference.Store{}
	}

	s := &Session{
		opener:     cfg.Opener,
		selector:   cfg.Selector,
		classifier: cfg.Classifier,
		loader:     cfg.Loader,
		store:      cfg.Store,
		display:    cfg.Display,
		observers:  cfg.Observers,
		logger:     cfg.Logger,
		refDone:    make(chan struct{}),
	}
	s.active.Store(int32(cfg.Selector.Index()))
	return s, nil
}

// Run opens the active camera and processes frames until ctx is cancelled or
// the source ends. Per-frame failures are logged and never stop the loop.
//
// Returns:
//   - error: nil on cancellation or end of input, otherwise the capture error.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("session already running")
	}
	defer s.running.Store(false)

	src, err := s.start(s.selector.Index())
	if err != nil {
		return err
	}
	defer func() {
		s.stop(src)
	}()

	s.loadReference(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if s.selector.Index() != s.CameraIndex() {
			if src, err = s.applySwap(src); err != nil {
				return err
			}
			continue
		}

		frame, err := src.Read(ctx)
		switch {
		case err == nil:
		case errors.Is(err, camera.EOF):
			s.logger.Info().Uint64("frames", s.stats.Frames.Load()).Msg("capture source ended")
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			return errors.Wrapf(err, "read camera %d", s.CameraIndex())
		}

		s.handle(ctx, frame)
	}
}

func (s *Session) handle(ctx context.Context, frame *images.Frame) {
	result := s.classifier.Process(ctx, frame)
	s.stats.record(result)

	if result.Err != nil {
		s.logger.Debug().Err(result.Err).Uint64("frame", frame.ID).Msg("frame passed through")
	}

	for _, observe := range s.observers {
		observe(result)
	}

	if s.display != nil {
		if err := s.display.Show(ctx, result.Frame); err != nil {
			s.logger.Warn().Err(err).Msg("display failed")
		}
	}
}

func (s *Session) start(index int) (camera.Source, error) {
	src, err := s.opener(index)
	if err != nil {
		return nil, errors.Wrapf(err, "open camera %d", index)
	}
	s.active.Store(int32(index))
	size := src.Size()
	s.classifier.Start(size.X, size.Y)
	s.logger.Info().Int("camera", index).Int("width", size.X).Int("height", size.Y).Msg("camera started")
	return src, nil
}

func (s *Session) stop(src camera.Source) {
	if src == nil {
		return
	}
	s.classifier.Stop()
	if err := src.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("close camera")
	}
}

// applySwap closes the current source and opens the camera the selector now
// points at. When that camera cannot be opened the previous one is reopened.
func (s *Session) applySwap(current camera.Source) (camera.Source, error) {
	s.stop(current)

	previous := s.CameraIndex()
	next := s.selector.Index()

	src, err := s.start(next)
	if err == nil {
		s.stats.Swaps.Add(1)
		return src, nil
	}

	s.logger.Warn().Err(err).Int("camera", next).Msg("camera swap failed, restoring previous camera")
	s.selector.CompareAndSwap(next, previous)
	src, rerr := s.start(previous)
	if rerr != nil {
		return nil, errors.Wrapf(rerr, "reopen camera %d after failed swap", previous)
	}
	return src, nil
}

// SwapCamera toggles the selected camera. The loop opens the selected camera
// before the next frame, so two calls in a row leave the current camera open.
//
// Returns:
//   - int: The camera index now selected.
func (s *Session) SwapCamera() int {
	return s.selector.Toggle()
}

// CameraIndex returns the camera whose source is open.
func (s *Session) CameraIndex() int {
	return int(s.active.Load())
}

func (s *Session) loadReference(ctx context.Context) {
	s.refOnce.Do(func() {
		if s.loader == nil || s.store.Loaded() {
			close(s.refDone)
			return
		}
		done := s.loader.LoadAsync(ctx, s.store)
		go func() {
			<-done
			close(s.refDone)
		}()
	})
}

// ReferenceLoaded is closed once the reference load attempt has finished.
func (s *Session) ReferenceLoaded() <-chan struct{} {
	return s.refDone
}

// Stats returns the session counters.
func (s *Session) Stats() *Stats {
	return &s.stats
}
