package reference

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// OpenFunc opens the encoded reference image.
type OpenFunc func() (io.ReadCloser, error)

// Loader decodes the reference in the background and publishes it into a Store.
type Loader struct {
	Name   string
	Open   OpenFunc
	Logger zerolog.Logger
}

// Load decodes the reference synchronously.
func (l *Loader) Load(ctx context.Context) (*Face, error) {
	if l.Open == nil {
		return nil, errors.New("no reference source configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rc, err := l.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "open reference %q", l.Name)
	}
	defer rc.Close()

	return Decode(rc, l.Name)
}

// LoadAsync decodes the reference on a new goroutine and stores it. Failures
// are logged and swallowed; the store then stays empty and the pipeline runs
// in detection-only mode.
//
// Returns:
//   - <-chan struct{}: Closed once loading finished or failed.
func (l *Loader) LoadAsync(ctx context.Context, store *Store) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		face, err := l.Load(ctx)
		if err != nil {
			l.Logger.Warn().Err(err).Str("reference", l.Name).Msg("reference face unavailable, matching disabled")
			return
		}
		if err := store.Set(face); err != nil {
			l.Logger.Warn().Err(err).Str("reference", l.Name).Msg("reference face not stored")
			return
		}
		l.Logger.Info().
			Str("reference", l.Name).
			Str("format", string(face.Format)).
			Int("width", face.Size().X).
			Int("height", face.Size().Y).
			Msg("reference face loaded")
	}()
	return done
}
