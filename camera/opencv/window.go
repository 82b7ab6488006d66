package opencv

import (
	"context"

	"github.com/nvr-ai/facematch/images"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Key codes handled by the window.
const (
	KeySwap   = 's'
	KeyQuit   = 'q'
	KeyEscape = 27
)

// Window shows annotated frames and turns key presses into actions: KeySwap
// is the camera-swap menu item, KeyQuit and KeyEscape close the session.
type Window struct {
	win *gocv.Window
	// OnSwap is called when the swap key is pressed.
	OnSwap func()
	// OnQuit is called when a quit key is pressed.
	OnQuit func()
}

// NewWindow opens a display window.
func NewWindow(title string) *Window {
	return &Window{win: gocv.NewWindow(title)}
}

// Show displays the frame and polls the keyboard for one millisecond.
func (w *Window) Show(_ context.Context, frame *images.Frame) error {
	mat, err := gocv.ImageToMatRGB(frame.Color)
	if err != nil {
		return errors.Wrap(err, "convert frame for display")
	}
	defer mat.Close()

	w.win.IMShow(mat)
	w.handleKey(w.win.WaitKey(1))
	return nil
}

func (w *Window) handleKey(key int) {
	switch key {
	case KeySwap, 'S':
		if w.OnSwap != nil {
			w.OnSwap()
		}
	case KeyQuit, 'Q', KeyEscape:
		if w.OnQuit != nil {
			w.OnQuit()
		}
	}
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.win.Close()
}
