package server

import (
	"bytes"
	"image"
	"sync"

	"github.com/nvr-ai/facematch/classifier"
	"github.com/nvr-ai/facematch/images"
)

// FrameStore keeps a copy of the latest processed frame for HTTP clients.
type FrameStore struct {
	mu    sync.RWMutex
	frame *image.RGBA
	id    uint64
}

// Observe copies the frame out of the classifier's reusable buffer. It has the
// session.Observer signature.
func (s *FrameStore) Observe(result classifier.Result) {
	if result.Frame == nil || result.Frame.Color == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frame = images.CopyInto(s.frame, result.Frame.Color)
	s.id = result.Frame.ID
}

// JPEG encodes the latest frame.
//
// Returns:
//   - []byte: The encoded frame.
//   - uint64: The frame id.
//   - bool: False when no frame has been processed yet.
func (s *FrameStore) JPEG(quality int) ([]byte, uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.frame == nil {
		return nil, 0, false, nil
	}
	var buf bytes.Buffer
	if err := images.EncodeJPEG(&buf, s.frame, quality); err != nil {
		return nil, 0, true, err
	}
	return buf.Bytes(), s.id, true, nil
}
