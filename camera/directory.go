package camera

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/nvr-ai/facematch/images"
	"github.com/pkg/errors"
)

// ImageFile represents one recorded frame on disk.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Frame is the frame number parsed from the file name.
	Frame int
}

// ListFrameFiles returns the "frame-N" image files of a directory ordered by N.
//
// Arguments:
// - dir: Directory path containing image files.
//
// Returns:
// - []ImageFile: The frames in capture order.
// - error: Error if the directory cannot be read or a name has no frame number.
func ListFrameFiles(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read frame directory")
	}

	var files []ImageFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		switch ext {
		case ".jpg", ".jpeg", ".png", ".bmp", ".webp":
			base := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
			frame, err := strconv.Atoi(strings.TrimPrefix(base, "frame-"))
			if err != nil {
				return nil, errors.Errorf("frame file %q has no frame number", entry.Name())
			}
			files = append(files, ImageFile{
				Path:  filepath.Join(dir, entry.Name()),
				Frame: frame,
			})
		}
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Frame < files[j].Frame
	})
	return files, nil
}

// DirectorySource replays recorded frames from a directory.
type DirectorySource struct {
	files  []ImageFile
	next   int
	size   image.Point
	closed bool
	mu     sync.Mutex
}

// OpenDirectory lists the frames of dir. The first frame is decoded to learn
// the frame size.
func OpenDirectory(dir string) (*DirectorySource, error) {
	files, err := ListFrameFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no frames in %s", dir)
	}

	first, err := decodeFile(files[0].Path)
	if err != nil {
		return nil, err
	}
	return &DirectorySource{files: files, size: first.Bounds().Size()}, nil
}

// Read decodes the next frame, returning EOF after the last one.
func (d *DirectorySource) Read(ctx context.Context) (*images.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrClosed
	}
	if d.next >= len(d.files) {
		return nil, EOF
	}

	file := d.files[d.next]
	d.next++

	img, err := decodeFile(file.Path)
	if err != nil {
		return nil, err
	}
	return images.NewFrame(uint64(file.Frame), img), nil
}

// Size returns the dimensions of the first frame.
func (d *DirectorySource) Size() image.Point { return d.size }

// Close stops the replay.
func (d *DirectorySource) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open frame")
	}
	defer f.Close()

	img, _, err := images.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "frame %s", path)
	}
	return img, nil
}

// DirectoryOpener opens one directory per camera index: dirs[0] for camera 0,
// dirs[1] for camera 1. With a single directory both indices replay it.
func DirectoryOpener(dirs ...string) Opener {
	return func(index int) (Source, error) {
		if len(dirs) == 0 {
			return nil, errors.New("no frame directories configured")
		}
		dir := dirs[0]
		if index < len(dirs) {
			dir = dirs[index]
		}
		return OpenDirectory(dir)
	}
}
