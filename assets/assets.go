// Package assets - Bundled detector models and the reference image, and their
// extraction into a local cache directory for libraries that only load files.
package assets

import (
	"crypto/sha256"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Default asset names.
const (
	DefaultModel     = "lbpcascade_frontalface.xml"
	DefaultReference = "reference.jpg"
)

// Bundle is a read-only set of assets.
type Bundle struct {
	// Source holds the assets, an os.DirFS or an embed.FS.
	Source fs.FS
	// Model is the name of the detector model inside Source.
	Model string
	// Reference is the name of the reference image inside Source.
	Reference string
	Logger    zerolog.Logger
}

// Open opens an asset for reading.
func (b *Bundle) Open(name string) (io.ReadCloser, error) {
	if b.Source == nil {
		return nil, errors.New("no asset source configured")
	}
	f, err := b.Source.Open(path.Clean(name))
	if err != nil {
		return nil, errors.Wrapf(err, "open asset %q", name)
	}
	return f, nil
}

// Extract copies an asset into dir and returns the absolute path of the copy.
// An existing file with the same size and digest is left in place.
//
// Arguments:
//   - name: The asset name inside Source.
//   - dir: The cache directory, created when missing.
//
// Returns:
//   - string: Absolute path of the extracted file.
//   - error: An error if the asset is missing or cannot be written.
func (b *Bundle) Extract(name, dir string) (string, error) {
	data, err := b.read(name)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create asset dir %s", dir)
	}
	target, err := filepath.Abs(filepath.Join(dir, path.Base(name)))
	if err != nil {
		return "", errors.Wrap(err, "resolve asset path")
	}

	if same, err := matches(target, data); err != nil {
		return "", err
	} else if same {
		b.Logger.Debug().Str("asset", name).Str("path", target).Msg("asset already extracted")
		return target, nil
	}

	tmp, err := os.CreateTemp(dir, "."+path.Base(name)+".*")
	if err != nil {
		return "", errors.Wrap(err, "create temp asset")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", errors.Wrapf(err, "write asset %q", name)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return "", errors.Wrap(err, "chmod asset")
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, "close asset")
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", errors.Wrapf(err, "install asset %s", target)
	}

	b.Logger.Info().Str("asset", name).Str("path", target).Int("bytes", len(data)).Msg("asset extracted")
	return target, nil
}

// ExtractAll extracts the model and the reference, skipping unset names.
func (b *Bundle) ExtractAll(dir string) ([]string, error) {
	var paths []string
	for _, name := range []string{b.Model, b.Reference} {
		if name == "" {
			continue
		}
		p, err := b.Extract(name, dir)
		if err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func (b *Bundle) read(name string) ([]byte, error) {
	rc, err := b.Open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrapf(err, "read asset %q", name)
	}
	if len(data) == 0 {
		return nil, errors.Errorf("asset %q is empty", name)
	}
	return data, nil
}

func matches(target string, data []byte) (bool, error) {
	info, err := os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "stat %s", target)
	}
	if info.Size() != int64(len(data)) {
		return false, nil
	}

	existing, err := os.ReadFile(target)
	if err != nil {
		return false, errors.Wrapf(err, "read %s", target)
	}
	return sha256.Sum256(existing) == sha256.Sum256(data), nil
}
