package assets

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBundle() *Bundle {
	return &Bundle{
		Source: fstest.MapFS{
			"models/" + DefaultModel: {Data: []byte("<opencv_storage/>")},
			DefaultReference:         {Data: []byte{0xFF, 0xD8, 0xFF, 0xE0}},
			"empty.bin":              {Data: nil},
		},
		Model:     "models/" + DefaultModel,
		Reference: DefaultReference,
	}
}

func TestOpen(t *testing.T) {
	rc, err := testBundle().Open(DefaultReference)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xE0}, data)

	_, err = testBundle().Open("missing.png")
	assert.Error(t, err)

	_, err = (&Bundle{}).Open(DefaultReference)
	assert.Error(t, err)
}

func TestExtract(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cascade")
	b := testBundle()

	p, err := b.Extract(b.Model, dir)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(p))
	assert.Equal(t, DefaultModel, filepath.Base(p))

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "<opencv_storage/>", string(data))

	info, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestExtractSkipsIdentical(t *testing.T) {
	dir := t.TempDir()
	b := testBundle()

	p, err := b.Extract(b.Model, dir)
	require.NoError(t, err)

	old := time.Now().Add(-time.Hour).Truncate(time.Second)
	require.NoError(t, os.Chtimes(p, old, old))

	_, err = b.Extract(b.Model, dir)
	require.NoError(t, err)

	info, err := os.Stat(p)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old), "identical file is not rewritten")
}

func TestExtractReplacesStale(t *testing.T) {
	dir := t.TempDir()
	b := testBundle()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultModel), []byte("stale content!!!!"), 0o644))

	p, err := b.Extract(b.Model, dir)
	require.NoError(t, err)

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "<opencv_storage/>", string(data))
}

func TestExtractErrors(t *testing.T) {
	b := testBundle()

	_, err := b.Extract("missing.xml", t.TempDir())
	assert.Error(t, err)

	_, err = b.Extract("empty.bin", t.TempDir())
	assert.Error(t, err)
}

func TestExtractAll(t *testing.T) {
	b := testBundle()

	paths, err := b.ExtractAll(t.TempDir())
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, DefaultModel, filepath.Base(paths[0]))
	assert.Equal(t, DefaultReference, filepath.Base(paths[1]))
}

func TestEmbedded(t *testing.T) {
	data, err := fs.ReadFile(Embedded(), "README.md")
	require.NoError(t, err)
	assert.Contains(t, string(data), DefaultModel)
}

func TestLayered(t *testing.T) {
	local := fstest.MapFS{DefaultReference: {Data: []byte("local")}}
	bundled := fstest.MapFS{
		DefaultReference: {Data: []byte("bundled")},
		DefaultModel:     {Data: []byte("<opencv_storage/>")},
	}
	layered := Layered{local, nil, bundled}

	tests := []struct {
		name string
		file string
		want string
	}{
		{name: "first layer wins", file: DefaultReference, want: "local"},
		{name: "falls back", file: DefaultModel, want: "<opencv_storage/>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := fs.ReadFile(layered, tt.file)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(data))
		})
	}

	_, err := layered.Open("missing.xml")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = layered.Open("../escape")
	assert.ErrorIs(t, err, fs.ErrInvalid)
}

func TestLayeredBundleExtract(t *testing.T) {
	b := &Bundle{
		Source: Layered{os.DirFS(t.TempDir()), fstest.MapFS{DefaultModel: {Data: []byte("<opencv_storage/>")}}},
		Model:  DefaultModel,
	}

	p, err := b.Extract(DefaultModel, t.TempDir())
	require.NoError(t, err)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "<opencv_storage/>", string(data))
}
