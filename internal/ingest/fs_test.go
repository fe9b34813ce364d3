package ingest

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/vis2attr/internal/apperr"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func TestLoad_SingleFileDownscales(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shoe.png")
	writePNG(t, path, 1600, 800)

	fs := NewFileSystem(Options{StripEXIF: true})
	item, err := fs.Load(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, item.Images, 1)
	img := item.Images[0]
	assert.Equal(t, "image/jpeg", img.MediaType)
	assert.Equal(t, 768, img.Width)
	assert.Equal(t, 384, img.Height)
	w, h := decodeSize(t, img.Data)
	assert.Equal(t, 768, w)
	assert.Equal(t, 384, h)
	assert.Equal(t, path, item.Source)
	assert.Equal(t, 1, item.Meta["image_count"])
	assert.Regexp(t, `^item_[0-9a-f]{8}$`, item.ItemID)
}

func TestLoad_KeepsOriginalWithoutStrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "small.png")
	writePNG(t, path, 64, 32)
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	item, err := NewFileSystem(Options{StripEXIF: false}).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "image/png", item.Images[0].MediaType)
	assert.Equal(t, raw, item.Images[0].Data)
}

func TestLoad_DirectoryLimitsAndSorts(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"d.png", "b.png", "a.png", "c.png"} {
		writePNG(t, filepath.Join(dir, name), 20, 20)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	item, err := NewFileSystem(Options{StripEXIF: true}).Load(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, item.Images, 3)
	assert.Equal(t, []string{"a.png", "b.png", "c.png"}, item.Meta["filenames"])
	assert.Equal(t, 4, item.Meta["total_files_found"])
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileSystem(Options{})

	_, err := fs.Load(context.Background(), filepath.Join(dir, "missing.png"))
	assert.True(t, apperr.Is(err, apperr.KindIngest))

	_, err = fs.Load(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindIngest))
	assert.Contains(t, err.Error(), "no supported images")

	txt := filepath.Join(dir, "a.gif")
	require.NoError(t, os.WriteFile(txt, []byte("GIF89a"), 0o644))
	_, err = fs.Load(context.Background(), txt)
	assert.ErrorContains(t, err, "unsupported image format")

	bad := filepath.Join(dir, "broken.jpg")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o644))
	_, err = fs.Load(context.Background(), bad)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindIngest))
	assert.Contains(t, err.Error(), "decode")
}

func TestLoad_UppercaseExtension(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "PHOTO.PNG"), 10, 10)

	item, err := NewFileSystem(Options{SupportedFormats: []string{"png"}}).Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, item.Images, 1)
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "b", "1.png"), 10, 10)
	writePNG(t, filepath.Join(root, "a", "1.png"), 10, 10)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))
	writePNG(t, filepath.Join(root, ".hidden", "1.png"), 10, 10)

	fs := NewFileSystem(Options{})
	sources, err := fs.Discover(root)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a"), filepath.Join(root, "b")}, sources)

	// A directory holding images is a single item.
	sources, err = fs.Discover(filepath.Join(root, "a"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "a")}, sources)

	single := filepath.Join(root, "a", "1.png")
	sources, err = fs.Discover(single)
	require.NoError(t, err)
	assert.Equal(t, []string{single}, sources)
}

func TestItemID_Stable(t *testing.T) {
	a, err := ItemID("photos/item1")
	require.NoError(t, err)
	b, err := ItemID("./photos/item1")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := ItemID("photos/item2")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestFit(t *testing.T) {
	w, h := fit(1000, 500, 768)
	assert.Equal(t, 768, w)
	assert.Equal(t, 384, h)
	w, h = fit(300, 1200, 600)
	assert.Equal(t, 150, w)
	assert.Equal(t, 600, h)
}
