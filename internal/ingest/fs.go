// Package ingest loads product images from the local filesystem and
// prepares them for a vision model call.
package ingest

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/sells-group/vis2attr/internal/apperr"
	"github.com/sells-group/vis2attr/internal/model"
)

// Defaults applied when Options leaves a field at its zero value.
const (
	DefaultMaxImagesPerItem = 3
	DefaultMaxResolution    = 768
	jpegQuality             = 85
)

// DefaultFormats lists the accepted image file extensions.
var DefaultFormats = []string{".jpg", ".jpeg", ".png", ".webp"}

// Ingestor turns a source reference into an Item. Errors carry
// apperr.KindIngest.
type Ingestor interface {
	Load(ctx context.Context, source string) (model.Item, error)
}

// Options configures a FileSystem ingestor.
type Options struct {
	MaxImagesPerItem int
	MaxResolution    int
	SupportedFormats []string
	StripEXIF        bool
}

// FileSystem loads items from image files and directories.
type FileSystem struct {
	opts Options
}

// NewFileSystem creates a FileSystem ingestor.
func NewFileSystem(opts Options) *FileSystem {
	if opts.MaxImagesPerItem <= 0 {
		opts.MaxImagesPerItem = DefaultMaxImagesPerItem
	}
	if opts.MaxResolution <= 0 {
		opts.MaxResolution = DefaultMaxResolution
	}
	if len(opts.SupportedFormats) == 0 {
		opts.SupportedFormats = DefaultFormats
	}
	formats := make([]string, len(opts.SupportedFormats))
	for i, f := range opts.SupportedFormats {
		f = strings.ToLower(f)
		if !strings.HasPrefix(f, ".") {
			f = "." + f
		}
		formats[i] = f
	}
	opts.SupportedFormats = formats
	return &FileSystem{opts: opts}
}

// Load reads a single image file or a directory of images as one item.
// Directory images are taken in name order, up to MaxImagesPerItem.
func (fs *FileSystem) Load(ctx context.Context, source string) (model.Item, error) {
	info, err := os.Stat(source)
	if err != nil {
		return model.Item{}, apperr.Wrapf(apperr.KindIngest, err, "ingest: stat %s", source)
	}

	var files []string
	total := 1
	if info.IsDir() {
		files, err = fs.imageFiles(source)
		if err != nil {
			return model.Item{}, err
		}
		if len(files) == 0 {
			return model.Item{}, apperr.Errorf(apperr.KindIngest, "ingest: no supported images in %s", source)
		}
		total = len(files)
		if len(files) > fs.opts.MaxImagesPerItem {
			zap.L().Debug("ingest: truncating images",
				zap.String("source", source),
				zap.Int("found", len(files)),
				zap.Int("max", fs.opts.MaxImagesPerItem),
			)
			files = files[:fs.opts.MaxImagesPerItem]
		}
	} else {
		if !fs.supported(source) {
			return model.Item{}, apperr.Errorf(apperr.KindIngest, "ingest: unsupported image format %s", source)
		}
		files = []string{source}
	}

	images := make([]model.Image, 0, len(files))
	names := make([]string, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return model.Item{}, apperr.Wrap(apperr.KindOf(err), err, "ingest: load")
		}
		img, err := fs.prepare(f)
		if err != nil {
			return model.Item{}, err
		}
		images = append(images, img)
		names = append(names, filepath.Base(f))
	}

	id, err := ItemID(source)
	if err != nil {
		return model.Item{}, err
	}
	return model.Item{
		ItemID: id,
		Source: source,
		Images: images,
		Meta: map[string]any{
			"source_path":       source,
			"image_count":       len(images),
			"total_files_found": total,
			"filenames":         names,
		},
	}, nil
}

// Discover expands a root path into item sources. A file or a directory
// holding images is one source; otherwise each sub-directory holding
// images is a source.
func (fs *FileSystem) Discover(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, apperr.Wrapf(apperr.KindIngest, err, "ingest: stat %s", root)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	files, err := fs.imageFiles(root)
	if err != nil {
		return nil, err
	}
	if len(files) > 0 {
		return []string{root}, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, apperr.Wrapf(apperr.KindIngest, err, "ingest: read dir %s", root)
	}
	var sources []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(root, e.Name())
		files, err := fs.imageFiles(dir)
		if err != nil {
			return nil, err
		}
		if len(files) > 0 {
			sources = append(sources, dir)
		}
	}
	sort.Strings(sources)
	return sources, nil
}

// ItemID derives a stable id from the absolute path of source.
func ItemID(source string) (string, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return "", apperr.Wrapf(apperr.KindIngest, err, "ingest: resolve %s", source)
	}
	sum := md5.Sum([]byte(abs))
	return "item_" + hex.EncodeToString(sum[:])[:8], nil
}

func (fs *FileSystem) supported(path string) bool {
	return slices.Contains(fs.opts.SupportedFormats, strings.ToLower(filepath.Ext(path)))
}

func (fs *FileSystem) imageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperr.Wrapf(apperr.KindIngest, err, "ingest: read dir %s", dir)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !fs.supported(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// prepare decodes one file, downscales it to MaxResolution on the long
// edge and re-encodes it as JPEG. Re-encoding drops EXIF and other
// metadata. With StripEXIF off, images already within bounds keep their
// original bytes.
func (fs *FileSystem) prepare(path string) (model.Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.Image{}, apperr.Wrapf(apperr.KindIngest, err, "ingest: read %s", path)
	}
	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return model.Image{}, apperr.Wrapf(apperr.KindIngest, err, "ingest: decode %s", path)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	needsResize := max(w, h) > fs.opts.MaxResolution

	if !needsResize && !fs.opts.StripEXIF {
		return model.Image{Data: raw, MediaType: "image/" + format, Path: path, Width: w, Height: h}, nil
	}

	if needsResize {
		w, h = fit(w, h, fs.opts.MaxResolution)
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// Flatten transparency onto white before JPEG encoding.
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	if needsResize {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	} else {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return model.Image{}, apperr.Wrapf(apperr.KindIngest, err, "ingest: encode %s", path)
	}
	return model.Image{Data: buf.Bytes(), MediaType: "image/jpeg", Path: path, Width: w, Height: h}, nil
}

// fit scales w×h so the long edge equals limit, keeping aspect ratio.
func fit(w, h, limit int) (int, int) {
	if w >= h {
		return limit, max(1, h*limit/w)
	}
	return max(1, w*limit/h), limit
}
