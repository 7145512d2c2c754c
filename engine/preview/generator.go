// Package preview renders square PNG thumbnails for dropped images. Thumbnails
// are addressed by the MD5 of the source bytes, so the same image dropped twice
// reuses one file.
package preview

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
	"golang.org/x/image/draw"
	"golang.org/x/sync/singleflight"

	"github.com/mijorus/collector/engine/classify"
	"github.com/mijorus/collector/engine/scratch"
	"github.com/mijorus/collector/pkg/logger"
)

const (
	DefaultMaxBytes = 50 * 1024 * 1024
	DefaultSide     = 200
	defaultMemoSize = 256
	filePrefix      = "__"
	filePerm        = 0o644
)

var (
	// ErrTooLarge is returned when the source exceeds the size ceiling.
	ErrTooLarge = errors.New("preview: source too large")
	// ErrUnsupported is returned when the source is not a supported image.
	ErrUnsupported = errors.New("preview: unsupported content type")
)

// Options tunes a Generator. Zero values select the defaults.
type Options struct {
	MaxBytes int64
	Side     int
	MemoSize int
}

type memoKey struct {
	path    string
	size    int64
	modTime int64
}

// Generator produces thumbnails inside one scratch directory.
type Generator struct {
	dir      *scratch.Dir
	fs       afero.Fs
	maxBytes int64
	side     int
	memo     *lru.Cache[memoKey, string]
	group    singleflight.Group
}

// New creates a Generator writing into dir.
func New(dir *scratch.Dir, opts Options) (*Generator, error) {
	if dir == nil {
		return nil, fmt.Errorf("preview: scratch dir is required")
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Side <= 0 {
		opts.Side = DefaultSide
	}
	if opts.MemoSize <= 0 {
		opts.MemoSize = defaultMemoSize
	}
	memo, err := lru.New[memoKey, string](opts.MemoSize)
	if err != nil {
		return nil, fmt.Errorf("preview: create memo: %w", err)
	}
	return &Generator{
		dir:      dir,
		fs:       dir.Fs(),
		maxBytes: opts.MaxBytes,
		side:     opts.Side,
		memo:     memo,
	}, nil
}

// Generate returns the thumbnail path for the image at path, rendering it
// when no thumbnail for the same bytes exists yet. Vector images are their own
// preview.
func (g *Generator) Generate(ctx context.Context, path string) (string, error) {
	info, err := g.fs.Stat(path)
	if err != nil {
		return "", fmt.Errorf("preview: stat %s: %w", path, err)
	}
	if info.Size() > g.maxBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, info.Size())
	}
	contentType, err := classify.FileFS(g.fs, path)
	if err != nil {
		return "", fmt.Errorf("preview: %w", err)
	}
	if !classify.IsImage(contentType) {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, contentType)
	}
	if classify.IsVector(contentType) {
		return path, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := memoKey{path: path, size: info.Size(), modTime: info.ModTime().UnixNano()}
	sum, ok := g.memo.Get(key)
	if !ok {
		sum, err = g.hash(path)
		if err != nil {
			return "", err
		}
		g.memo.Add(key, sum)
	}
	target := g.dir.Join(filePrefix + sum + ".png")
	if exists, _ := afero.Exists(g.fs, target); exists {
		return target, nil
	}
	_, err, _ = g.group.Do(sum, func() (any, error) {
		if exists, _ := afero.Exists(g.fs, target); exists {
			return target, nil
		}
		return target, g.render(path, target)
	})
	if err != nil {
		return "", err
	}
	logger.FromContext(ctx).Debug("Generated preview", "source", path, "preview", target)
	return target, nil
}

func (g *Generator) hash(path string) (string, error) {
	f, err := g.fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("preview: open %s: %w", path, err)
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("preview: hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (g *Generator) render(src, target string) error {
	f, err := g.fs.Open(src)
	if err != nil {
		return fmt.Errorf("preview: open %s: %w", src, err)
	}
	img, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUnsupported, src, err)
	}
	thumb := Thumbnail(img, g.side)
	tmp := target + ".tmp"
	out, err := g.fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("preview: create %s: %w", tmp, err)
	}
	if err := png.Encode(out, thumb); err != nil {
		out.Close()
		_ = g.fs.Remove(tmp)
		return fmt.Errorf("preview: encode %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		_ = g.fs.Remove(tmp)
		return fmt.Errorf("preview: write %s: %w", target, err)
	}
	if err := g.fs.Rename(tmp, target); err != nil {
		_ = g.fs.Remove(tmp)
		return fmt.Errorf("preview: finalize %s: %w", target, err)
	}
	return nil
}

// Thumbnail downscales img so its longer side is at most side, keeping the
// aspect ratio, then center-crops it to a square of the shorter side.
func Thumbnail(img image.Image, side int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	scaledW, scaledH := w, h
	if longer := max(w, h); longer > side {
		scaledW = max(1, w*side/longer)
		scaledH = max(1, h*side/longer)
	}
	square := min(scaledW, scaledH)
	// crop the centered square in source coordinates, scale it in one pass
	srcSquare := min(w, h)
	x0 := b.Min.X + (w-srcSquare)/2
	y0 := b.Min.Y + (h-srcSquare)/2
	sr := image.Rect(x0, y0, x0+srcSquare, y0+srcSquare)
	dst := image.NewRGBA(image.Rect(0, 0, square, square))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, sr, draw.Src, nil)
	return dst
}
