package window

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/otiai10/copy"
	"github.com/spf13/afero"

	"github.com/mijorus/collector/engine/scratch"
	"github.com/mijorus/collector/pkg/logger"
)

// Export copies the backing file of every item into dest and returns the
// written paths. Names that already exist in dest get a numeric suffix.
func (w *Window) Export(ctx context.Context, dest string) ([]string, error) {
	if _, ok := w.scratch.Fs().(*afero.OsFs); !ok {
		return nil, fmt.Errorf("export requires the OS filesystem")
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export dir: %w", err)
	}
	osFs := afero.NewOsFs()
	var written []string
	for _, it := range w.items {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		target, err := exportTarget(osFs, dest, filepath.Base(it.Path()))
		if err != nil {
			return written, err
		}
		opts := copy.Options{
			OnSymlink:     func(string) copy.SymlinkAction { return copy.Deep },
			PreserveTimes: true,
		}
		if err := copy.Copy(it.Path(), target, opts); err != nil {
			return written, fmt.Errorf("failed to export %s: %w", it.Label(), err)
		}
		written = append(written, target)
	}
	logger.FromContext(ctx).Info("Exported items", "count", len(written), "dest", dest)
	return written, nil
}

func exportTarget(fs afero.Fs, dest, name string) (string, error) {
	target := filepath.Join(dest, name)
	exists, err := afero.Exists(fs, target)
	if err != nil {
		return "", err
	}
	if !exists {
		return target, nil
	}
	ext := filepath.Ext(name)
	return scratch.Allocate(fs, dest, strings.TrimSuffix(name, ext)+"_", strings.TrimPrefix(ext, "."))
}
