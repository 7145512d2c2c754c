// Package scratch owns the per-window scratch directory and the collision-free
// naming of the files written into it.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

const dirPerm = 0o755

// Dir is the scratch directory of one window: {cacheDir}/window_{index}.
type Dir struct {
	fs   afero.Fs
	root string
}

// New creates the scratch directory for a window index, purging leftovers from
// a previous run that used the same index.
func New(fs afero.Fs, cacheDir string, index int) (*Dir, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if cacheDir == "" {
		return nil, fmt.Errorf("scratch: cache dir not set")
	}
	if index < 0 {
		return nil, fmt.Errorf("scratch: invalid window index %d", index)
	}
	root, err := filepath.Abs(filepath.Join(cacheDir, "window_"+strconv.Itoa(index)))
	if err != nil {
		return nil, fmt.Errorf("scratch: resolve root: %w", err)
	}
	d := &Dir{fs: fs, root: root}
	if err := d.Purge(); err != nil {
		return nil, err
	}
	return d, nil
}

// Path returns the absolute root of the scratch directory.
func (d *Dir) Path() string {
	return d.root
}

// Fs returns the filesystem the directory lives on.
func (d *Dir) Fs() afero.Fs {
	return d.fs
}

// Allocate is Allocate scoped to this directory.
func (d *Dir) Allocate(base, ext string) (string, error) {
	return Allocate(d.fs, d.root, base, ext)
}

// Join returns name placed inside the directory.
func (d *Dir) Join(name string) string {
	return filepath.Join(d.root, name)
}

// Contains reports whether path lies inside the directory. Symlinks are
// resolved when the directory is on the OS filesystem.
func (d *Dir) Contains(path string) bool {
	if path == "" {
		return false
	}
	root, target := d.root, filepath.Clean(path)
	if _, ok := d.fs.(*afero.OsFs); ok {
		root = resolve(root)
		target = resolve(target)
	}
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}

// resolve follows symlinks, leaving the path as is when it does not exist yet.
func resolve(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return filepath.Clean(resolved)
}

// Purge removes everything in the directory and recreates it empty.
func (d *Dir) Purge() error {
	if err := d.fs.RemoveAll(d.root); err != nil {
		return fmt.Errorf("scratch: purge %s: %w", d.root, err)
	}
	if err := d.fs.MkdirAll(d.root, dirPerm); err != nil {
		return fmt.Errorf("scratch: create %s: %w", d.root, err)
	}
	return nil
}

// Remove deletes the directory and its content.
func (d *Dir) Remove() error {
	if err := d.fs.RemoveAll(d.root); err != nil {
		return fmt.Errorf("scratch: remove %s: %w", d.root, err)
	}
	return nil
}
