package scratch

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
)

// maxCounter bounds the probe so a pathological directory cannot spin forever.
const maxCounter = 1 << 20

// Allocate returns the first path {dir}/{base}{N}.{ext}, N starting at 1, that
// does not exist on fs. It has no side effects: two calls without creating the
// file return the same path.
func Allocate(fs afero.Fs, dir, base, ext string) (string, error) {
	if fs == nil {
		return "", fmt.Errorf("allocate: filesystem is nil")
	}
	for counter := 1; counter <= maxCounter; counter++ {
		name := base + strconv.Itoa(counter)
		if ext != "" {
			name += "." + ext
		}
		candidate := filepath.Join(dir, name)
		exists, err := afero.Exists(fs, candidate)
		if err != nil {
			return "", fmt.Errorf("allocate %s: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("allocate: no free name for %s*.%s in %s", base, ext, dir)
}
