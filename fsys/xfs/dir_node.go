package xfs

import "fmt"

// nodeFormReader stands in for multi-level B-tree directories, which are
// not decoded.
type nodeFormReader struct{}

func (nodeFormReader) next(d *Dir, _ *Dirent) error {
	return fmt.Errorf("node directory %d: %w", d.ino, ErrUnsupportedFormat)
}
