package xfs

import "github.com/google/btree"

// extentMap indexes an inode's extents by file block.
type extentMap struct {
	tree *btree.BTreeG[extent]
}

func newExtentMap(exts []extent) *extentMap {
	t := btree.NewG(8, func(a, b extent) bool { return a.fileOff < b.fileOff })
	for _, e := range exts {
		t.ReplaceOrInsert(e)
	}
	return &extentMap{tree: t}
}

// lookup returns the extent mapping fileBlock.
func (m *extentMap) lookup(fileBlock uint64) (extent, bool) {
	var found extent
	ok := false
	m.tree.DescendLessOrEqual(extent{fileOff: fileBlock}, func(e extent) bool {
		found, ok = e, true
		return false
	})
	if !ok || fileBlock >= found.fileOff+found.count {
		return extent{}, false
	}
	return found, true
}

// first returns the extent with the lowest file offset.
func (m *extentMap) first() (extent, bool) { return m.tree.Min() }

// last returns the extent with the highest file offset.
func (m *extentMap) last() (extent, bool) { return m.tree.Max() }

func (m *extentMap) len() int { return m.tree.Len() }
