package xfs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
)

// DirentType classifies a directory entry's target.
type DirentType uint8

const (
	TypeUnknown DirentType = 0
	TypeDir     DirentType = 4
	TypeReg     DirentType = 8
)

func (t DirentType) String() string {
	switch t {
	case TypeDir:
		return "dir"
	case TypeReg:
		return "reg"
	default:
		return "unknown"
	}
}

// direntHeaderSize is the size of the fixed part of the record handed to
// generic directory readers: ino(4) off(4) reclen(2) type(2).
const direntHeaderSize = 12

// Dirent is one directory entry as produced by Dir.Next.
type Dirent struct {
	Ino    uint64
	Off    uint32 // cursor after this entry; Seek(Off) resumes past it
	Reclen uint16 // header + name + terminator, independent of on-disk padding
	Type   DirentType
	Name   string
}

// fillDirent populates out for the entry at cursor position pos. The
// entry's type comes from the target inode's own core.
func (f *FS) fillDirent(out *Dirent, pos uint32, ino uint64, name []byte) error {
	out.Ino = ino
	out.Off = pos
	out.Reclen = uint16(direntHeaderSize + len(name) + 1)

	core, err := f.readInodeCore(ino)
	if err != nil {
		f.log.Error("failed to get inode core", "ino", ino, "err", err)
		return fmt.Errorf("%w: inode %d: %v", ErrMetadataUnavailable, ino, err)
	}

	// Match the whole format field; symlinks and sockets carry the regular bit
	switch core.mode & modeFmt {
	case modeDir:
		out.Type = TypeDir
	case modeReg:
		out.Type = TypeReg
	default:
		out.Type = TypeUnknown
	}
	out.Name = string(name)

	return nil
}

// recordCursor walks variable-length records packed into a byte span.
// All bounds checking for the directory formats happens here.
type recordCursor struct {
	buf []byte
	off int
}

// bytes returns the next n bytes without consuming them.
func (c *recordCursor) bytes(n int) ([]byte, error) {
	if n < 0 || c.off+n > len(c.buf) {
		return nil, fmt.Errorf("record of %d bytes at offset %d overruns %d byte area: %w", n, c.off, len(c.buf), ErrCorrupt)
	}
	return c.buf[c.off : c.off+n], nil
}

// advance moves past n bytes. A zero or negative step is corruption, since
// it would never make progress.
func (c *recordCursor) advance(n int) error {
	if n <= 0 || c.off+n > len(c.buf) {
		return fmt.Errorf("step of %d bytes at offset %d in %d byte area: %w", n, c.off, len(c.buf), ErrCorrupt)
	}
	c.off += n
	return nil
}

type dirFormat int

const (
	formatShort dirFormat = iota
	formatBlock
	formatLeaf
	formatNode
)

func (f dirFormat) String() string {
	switch f {
	case formatShort:
		return "shortform"
	case formatBlock:
		return "block"
	case formatLeaf:
		return "leaf"
	case formatNode:
		return "node"
	default:
		return "unknown"
	}
}

// dirReader produces the entry under a handle's cursor, advancing it.
type dirReader interface {
	next(d *Dir, out *Dirent) error
}

var dirReaders = [...]dirReader{
	formatShort: shortFormReader{},
	formatBlock: blockFormReader{},
	formatLeaf:  leafFormReader{},
	formatNode:  nodeFormReader{},
}

// dataBlockCache holds the last data block a leaf-form read used.
type dataBlockCache struct {
	db  uint32
	buf *buffer
}

func (c *dataBlockCache) drop() {
	if c.buf != nil {
		c.buf.Release()
		c.buf = nil
	}
}

// Dir is an open directory. Its cursor counts entries consumed so far, not
// bytes. A Dir must not be used from more than one goroutine.
type Dir struct {
	fs      *FS
	ino     uint64
	core    *inodeCore
	extents *extentMap
	format  dirFormat
	reader  dirReader
	offset  uint32
	cache   dataBlockCache
	closed  bool
}

// OpenDir opens the directory with the given inode number. The encoding is
// chosen once here, not per call.
func (f *FS) OpenDir(ino uint64) (*Dir, error) {
	core, err := f.readInodeCore(ino)
	if err != nil {
		return nil, err
	}
	if !core.isDir() {
		return nil, fmt.Errorf("inode %d is not a directory", ino)
	}
	return f.openDir(ino, core)
}

// OpenDirPath resolves name and opens it as a directory.
func (f *FS) OpenDirPath(name string) (*Dir, error) {
	ino, core, err := f.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "opendir", Path: name, Err: err}
	}
	if !core.isDir() {
		return nil, &fs.PathError{Op: "opendir", Path: name, Err: fmt.Errorf("not a directory")}
	}
	return f.openDir(ino, core)
}

func (f *FS) openDir(ino uint64, core *inodeCore) (*Dir, error) {
	d := &Dir{fs: f, ino: ino, core: core}

	switch core.format {
	case fmtLocal:
		d.format = formatShort
	case fmtExtents:
		exts, err := core.extents()
		if err != nil {
			return nil, fmt.Errorf("directory inode %d: %w", ino, err)
		}
		d.extents = newExtentMap(exts)
		switch {
		case d.extents.len() <= 1:
			d.format = formatBlock
		case f.isLeafDir(d.extents):
			d.format = formatLeaf
		default:
			d.format = formatNode
		}
	case fmtBtree:
		d.format = formatNode
	default:
		return nil, fmt.Errorf("directory inode %d: data fork format %d: %w", ino, core.format, ErrUnsupportedFormat)
	}

	d.reader = dirReaders[d.format]
	f.log.Debug("opened directory", "ino", ino, "format", d.format, "size", core.size)
	return d, nil
}

// isLeafDir reports whether the last extent is exactly one directory block
// at the leaf offset, which is where a single-leaf directory keeps its index.
func (f *FS) isLeafDir(m *extentMap) bool {
	last, ok := m.last()
	if !ok {
		return false
	}
	return last.fileOff+last.count == f.geo.leafOffsetFSB+uint64(f.geo.dirBlkFSBs)
}

// Next decodes the entry under the cursor into out and advances the
// cursor. At the end it returns ErrEndOfDirectory.
func (d *Dir) Next(out *Dirent) error {
	if d.closed {
		return fs.ErrClosed
	}
	return d.reader.next(d, out)
}

// Tell returns the cursor.
func (d *Dir) Tell() uint32 { return d.offset }

// Seek restores a cursor previously obtained from Tell.
func (d *Dir) Seek(off uint32) { d.offset = off }

// Ino returns the directory's inode number.
func (d *Dir) Ino() uint64 { return d.ino }

// Format names the directory's on-disk encoding.
func (d *Dir) Format() string { return d.format.String() }

// Close releases the cached data block, if any. It is safe to call more
// than once.
func (d *Dir) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.cache.drop()
	return nil
}

// ReadAll drains the handle from its current cursor.
func (d *Dir) ReadAll() ([]Dirent, error) {
	var ents []Dirent
	for {
		var ent Dirent
		err := d.Next(&ent)
		if errors.Is(err, ErrEndOfDirectory) {
			return ents, nil
		}
		if err != nil {
			return ents, err
		}
		ents = append(ents, ent)
	}
}

// Data entries in block and leaf directories, shared by both readers.
const (
	dataFreeTag    = 0xffff
	dataEntryFixed = 9 // inumber(8) namelen(1)
	dataTagSize    = 2
	dataAlign      = 8
)

// dataEntrySize is the aligned on-disk size of a named data entry.
func (g *geometry) dataEntrySize(nameLen int) int {
	n := dataEntryFixed + nameLen + dataTagSize
	if g.ftype {
		n++
	}
	return (n + dataAlign - 1) &^ (dataAlign - 1)
}

// skipUnused moves the cursor past any free records at its position.
func skipUnused(cur *recordCursor) error {
	for {
		hdr, err := cur.bytes(4)
		if err != nil {
			return err
		}
		if binary.BigEndian.Uint16(hdr[0:2]) != dataFreeTag {
			return nil
		}
		if err := cur.advance(int(binary.BigEndian.Uint16(hdr[2:4]))); err != nil {
			return err
		}
	}
}

// seekDataEntry leaves the cursor on the n-th named entry from its
// position. Free records are stepped over by their declared length and do
// not count as entries.
func (g *geometry) seekDataEntry(cur *recordCursor, n uint32) error {
	for {
		if err := skipUnused(cur); err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		hdr, err := cur.bytes(dataEntryFixed)
		if err != nil {
			return err
		}
		if err := cur.advance(g.dataEntrySize(int(hdr[8]))); err != nil {
			return err
		}
		n--
	}
}

// readDataEntry decodes the named entry at the cursor.
func readDataEntry(cur *recordCursor) (uint64, []byte, error) {
	hdr, err := cur.bytes(dataEntryFixed)
	if err != nil {
		return 0, nil, err
	}
	rec, err := cur.bytes(dataEntryFixed + int(hdr[8]))
	if err != nil {
		return 0, nil, err
	}
	return binary.BigEndian.Uint64(rec[0:8]), rec[dataEntryFixed:], nil
}
