package xfs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/lvdlvd/xfscat/fsys"
)

// fs.FS implementation

func (f *FS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	ino, core, err := f.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}

	if core.isDir() {
		return &xfsDir{fs: f, core: core, inodeNum: ino, name: path.Base(name)}, nil
	}

	r, err := f.dataReader(core)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &xfsFile{core: core, inodeNum: ino, name: path.Base(name), r: io.NewSectionReader(r, 0, int64(core.size))}, nil
}

// lookup resolves a slash separated path from the root directory.
func (f *FS) lookup(name string) (uint64, *inodeCore, error) {
	ino := f.sb.rootIno
	core, err := f.readInodeCore(ino)
	if err != nil {
		return 0, nil, err
	}
	if name == "." {
		return ino, core, nil
	}

	for _, part := range strings.Split(name, "/") {
		if !core.isDir() {
			return 0, nil, fs.ErrNotExist
		}
		if ino, err = f.findEntry(ino, core, part); err != nil {
			return 0, nil, err
		}
		if core, err = f.readInodeCore(ino); err != nil {
			return 0, nil, err
		}
	}

	return ino, core, nil
}

// findEntry scans a directory for name through a fresh handle.
func (f *FS) findEntry(dirIno uint64, core *inodeCore, name string) (uint64, error) {
	d, err := f.openDir(dirIno, core)
	if err != nil {
		return 0, err
	}
	defer d.Close()

	for {
		var ent Dirent
		err := d.Next(&ent)
		if errors.Is(err, ErrEndOfDirectory) {
			return 0, fs.ErrNotExist
		}
		if err != nil {
			return 0, err
		}
		if ent.Name == name {
			return ent.Ino, nil
		}
	}
}

func (f *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	file, err := f.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	dir, ok := file.(fs.ReadDirFile)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}

	entries, err := dir.ReadDir(-1)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(entries, func(a, b fs.DirEntry) int { return strings.Compare(a.Name(), b.Name()) })
	return entries, nil
}

func (f *FS) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	ino, core, err := f.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return &xfsFileInfo{core: core, inodeNum: ino, name: path.Base(name)}, nil
}

// FileExtents returns the physical extents for a file
func (f *FS) FileExtents(name string) ([]fsys.Extent, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "extents", Path: name, Err: fs.ErrInvalid}
	}
	_, core, err := f.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "extents", Path: name, Err: err}
	}
	if core.isDir() {
		return nil, &fs.PathError{Op: "extents", Path: name, Err: fmt.Errorf("cannot get extents for directory")}
	}
	exts, err := f.byteExtents(core)
	if err != nil {
		return nil, &fs.PathError{Op: "extents", Path: name, Err: err}
	}
	return exts, nil
}

// byteExtents converts the inode's written extents to image byte ranges,
// clipped to the file size. Unwritten extents read as holes.
func (f *FS) byteExtents(core *inodeCore) ([]fsys.Extent, error) {
	exts, err := core.extents()
	if err != nil {
		return nil, err
	}

	bs := int64(f.sb.blockSize)
	size := int64(core.size)
	var out []fsys.Extent
	for _, e := range exts {
		logical := int64(e.fileOff) * bs
		if e.unwritten || logical >= size {
			continue
		}
		out = append(out, fsys.Extent{
			Logical:  logical,
			Physical: f.fsbToOffset(e.startBlock),
			Length:   min(int64(e.count)*bs, size-logical),
		})
	}
	return out, nil
}

// dataReader returns a reader over a regular file's contents.
func (f *FS) dataReader(core *inodeCore) (io.ReaderAt, error) {
	switch core.format {
	case fmtLocal:
		if core.size > uint64(len(core.fork)) {
			return nil, fmt.Errorf("inline data of %d bytes exceeds fork: %w", core.size, ErrCorrupt)
		}
		return bytes.NewReader(core.fork[:core.size]), nil
	case fmtExtents:
		exts, err := f.byteExtents(core)
		if err != nil {
			return nil, err
		}
		return fsys.NewExtentReaderAt(f.r, exts, int64(core.size)), nil
	case fmtDev:
		return bytes.NewReader(nil), nil
	default:
		return nil, fmt.Errorf("data fork format %d: %w", core.format, ErrUnsupportedFormat)
	}
}

// xfsFile implements fs.File for regular files
type xfsFile struct {
	core     *inodeCore
	inodeNum uint64
	name     string
	r        *io.SectionReader
}

func (f *xfsFile) Stat() (fs.FileInfo, error) {
	return &xfsFileInfo{core: f.core, inodeNum: f.inodeNum, name: f.name}, nil
}

func (f *xfsFile) Read(b []byte) (int, error)                { return f.r.Read(b) }
func (f *xfsFile) ReadAt(b []byte, off int64) (int, error)   { return f.r.ReadAt(b, off) }
func (f *xfsFile) Seek(off int64, whence int) (int64, error) { return f.r.Seek(off, whence) }
func (f *xfsFile) Close() error                              { return nil }

// xfsDir implements fs.File and fs.ReadDirFile for directories. Entries
// are streamed from a directory handle opened on the first ReadDir.
type xfsDir struct {
	fs       *FS
	core     *inodeCore
	inodeNum uint64
	name     string
	handle   *Dir
	done     bool
}

func (d *xfsDir) Stat() (fs.FileInfo, error) {
	return &xfsFileInfo{core: d.core, inodeNum: d.inodeNum, name: d.name}, nil
}

func (d *xfsDir) Read(b []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

func (d *xfsDir) Close() error {
	if d.handle == nil {
		return nil
	}
	return d.handle.Close()
}

func (d *xfsDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if d.handle == nil {
		h, err := d.fs.openDir(d.inodeNum, d.core)
		if err != nil {
			return nil, &fs.PathError{Op: "readdir", Path: d.name, Err: err}
		}
		d.handle = h
	}

	var entries []fs.DirEntry
	for !d.done && (n <= 0 || len(entries) < n) {
		var ent Dirent
		err := d.handle.Next(&ent)
		if errors.Is(err, ErrEndOfDirectory) {
			d.done = true
			break
		}
		if err != nil {
			return entries, &fs.PathError{Op: "readdir", Path: d.name, Err: err}
		}
		if ent.Name == "." || ent.Name == ".." {
			continue
		}
		entries = append(entries, &xfsDirEntry{fs: d.fs, ent: ent})
	}

	if n > 0 && len(entries) == 0 {
		return nil, io.EOF
	}
	return entries, nil
}

// xfsDirEntry implements fs.DirEntry
type xfsDirEntry struct {
	fs  *FS
	ent Dirent
}

func (e *xfsDirEntry) Name() string { return e.ent.Name }
func (e *xfsDirEntry) IsDir() bool  { return e.ent.Type == TypeDir }

func (e *xfsDirEntry) Type() fs.FileMode {
	if e.IsDir() {
		return fs.ModeDir
	}
	return 0
}

func (e *xfsDirEntry) Info() (fs.FileInfo, error) {
	core, err := e.fs.readInodeCore(e.ent.Ino)
	if err != nil {
		return nil, err
	}
	return &xfsFileInfo{core: core, inodeNum: e.ent.Ino, name: e.ent.Name}, nil
}

// xfsFileInfo implements fs.FileInfo and fsys.FileInfo
type xfsFileInfo struct {
	core     *inodeCore
	inodeNum uint64
	name     string
}

func (i *xfsFileInfo) Name() string       { return i.name }
func (i *xfsFileInfo) Size() int64        { return int64(i.core.size) }
func (i *xfsFileInfo) Mode() fs.FileMode  { return fileMode(i.core.mode) }
func (i *xfsFileInfo) ModTime() time.Time { return i.core.mtime }
func (i *xfsFileInfo) IsDir() bool        { return i.core.isDir() }
func (i *xfsFileInfo) Sys() any           { return nil }
func (i *xfsFileInfo) Inode() uint64      { return i.inodeNum }

// Nlink returns the inode's link count.
func (i *xfsFileInfo) Nlink() uint32 { return i.core.nlink }

// Owner returns the numeric user and group ids.
func (i *xfsFileInfo) Owner() (uid, gid uint32) { return i.core.uid, i.core.gid }
