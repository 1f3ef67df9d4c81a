// Package fsys provides a read-only filesystem interface for disk images.
package fsys

import (
	"errors"
	"io"
	"io/fs"
	"sort"
)

// Extent represents a mapping from logical file offset to physical image offset
type Extent struct {
	Logical  int64 // Offset within the file
	Physical int64 // Offset within the image
	Length   int64 // Length of this extent
}

// End returns one past the last logical byte of the extent.
func (e Extent) End() int64 { return e.Logical + e.Length }

// FS represents a read-only filesystem that can be opened from a disk image.
// It embeds io/fs.FS and adds image-specific functionality.
type FS interface {
	fs.FS
	fs.ReadDirFS
	fs.StatFS

	// Type returns the filesystem type name (e.g., "XFS v5")
	Type() string

	// Close releases any resources held by the filesystem
	Close() error
}

// ExtentMapper is an optional interface for filesystems that can report
// the physical location of file data within the image
type ExtentMapper interface {
	// FileExtents returns the list of extents that map a file's logical
	// offsets to physical offsets in the image. Returns error if path
	// doesn't exist or is a directory.
	FileExtents(path string) ([]Extent, error)
}

// Property is one line of filesystem metadata, as shown by "info".
type Property struct {
	Name  string
	Value string
}

// Describer is an optional interface for filesystems that can summarize
// their superblock.
type Describer interface {
	Describe() []Property
}

// Opener is a function that attempts to open a filesystem from a reader.
// It returns nil, nil if the filesystem type doesn't match.
// It returns nil, error if the type matches but opening fails.
type Opener func(r io.ReaderAt, size int64) (FS, error)

// FileInfo provides extended file information
type FileInfo interface {
	fs.FileInfo

	// Inode returns the inode number (0 for filesystems without inodes)
	Inode() uint64
}

var errNegativeOffset = errors.New("negative offset")

// ExtentReaderAt wraps an io.ReaderAt and a list of extents to provide
// a view of a file's data without loading it entirely into memory.
// Logical ranges not covered by any extent read as zeros.
type ExtentReaderAt struct {
	r       io.ReaderAt
	extents []Extent
	size    int64
}

// NewExtentReaderAt creates a new ExtentReaderAt from a base reader and extents.
func NewExtentReaderAt(r io.ReaderAt, extents []Extent, size int64) *ExtentReaderAt {
	sorted := make([]Extent, len(extents))
	copy(sorted, extents)
	// Sort extents by logical offset
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Logical < sorted[j].Logical
	})
	return &ExtentReaderAt{r: r, extents: sorted, size: size}
}

// Size returns the logical size of the file
func (e *ExtentReaderAt) Size() int64 {
	return e.size
}

// ReadAt implements io.ReaderAt
func (e *ExtentReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errNegativeOffset
	}
	if off >= e.size {
		return 0, io.EOF
	}

	// Limit read to file size
	var err error
	if off+int64(len(p)) > e.size {
		p = p[:e.size-off]
		err = io.EOF
	}

	n := 0
	for n < len(p) {
		// Find the extent containing this offset
		i := e.search(off)
		if i == len(e.extents) || e.extents[i].Logical > off {
			// Hole up to the next extent
			end := e.size
			if i < len(e.extents) {
				end = e.extents[i].Logical
			}
			z := min(int64(len(p)-n), end-off)
			clear(p[n : n+int(z)])
			n += int(z)
			off += z
			continue
		}

		// Calculate how much we can read from this extent
		ext := e.extents[i]
		want := min(int64(len(p)-n), ext.End()-off)
		// Read from the physical location
		nr, rerr := e.r.ReadAt(p[n:n+int(want)], ext.Physical+off-ext.Logical)
		n += nr
		off += int64(nr)
		if rerr != nil && rerr != io.EOF {
			return n, rerr
		}
		if int64(nr) < want {
			return n, io.ErrUnexpectedEOF
		}
	}

	return n, err
}

// search returns the index of the extent containing off, or else of the
// first extent starting after it.
func (e *ExtentReaderAt) search(off int64) int {
	return sort.Search(len(e.extents), func(i int) bool {
		return e.extents[i].End() > off
	})
}
