package xfs

import "errors"

// Conditions reported by the directory readers. Every failure returned by
// Dir.Next matches exactly one of these with errors.Is.
var (
	// ErrEndOfDirectory means the cursor is exhausted. It is not a fault.
	ErrEndOfDirectory = errors.New("end of directory")

	// ErrCorrupt is returned when a fetched block or record fails validation.
	ErrCorrupt = errors.New("corrupt directory structure")

	// ErrUnsupportedFormat is returned for B-tree ("node") directories.
	ErrUnsupportedFormat = errors.New("unsupported directory format")

	// ErrMetadataUnavailable is returned when the inode core of an entry's
	// target cannot be read.
	ErrMetadataUnavailable = errors.New("inode metadata unavailable")

	// ErrIO wraps failures of the underlying image reader.
	ErrIO = errors.New("i/o failure")
)
