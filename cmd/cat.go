package cmd

import (
	"fmt"
	"io"
	"io/fs"

	"github.com/dustin/go-humanize"

	"github.com/lvdlvd/xfscat/fsys"
)

// Cat copies the contents of a file to the given writer.
// When the filesystem supports extent mapping, it streams directly
// from the underlying image without loading the file into memory.
func Cat(filesystem fsys.FS, fsPath string, out io.Writer) error {
	// Normalize path
	fsPath = normalizePath(fsPath)

	// Check if it's a directory
	info, err := fs.Stat(filesystem, fsPath)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s: is a directory", fsPath)
	}

	size := info.Size()

	// Try extent-based streaming first
	if em, ok := filesystem.(fsys.ExtentMapper); ok {
		if br, ok := filesystem.(interface{ BaseReader() io.ReaderAt }); ok {
			extents, err := em.FileExtents(fsPath)
			if err == nil && len(extents) > 0 {
				return copyReaderAt(out, fsys.NewExtentReaderAt(br.BaseReader(), extents, size), size)
			}
		}
	}

	// Fall back to standard file reading
	file, err := filesystem.Open(fsPath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(out, file)
	return err
}

// copyReaderAt writes the first size bytes of r in 64KB chunks.
func copyReaderAt(out io.Writer, r io.ReaderAt, size int64) error {
	_, err := io.CopyBuffer(out, io.NewSectionReader(r, 0, size), make([]byte, 64*1024))
	return err
}

// owned is implemented by file infos carrying ownership and link counts.
type owned interface {
	Nlink() uint32
	Owner() (uid, gid uint32)
}

// Stat shows detailed information about a file or directory.
func Stat(filesystem fsys.FS, fsPath string, out io.Writer) error {
	fsPath = normalizePath(fsPath)

	info, err := fs.Stat(filesystem, fsPath)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "   File: %s\n", info.Name())
	fmt.Fprintf(out, "   Size: %d (%s)\n", info.Size(), humanize.IBytes(uint64(info.Size())))
	fmt.Fprintf(out, "   Mode: %s\n", info.Mode())
	fmt.Fprintf(out, "ModTime: %s\n", info.ModTime())

	if fi, ok := info.(fsys.FileInfo); ok {
		fmt.Fprintf(out, "  Inode: %d\n", fi.Inode())
	}
	if o, ok := info.(owned); ok {
		uid, gid := o.Owner()
		fmt.Fprintf(out, "  Links: %d\n", o.Nlink())
		fmt.Fprintf(out, "  Owner: %d/%d\n", uid, gid)
	}

	return nil
}
