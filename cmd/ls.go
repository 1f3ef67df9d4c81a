// Package cmd implements the xfscat commands.
package cmd

import (
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/lvdlvd/xfscat/fsys"
)

// LsOptions controls ls behavior
type LsOptions struct {
	Long   bool   // Long format (-l)
	All    bool   // Show dot files (-a)
	Human  bool   // Human readable sizes (-H)
	Styles Styles // Name colouring
}

// Ls lists the contents of a path in the filesystem.
// If the path is a file, it shows file information.
// If the path is a directory, it lists its contents.
func Ls(filesystem fsys.FS, fsPath string, out io.Writer, opts LsOptions) error {
	// Normalize path
	fsPath = normalizePath(fsPath)

	info, err := fs.Stat(filesystem, fsPath)
	if err != nil {
		return err
	}

	if info.IsDir() {
		return listDirectory(filesystem, fsPath, out, opts)
	}

	if opts.Long {
		printLongFormat(info, out, opts)
	} else {
		fmt.Fprintln(out, styleName(info.Name(), info.Mode(), opts.Styles))
	}
	return nil
}

func normalizePath(p string) string {
	// Remove leading /
	p = strings.TrimPrefix(p, "/")
	// Handle empty path
	if p == "" {
		return "."
	}
	// Clean the path
	return path.Clean(p)
}

func listDirectory(filesystem fsys.FS, dirPath string, out io.Writer, opts LsOptions) error {
	entries, err := fs.ReadDir(filesystem, dirPath)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		// Skip hidden files unless -a is specified
		if !opts.All && strings.HasPrefix(name, ".") {
			continue
		}

		if !opts.Long {
			if entry.IsDir() {
				name += "/"
			}
			fmt.Fprintln(out, styleName(name, entry.Type(), opts.Styles))
			continue
		}

		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(out, "%-10s %12s %s %s\n", "?????????", "?", "????????????", name)
			continue
		}
		printLongFormat(info, out, opts)
	}

	return nil
}

func styleName(name string, mode fs.FileMode, s Styles) string {
	switch {
	case mode.IsDir():
		return s.Dir.Render(name)
	case mode&fs.ModeSymlink != 0:
		return s.Symlink.Render(name)
	case mode&(fs.ModeDevice|fs.ModeNamedPipe|fs.ModeSocket) != 0:
		return s.Special.Render(name)
	}
	return name
}

func formatSize(size int64, human bool) string {
	if human {
		return humanize.Bytes(uint64(size))
	}
	return fmt.Sprint(size)
}

func printLongFormat(info fs.FileInfo, out io.Writer, opts LsOptions) {
	mode := info.Mode()
	modTime := info.ModTime().Format("Jan _2 15:04")

	// Check if we have inode info
	var inode string
	if fi, ok := info.(fsys.FileInfo); ok {
		inode = opts.Styles.Inode.Render(fmt.Sprintf("%8d", fi.Inode())) + " "
	}

	fmt.Fprintf(out, "%s%s %12s %s %s\n", inode, mode, formatSize(info.Size(), opts.Human), modTime,
		styleName(info.Name(), mode, opts.Styles))
}
