package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/lvdlvd/xfscat/fsys"
	"github.com/lvdlvd/xfscat/fsys/xfs"
)

// dirOpener is implemented by filesystems exposing raw directory handles.
type dirOpener interface {
	OpenDirPath(name string) (*xfs.Dir, error)
}

// ReaddirOptions controls readdir behavior
type ReaddirOptions struct {
	Start  uint32 // Cursor to seek to before reading
	Limit  int    // Stop after this many entries, 0 for all
	Styles Styles
}

// Readdir dumps the entries of a directory handle in on-disk order,
// including "." and "..", with the cursor, inode number, record length and
// type of each entry.
func Readdir(filesystem fsys.FS, fsPath string, out io.Writer, opts ReaddirOptions) error {
	fsPath = normalizePath(fsPath)

	o, ok := filesystem.(dirOpener)
	if !ok {
		return fmt.Errorf("%s: directory handles not supported", filesystem.Type())
	}

	d, err := o.OpenDirPath(fsPath)
	if err != nil {
		return err
	}
	defer d.Close()

	fmt.Fprintf(out, "# inode %d, %s format\n", d.Ino(), d.Format())
	d.Seek(opts.Start)

	for n := 0; opts.Limit <= 0 || n < opts.Limit; n++ {
		var ent xfs.Dirent
		err := d.Next(&ent)
		if errors.Is(err, xfs.ErrEndOfDirectory) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s at cursor %d: %w", fsPath, d.Tell(), err)
		}

		name := ent.Name
		if ent.Type == xfs.TypeDir {
			name = opts.Styles.Dir.Render(name)
		}
		fmt.Fprintf(out, "%6d %s %4d %-7s %s\n", ent.Off,
			opts.Styles.Inode.Render(fmt.Sprintf("%10d", ent.Ino)), ent.Reclen, ent.Type, name)
	}
	return nil
}
