package cmd

import (
	"fmt"
	"io"

	"github.com/lvdlvd/xfscat/detect"
	"github.com/lvdlvd/xfscat/fsys"
)

// Info prints the filesystem type and any properties it describes.
func Info(filesystem fsys.FS, fsType detect.Type, out io.Writer) error {
	fmt.Fprintf(out, "Filesystem type: %s\n", filesystem.Type())
	fmt.Fprintf(out, "Detected as: %s\n", fsType)

	d, ok := filesystem.(fsys.Describer)
	if !ok {
		return nil
	}
	for _, p := range d.Describe() {
		fmt.Fprintf(out, "%s: %s\n", p.Name, p.Value)
	}
	return nil
}
