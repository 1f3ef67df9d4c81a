package xfs

import (
	"encoding/binary"
	"fmt"
)

// inumWidth is the byte width of every inode number stored in a short form
// directory. It is fixed per directory by the header.
type inumWidth int

const (
	narrowInums inumWidth = 4
	wideInums   inumWidth = 8

	// Only 56 bits of a wide short form inode number are significant.
	wideInumMask = 0x00ffffffffffffff

	sfHeaderFixed = 2 // count(1) i8count(1), then the parent inode number
	sfEntryFixed  = 3 // namelen(1) offset(2), then the name
)

func (w inumWidth) decode(b []byte) uint64 {
	if w == wideInums {
		return binary.BigEndian.Uint64(b) & wideInumMask
	}
	return uint64(binary.BigEndian.Uint32(b))
}

// entrySize is the on-disk size of a short form entry with an n byte name.
func (w inumWidth) entrySize(g *geometry, n int) int {
	size := sfEntryFixed + n + int(w)
	if g.ftype {
		size++
	}
	return size
}

// shortFormReader decodes entries stored inline in the directory inode.
// Each call rescans from the first entry; nothing but the cursor survives
// between calls.
type shortFormReader struct{}

func (shortFormReader) next(d *Dir, out *Dirent) error {
	f := d.fs
	data, err := d.inlineData()
	if err != nil {
		return err
	}
	if len(data) < sfHeaderFixed {
		return fmt.Errorf("short form directory %d: %d byte header: %w", d.ino, len(data), ErrCorrupt)
	}

	count, i8count := data[0], data[1]
	width := narrowInums
	if i8count != 0 {
		width = wideInums
	}
	f.log.Debug("short form header", "ino", d.ino, "count", count, "i8count", i8count)

	if d.offset+1 > uint32(count) {
		return ErrEndOfDirectory
	}
	d.offset++

	cur := recordCursor{buf: data, off: sfHeaderFixed + int(width)}
	for i := uint32(1); i < d.offset; i++ {
		hdr, err := cur.bytes(1)
		if err != nil {
			return err
		}
		if err := cur.advance(width.entrySize(&f.geo, int(hdr[0]))); err != nil {
			return err
		}
	}

	hdr, err := cur.bytes(1)
	if err != nil {
		return err
	}
	rec, err := cur.bytes(width.entrySize(&f.geo, int(hdr[0])))
	if err != nil {
		return err
	}
	name := rec[sfEntryFixed : sfEntryFixed+int(hdr[0])]
	ino := width.decode(rec[len(rec)-int(width):])

	return f.fillDirent(out, d.offset, ino, name)
}

// inlineData returns the literal area of a local format directory, cut to
// the directory size.
func (d *Dir) inlineData() ([]byte, error) {
	fork := d.core.fork
	if d.core.size > uint64(len(fork)) {
		return nil, fmt.Errorf("short form directory %d: size %d exceeds %d byte fork: %w", d.ino, d.core.size, len(fork), ErrCorrupt)
	}
	return fork[:d.core.size], nil
}
