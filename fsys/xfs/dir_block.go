package xfs

import (
	"encoding/binary"
	"fmt"
)

const (
	blockTailSize = 8 // count(4) stale(4)
	leafEntrySize = 8 // hashval(4) address(4)
)

// readDirBlock fetches the directory block starting at the given logical
// file block. The whole directory block must lie inside one extent.
func (d *Dir) readDirBlock(fileBlock uint64) (*buffer, error) {
	f := d.fs
	ext, ok := d.extents.lookup(fileBlock)
	if !ok {
		return nil, fmt.Errorf("directory %d: no extent maps file block %d: %w", d.ino, fileBlock, ErrCorrupt)
	}
	if fileBlock+uint64(f.geo.dirBlkFSBs) > ext.fileOff+ext.count {
		return nil, fmt.Errorf("directory %d: block at %d straddles extents: %w", d.ino, fileBlock, ErrCorrupt)
	}
	return f.blocks.readBlocks(ext.startBlock+(fileBlock-ext.fileOff), f.geo.dirBlkFSBs)
}

// blockFormReader decodes a directory whose entries and hash index share a
// single directory block. The index tail is only used for its counts.
type blockFormReader struct{}

func (blockFormReader) next(d *Dir, out *Dirent) error {
	f := d.fs
	first, ok := d.extents.first()
	if !ok {
		return fmt.Errorf("block directory %d has no extents: %w", d.ino, ErrCorrupt)
	}

	buf, err := d.readDirBlock(first.fileOff)
	if err != nil {
		return err
	}
	defer buf.Release()

	data := buf.data
	be := binary.BigEndian
	if magic := be.Uint32(data[0:4]); magic != f.geo.blockMagic {
		f.log.Error("block directory header magic does not match", "ino", d.ino, "magic", fmt.Sprintf("%#08x", magic))
		return fmt.Errorf("block directory %d: bad magic %#08x: %w", d.ino, magic, ErrCorrupt)
	}

	tail := data[len(data)-blockTailSize:]
	count := be.Uint32(tail[0:4])
	stale := be.Uint32(tail[4:8])
	leafStart := len(data) - blockTailSize - int(count)*leafEntrySize
	if stale > count || leafStart < f.geo.dataHdrSize {
		return fmt.Errorf("block directory %d: tail count %d stale %d: %w", d.ino, count, stale, ErrCorrupt)
	}

	if d.offset+1 > count-stale {
		return ErrEndOfDirectory
	}
	d.offset++

	cur := recordCursor{buf: data[:leafStart], off: f.geo.dataHdrSize}
	if err := f.geo.seekDataEntry(&cur, d.offset-1); err != nil {
		return err
	}
	ino, name, err := readDataEntry(&cur)
	if err != nil {
		return err
	}

	return f.fillDirent(out, d.offset, ino, name)
}
